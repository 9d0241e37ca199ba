// Package predictor defines the contract with the remote lesion classifier.
package predictor

import (
	"context"
	"errors"
	"fmt"
)

// Request binds one image to one submission. Refresh asks caching clients
// to skip stored results and reach the classifier.
type Request struct {
	SubmissionID string
	FileName     string
	MIMEType     string
	Image        []byte
	Refresh      bool
}

// Prediction is one ranked class score.
type Prediction struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Result is the classifier response. Predictions are ranked, first is the
// most confident by convention. Cached is set when the result was served from
// a cache rather than computed for this submission.
type Result struct {
	ModelVersion     string       `json:"model_version"`
	Predictions      []Prediction `json:"predictions"`
	MalignancyScore  float64      `json:"malignant_score"`
	VisualOverlay    string       `json:"grad_cam"`
	Explanation      string       `json:"explanation"`
	ProcessingTimeMs int64        `json:"processing_time_ms"`
	Cached           bool         `json:"cached,omitempty"`
}

// Client submits an image for classification.
type Client interface {
	Predict(ctx context.Context, req Request) (*Result, error)
}

// Validate checks the value ranges of a decoded result.
func (r *Result) Validate() error {
	if r == nil {
		return errors.New("empty result")
	}
	seen := make(map[string]struct{}, len(r.Predictions))
	for i, p := range r.Predictions {
		if p.Label == "" {
			return fmt.Errorf("prediction %d has no label", i)
		}
		if _, dup := seen[p.Label]; dup {
			return fmt.Errorf("duplicate label %q", p.Label)
		}
		seen[p.Label] = struct{}{}
		if p.Probability < 0 || p.Probability > 1 {
			return fmt.Errorf("probability %v for %q out of range", p.Probability, p.Label)
		}
	}
	if r.MalignancyScore < 0 || r.MalignancyScore > 1 {
		return fmt.Errorf("malignant_score %v out of range", r.MalignancyScore)
	}
	if r.ProcessingTimeMs < 0 {
		return fmt.Errorf("processing_time_ms %d is negative", r.ProcessingTimeMs)
	}
	return nil
}

// FailureReason classifies why a prediction could not be obtained.
type FailureReason string

const (
	ReasonNetwork   FailureReason = "network"
	ReasonServer    FailureReason = "server_error"
	ReasonMalformed FailureReason = "malformed_response"
)

// RemoteError is returned by clients when the classifier could not produce a result.
type RemoteError struct {
	Reason     FailureReason
	StatusCode int
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Reason, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// ReasonOf extracts the failure reason of err. Unclassified errors count as
// network failures.
func ReasonOf(err error) FailureReason {
	var remote *RemoteError
	if errors.As(err, &remote) && remote.Reason != "" {
		return remote.Reason
	}
	return ReasonNetwork
}
