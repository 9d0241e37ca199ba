// Package predictclient talks to the lesion classifier over multipart HTTP.
package predictclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/example/lesion-check/internal/logging"
	"github.com/example/lesion-check/internal/predictor"
)

// DefaultPath is where the classifier accepts submissions.
const DefaultPath = "/api/predict"

// FormField is the multipart field carrying the image.
const FormField = "file"

// Options configures the HTTP client.
type Options struct {
	BaseURL string
	Path    string
	Timeout time.Duration
}

// Client is a predictor.Client backed by resty.
type Client struct {
	http   *resty.Client
	path   string
	logger *zap.Logger
}

// New returns a classifier client for opts.BaseURL.
func New(opts Options, logger *zap.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, logging.NewOperationError("predictclient.new", "", errors.New("base url is required"))
	}
	path := opts.Path
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	httpClient := resty.New().SetBaseURL(base)
	if opts.Timeout > 0 {
		httpClient.SetTimeout(opts.Timeout)
	}
	return &Client{http: httpClient, path: path, logger: logger.Named("predictclient")}, nil
}

// wireResult mirrors predictor.Result with pointers so missing required
// fields can be told apart from zero values.
type wireResult struct {
	ModelVersion     *string                 `json:"model_version"`
	Predictions      *[]predictor.Prediction `json:"predictions"`
	MalignancyScore  *float64                `json:"malignant_score"`
	VisualOverlay    string                  `json:"grad_cam"`
	Explanation      string                  `json:"explanation"`
	ProcessingTimeMs *float64                `json:"processing_time_ms"`
}

// Predict submits the image as multipart form data. Every failure is returned
// as a *predictor.RemoteError wrapped in an OperationError.
func (c *Client) Predict(ctx context.Context, req predictor.Request) (*predictor.Result, error) {
	opLogger := logging.WithOperation(c.logger, "predictclient.predict", req.SubmissionID)

	fileName := req.FileName
	if fileName == "" {
		fileName = "upload"
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetMultipartField(FormField, fileName, req.MIMEType, bytes.NewReader(req.Image)).
		Post(c.path)
	if err != nil {
		return nil, c.fail(opLogger, req.SubmissionID, &predictor.RemoteError{Reason: predictor.ReasonNetwork, Err: err})
	}
	if !resp.IsSuccess() {
		body := strings.TrimSpace(string(resp.Body()))
		if len(body) > 256 {
			body = body[:256]
		}
		return nil, c.fail(opLogger, req.SubmissionID, &predictor.RemoteError{
			Reason:     predictor.ReasonServer,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("unexpected response: %s", body),
		})
	}

	result, err := decodeResult(resp.Body())
	if err != nil {
		return nil, c.fail(opLogger, req.SubmissionID, &predictor.RemoteError{
			Reason:     predictor.ReasonMalformed,
			StatusCode: resp.StatusCode(),
			Err:        err,
		})
	}

	opLogger.Info("prediction received",
		zap.String("model_version", result.ModelVersion),
		zap.Int64("processing_time_ms", result.ProcessingTimeMs),
		zap.Duration("round_trip", resp.Time()),
	)
	return result, nil
}

func (c *Client) fail(opLogger *zap.Logger, requestID string, remote *predictor.RemoteError) error {
	wrapped := logging.NewOperationError("predictclient.predict", requestID, remote)
	opLogger.Warn("prediction failed", zap.String("reason", string(remote.Reason)), zap.Error(wrapped))
	return wrapped
}

func decodeResult(body []byte) (*predictor.Result, error) {
	var wire wireResult
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var missing []string
	if wire.ModelVersion == nil {
		missing = append(missing, "model_version")
	}
	if wire.Predictions == nil {
		missing = append(missing, "predictions")
	}
	if wire.MalignancyScore == nil {
		missing = append(missing, "malignant_score")
	}
	if wire.ProcessingTimeMs == nil {
		missing = append(missing, "processing_time_ms")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("response missing %s", strings.Join(missing, ", "))
	}

	result := &predictor.Result{
		ModelVersion:     *wire.ModelVersion,
		Predictions:      *wire.Predictions,
		MalignancyScore:  *wire.MalignancyScore,
		VisualOverlay:    wire.VisualOverlay,
		Explanation:      wire.Explanation,
		ProcessingTimeMs: int64(math.Round(*wire.ProcessingTimeMs)),
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("invalid response: %w", err)
	}
	return result, nil
}
