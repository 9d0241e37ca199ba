// Package analysis owns the lesion analysis workflow: image selection, the
// consent-gated submission, the demo fallback and the resulting state.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/lesion-check/internal/consent"
	"github.com/example/lesion-check/internal/logging"
	"github.com/example/lesion-check/internal/media"
	"github.com/example/lesion-check/internal/notify"
	"github.com/example/lesion-check/internal/predictor"
)

// DefaultFallbackDelay paces the demo result after a failed submission.
const DefaultFallbackDelay = 2 * time.Second

var (
	ErrNoImage         = errors.New("no image selected")
	ErrConsentRequired = errors.New("consent required")
)

// Phase is the workflow state. Reset is a transition back to Idle.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseImageSelected Phase = "image_selected"
	PhaseSubmitting    Phase = "submitting"
	PhaseComplete      Phase = "complete"
)

// Notifier receives user-facing notifications.
type Notifier interface {
	Notify(n notify.Notification)
}

// ImageView describes the selected image without its bytes.
type ImageView struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	MIMEType  string           `json:"mime_type"`
	SizeBytes int64            `json:"size_bytes"`
	Source    media.SourceKind `json:"source"`
	Preview   string           `json:"preview,omitempty"`
}

// Snapshot is a read-only copy of the workflow state.
type Snapshot struct {
	Phase        Phase             `json:"phase"`
	Image        *ImageView        `json:"image,omitempty"`
	Consent      bool              `json:"consent"`
	SubmissionID string            `json:"submission_id,omitempty"`
	Result       *predictor.Result `json:"result,omitempty"`
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithFallbackDelay overrides DefaultFallbackDelay.
func WithFallbackDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.fallbackDelay = d }
}

// WithPreviewEncoder replaces media.DataURLEncoder.
func WithPreviewEncoder(enc media.PreviewEncoder) Option {
	return func(o *Orchestrator) { o.encodePreview = enc }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator is the single owner of the workflow state. Every transition
// happens under mu; background work carries the generation it was started in
// and is dropped if the generation moved on before it finished.
type Orchestrator struct {
	client        predictor.Client
	gate          *consent.Gate
	notifier      Notifier
	logger        *zap.Logger
	fallbackDelay time.Duration
	encodePreview media.PreviewEncoder
	now           func() time.Time
	stats         *statsRecorder

	mu            sync.Mutex
	phase         Phase
	asset         *media.ImageAsset
	preview       string
	result        *predictor.Result
	generation    uint64
	submissionID  string
	cancelPreview context.CancelFunc
	cancelSubmit  context.CancelFunc
	done          chan struct{}
}

// New builds an Orchestrator in the Idle phase.
func New(client predictor.Client, gate *consent.Gate, notifier Notifier, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:        client,
		gate:          gate,
		notifier:      notifier,
		logger:        logger.Named("analysis"),
		fallbackDelay: DefaultFallbackDelay,
		encodePreview: media.DataURLEncoder,
		now:           time.Now,
		stats:         &statsRecorder{},
		phase:         PhaseIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SelectImage makes asset the current image. Any previous result is dropped,
// and in-flight preview encodes or submissions for older images are superseded.
func (o *Orchestrator) SelectImage(asset *media.ImageAsset) error {
	if asset == nil {
		return ErrNoImage
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.supersedeLocked()
	o.asset = asset
	o.preview = ""
	o.result = nil
	o.submissionID = ""
	o.phase = PhaseImageSelected

	ctx, cancel := context.WithCancel(context.Background())
	o.cancelPreview = cancel
	go o.runPreview(ctx, asset)

	o.logger.Info("image selected",
		zap.String("asset_id", asset.ID),
		zap.String("source", string(asset.Source)),
		zap.Int64("size_bytes", asset.SizeBytes),
	)
	return nil
}

// Submit starts the analysis of the current image and returns once the
// workflow is Submitting. ctx only bounds the call itself: the submission
// outlives it and is cancelled by Reset or a new SelectImage. Submit is a
// no-op while a submission is already in flight.
func (o *Orchestrator) Submit(ctx context.Context) error {
	var rejection *notify.Notification
	o.mu.Lock()
	defer func() {
		o.mu.Unlock()
		if rejection != nil {
			o.notify(*rejection)
		}
	}()

	if o.phase == PhaseSubmitting {
		return nil
	}
	if o.phase == PhaseIdle || o.asset == nil {
		rejection = &notify.Notification{Kind: notify.KindNoImage, Title: "No image selected", Message: "Please upload an image first.", Destructive: true}
		return ErrNoImage
	}
	if !o.gate.Given() {
		rejection = &notify.Notification{Kind: notify.KindConsentRequired, Title: "Consent required", Message: "Please check the consent box before proceeding.", Destructive: true}
		return ErrConsentRequired
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// A re-analysis of a completed image must reach the classifier again.
	refresh := o.phase == PhaseComplete
	o.generation++
	gen := o.generation
	submissionID := uuid.NewString()
	subCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	if o.done != nil {
		close(o.done)
	}
	o.phase = PhaseSubmitting
	o.result = nil
	o.submissionID = submissionID
	o.cancelSubmit = cancel
	o.done = done

	req := predictor.Request{
		SubmissionID: submissionID,
		FileName:     o.asset.Name,
		MIMEType:     o.asset.MIMEType,
		Image:        o.asset.Bytes,
		Refresh:      refresh,
	}
	started := o.now()
	logging.WithOperation(o.logger, "analysis.submit", submissionID).Info("submission started", zap.String("asset_id", o.asset.ID))

	go o.runSubmission(subCtx, gen, o.asset, req, started, done)
	return nil
}

// Reset returns the workflow to Idle, clearing image, consent and result.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.supersedeLocked()
	o.asset = nil
	o.preview = ""
	o.result = nil
	o.submissionID = ""
	o.phase = PhaseIdle
	o.gate.Reset()
	o.logger.Info("workflow reset")
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Snapshot{
		Phase:        o.phase,
		Consent:      o.gate.Given(),
		SubmissionID: o.submissionID,
		Result:       o.result,
	}
	if o.asset != nil {
		s.Image = &ImageView{
			ID:        o.asset.ID,
			Name:      o.asset.Name,
			MIMEType:  o.asset.MIMEType,
			SizeBytes: o.asset.SizeBytes,
			Source:    o.asset.Source,
			Preview:   o.preview,
		}
	}
	return s
}

// Await blocks until no submission is in flight and returns the state.
func (o *Orchestrator) Await(ctx context.Context) (Snapshot, error) {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
	}
	return o.Snapshot(), nil
}

// Stats reports submission counters.
func (o *Orchestrator) Stats() Stats {
	return o.stats.summary()
}

// supersedeLocked invalidates every background operation of the current
// generation. Callers hold mu.
func (o *Orchestrator) supersedeLocked() {
	o.generation++
	if o.cancelPreview != nil {
		o.cancelPreview()
		o.cancelPreview = nil
	}
	if o.cancelSubmit != nil {
		o.cancelSubmit()
		o.cancelSubmit = nil
	}
	if o.done != nil {
		close(o.done)
		o.done = nil
	}
}

// runPreview applies the encoded preview only if asset is still the current
// image when the encode finishes.
func (o *Orchestrator) runPreview(ctx context.Context, asset *media.ImageAsset) {
	preview, err := o.encodePreview(ctx, asset)
	if err != nil {
		if ctx.Err() == nil {
			o.logger.Warn("preview encode failed", zap.String("asset_id", asset.ID), zap.Error(err))
		}
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.asset == nil || o.asset.ID != asset.ID {
		o.logger.Debug("discarding stale preview", zap.String("asset_id", asset.ID))
		return
	}
	o.preview = preview
}

func (o *Orchestrator) runSubmission(ctx context.Context, gen uint64, asset *media.ImageAsset, req predictor.Request, started time.Time, done chan struct{}) {
	opLogger := logging.WithOperation(o.logger, "analysis.run_submission", req.SubmissionID)

	result, err := o.client.Predict(ctx, req)
	if ctx.Err() != nil {
		opLogger.Info("submission superseded")
		return
	}

	demo := false
	if err != nil {
		demo = true
		reason := predictor.ReasonOf(err)
		opLogger.Warn("remote analysis failed, using demo result", zap.String("reason", string(reason)), zap.Error(err))
		o.notify(notify.Notification{
			Kind:        notify.KindAnalysisDemo,
			Title:       "Analysis failed",
			Message:     "Unable to connect to analysis server. Using demo mode.",
			Reason:      string(reason),
			Destructive: true,
		})

		if o.fallbackDelay > 0 {
			timer := time.NewTimer(o.fallbackDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				opLogger.Info("submission superseded during fallback delay")
				return
			}
		}

		overlay, err := o.previewFor(ctx, asset)
		if err != nil {
			opLogger.Warn("preview unavailable for demo overlay", zap.Error(err))
		}
		elapsed := o.now().Sub(started).Milliseconds()
		if elapsed < 0 {
			elapsed = 0
		}
		result = FallbackResult(overlay, elapsed)
	}

	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		opLogger.Info("discarding result of superseded submission")
		return
	}
	o.phase = PhaseComplete
	o.result = result
	if o.cancelSubmit != nil {
		o.cancelSubmit()
		o.cancelSubmit = nil
	}
	o.stats.record(result.ProcessingTimeMs, demo)
	o.mu.Unlock()

	if !demo {
		o.notify(notify.Notification{
			Kind:    notify.KindAnalysisComplete,
			Title:   "Analysis complete",
			Message: completionMessage(result),
		})
	}
	opLogger.Info("submission complete",
		zap.Bool("demo", demo),
		zap.Bool("cached", result.Cached),
		zap.String("model_version", result.ModelVersion),
		zap.Float64("malignant_score", result.MalignancyScore),
		zap.Int64("processing_time_ms", result.ProcessingTimeMs),
	)

	o.mu.Lock()
	if o.done == done {
		close(o.done)
		o.done = nil
	}
	o.mu.Unlock()
}

// previewFor returns the preview of asset, encoding it now if the background
// encode has not landed yet.
func (o *Orchestrator) previewFor(ctx context.Context, asset *media.ImageAsset) (string, error) {
	o.mu.Lock()
	if o.asset != nil && o.asset.ID == asset.ID && o.preview != "" {
		preview := o.preview
		o.mu.Unlock()
		return preview, nil
	}
	o.mu.Unlock()

	preview, err := o.encodePreview(ctx, asset)
	if err != nil {
		return "", err
	}

	o.mu.Lock()
	if o.asset != nil && o.asset.ID == asset.ID && o.preview == "" {
		o.preview = preview
	}
	o.mu.Unlock()
	return preview, nil
}

func completionMessage(r *predictor.Result) string {
	if r.Cached {
		return fmt.Sprintf("Processed in %dms (cached result)", r.ProcessingTimeMs)
	}
	return fmt.Sprintf("Processed in %dms", r.ProcessingTimeMs)
}

func (o *Orchestrator) notify(n notify.Notification) {
	if o.notifier != nil {
		o.notifier.Notify(n)
	}
}
