package media

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Source is one of FileSource, DropSource or CameraSource.
type Source interface {
	Kind() SourceKind
	candidate(ctx context.Context) (Candidate, error)
}

// FileSource is the result of a file picker. Only the first file is honored.
type FileSource struct {
	Files []Candidate
}

func (FileSource) Kind() SourceKind { return SourceFile }

func (s FileSource) candidate(context.Context) (Candidate, error) {
	return firstFile(s.Files)
}

// DropSource is the payload of a drag-and-drop. Only the first file is honored.
type DropSource struct {
	Files []Candidate
}

func (DropSource) Kind() SourceKind { return SourceDrop }

func (s DropSource) candidate(context.Context) (Candidate, error) {
	return firstFile(s.Files)
}

// CameraSource captures one still frame from a device camera.
type CameraSource struct {
	Camera   Camera
	Facing   Facing
	Capturer *Capturer
}

func (CameraSource) Kind() SourceKind { return SourceCamera }

func (s CameraSource) candidate(ctx context.Context) (Candidate, error) {
	if s.Camera == nil {
		return Candidate{}, fmt.Errorf("%w: no camera configured", ErrCameraUnavailable)
	}
	capturer := s.Capturer
	if capturer == nil {
		capturer = &Capturer{}
	}
	return capturer.Capture(ctx, s.Camera, s.Facing)
}

func firstFile(files []Candidate) (Candidate, error) {
	if len(files) == 0 {
		return Candidate{}, ErrEmptySelection
	}
	return files[0], nil
}

// Acquirer normalizes any Source into a validated ImageAsset.
type Acquirer struct {
	maxBytes int64
	logger   *zap.Logger
}

// NewAcquirer returns an Acquirer enforcing maxBytes.
func NewAcquirer(maxBytes int64, logger *zap.Logger) *Acquirer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Acquirer{maxBytes: maxBytes, logger: logger.Named("media")}
}

// MaxBytes is the configured ceiling.
func (a *Acquirer) MaxBytes() int64 { return a.maxBytes }

// Acquire pulls a candidate from src and validates it.
func (a *Acquirer) Acquire(ctx context.Context, src Source) (*ImageAsset, error) {
	c, err := src.candidate(ctx)
	if err != nil {
		a.logger.Warn("image source failed", zap.String("source", string(src.Kind())), zap.Error(err))
		return nil, err
	}
	asset, err := Validate(c, src.Kind(), a.maxBytes)
	if err != nil {
		a.logger.Info("image rejected",
			zap.String("source", string(src.Kind())),
			zap.String("mime_type", c.MIMEType),
			zap.Int("size_bytes", len(c.Data)),
			zap.Error(err),
		)
		return nil, err
	}
	a.logger.Debug("image accepted",
		zap.String("asset_id", asset.ID),
		zap.String("source", string(asset.Source)),
		zap.String("mime_type", asset.MIMEType),
		zap.Int64("size_bytes", asset.SizeBytes),
	)
	return asset, nil
}
