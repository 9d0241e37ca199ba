// Package media turns the three image sources (file picker, drag-and-drop and a
// camera snapshot) into one validated ImageAsset.
package media

import (
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxBytes is the upload ceiling applied when none is configured.
const DefaultMaxBytes int64 = 8 * 1024 * 1024

var (
	ErrInvalidFormat     = errors.New("invalid image format")
	ErrTooLarge          = errors.New("image too large")
	ErrCameraUnavailable = errors.New("camera unavailable")
	ErrEmptySelection    = errors.New("no file selected")
)

var allowedTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
	"image/webp": {},
}

// SourceKind names where a candidate image came from.
type SourceKind string

const (
	SourceFile   SourceKind = "file"
	SourceDrop   SourceKind = "drop"
	SourceCamera SourceKind = "camera"
)

// Candidate is an unvalidated image as handed over by a source.
type Candidate struct {
	Name     string
	MIMEType string
	Data     []byte
}

// ImageAsset is a validated image. It is replaced, never mutated, when the
// user picks a new source.
type ImageAsset struct {
	ID         string
	Name       string
	Bytes      []byte
	MIMEType   string
	SizeBytes  int64
	Source     SourceKind
	AcquiredAt time.Time
}

// AllowedType reports whether a declared content type is accepted. Media type
// parameters and case are ignored.
func AllowedType(declared string) bool {
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(declared))
	}
	_, ok := allowedTypes[mediaType]
	return ok
}

// Validate applies the acquisition rule shared by every source: the declared
// type must be allowed, then the payload must fit in maxBytes. A non-positive
// maxBytes means DefaultMaxBytes.
func Validate(c Candidate, kind SourceKind, maxBytes int64) (*ImageAsset, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if !AllowedType(c.MIMEType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, c.MIMEType)
	}
	size := int64(len(c.Data))
	if size > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (max %d bytes)", ErrTooLarge, size, maxBytes)
	}

	return &ImageAsset{
		ID:         uuid.NewString(),
		Name:       c.Name,
		Bytes:      c.Data,
		MIMEType:   c.MIMEType,
		SizeBytes:  size,
		Source:     kind,
		AcquiredAt: time.Now().UTC(),
	}, nil
}
