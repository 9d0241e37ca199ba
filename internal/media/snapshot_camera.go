package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"net/http"
	"sync"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"github.com/go-resty/resty/v2"
	_ "golang.org/x/image/webp"
)

// SnapshotCamera reads stills from a device snapshot endpoint, the way IP
// cameras and webcam bridges expose them. The facing preference is passed as
// the "facing" query parameter.
type SnapshotCamera struct {
	url    string
	client *resty.Client
}

// NewSnapshotCamera returns a camera backed by the snapshot URL.
func NewSnapshotCamera(url string, timeout time.Duration) *SnapshotCamera {
	client := resty.New().SetTimeout(timeout)
	return &SnapshotCamera{url: url, client: client}
}

// Open fetches the first snapshot. Authorization failures and unreachable
// devices are reported as ErrCameraUnavailable.
func (c *SnapshotCamera) Open(ctx context.Context, facing Facing) (Stream, error) {
	if c.url == "" {
		return nil, fmt.Errorf("%w: no snapshot url", ErrCameraUnavailable)
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("facing", string(facing)).
		Get(c.url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return nil, fmt.Errorf("%w: permission denied (status %d)", ErrCameraUnavailable, resp.StatusCode())
	case !resp.IsSuccess():
		return nil, fmt.Errorf("%w: status %d", ErrCameraUnavailable, resp.StatusCode())
	}
	return &snapshotStream{data: resp.Body()}, nil
}

type snapshotStream struct {
	mu      sync.Mutex
	data    []byte
	stopped bool
}

func (s *snapshotStream) Metadata(ctx context.Context) (Dimensions, error) {
	data, err := s.snapshot(ctx)
	if err != nil {
		return Dimensions{}, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Dimensions{}, fmt.Errorf("decode snapshot config: %w", err)
	}
	return Dimensions{Width: cfg.Width, Height: cfg.Height}, nil
}

func (s *snapshotStream) Frame(ctx context.Context) (image.Image, error) {
	data, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return img, nil
}

func (s *snapshotStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.data = nil
	return nil
}

func (s *snapshotStream) snapshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, fmt.Errorf("camera stream stopped")
	}
	return s.data, nil
}
