package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeCamera struct {
	stream  *fakeStream
	openErr error
	facing  Facing
}

func (c *fakeCamera) Open(ctx context.Context, facing Facing) (Stream, error) {
	c.facing = facing
	if c.openErr != nil {
		return nil, c.openErr
	}
	return c.stream, nil
}

type fakeStream struct {
	dims     Dimensions
	frame    image.Image
	metaErr  error
	frameErr error
	stops    int
}

func (s *fakeStream) Metadata(context.Context) (Dimensions, error) { return s.dims, s.metaErr }

func (s *fakeStream) Frame(context.Context) (image.Image, error) { return s.frame, s.frameErr }

func (s *fakeStream) Stop() error {
	s.stops++
	return nil
}

func solidFrame(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 180, G: 120, B: 90, A: 255})
		}
	}
	return img
}

func TestCaptureProducesNativeSizeJPEG(t *testing.T) {
	stream := &fakeStream{dims: Dimensions{Width: 32, Height: 24}, frame: solidFrame(32, 24)}
	cam := &fakeCamera{stream: stream}
	capturer := &Capturer{Now: func() time.Time { return time.UnixMilli(1700000000000) }}

	cand, err := capturer.Capture(context.Background(), cam, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cam.facing != FacingEnvironment {
		t.Fatalf("expected rear camera by default, got %q", cam.facing)
	}
	if stream.stops != 1 {
		t.Fatalf("expected stream to be stopped once, got %d", stream.stops)
	}
	if cand.MIMEType != "image/jpeg" || cand.Name != "capture-1700000000000.jpg" {
		t.Fatalf("unexpected candidate %q %q", cand.Name, cand.MIMEType)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(cand.Data))
	if err != nil {
		t.Fatalf("capture is not a jpeg: %v", err)
	}
	if cfg.Width != 32 || cfg.Height != 24 {
		t.Fatalf("unexpected size %dx%d", cfg.Width, cfg.Height)
	}
}

func TestCaptureReleasesStreamOnEncodeFailure(t *testing.T) {
	stream := &fakeStream{dims: Dimensions{Width: 4, Height: 4}, frame: solidFrame(4, 4)}
	capturer := &Capturer{Encode: func(io.Writer, image.Image) error { return errors.New("encoder broke") }}

	_, err := capturer.Capture(context.Background(), &fakeCamera{stream: stream}, FacingUser)
	if err == nil {
		t.Fatal("expected encode failure")
	}
	if errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("encode failures are not device failures: %v", err)
	}
	if stream.stops != 1 {
		t.Fatalf("expected stream to be stopped once, got %d", stream.stops)
	}
}

func TestCaptureReleasesStreamOnMetadataFailure(t *testing.T) {
	stream := &fakeStream{metaErr: context.DeadlineExceeded}
	_, err := (&Capturer{}).Capture(context.Background(), &fakeCamera{stream: stream}, FacingEnvironment)
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("expected metadata error as camera unavailable, got %v", err)
	}
	if stream.stops != 1 {
		t.Fatalf("expected stream to be stopped once, got %d", stream.stops)
	}
}

func TestCaptureFrameFailureIsCameraUnavailable(t *testing.T) {
	stream := &fakeStream{dims: Dimensions{Width: 4, Height: 4}, frameErr: errors.New("device disconnected")}
	_, err := (&Capturer{}).Capture(context.Background(), &fakeCamera{stream: stream}, "")
	if !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("expected ErrCameraUnavailable, got %v", err)
	}
	if stream.stops != 1 {
		t.Fatalf("expected stream to be stopped once, got %d", stream.stops)
	}
}

func TestCaptureScalesPreviewSizedFrame(t *testing.T) {
	stream := &fakeStream{dims: Dimensions{Width: 40, Height: 20}, frame: solidFrame(10, 5)}
	cand, err := (&Capturer{}).Capture(context.Background(), &fakeCamera{stream: stream}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(cand.Data))
	if err != nil {
		t.Fatalf("capture is not a jpeg: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 20 {
		t.Fatalf("expected native 40x20, got %dx%d", b.Dx(), b.Dy())
	}
	r, _, _, a := img.At(39, 19).RGBA()
	if a == 0 || r>>8 < 150 {
		t.Fatalf("corner was not filled by the scaled frame: r=%d a=%d", r>>8, a)
	}
}

func TestCaptureRejectsZeroDimensions(t *testing.T) {
	stream := &fakeStream{dims: Dimensions{}, frame: solidFrame(1, 1)}
	if _, err := (&Capturer{}).Capture(context.Background(), &fakeCamera{stream: stream}, ""); !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("expected ErrCameraUnavailable for empty dimensions, got %v", err)
	}
	if stream.stops != 1 {
		t.Fatalf("expected stream to be stopped once, got %d", stream.stops)
	}
}

func TestCaptureOpenFailureIsCameraUnavailable(t *testing.T) {
	_, err := (&Capturer{}).Capture(context.Background(), &fakeCamera{openErr: errors.New("permission denied")}, "")
	if !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("expected ErrCameraUnavailable, got %v", err)
	}
}

func TestCameraSourceFeedsSharedValidation(t *testing.T) {
	stream := &fakeStream{dims: Dimensions{Width: 64, Height: 64}, frame: solidFrame(64, 64)}
	acq := NewAcquirer(10, zap.NewNop())

	_, err := acq.Acquire(context.Background(), CameraSource{Camera: &fakeCamera{stream: stream}})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected captured frame to hit the size ceiling, got %v", err)
	}
	if stream.stops != 1 {
		t.Fatalf("expected stream to be stopped once, got %d", stream.stops)
	}
}

func TestSnapshotCameraCapture(t *testing.T) {
	var body bytes.Buffer
	if err := png.Encode(&body, solidFrame(20, 10)); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	facing := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		facing <- r.URL.Query().Get("facing")
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body.Bytes())
	}))
	defer srv.Close()

	acq := NewAcquirer(0, zap.NewNop())
	asset, err := acq.Acquire(context.Background(), CameraSource{Camera: NewSnapshotCamera(srv.URL, time.Second)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := <-facing; got != string(FacingEnvironment) {
		t.Fatalf("expected environment facing, got %q", got)
	}
	if asset.MIMEType != "image/jpeg" || asset.Source != SourceCamera {
		t.Fatalf("unexpected asset %+v", asset)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(asset.Bytes))
	if err != nil || cfg.Width != 20 || cfg.Height != 10 {
		t.Fatalf("unexpected capture: %+v, %v", cfg, err)
	}
}

func TestSnapshotCameraPermissionDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewSnapshotCamera(srv.URL, time.Second).Open(context.Background(), FacingEnvironment)
	if !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("expected ErrCameraUnavailable, got %v", err)
	}
}

func TestSnapshotStreamRefusesAfterStop(t *testing.T) {
	s := &snapshotStream{data: []byte("x")}
	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := s.Frame(context.Background()); err == nil {
		t.Fatal("expected stopped stream to refuse frames")
	}
}
