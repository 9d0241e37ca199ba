package media

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestValidateRejectsDisallowedTypes(t *testing.T) {
	for _, mimeType := range []string{"", "text/plain", "image/gif", "image/bmp", "application/pdf", "image/svg+xml"} {
		_, err := Validate(Candidate{Name: "x", MIMEType: mimeType, Data: []byte("data")}, SourceFile, 0)
		if !errors.Is(err, ErrInvalidFormat) {
			t.Fatalf("%q: expected ErrInvalidFormat, got %v", mimeType, err)
		}
	}
}

func TestValidateChecksTypeBeforeSize(t *testing.T) {
	big := make([]byte, 11)
	_, err := Validate(Candidate{MIMEType: "text/plain", Data: big}, SourceFile, 10)
	if !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestValidateRejectsOversizedImages(t *testing.T) {
	data := make([]byte, DefaultMaxBytes+1)
	_, err := Validate(Candidate{MIMEType: "image/png", Data: data}, SourceDrop, 0)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestValidateAcceptsLimitExactly(t *testing.T) {
	data := make([]byte, DefaultMaxBytes)
	asset, err := Validate(Candidate{MIMEType: "image/webp", Data: data}, SourceFile, 0)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if asset.SizeBytes != DefaultMaxBytes {
		t.Fatalf("unexpected size %d", asset.SizeBytes)
	}
}

func TestValidateRoundTripsBytesAndType(t *testing.T) {
	cases := []string{"image/jpeg", "image/jpg", "image/png", "image/webp", "IMAGE/PNG", "image/jpeg; charset=binary"}
	for _, mimeType := range cases {
		payload := []byte("payload-" + mimeType)
		asset, err := Validate(Candidate{Name: "lesion", MIMEType: mimeType, Data: payload}, SourceFile, 0)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", mimeType, err)
		}
		if asset.MIMEType != mimeType {
			t.Fatalf("mime type changed: %q -> %q", mimeType, asset.MIMEType)
		}
		if !bytes.Equal(asset.Bytes, payload) {
			t.Fatalf("%q: bytes changed", mimeType)
		}
		if asset.ID == "" || asset.Source != SourceFile {
			t.Fatalf("%q: incomplete asset %+v", mimeType, asset)
		}
	}
}

func TestValidateAssignsFreshIdentity(t *testing.T) {
	c := Candidate{MIMEType: "image/png", Data: []byte("same")}
	a, _ := Validate(c, SourceFile, 0)
	b, _ := Validate(c, SourceFile, 0)
	if a.ID == b.ID {
		t.Fatal("each accepted image must get its own identity")
	}
}

func TestAcquireHonorsFirstFileOnly(t *testing.T) {
	acq := NewAcquirer(0, zap.NewNop())
	src := DropSource{Files: []Candidate{
		{Name: "first.png", MIMEType: "image/png", Data: []byte("first")},
		{Name: "second.txt", MIMEType: "text/plain", Data: []byte("second")},
	}}

	asset, err := acq.Acquire(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if asset.Name != "first.png" || asset.Source != SourceDrop {
		t.Fatalf("unexpected asset %+v", asset)
	}
}

func TestAcquireEmptySelection(t *testing.T) {
	acq := NewAcquirer(0, zap.NewNop())
	if _, err := acq.Acquire(context.Background(), FileSource{}); !errors.Is(err, ErrEmptySelection) {
		t.Fatalf("expected ErrEmptySelection, got %v", err)
	}
}

func TestAcquireAppliesConfiguredCeiling(t *testing.T) {
	acq := NewAcquirer(4, zap.NewNop())
	_, err := acq.Acquire(context.Background(), FileSource{Files: []Candidate{{MIMEType: "image/png", Data: []byte("12345")}}})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestAcquireCameraWithoutDevice(t *testing.T) {
	acq := NewAcquirer(0, zap.NewNop())
	if _, err := acq.Acquire(context.Background(), CameraSource{}); !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("expected ErrCameraUnavailable, got %v", err)
	}
}

func TestEncodePreviewIsDataURL(t *testing.T) {
	asset := &ImageAsset{MIMEType: "image/png", Bytes: []byte("hi")}
	if got := EncodePreview(asset); got != "data:image/png;base64,aGk=" {
		t.Fatalf("unexpected preview %q", got)
	}
	if EncodePreview(nil) != "" {
		t.Fatal("nil asset has no preview")
	}
}

func TestDataURLEncoderHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := DataURLEncoder(ctx, &ImageAsset{}); err == nil {
		t.Fatal("expected context error")
	}
	got, err := DataURLEncoder(context.Background(), &ImageAsset{MIMEType: "image/jpeg", Bytes: []byte("x")})
	if err != nil || !strings.HasPrefix(got, "data:image/jpeg;base64,") {
		t.Fatalf("unexpected result %q, %v", got, err)
	}
}
