package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"time"

	"golang.org/x/image/draw"
)

// Facing selects a camera on devices that have more than one.
type Facing string

const (
	FacingEnvironment Facing = "environment"
	FacingUser        Facing = "user"
)

// Dimensions is the native frame size reported by a stream.
type Dimensions struct {
	Width  int
	Height int
}

// Camera hands out exclusive video streams.
type Camera interface {
	Open(ctx context.Context, facing Facing) (Stream, error)
}

// Stream is a live camera stream. Stop releases the device.
type Stream interface {
	// Metadata blocks until the frame dimensions are known.
	Metadata(ctx context.Context) (Dimensions, error)
	Frame(ctx context.Context) (image.Image, error)
	Stop() error
}

// FrameEncoder writes a raster as an image binary.
type FrameEncoder func(w io.Writer, img image.Image) error

// JPEGEncoder encodes frames at quality 92.
func JPEGEncoder(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: 92})
}

// Capturer takes exactly one still from a camera.
type Capturer struct {
	Encode FrameEncoder
	Now    func() time.Time
}

// Capture opens a stream, waits for its metadata, draws one frame at the
// stream's native resolution, encodes it as JPEG and stops the stream. The
// stream is stopped exactly once whatever happens after Open succeeds.
// Device failures are reported as ErrCameraUnavailable; encode failures are not.
func (c *Capturer) Capture(ctx context.Context, cam Camera, facing Facing) (cand Candidate, err error) {
	if facing == "" {
		facing = FacingEnvironment
	}
	stream, err := cam.Open(ctx, facing)
	if err != nil {
		if errors.Is(err, ErrCameraUnavailable) {
			return Candidate{}, err
		}
		return Candidate{}, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	defer func() {
		if stopErr := stream.Stop(); stopErr != nil && err == nil {
			err = fmt.Errorf("stop camera stream: %w", stopErr)
		}
	}()

	dims, err := stream.Metadata(ctx)
	if err != nil {
		return Candidate{}, fmt.Errorf("%w: wait for stream metadata: %w", ErrCameraUnavailable, err)
	}
	if dims.Width <= 0 || dims.Height <= 0 {
		return Candidate{}, fmt.Errorf("%w: stream reported invalid dimensions %dx%d", ErrCameraUnavailable, dims.Width, dims.Height)
	}

	frame, err := stream.Frame(ctx)
	if err != nil {
		return Candidate{}, fmt.Errorf("%w: grab frame: %w", ErrCameraUnavailable, err)
	}

	raster := image.NewRGBA(image.Rect(0, 0, dims.Width, dims.Height))
	src := frame.Bounds()
	if src.Dx() == dims.Width && src.Dy() == dims.Height {
		draw.Draw(raster, raster.Bounds(), frame, src.Min, draw.Src)
	} else {
		// Some devices hand out frames at a preview resolution.
		draw.ApproxBiLinear.Scale(raster, raster.Bounds(), frame, src, draw.Src, nil)
	}

	encode := c.Encode
	if encode == nil {
		encode = JPEGEncoder
	}
	var buf bytes.Buffer
	if err := encode(&buf, raster); err != nil {
		return Candidate{}, fmt.Errorf("encode frame: %w", err)
	}

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return Candidate{
		Name:     fmt.Sprintf("capture-%d.jpg", now().UnixMilli()),
		MIMEType: "image/jpeg",
		Data:     buf.Bytes(),
	}, nil
}
