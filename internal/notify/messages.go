package notify

import (
	"errors"
	"fmt"

	"github.com/example/lesion-check/internal/media"
)

// ForAcquisitionError maps an acquisition failure to its notification.
// ok is false for errors outside the acquisition taxonomy.
func ForAcquisitionError(err error, maxBytes int64) (Notification, bool) {
	switch {
	case errors.Is(err, media.ErrInvalidFormat):
		return Notification{Kind: KindInvalidFormat, Title: "Invalid file type", Message: "Please upload a JPG, PNG, or WebP image.", Destructive: true}, true
	case errors.Is(err, media.ErrTooLarge):
		return Notification{Kind: KindTooLarge, Title: "File too large", Message: fmt.Sprintf("Maximum file size is %dMB.", maxBytes/(1024*1024)), Destructive: true}, true
	case errors.Is(err, media.ErrCameraUnavailable):
		return Notification{Kind: KindCameraUnavailable, Title: "Camera access denied", Message: "Please enable camera permissions to use this feature.", Destructive: true}, true
	case errors.Is(err, media.ErrEmptySelection):
		return Notification{Kind: KindEmptySelection, Title: "No file selected", Message: "Please choose an image to upload.", Destructive: true}, true
	}
	return Notification{}, false
}
