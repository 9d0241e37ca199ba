package media

import (
	"context"
	"encoding/base64"
	"strings"
)

// EncodePreview renders the asset as a data URL suitable for direct display.
func EncodePreview(asset *ImageAsset) string {
	if asset == nil {
		return ""
	}
	var b strings.Builder
	b.Grow(len("data:;base64,") + len(asset.MIMEType) + base64.StdEncoding.EncodedLen(len(asset.Bytes)))
	b.WriteString("data:")
	b.WriteString(asset.MIMEType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(asset.Bytes))
	return b.String()
}

// PreviewEncoder produces the display encoding of an asset. It may be slow and
// is always run off the caller's goroutine.
type PreviewEncoder func(ctx context.Context, asset *ImageAsset) (string, error)

// DataURLEncoder is the default PreviewEncoder.
func DataURLEncoder(ctx context.Context, asset *ImageAsset) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return EncodePreview(asset), nil
}
