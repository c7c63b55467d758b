package imageprocessor

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder

	"github.com/example/verifai/internal/verification"
)

// MaxPixels caps Width*Height of an accepted image. Headers are checked
// before any pixel buffer is allocated.
const MaxPixels = 40_000_000

// Image is a decoded, in-memory image together with its encoded bytes.
type Image struct {
	Data     []byte
	MIMEType string
	Format   string
	Bounds   image.Rectangle
	Pixels   image.Image
}

// Decode converts a transport-encoded image, optionally prefixed with a
// data URL header such as "data:image/png;base64,", into an Image.
func Decode(payload string) (*Image, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, verification.NewError(verification.ErrInvalidImage, "empty payload")
	}

	if idx := strings.IndexByte(payload, ','); idx >= 0 {
		if err := checkPrefix(payload[:idx]); err != nil {
			return nil, err
		}
		payload = payload[idx+1:]
	} else if strings.HasPrefix(payload, "data:") {
		return nil, verification.NewError(verification.ErrInvalidImage, "data URL prefix without payload separator")
	}
	if payload == "" {
		return nil, verification.NewError(verification.ErrInvalidImage, "empty payload after prefix")
	}

	data, err := decodeBase64(payload)
	if err != nil {
		return nil, verification.WrapError(verification.ErrInvalidImage, "base64 decode failed", err)
	}
	if len(data) == 0 {
		return nil, verification.NewError(verification.ErrInvalidImage, "empty image data")
	}

	detected := mimetype.Detect(data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return nil, verification.NewError(verification.ErrInvalidImage, fmt.Sprintf("content is %s, not an image", detected.String()))
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, verification.WrapError(verification.ErrInvalidImage, "unsupported or corrupt image", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, verification.NewError(verification.ErrInvalidImage, fmt.Sprintf("invalid dimensions %dx%d", cfg.Width, cfg.Height))
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, verification.NewError(verification.ErrInvalidImage, fmt.Sprintf("image %dx%d exceeds %d pixels", cfg.Width, cfg.Height, MaxPixels))
	}

	pixels, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, verification.WrapError(verification.ErrInvalidImage, "unsupported or corrupt image", err)
	}

	return &Image{
		Data:     data,
		MIMEType: detected.String(),
		Format:   format,
		Bounds:   pixels.Bounds(),
		Pixels:   pixels,
	}, nil
}

// checkPrefix validates a "data:<mime>;base64" header. The declared media
// type is only checked for plausibility; the sniffed type is authoritative.
func checkPrefix(prefix string) error {
	if !strings.HasPrefix(prefix, "data:") {
		return verification.NewError(verification.ErrInvalidImage, "malformed data URL prefix")
	}
	meta := strings.TrimPrefix(prefix, "data:")
	mime, encoding, ok := strings.Cut(meta, ";")
	if !ok || encoding != "base64" {
		return verification.NewError(verification.ErrInvalidImage, "data URL prefix must declare base64 encoding")
	}
	if mime != "" && !strings.HasPrefix(mime, "image/") {
		return verification.NewError(verification.ErrInvalidImage, fmt.Sprintf("declared media type %q is not an image", mime))
	}
	return nil
}

func decodeBase64(s string) ([]byte, error) {
	var firstErr error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		data, err := enc.DecodeString(s)
		if err == nil {
			return data, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
