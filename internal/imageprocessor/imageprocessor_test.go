package imageprocessor

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/example/verifai/internal/verification"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// headerOnlyPNG returns a PNG whose IHDR declares width x height RGBA pixels
// followed by an empty IDAT chunk.
func headerOnlyPNG(width, height uint32) []byte {
	chunk := func(buf *bytes.Buffer, typ string, body []byte) {
		_ = binary.Write(buf, binary.BigEndian, uint32(len(body)))
		buf.WriteString(typ)
		buf.Write(body)
		crc := crc32.NewIEEE()
		crc.Write([]byte(typ))
		crc.Write(body)
		_ = binary.Write(buf, binary.BigEndian, crc.Sum32())
	}

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], width)
	binary.BigEndian.PutUint32(ihdr[4:8], height)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	chunk(&buf, "IHDR", ihdr)
	chunk(&buf, "IDAT", nil)
	chunk(&buf, "IEND", nil)
	return buf.Bytes()
}

func TestDecodeAcceptsBareAndPrefixedPayloads(t *testing.T) {
	raw := testPNG(t)
	encoded := base64.StdEncoding.EncodeToString(raw)

	for name, payload := range map[string]string{
		"bare":       encoded,
		"data url":   "data:image/png;base64," + encoded,
		"whitespace": "  " + encoded + "\n",
		"raw std":    base64.RawStdEncoding.EncodeToString(raw),
	} {
		t.Run(name, func(t *testing.T) {
			img, err := Decode(payload)
			require.NoError(t, err)
			assert.Equal(t, "image/png", img.MIMEType)
			assert.Equal(t, "png", img.Format)
			assert.Equal(t, 4, img.Bounds.Dx())
			assert.Equal(t, 3, img.Bounds.Dy())
			assert.Equal(t, raw, img.Data)
		})
	}
}

func TestDecodeRejectsInvalidPayloads(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(testPNG(t))

	tests := []struct {
		name    string
		payload string
	}{
		{name: "empty", payload: ""},
		{name: "blank", payload: "   "},
		{name: "prefix only", payload: "data:image/png;base64,"},
		{name: "prefix without separator", payload: "data:image/png;base64"},
		{name: "prefix not data url", payload: "image/png;base64," + encoded},
		{name: "prefix not base64", payload: "data:image/png;utf8," + encoded},
		{name: "prefix not image", payload: "data:text/plain;base64," + encoded},
		{name: "bad base64", payload: "%%%not-base64%%%"},
		{name: "not an image", payload: base64.StdEncoding.EncodeToString([]byte("hello world, plain text"))},
		{name: "truncated png", payload: base64.StdEncoding.EncodeToString(testPNG(t)[:20])},
		{name: "oversized header", payload: base64.StdEncoding.EncodeToString(headerOnlyPNG(60000, 60000))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Decode(tt.payload)
			require.Error(t, err)
			assert.Nil(t, img)
			assert.ErrorIs(t, err, verification.ErrInvalidImage)
		})
	}
}

func TestDecodeAcceptsBMPAndTIFF(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 5, 2))
	img.Set(0, 0, color.RGBA{G: 255, A: 255})

	var bmpBuf, tiffBuf bytes.Buffer
	require.NoError(t, bmp.Encode(&bmpBuf, img))
	require.NoError(t, tiff.Encode(&tiffBuf, img, nil))

	tests := []struct {
		name   string
		data   []byte
		mime   string
		format string
	}{
		{name: "bmp", data: bmpBuf.Bytes(), mime: "image/bmp", format: "bmp"},
		{name: "tiff", data: tiffBuf.Bytes(), mime: "image/tiff", format: "tiff"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := Decode(base64.StdEncoding.EncodeToString(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.mime, decoded.MIMEType)
			assert.Equal(t, tt.format, decoded.Format)
			assert.Equal(t, 5, decoded.Bounds.Dx())
			assert.Equal(t, 2, decoded.Bounds.Dy())
		})
	}
}
