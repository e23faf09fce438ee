package navigation

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func dataURI(mediaType string, payload []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(payload)
}

func gifBytes(width, height int) []byte {
	b := []byte("GIF89a")
	b = append(b, byte(width), byte(width>>8), byte(height), byte(height>>8))
	return append(b, 0x00, 0x00, 0x3B)
}

func jpegBytes(width, height int) []byte {
	// SOI, APP0 stub, then SOF0 carrying the dimensions.
	b := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x04, 0x00, 0x00}
	b = append(b, 0xFF, 0xC0, 0x00, 0x0B, 0x08)
	b = append(b, byte(height>>8), byte(height), byte(width>>8), byte(width))
	return b
}

// onePixelPNG is a real 1x1 transparent PNG.
const onePixelPNG = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

func TestIsTrackingPixel(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want bool
	}{
		{"1x1 gif", dataURI("image/gif", gifBytes(1, 1)), true},
		{"2x2 gif", dataURI("image/gif", gifBytes(2, 2)), false},
		{"1x1 png", onePixelPNG, true},
		{"1x1 jpeg", dataURI("image/jpeg", jpegBytes(1, 1)), true},
		{"large jpeg", dataURI("image/jpeg", jpegBytes(640, 480)), false},
		{"not an image", "data:text/html;base64,PGh0bWw+", false},
		{"not a data uri", "https://example.com/pixel.gif", false},
		{"missing payload", "data:image/gif;base64", false},
		{"garbage payload", "data:image/gif;base64,!!!!", false},
		{"truncated gif", dataURI("image/gif", []byte("GIF89a")), false},
		{"wrong gif magic", dataURI("image/gif", append([]byte("NOTGIF"), 1, 0, 1, 0)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTrackingPixel(tt.uri))
		})
	}
}
