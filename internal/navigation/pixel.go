package navigation

import (
	"encoding/base64"
	"strings"
)

// IsTrackingPixel reports whether dataURI encodes a 1x1 image, the shape of
// tracking pixels some analytics vendors load through link clicks. Such URIs
// must reach the engine untouched, so the decision pipeline is bypassed for
// them. Detection is best-effort: anything unparseable is not a pixel.
func IsTrackingPixel(dataURI string) bool {
	if !strings.HasPrefix(dataURI, "data:image/") {
		return false
	}
	comma := strings.Index(dataURI, ",")
	if comma < 0 {
		return false
	}
	payload := strings.TrimSpace(dataURI[comma+1:])
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return false
		}
	}
	if len(decoded) < 10 {
		return false
	}

	switch {
	case strings.HasPrefix(dataURI, "data:image/gif"):
		return isOneByOneGIF(decoded)
	case strings.HasPrefix(dataURI, "data:image/png"):
		return isOneByOnePNG(decoded)
	case strings.HasPrefix(dataURI, "data:image/jpeg"):
		return isOneByOneJPEG(decoded)
	}
	return false
}

func isOneByOneGIF(b []byte) bool {
	header := string(b[:6])
	if header != "GIF87a" && header != "GIF89a" {
		return false
	}
	// Logical screen descriptor, little endian.
	width := int(b[6]) | int(b[7])<<8
	height := int(b[8]) | int(b[9])<<8
	return width == 1 && height == 1
}

func isOneByOnePNG(b []byte) bool {
	if len(b) < 24 {
		return false
	}
	// IHDR width and height, big endian.
	width := int(b[16])<<24 | int(b[17])<<16 | int(b[18])<<8 | int(b[19])
	height := int(b[20])<<24 | int(b[21])<<16 | int(b[22])<<8 | int(b[23])
	return width == 1 && height == 1
}

func isOneByOneJPEG(b []byte) bool {
	// Walk the segment chain to the first SOF marker.
	i := 2
	for i+8 < len(b) {
		if b[i] != 0xFF {
			return false
		}
		marker := b[i+1]
		if marker == 0xC0 || marker == 0xC2 {
			height := int(b[i+5])<<8 | int(b[i+6])
			width := int(b[i+7])<<8 | int(b[i+8])
			return width == 1 && height == 1
		}
		length := int(b[i+2])<<8 | int(b[i+3])
		i += 2 + length
	}
	return false
}
