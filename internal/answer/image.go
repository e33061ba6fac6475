package answer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"virtualta/internal/domain"
)

// DecodeImage decodes a base64 payload (optionally a data: URL) and
// identifies it as PNG, JPEG or WEBP.
func DecodeImage(b64 string) ([]byte, string, error) {
	s := strings.TrimSpace(b64)
	if strings.HasPrefix(s, "data:") {
		if _, rest, ok := strings.Cut(s, ","); ok {
			s = rest
		}
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(s)
	}
	if err != nil {
		return nil, "", fmt.Errorf("base64: %v: %w", err, domain.ErrInvalidImage)
	}
	mime := SniffImage(data)
	if mime == "" {
		return nil, "", fmt.Errorf("unrecognized image format: %w", domain.ErrInvalidImage)
	}
	return data, mime, nil
}

// SniffImage returns the MIME type from the magic bytes, or "".
func SniffImage(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return "image/png"
	case bytes.HasPrefix(data, []byte{0xff, 0xd8}):
		return "image/jpeg"
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	}
	return ""
}
