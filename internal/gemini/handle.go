package gemini

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DecodeImageHandle normalizes an image handle to its raw bytes. The handle
// may be a data URL (data:image/png;base64,...) or a bare base64 payload.
// The returned MIME type falls back to image/png when the handle carries none.
func DecodeImageHandle(handle string) ([]byte, string, error) {
	payload := strings.TrimSpace(handle)
	mime := defaultImageMIMEType

	if strings.HasPrefix(payload, "data:") {
		meta, rest, ok := strings.Cut(payload, ",")
		if !ok {
			return nil, "", fmt.Errorf("%w: missing payload separator", ErrInvalidImageHandle)
		}
		meta = strings.TrimPrefix(meta, "data:")
		meta = strings.TrimSuffix(meta, ";base64")
		if meta != "" {
			mime = meta
		}
		payload = rest
	}

	if payload == "" {
		return nil, "", fmt.Errorf("%w: empty payload", ErrInvalidImageHandle)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrInvalidImageHandle, err)
	}
	return data, mime, nil
}
