// Package storage publishes generated logos and animations to object storage.
// It defines the Publisher interface (port) and an S3 implementation.
package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotConfigured is returned when publishing is attempted without a
// configured bucket.
var ErrNotConfigured = errors.New("storage: publishing is not configured")

// Kind names the artifact being published.
type Kind string

const (
	// KindImage is a generated logo image.
	KindImage Kind = "image"
	// KindVideo is a generated logo animation.
	KindVideo Kind = "video"
)

// IsValid returns true if the kind is known.
func (k Kind) IsValid() bool {
	return k == KindImage || k == KindVideo
}

// Publisher uploads an artifact and returns a URL where it can be fetched.
type Publisher interface {
	// Publish stores data under key and returns its public URL.
	Publish(ctx context.Context, key, contentType string, data []byte) (url string, err error)
}

// Disabled is a Publisher used when no bucket is configured.
type Disabled struct{}

// Publish always returns ErrNotConfigured.
func (Disabled) Publish(context.Context, string, string, []byte) (string, error) {
	return "", ErrNotConfigured
}

// Compile-time check that Disabled implements Publisher.
var _ Publisher = Disabled{}

// ObjectKey builds a unique object key for a session artifact.
// Format: logomotion/<session>/<kind>-<timestamp>-<random><ext>
func ObjectKey(sessionID string, kind Kind, contentType string) string {
	return fmt.Sprintf("logomotion/%s/%s-%s-%s%s",
		sessionID,
		kind,
		time.Now().UTC().Format("20060102T150405Z"),
		uuid.NewString()[:8],
		extensionFor(contentType),
	)
}

func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".bin"
	}
	switch mediaType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "video/mp4":
		return ".mp4"
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	if _, sub, ok := strings.Cut(mediaType, "/"); ok && sub != "" {
		return "." + sub
	}
	return ".bin"
}
