// Package gemini provides the remote generation client for logo images and
// logo animations. Images come from a Gemini image model in a single round
// trip; videos come from a Veo long-running operation that is polled until
// done and then downloaded.
package gemini

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Resolution is the output size tier requested for a generated image.
type Resolution string

// Image resolution tiers accepted by the image model.
const (
	Resolution1K Resolution = "1K"
	Resolution2K Resolution = "2K"
	Resolution4K Resolution = "4K"
)

// IsValid returns true if r is one of the known tiers.
func (r Resolution) IsValid() bool {
	switch r {
	case Resolution1K, Resolution2K, Resolution4K:
		return true
	default:
		return false
	}
}

// ParseResolution converts s into a Resolution. An empty string yields
// Resolution1K.
func ParseResolution(s string) (Resolution, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Resolution1K, nil
	}
	r := Resolution(s)
	if !r.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidResolution, s)
	}
	return r, nil
}

// AspectRatio is the frame proportion of a generated video.
type AspectRatio string

// Video aspect ratios accepted by the video model.
const (
	AspectLandscape AspectRatio = "16:9"
	AspectPortrait  AspectRatio = "9:16"
)

// IsValid returns true if a is landscape or portrait.
func (a AspectRatio) IsValid() bool {
	return a == AspectLandscape || a == AspectPortrait
}

// ParseAspectRatio converts s into an AspectRatio. An empty string yields
// AspectLandscape.
func ParseAspectRatio(s string) (AspectRatio, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AspectLandscape, nil
	}
	a := AspectRatio(s)
	if !a.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAspectRatio, s)
	}
	return a, nil
}

// Defaults for the generation models and the poll loop.
const (
	DefaultImageModel      = "gemini-3-pro-image-preview"
	DefaultVideoModel      = "veo-3.1-fast-generate-preview"
	DefaultVideoResolution = "1080p"
	DefaultPollInterval    = 5 * time.Second
	DefaultPollTimeout     = 10 * time.Minute

	defaultImageMIMEType = "image/png"
	defaultVideoMIMEType = "video/mp4"
)

// Image is a generated image. It is never mutated after creation.
type Image struct {
	Data     []byte
	MIMEType string
}

// DataURL returns the image as a self-describing data handle
// (data:<mime>;base64,<payload>).
func (i *Image) DataURL() string {
	mime := i.MIMEType
	if mime == "" {
		mime = defaultImageMIMEType
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Video is a generated and downloaded video.
type Video struct {
	Data     []byte
	MIMEType string
	// URI is the provider location the bytes were fetched from.
	URI string
}

func imagePrompt(description string) string {
	return fmt.Sprintf(
		"Design a professional, high-quality vector-style logo for a company. Description: %s. "+
			"The logo should be clean, memorable, and suitable for branding.",
		strings.TrimSpace(description),
	)
}

func videoPrompt(motion string) string {
	motion = strings.TrimSpace(motion)
	if motion == "" {
		return "Animate this logo cinematically."
	}
	return "Animate this logo cinematically. " + motion
}
