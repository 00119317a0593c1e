package workflow

import (
	"context"
	"errors"
	"strings"

	"github.com/maauso/logomotion-api/internal/gemini"
)

const (
	// FallbackImageMessage is shown when an image failure carries no message.
	FallbackImageMessage = "Failed to generate image."
	// FallbackVideoMessage is shown when a video failure carries no message.
	FallbackVideoMessage = "Failed to generate video."
)

// userMessages maps known failure conditions to the text shown to users.
// Order matters: the first match wins.
var userMessages = []struct {
	err error
	msg string
}{
	{gemini.ErrCredentialMissing, "No API key selected. Please select an API key and try again."},
	{gemini.ErrNoImageData, "No image data found in response"},
	{gemini.ErrNoVideoURI, "Video generation failed or no URI returned."},
	{gemini.ErrDownloadFailed, "Failed to download generated video."},
	{gemini.ErrPollTimeout, "Video generation timed out. Please try again."},
	{gemini.ErrInvalidImageHandle, "The generated image could not be read for animation."},
	{context.Canceled, "Generation was cancelled."},
}

const internalPrefix = "gemini: "

// Message converts a generation failure into a user-visible message.
// Provider explanations are passed through; other errors are reduced to
// their innermost cause. fallback is used when err carries no text.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	for _, m := range userMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}

	detail := gemini.ProviderMessage(err)
	if errors.Is(err, gemini.ErrGenerationFailed) {
		if detail == "" {
			return "Video generation failed."
		}
		return "Video generation failed: " + detail
	}
	if detail != "" {
		return detail
	}

	if msg := strings.TrimSpace(strings.TrimPrefix(rootCause(err).Error(), internalPrefix)); msg != "" {
		return msg
	}
	return fallback
}

// rootCause follows a single-error wrap chain to its end.
func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
