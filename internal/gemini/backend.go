package gemini

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// Backend is the part of the genai SDK the client depends on.
type Backend interface {
	// GenerateContent issues a single content generation call.
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

	// GenerateVideos starts a video generation operation.
	GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)

	// GetVideosOperation re-fetches the status of a video operation.
	GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)
}

// BackendFactory builds a Backend bound to the given API key.
type BackendFactory func(ctx context.Context, apiKey string) (Backend, error)

// sdkBackend adapts *genai.Client to Backend.
type sdkBackend struct {
	client *genai.Client
}

// NewSDKBackendFactory returns a factory that creates genai clients against
// the Gemini API. baseURL and httpClient are optional overrides.
func NewSDKBackendFactory(baseURL string, httpClient *http.Client) BackendFactory {
	return func(ctx context.Context, apiKey string) (Backend, error) {
		cc := &genai.ClientConfig{
			APIKey:     apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: httpClient,
		}
		if baseURL != "" {
			cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
		}

		client, err := genai.NewClient(ctx, cc)
		if err != nil {
			return nil, fmt.Errorf("gemini: create genai client: %w", err)
		}
		return &sdkBackend{client: client}, nil
	}
}

func (b *sdkBackend) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return b.client.Models.GenerateContent(ctx, model, contents, config)
}

func (b *sdkBackend) GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	return b.client.Models.GenerateVideos(ctx, model, prompt, image, config)
}

func (b *sdkBackend) GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	return b.client.Operations.GetVideosOperation(ctx, op, nil)
}

// Compile-time check that sdkBackend implements Backend.
var _ Backend = (*sdkBackend)(nil)
