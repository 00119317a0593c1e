package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"google.golang.org/genai"
)

// Static errors for generation client operations.
var (
	// ErrKeySourceRequired is returned when the client is created without a key source.
	ErrKeySourceRequired = errors.New("gemini: key source is required")
	// ErrCredentialMissing is returned when no API key is available for a call.
	ErrCredentialMissing = errors.New("gemini: no API key available")
	// ErrEmptyPrompt is returned when the image description is blank.
	ErrEmptyPrompt = errors.New("gemini: prompt is required")
	// ErrInvalidResolution is returned for an unknown image resolution tier.
	ErrInvalidResolution = errors.New("gemini: invalid image resolution")
	// ErrInvalidAspectRatio is returned for an unknown video aspect ratio.
	ErrInvalidAspectRatio = errors.New("gemini: invalid video aspect ratio")
	// ErrInvalidImageHandle is returned when the source image cannot be decoded.
	ErrInvalidImageHandle = errors.New("gemini: invalid image handle")
	// ErrNoImageData is returned when a response carries no inline image part.
	ErrNoImageData = errors.New("gemini: no image data found in response")
	// ErrGenerationFailed is returned when the provider reports a failed operation.
	ErrGenerationFailed = errors.New("gemini: video generation failed")
	// ErrNoVideoURI is returned when a finished operation has no video location.
	ErrNoVideoURI = errors.New("gemini: video generation failed or no URI returned")
	// ErrPollTimeout is returned when the operation does not finish within the poll bound.
	ErrPollTimeout = errors.New("gemini: video generation timed out")
	// ErrDownloadFailed is returned when fetching the generated video fails.
	ErrDownloadFailed = errors.New("gemini: failed to download generated video")
)

// OperationError is a failure reported by the provider on a finished video
// operation. It matches ErrGenerationFailed.
type OperationError struct {
	Message string
}

func (e *OperationError) Error() string {
	return ErrGenerationFailed.Error() + ": " + e.Message
}

func (e *OperationError) Unwrap() error {
	return ErrGenerationFailed
}

// ProviderMessage returns the provider's own explanation carried by err, or
// "" when err did not come from the provider.
func ProviderMessage(err error) string {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return strings.TrimSpace(opErr.Message)
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return strings.TrimSpace(apiErr.Message)
	}
	return ""
}

// Client defines the two remote generation operations.
type Client interface {
	// SynthesizeImage generates a square logo image from a text description.
	SynthesizeImage(ctx context.Context, prompt string, resolution Resolution) (*Image, error)

	// SynthesizeVideo animates the image behind source (a data URL or bare
	// base64 payload) and returns the downloaded video.
	SynthesizeVideo(ctx context.Context, source, prompt string, aspect AspectRatio) (*Video, error)
}

// KeySource resolves the API key to use for a call.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// GenAIClient is the genai-backed implementation of Client.
type GenAIClient struct {
	keys            KeySource
	newBackend      BackendFactory
	httpClient      *http.Client
	imageModel      string
	videoModel      string
	videoResolution string
	pollInterval    time.Duration
	pollTimeout     time.Duration
	maxPollAttempts int
	logger          *slog.Logger
}

// ClientOption is a function that configures a GenAIClient.
type ClientOption func(*GenAIClient)

// WithBackendFactory overrides how SDK backends are created.
func WithBackendFactory(f BackendFactory) ClientOption {
	return func(c *GenAIClient) {
		c.newBackend = f
	}
}

// WithHTTPClient sets the HTTP client used to download generated videos.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *GenAIClient) {
		c.httpClient = hc
	}
}

// WithImageModel sets the image model identifier.
func WithImageModel(model string) ClientOption {
	return func(c *GenAIClient) {
		if model != "" {
			c.imageModel = model
		}
	}
}

// WithVideoModel sets the video model identifier.
func WithVideoModel(model string) ClientOption {
	return func(c *GenAIClient) {
		if model != "" {
			c.videoModel = model
		}
	}
}

// WithVideoResolution sets the fixed video quality tier.
func WithVideoResolution(res string) ClientOption {
	return func(c *GenAIClient) {
		if res != "" {
			c.videoResolution = res
		}
	}
}

// WithPollInterval sets the delay between operation status queries.
func WithPollInterval(d time.Duration) ClientOption {
	return func(c *GenAIClient) {
		c.pollInterval = d
	}
}

// WithPollTimeout bounds the total time spent waiting for a video operation.
// Zero disables the deadline.
func WithPollTimeout(d time.Duration) ClientOption {
	return func(c *GenAIClient) {
		c.pollTimeout = d
	}
}

// WithMaxPollAttempts caps the number of status queries. Zero means no cap.
func WithMaxPollAttempts(n int) ClientOption {
	return func(c *GenAIClient) {
		c.maxPollAttempts = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *GenAIClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new generation client. Every call resolves the current
// key from keys and builds a fresh backend with it.
func NewClient(keys KeySource, opts ...ClientOption) (*GenAIClient, error) {
	if keys == nil {
		return nil, ErrKeySourceRequired
	}

	c := &GenAIClient{
		keys:            keys,
		newBackend:      NewSDKBackendFactory("", nil),
		httpClient:      &http.Client{Timeout: 120 * time.Second},
		imageModel:      DefaultImageModel,
		videoModel:      DefaultVideoModel,
		videoResolution: DefaultVideoResolution,
		pollInterval:    DefaultPollInterval,
		pollTimeout:     DefaultPollTimeout,
		logger:          slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// SynthesizeImage generates a logo image. It makes exactly one remote call.
func (c *GenAIClient) SynthesizeImage(ctx context.Context, prompt string, resolution Resolution) (*Image, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	if !resolution.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidResolution, resolution)
	}

	backend, _, err := c.backend(ctx)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{
		genai.NewContentFromText(imagePrompt(prompt), genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{
			AspectRatio: "1:1",
			ImageSize:   string(resolution),
		},
	}

	resp, err := backend.GenerateContent(ctx, c.imageModel, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate image: %w", err)
	}

	img := firstInlineImage(resp)
	if img == nil {
		return nil, ErrNoImageData
	}

	c.logger.Debug("image generated",
		slog.String("model", c.imageModel),
		slog.String("resolution", string(resolution)),
		slog.Int("bytes", len(img.Data)),
	)
	return img, nil
}

// SynthesizeVideo starts a video operation for the source image, polls it
// until done and downloads the first generated video.
func (c *GenAIClient) SynthesizeVideo(ctx context.Context, source, prompt string, aspect AspectRatio) (*Video, error) {
	if !aspect.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAspectRatio, aspect)
	}

	imageBytes, mime, err := DecodeImageHandle(source)
	if err != nil {
		return nil, err
	}

	backend, apiKey, err := c.backend(ctx)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		Resolution:     c.videoResolution,
		AspectRatio:    string(aspect),
	}
	image := &genai.Image{
		ImageBytes: imageBytes,
		MIMEType:   mime,
	}

	op, err := backend.GenerateVideos(ctx, c.videoModel, videoPrompt(prompt), image, config)
	if err != nil {
		return nil, fmt.Errorf("gemini: start video generation: %w", err)
	}
	if op == nil {
		return nil, fmt.Errorf("%w: no operation returned", ErrGenerationFailed)
	}

	c.logger.Info("video operation started",
		slog.String("model", c.videoModel),
		slog.String("operation", op.Name),
		slog.String("aspect_ratio", string(aspect)),
	)

	op, err = c.waitForOperation(ctx, backend, op)
	if err != nil {
		return nil, err
	}

	if len(op.Error) > 0 {
		return nil, &OperationError{Message: operationErrorMessage(op.Error)}
	}

	video := firstVideo(op)
	if video == nil {
		return nil, ErrNoVideoURI
	}

	if video.URI == "" {
		if len(video.VideoBytes) > 0 {
			return &Video{Data: video.VideoBytes, MIMEType: firstNonEmpty(video.MIMEType, defaultVideoMIMEType)}, nil
		}
		return nil, ErrNoVideoURI
	}

	return c.download(ctx, video.URI, apiKey)
}

// waitForOperation re-queries op at the poll interval until it is done, the
// poll bound is exceeded or ctx is cancelled.
func (c *GenAIClient) waitForOperation(ctx context.Context, backend Backend, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	var (
		pollCtx context.Context
		cancel  context.CancelFunc
	)
	if c.pollTimeout > 0 {
		pollCtx, cancel = context.WithTimeoutCause(ctx, c.pollTimeout, ErrPollTimeout)
	} else {
		pollCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	attempt := 0
	for !op.Done {
		if c.maxPollAttempts > 0 && attempt >= c.maxPollAttempts {
			return nil, fmt.Errorf("%w: still running after %d attempts", ErrPollTimeout, attempt)
		}

		timer := time.NewTimer(c.pollInterval)
		select {
		case <-pollCtx.Done():
			timer.Stop()
			return nil, pollStopped(pollCtx)
		case <-timer.C:
		}

		attempt++
		next, err := backend.GetVideosOperation(pollCtx, op)
		if err != nil {
			if pollCtx.Err() != nil {
				return nil, pollStopped(pollCtx)
			}
			return nil, fmt.Errorf("gemini: poll video operation: %w", err)
		}
		if next == nil {
			return nil, fmt.Errorf("%w: empty operation status", ErrGenerationFailed)
		}
		op = next

		c.logger.Debug("video operation polled",
			slog.String("operation", op.Name),
			slog.Int("attempt", attempt),
			slog.Bool("done", op.Done),
		)
	}

	return op, nil
}

// download fetches the generated video with the API key appended as a query
// parameter. It makes exactly one attempt.
func (c *GenAIClient) download(ctx context.Context, uri, apiKey string) (*Video, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: parse URI: %w", ErrDownloadFailed, err)
	}
	q := u.Query()
	q.Set("key", apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrDownloadFailed, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrDownloadFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrDownloadFailed, err)
	}

	c.logger.Info("video downloaded",
		slog.Int("bytes", len(data)),
	)

	return &Video{
		Data:     data,
		MIMEType: firstNonEmpty(resp.Header.Get("Content-Type"), defaultVideoMIMEType),
		URI:      uri,
	}, nil
}

// backend resolves the current API key and builds a backend for it.
func (c *GenAIClient) backend(ctx context.Context) (Backend, string, error) {
	apiKey, err := c.keys.APIKey(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrCredentialMissing, err)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, "", ErrCredentialMissing
	}

	backend, err := c.newBackend(ctx, apiKey)
	if err != nil {
		return nil, "", err
	}
	return backend, apiKey, nil
}

func pollStopped(ctx context.Context) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrPollTimeout) {
		return cause
	}
	return fmt.Errorf("gemini: video generation cancelled: %w", cause)
}

// firstInlineImage returns the first part in any candidate that carries
// inline bytes.
func firstInlineImage(resp *genai.GenerateContentResponse) *Image {
	if resp == nil {
		return nil
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			return &Image{
				Data:     part.InlineData.Data,
				MIMEType: firstNonEmpty(part.InlineData.MIMEType, defaultImageMIMEType),
			}
		}
	}
	return nil
}

func firstVideo(op *genai.GenerateVideosOperation) *genai.Video {
	if op.Response == nil {
		return nil
	}
	for _, generated := range op.Response.GeneratedVideos {
		if generated != nil && generated.Video != nil {
			return generated.Video
		}
	}
	return nil
}

func operationErrorMessage(opErr map[string]any) string {
	if msg, ok := opErr["message"].(string); ok && msg != "" {
		return msg
	}
	return fmt.Sprintf("%v", opErr)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Compile-time check that GenAIClient implements Client.
var _ Client = (*GenAIClient)(nil)
