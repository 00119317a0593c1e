package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/maauso/logomotion-api/internal/gemini"
)

// mockClient is a testify mock of gemini.Client.
type mockClient struct {
	mock.Mock
}

func (m *mockClient) SynthesizeImage(ctx context.Context, prompt string, resolution gemini.Resolution) (*gemini.Image, error) {
	args := m.Called(ctx, prompt, resolution)
	img, _ := args.Get(0).(*gemini.Image)
	return img, args.Error(1)
}

func (m *mockClient) SynthesizeVideo(ctx context.Context, source, prompt string, aspect gemini.AspectRatio) (*gemini.Video, error) {
	args := m.Called(ctx, source, prompt, aspect)
	video, _ := args.Get(0).(*gemini.Video)
	return video, args.Error(1)
}

// blockUntil makes a mocked call wait for release or cancellation of its context.
func blockUntil(release <-chan struct{}) func(mock.Arguments) {
	return func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		select {
		case <-release:
		case <-ctx.Done():
		}
	}
}

func newTestController(client gemini.Client) *Controller {
	return NewController(client, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

var (
	testImage = &gemini.Image{Data: []byte("png-bytes"), MIMEType: "image/png"}
	testVideo = &gemini.Video{Data: []byte("mp4-bytes"), MIMEType: "video/mp4"}
)

// withImage returns a controller already in StatusSuccessImage.
func withImage(t *testing.T, client *mockClient) *Controller {
	t.Helper()
	client.On("SynthesizeImage", mock.Anything, "seed logo", gemini.Resolution1K).Return(testImage, nil).Once()
	c := newTestController(client)
	require.NoError(t, c.RequestImage(context.Background(), LogoRequest{Prompt: "seed logo", Resolution: gemini.Resolution1K}))
	require.Equal(t, StatusSuccessImage, c.Snapshot().Status)
	return c
}

func TestController_RequestImage_Success(t *testing.T) {
	client := &mockClient{}
	release := make(chan struct{})
	client.On("SynthesizeImage", mock.Anything, "A futuristic tech company called 'Nebula'", gemini.Resolution1K).
		Run(blockUntil(release)).
		Return(testImage, nil)

	c := newTestController(client)
	assert.Equal(t, StatusIdle, c.Snapshot().Status)

	done, err := c.StartImage(context.Background(), LogoRequest{
		Prompt:     "A futuristic tech company called 'Nebula'",
		Resolution: gemini.Resolution1K,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusGeneratingImage, c.Snapshot().Status)
	assert.True(t, c.InFlight())

	close(release)
	require.NoError(t, <-done)

	snap := c.Snapshot()
	assert.Equal(t, StatusSuccessImage, snap.Status)
	assert.Empty(t, snap.Error)
	require.True(t, snap.HasImage())
	assert.NotEmpty(t, snap.Image.Data)
	assert.False(t, snap.HasVideo())
	client.AssertExpectations(t)
}

func TestController_RequestImage_BlankPrompt(t *testing.T) {
	prompts := []string{"", "   ", "\n\t"}

	for _, prompt := range prompts {
		t.Run(fmt.Sprintf("%q", prompt), func(t *testing.T) {
			client := &mockClient{}
			c := newTestController(client)

			err := c.RequestImage(context.Background(), LogoRequest{Prompt: prompt, Resolution: gemini.Resolution2K})
			assert.ErrorIs(t, err, ErrBlankPrompt)
			assert.Equal(t, StatusIdle, c.Snapshot().Status)
			client.AssertNotCalled(t, "SynthesizeImage", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestController_RequestImage_InvalidResolution(t *testing.T) {
	client := &mockClient{}
	c := newTestController(client)

	err := c.RequestImage(context.Background(), LogoRequest{Prompt: "logo", Resolution: "16K"})
	assert.ErrorIs(t, err, gemini.ErrInvalidResolution)
	assert.Equal(t, StatusIdle, c.Snapshot().Status)
	client.AssertNotCalled(t, "SynthesizeImage", mock.Anything, mock.Anything, mock.Anything)
}

func TestController_RequestImage_DefaultResolution(t *testing.T) {
	client := &mockClient{}
	client.On("SynthesizeImage", mock.Anything, "logo", gemini.Resolution1K).Return(testImage, nil)
	c := newTestController(client)

	require.NoError(t, c.RequestImage(context.Background(), LogoRequest{Prompt: "logo"}))
	client.AssertExpectations(t)
}

func TestController_RequestImage_Failure(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"no image data", gemini.ErrNoImageData, "No image data found in response"},
		{"wrapped provider error", fmt.Errorf("gemini: generate image: %w", errors.New("quota exceeded")), "quota exceeded"},
		{"missing credential", gemini.ErrCredentialMissing, "No API key selected. Please select an API key and try again."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockClient{}
			client.On("SynthesizeImage", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)
			c := newTestController(client)

			err := c.RequestImage(context.Background(), LogoRequest{Prompt: "logo", Resolution: gemini.Resolution1K})
			assert.ErrorIs(t, err, tt.err)

			snap := c.Snapshot()
			assert.Equal(t, StatusError, snap.Status)
			assert.Equal(t, tt.wantMsg, snap.Error)
			assert.False(t, snap.HasImage())
			client.AssertNumberOfCalls(t, "SynthesizeImage", 1)
		})
	}
}

func TestController_RequestImage_ClearsHeldVideo(t *testing.T) {
	client := &mockClient{}
	c := withImage(t, client)

	client.On("SynthesizeVideo", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(testVideo, nil).Once()
	require.NoError(t, c.RequestAnimation(context.Background(), AnimationRequest{AspectRatio: gemini.AspectLandscape}))
	require.True(t, c.Snapshot().HasVideo())

	release := make(chan struct{})
	newImage := &gemini.Image{Data: []byte("new"), MIMEType: "image/png"}
	client.On("SynthesizeImage", mock.Anything, "another logo", gemini.Resolution4K).
		Run(blockUntil(release)).
		Return(newImage, nil)

	done, err := c.StartImage(context.Background(), LogoRequest{Prompt: "another logo", Resolution: gemini.Resolution4K})
	require.NoError(t, err)

	// The stale video is gone before the new image arrives.
	snap := c.Snapshot()
	assert.Equal(t, StatusGeneratingImage, snap.Status)
	assert.False(t, snap.HasVideo())

	close(release)
	require.NoError(t, <-done)
	snap = c.Snapshot()
	assert.Equal(t, StatusSuccessImage, snap.Status)
	assert.Same(t, newImage, snap.Image)
	assert.False(t, snap.HasVideo())
}

func TestController_RequestImage_FailureKeepsPreviousImage(t *testing.T) {
	client := &mockClient{}
	c := withImage(t, client)

	client.On("SynthesizeImage", mock.Anything, "second", gemini.Resolution1K).Return(nil, gemini.ErrNoImageData)
	err := c.RequestImage(context.Background(), LogoRequest{Prompt: "second"})
	require.Error(t, err)

	snap := c.Snapshot()
	assert.Equal(t, StatusError, snap.Status)
	assert.Same(t, testImage, snap.Image)

	// The earlier image can still be animated from the error state.
	release := make(chan struct{})
	client.On("SynthesizeVideo", mock.Anything, testImage.DataURL(), DefaultAnimationPrompt, gemini.AspectLandscape).
		Run(blockUntil(release)).
		Return(testVideo, nil).Once()

	done, err := c.StartAnimation(context.Background(), AnimationRequest{})
	require.NoError(t, err)
	assert.Equal(t, StatusGeneratingVideo, c.Snapshot().Status)
	assert.Empty(t, c.Snapshot().Error)

	close(release)
	require.NoError(t, <-done)
	snap = c.Snapshot()
	assert.Equal(t, StatusSuccessVideo, snap.Status)
	assert.Same(t, testImage, snap.Image)
	assert.Same(t, testVideo, snap.Video)
}

func TestController_RequestAnimation_FromErrorDemotesOnFailure(t *testing.T) {
	client := &mockClient{}
	c := withImage(t, client)

	client.On("SynthesizeImage", mock.Anything, "second", gemini.Resolution1K).Return(nil, gemini.ErrNoImageData)
	require.Error(t, c.RequestImage(context.Background(), LogoRequest{Prompt: "second"}))
	require.Equal(t, StatusError, c.Snapshot().Status)

	client.On("SynthesizeVideo", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, gemini.ErrNoVideoURI)
	err := c.RequestAnimation(context.Background(), AnimationRequest{Prompt: "spin"})
	assert.ErrorIs(t, err, gemini.ErrNoVideoURI)

	snap := c.Snapshot()
	assert.Equal(t, StatusSuccessImage, snap.Status)
	assert.Equal(t, "Video generation failed or no URI returned.", snap.Error)
	assert.Same(t, testImage, snap.Image)
}

func TestController_RequestAnimation_NoImage(t *testing.T) {
	client := &mockClient{}
	c := newTestController(client)

	err := c.RequestAnimation(context.Background(), AnimationRequest{Prompt: "spin", AspectRatio: gemini.AspectLandscape})
	assert.ErrorIs(t, err, ErrNoImage)
	assert.Equal(t, StatusIdle, c.Snapshot().Status)
	client.AssertNotCalled(t, "SynthesizeVideo", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestController_RequestAnimation_NoImageAfterFailure(t *testing.T) {
	client := &mockClient{}
	client.On("SynthesizeImage", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("boom"))
	c := newTestController(client)
	require.Error(t, c.RequestImage(context.Background(), LogoRequest{Prompt: "logo"}))

	err := c.RequestAnimation(context.Background(), AnimationRequest{})
	assert.ErrorIs(t, err, ErrNoImage)
	assert.Equal(t, StatusError, c.Snapshot().Status)
	client.AssertNotCalled(t, "SynthesizeVideo", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestController_RequestAnimation_InvalidAspectRatio(t *testing.T) {
	client := &mockClient{}
	c := withImage(t, client)

	err := c.RequestAnimation(context.Background(), AnimationRequest{AspectRatio: "4:3"})
	assert.ErrorIs(t, err, gemini.ErrInvalidAspectRatio)
	assert.Equal(t, StatusSuccessImage, c.Snapshot().Status)
}

func TestController_RequestAnimation_FailureDemotes(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"no uri", gemini.ErrNoVideoURI, "Video generation failed or no URI returned."},
		{"download failed", fmt.Errorf("%w: status 403", gemini.ErrDownloadFailed), "Failed to download generated video."},
		{"poll timeout", gemini.ErrPollTimeout, "Video generation timed out. Please try again."},
		{"provider failure", &gemini.OperationError{Message: "policy"}, "Video generation failed: policy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockClient{}
			c := withImage(t, client)
			client.On("SynthesizeVideo", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)

			err := c.RequestAnimation(context.Background(), AnimationRequest{Prompt: "spin"})
			assert.ErrorIs(t, err, tt.err)

			snap := c.Snapshot()
			assert.Equal(t, StatusSuccessImage, snap.Status)
			assert.Equal(t, tt.wantMsg, snap.Error)
			assert.Same(t, testImage, snap.Image)
			assert.Equal(t, []byte("png-bytes"), snap.Image.Data)
			assert.False(t, snap.HasVideo())
		})
	}
}

func TestController_EndToEnd(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{}
	client.On("SynthesizeImage", mock.Anything, "A futuristic tech company called 'Nebula'", gemini.Resolution1K).
		Return(testImage, nil)
	client.On("SynthesizeVideo", mock.Anything, testImage.DataURL(), "spinning glow", gemini.AspectLandscape).
		Return(testVideo, nil)

	c := newTestController(client)

	require.NoError(t, c.RequestImage(ctx, LogoRequest{
		Prompt:     "A futuristic tech company called 'Nebula'",
		Resolution: gemini.Resolution1K,
	}))
	assert.Equal(t, StatusSuccessImage, c.Snapshot().Status)

	require.NoError(t, c.RequestAnimation(ctx, AnimationRequest{
		Prompt:      "spinning glow",
		AspectRatio: gemini.AspectLandscape,
	}))

	snap := c.Snapshot()
	assert.Equal(t, StatusSuccessVideo, snap.Status)
	assert.Same(t, testImage, snap.Image)
	assert.Same(t, testVideo, snap.Video)
	assert.Empty(t, snap.Error)
	client.AssertExpectations(t)
}

func TestController_RequestAnimation_DefaultPrompt(t *testing.T) {
	client := &mockClient{}
	c := withImage(t, client)
	client.On("SynthesizeVideo", mock.Anything, mock.Anything, DefaultAnimationPrompt, gemini.AspectLandscape).Return(testVideo, nil)

	require.NoError(t, c.RequestAnimation(context.Background(), AnimationRequest{Prompt: "  "}))
	client.AssertExpectations(t)
}

func TestController_Reanimate(t *testing.T) {
	client := &mockClient{}
	c := withImage(t, client)
	client.On("SynthesizeVideo", mock.Anything, mock.Anything, mock.Anything, gemini.AspectLandscape).Return(testVideo, nil).Once()
	portrait := &gemini.Video{Data: []byte("tall")}
	client.On("SynthesizeVideo", mock.Anything, mock.Anything, mock.Anything, gemini.AspectPortrait).Return(portrait, nil).Once()

	require.NoError(t, c.RequestAnimation(context.Background(), AnimationRequest{AspectRatio: gemini.AspectLandscape}))
	require.NoError(t, c.RequestAnimation(context.Background(), AnimationRequest{AspectRatio: gemini.AspectPortrait}))

	snap := c.Snapshot()
	assert.Equal(t, StatusSuccessVideo, snap.Status)
	assert.Same(t, portrait, snap.Video)
}

func TestController_RejectsWhileBusy(t *testing.T) {
	client := &mockClient{}
	c := withImage(t, client)

	release := make(chan struct{})
	client.On("SynthesizeVideo", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(blockUntil(release)).
		Return(testVideo, nil)

	done, err := c.StartAnimation(context.Background(), AnimationRequest{})
	require.NoError(t, err)

	_, err = c.StartAnimation(context.Background(), AnimationRequest{})
	assert.ErrorIs(t, err, ErrBusy)
	_, err = c.StartImage(context.Background(), LogoRequest{Prompt: "other"})
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, StatusGeneratingVideo, c.Snapshot().Status)

	close(release)
	require.NoError(t, <-done)
	client.AssertNumberOfCalls(t, "SynthesizeVideo", 1)
	client.AssertNumberOfCalls(t, "SynthesizeImage", 1)
}

func TestController_Cancel(t *testing.T) {
	t.Run("image generation ends in error", func(t *testing.T) {
		client := &mockClient{}
		client.On("SynthesizeImage", mock.Anything, mock.Anything, mock.Anything).
			Run(blockUntil(nil)).
			Return(nil, context.Canceled)
		c := newTestController(client)

		done, err := c.StartImage(context.Background(), LogoRequest{Prompt: "logo"})
		require.NoError(t, err)
		assert.True(t, c.Cancel())

		assert.ErrorIs(t, <-done, context.Canceled)
		snap := c.Snapshot()
		assert.Equal(t, StatusError, snap.Status)
		assert.Equal(t, "Generation was cancelled.", snap.Error)
	})

	t.Run("animation demotes to success_image", func(t *testing.T) {
		client := &mockClient{}
		c := withImage(t, client)
		client.On("SynthesizeVideo", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Run(blockUntil(nil)).
			Return(nil, context.Canceled)

		done, err := c.StartAnimation(context.Background(), AnimationRequest{})
		require.NoError(t, err)
		assert.True(t, c.Cancel())

		assert.ErrorIs(t, <-done, context.Canceled)
		snap := c.Snapshot()
		assert.Equal(t, StatusSuccessImage, snap.Status)
		assert.Same(t, testImage, snap.Image)
	})

	t.Run("nothing running", func(t *testing.T) {
		c := newTestController(&mockClient{})
		assert.False(t, c.Cancel())
	})
}

func TestController_CallerContextCancellation(t *testing.T) {
	client := &mockClient{}
	client.On("SynthesizeImage", mock.Anything, mock.Anything, mock.Anything).
		Run(blockUntil(nil)).
		Return(nil, context.DeadlineExceeded)
	c := newTestController(client)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := c.RequestImage(ctx, LogoRequest{Prompt: "logo"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusError, c.Snapshot().Status)
}

func TestController_Subscribe(t *testing.T) {
	client := &mockClient{}
	release := make(chan struct{})
	client.On("SynthesizeImage", mock.Anything, mock.Anything, mock.Anything).
		Run(blockUntil(release)).
		Return(testImage, nil)
	c := newTestController(client)

	updates, unsubscribe := c.Subscribe()

	first := <-updates
	assert.Equal(t, StatusIdle, first.Status)

	done, err := c.StartImage(context.Background(), LogoRequest{Prompt: "logo"})
	require.NoError(t, err)
	assert.Equal(t, StatusGeneratingImage, (<-updates).Status)

	close(release)
	require.NoError(t, <-done)
	last := <-updates
	assert.Equal(t, StatusSuccessImage, last.Status)
	assert.True(t, last.HasImage())

	unsubscribe()
	unsubscribe()
	_, ok := <-updates
	assert.False(t, ok)
}

func TestController_Subscribe_SlowReaderSeesLatest(t *testing.T) {
	client := &mockClient{}
	client.On("SynthesizeImage", mock.Anything, mock.Anything, mock.Anything).Return(testImage, nil)
	c := newTestController(client)

	updates, unsubscribe := c.Subscribe()
	defer unsubscribe()

	// Nothing is read while two transitions happen.
	require.NoError(t, c.RequestImage(context.Background(), LogoRequest{Prompt: "logo"}))

	select {
	case snap := <-updates:
		assert.Equal(t, StatusSuccessImage, snap.Status)
	default:
		t.Fatal("expected a pending snapshot")
	}
}

func TestController_Close(t *testing.T) {
	client := &mockClient{}
	client.On("SynthesizeImage", mock.Anything, mock.Anything, mock.Anything).
		Run(blockUntil(nil)).
		Return(nil, context.Canceled)
	c := newTestController(client)

	updates, _ := c.Subscribe()
	<-updates

	done, err := c.StartImage(context.Background(), LogoRequest{Prompt: "logo"})
	require.NoError(t, err)
	<-updates

	c.Close()
	assert.ErrorIs(t, <-done, context.Canceled)

	_, ok := <-updates
	assert.False(t, ok)

	_, err = c.StartImage(context.Background(), LogoRequest{Prompt: "again"})
	assert.ErrorIs(t, err, ErrClosed)

	closed, _ := c.Subscribe()
	_, ok = <-closed
	assert.False(t, ok)
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil, FallbackImageMessage))
	assert.Equal(t, "No image data found in response", Message(fmt.Errorf("wrap: %w", gemini.ErrNoImageData), FallbackImageMessage))
	assert.Equal(t, "Failed to download generated video.", Message(gemini.ErrDownloadFailed, FallbackVideoMessage))
	assert.Equal(t, "Video generation failed or no URI returned.", Message(gemini.ErrNoVideoURI, FallbackVideoMessage))
	assert.Equal(t, "plain failure", Message(errors.New("plain failure"), FallbackImageMessage))
	assert.Equal(t, FallbackVideoMessage, Message(errors.New(" "), FallbackVideoMessage))
}

func TestMessage_ProviderAndInternalErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"operation error", &gemini.OperationError{Message: "image violates policy"}, "Video generation failed: image violates policy"},
		{"operation error without detail", fmt.Errorf("%w: no operation returned", gemini.ErrGenerationFailed), "Video generation failed."},
		{"api error", fmt.Errorf("gemini: generate image: %w", genai.APIError{Code: 429, Message: "Quota exceeded"}), "Quota exceeded"},
		{"wrapped transport error", fmt.Errorf("gemini: start video generation: %w", errors.New("connection refused")), "connection refused"},
		{"bare sentinel", gemini.ErrEmptyPrompt, "prompt is required"},
		{"bad image handle", fmt.Errorf("%w: empty payload", gemini.ErrInvalidImageHandle), "The generated image could not be read for animation."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Message(tt.err, FallbackVideoMessage)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "gemini:")
		})
	}
}
