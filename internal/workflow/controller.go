package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/maauso/logomotion-api/internal/gemini"
)

// DefaultAnimationPrompt is used when an animation request carries no prompt.
const DefaultAnimationPrompt = "Cinematic, spinning, lighting effects"

var (
	// ErrBlankPrompt is returned when an image request has a blank prompt.
	ErrBlankPrompt = errors.New("workflow: prompt is required")
	// ErrBusy is returned when a generation is already in flight.
	ErrBusy = errors.New("workflow: a generation is already in progress")
	// ErrNoImage is returned when animation is requested without a held image.
	ErrNoImage = errors.New("workflow: no generated image to animate")
	// ErrInvalidTransition is returned when the current status does not allow the request.
	ErrInvalidTransition = errors.New("workflow: invalid state transition")
	// ErrClosed is returned when the controller has been closed.
	ErrClosed = errors.New("workflow: controller is closed")
)

// LogoRequest asks for a new logo image.
type LogoRequest struct {
	Prompt     string
	Resolution gemini.Resolution
}

// AnimationRequest asks for the held image to be animated.
type AnimationRequest struct {
	Prompt      string
	AspectRatio gemini.AspectRatio
}

// Snapshot is a read-only view of a Controller at one point in time.
// Image and Video are shared with the controller and must not be mutated.
type Snapshot struct {
	Status    Status
	Error     string
	Image     *gemini.Image
	Video     *gemini.Video
	UpdatedAt time.Time
}

// HasImage reports whether an image is held.
func (s Snapshot) HasImage() bool { return s.Image != nil }

// HasVideo reports whether a video is held.
func (s Snapshot) HasVideo() bool { return s.Video != nil }

// ControllerOption is a function that configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Controller is the single writer of a workflow's status and held results.
type Controller struct {
	client gemini.Client
	logger *slog.Logger

	mu        sync.Mutex
	status    Status
	errMsg    string
	image     *gemini.Image
	video     *gemini.Video
	updatedAt time.Time
	closed    bool

	// op identifies the in-flight request; finishes for older ops are ignored.
	op     uint64
	cancel context.CancelFunc

	subs    map[int]chan Snapshot
	nextSub int
}

// NewController creates a Controller in StatusIdle.
func NewController(client gemini.Client, opts ...ControllerOption) *Controller {
	c := &Controller{
		client:    client,
		logger:    slog.Default(),
		status:    StatusIdle,
		updatedAt: time.Now(),
		subs:      make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// LastActivity returns the time of the last state change.
func (c *Controller) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updatedAt
}

// InFlight reports whether a generation is running.
func (c *Controller) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status.InFlight()
}

// RequestImage generates a new logo image and blocks until it resolves.
// The returned error is the generation failure, if any; the controller has
// already recorded it by the time RequestImage returns.
func (c *Controller) RequestImage(ctx context.Context, req LogoRequest) error {
	done, err := c.StartImage(ctx, req)
	if err != nil {
		return err
	}
	return <-done
}

// RequestAnimation animates the held image and blocks until it resolves.
func (c *Controller) RequestAnimation(ctx context.Context, req AnimationRequest) error {
	done, err := c.StartAnimation(ctx, req)
	if err != nil {
		return err
	}
	return <-done
}

// StartImage validates req, moves to StatusGeneratingImage and clears any held
// video. Generation continues in the background under ctx; the returned
// channel yields its outcome once the controller has recorded it.
// A rejected request leaves the status unchanged.
func (c *Controller) StartImage(ctx context.Context, req LogoRequest) (<-chan error, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrBlankPrompt
	}
	if req.Resolution == "" {
		req.Resolution = gemini.Resolution1K
	}
	if !req.Resolution.IsValid() {
		return nil, fmt.Errorf("%w: %q", gemini.ErrInvalidResolution, req.Resolution)
	}

	c.mu.Lock()
	if err := c.checkStartLocked(StatusGeneratingImage); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.video = nil
	opCtx, op := c.beginLocked(ctx, StatusGeneratingImage)
	c.mu.Unlock()

	c.logger.Info("image generation started",
		slog.String("resolution", string(req.Resolution)),
	)

	done := make(chan error, 1)
	go func() {
		img, err := c.client.SynthesizeImage(opCtx, req.Prompt, req.Resolution)
		c.finishImage(op, img, err)
		done <- err
		close(done)
	}()
	return done, nil
}

// StartAnimation validates req against the held image, moves to
// StatusGeneratingVideo and animates the image in the background.
func (c *Controller) StartAnimation(ctx context.Context, req AnimationRequest) (<-chan error, error) {
	if req.AspectRatio == "" {
		req.AspectRatio = gemini.AspectLandscape
	}
	if !req.AspectRatio.IsValid() {
		return nil, fmt.Errorf("%w: %q", gemini.ErrInvalidAspectRatio, req.AspectRatio)
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = DefaultAnimationPrompt
	}

	c.mu.Lock()
	if err := c.checkStartLocked(StatusGeneratingVideo); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	source := c.image.DataURL()
	c.video = nil
	opCtx, op := c.beginLocked(ctx, StatusGeneratingVideo)
	c.mu.Unlock()

	c.logger.Info("animation started",
		slog.String("aspect_ratio", string(req.AspectRatio)),
	)

	done := make(chan error, 1)
	go func() {
		video, err := c.client.SynthesizeVideo(opCtx, source, prompt, req.AspectRatio)
		c.finishAnimation(op, video, err)
		done <- err
		close(done)
	}()
	return done, nil
}

// Cancel aborts the in-flight generation, if any. The generation then
// resolves through its normal failure path. It returns false when nothing
// was running.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel()
	c.logger.Info("generation cancel requested", slog.String("status", string(c.status)))
	return true
}

// Subscribe returns a channel that receives the current snapshot and then one
// after every state change. A slow reader only sees the latest snapshot.
// The returned func unsubscribes and closes the channel.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Close cancels any in-flight generation and closes all subscriptions.
// Later requests fail with ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}

func (c *Controller) checkStartLocked(to Status) error {
	switch {
	case c.closed:
		return ErrClosed
	case c.status.InFlight():
		return ErrBusy
	case to == StatusGeneratingVideo && c.image == nil:
		return ErrNoImage
	case !canTransition(c.status, to):
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.status, to)
	}
	return nil
}

// beginLocked enters an in-flight status and registers a cancellable op.
func (c *Controller) beginLocked(ctx context.Context, to Status) (context.Context, uint64) {
	opCtx, cancel := context.WithCancel(ctx)
	c.op++
	c.cancel = cancel
	c.errMsg = ""
	c.transitionLocked(to)
	return opCtx, c.op
}

// endLocked releases the op if it is still current. It returns false for a
// stale op whose outcome must be dropped.
func (c *Controller) endLocked(op uint64) bool {
	if op != c.op || c.cancel == nil {
		return false
	}
	c.cancel()
	c.cancel = nil
	return !c.closed
}

func (c *Controller) finishImage(op uint64, img *gemini.Image, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.endLocked(op) {
		return
	}

	if err != nil || img == nil {
		if err == nil {
			err = gemini.ErrNoImageData
		}
		c.errMsg = Message(err, FallbackImageMessage)
		c.logger.Warn("image generation failed", slog.String("error", err.Error()))
		c.transitionLocked(StatusError)
		return
	}

	c.image = img
	c.errMsg = ""
	c.logger.Info("image generation succeeded", slog.Int("bytes", len(img.Data)))
	c.transitionLocked(StatusSuccessImage)
}

func (c *Controller) finishAnimation(op uint64, video *gemini.Video, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.endLocked(op) {
		return
	}

	if err != nil || video == nil {
		if err == nil {
			err = gemini.ErrNoVideoURI
		}
		c.errMsg = Message(err, FallbackVideoMessage)
		c.logger.Warn("animation failed", slog.String("error", err.Error()))
		c.transitionLocked(StatusSuccessImage)
		return
	}

	c.video = video
	c.errMsg = ""
	c.logger.Info("animation succeeded", slog.Int("bytes", len(video.Data)))
	c.transitionLocked(StatusSuccessVideo)
}

// transitionLocked moves to status and notifies subscribers. Callers have
// already checked the transition is allowed.
func (c *Controller) transitionLocked(to Status) {
	from := c.status
	c.status = to
	c.updatedAt = time.Now()
	c.logger.Debug("status changed",
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
	c.publishLocked()
}

func (c *Controller) publishLocked() {
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		// Drop an unread snapshot so the latest one always fits.
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Status:    c.status,
		Error:     c.errMsg,
		Image:     c.image,
		Video:     c.video,
		UpdatedAt: c.updatedAt,
	}
}
