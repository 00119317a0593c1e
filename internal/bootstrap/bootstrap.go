// Package bootstrap provides dependency initialization for the LogoMotion API.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/maauso/logomotion-api/internal/config"
	"github.com/maauso/logomotion-api/internal/credential"
	"github.com/maauso/logomotion-api/internal/gemini"
	"github.com/maauso/logomotion-api/internal/session"
	"github.com/maauso/logomotion-api/internal/storage"
	"github.com/maauso/logomotion-api/internal/workflow"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Credentials *credential.Gate
	Client      gemini.Client
	Sessions    *session.Registry
	Publisher   storage.Publisher
}

// Option customizes dependency construction.
type Option func(*options)

type options struct {
	backendFactory gemini.BackendFactory
}

// WithBackendFactory replaces the SDK backend, mainly for tests.
func WithBackendFactory(f gemini.BackendFactory) Option {
	return func(o *options) {
		o.backendFactory = f
	}
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Dependencies, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.backendFactory == nil {
		o.backendFactory = gemini.NewSDKBackendFactory(cfg.GeminiBaseURL, nil)
	}

	gate := credential.NewGate(initProvider(cfg), logger)
	logger.Info("credential gate configured",
		slog.Bool("key_selection", cfg.KeySelection),
		slog.Bool("enabled", gate.Enabled()),
	)

	client, err := gemini.NewClient(gate,
		gemini.WithBackendFactory(o.backendFactory),
		gemini.WithHTTPClient(&http.Client{Timeout: cfg.DownloadTimeout()}),
		gemini.WithImageModel(cfg.ImageModel),
		gemini.WithVideoModel(cfg.VideoModel),
		gemini.WithVideoResolution(cfg.VideoResolution),
		gemini.WithPollInterval(cfg.PollInterval()),
		gemini.WithPollTimeout(cfg.PollTimeout()),
		gemini.WithMaxPollAttempts(cfg.MaxPollAttempts),
		gemini.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create generation client: %w", err)
	}

	registry := session.NewRegistry(
		func(sessionID string) *workflow.Controller {
			return workflow.NewController(client,
				workflow.WithLogger(logger.With(slog.String("session_id", sessionID))),
			)
		},
		session.WithTTL(cfg.SessionTTL()),
		session.WithLogger(logger),
	)

	publisher, err := initPublisher(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Dependencies{
		Credentials: gate,
		Client:      client,
		Sessions:    registry,
		Publisher:   publisher,
	}, nil
}

// initProvider returns the key provider. With key selection on, the store
// starts from GEMINI_API_KEY (possibly empty) and accepts new selections.
// With it off, only a preconfigured key is usable.
func initProvider(cfg *config.Config) credential.Provider {
	if cfg.KeySelection {
		return credential.NewStore(cfg.GeminiAPIKey)
	}
	if cfg.GeminiAPIKey == "" {
		return nil
	}
	return credential.NewStore(cfg.GeminiAPIKey)
}

// initPublisher creates the S3 publisher when configured.
func initPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Publisher, error) {
	if !cfg.S3Enabled() {
		logger.Info("publishing disabled")
		return storage.Disabled{}, nil
	}

	pub, err := storage.NewS3Publisher(ctx, storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 publisher: %w", err)
	}
	logger.Info("S3 publishing configured",
		slog.String("bucket", cfg.S3Bucket),
		slog.String("region", cfg.S3Region),
	)
	return pub, nil
}
