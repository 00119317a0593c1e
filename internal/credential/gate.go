// Package credential gates access to the generation provider's API key.
//
// Key provisioning is an optional capability. A Gate built without a Provider
// reports no usable credential and treats selection prompts as a warning.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	// ErrNoCredential is returned when no API key is available.
	ErrNoCredential = errors.New("credential: no API key selected")
	// ErrSelectionNotConfirmed is returned when a selection completed but the
	// key is still not usable afterwards.
	ErrSelectionNotConfirmed = errors.New("credential: selection was not confirmed")
	// ErrBlankKey is returned when an empty key is offered for selection.
	ErrBlankKey = errors.New("credential: api key is blank")
)

// Provider is the key provisioning capability.
type Provider interface {
	// HasSelectedKey reports whether a key is currently selected.
	HasSelectedKey(ctx context.Context) (bool, error)

	// OpenSelectKey selects key as the active credential.
	OpenSelectKey(ctx context.Context, key string) error

	// APIKey returns the active key.
	APIKey(ctx context.Context) (string, error)
}

// Gate wraps an optional Provider.
type Gate struct {
	provider Provider
	logger   *slog.Logger
}

// NewGate creates a Gate. provider may be nil.
func NewGate(provider Provider, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		provider: provider,
		logger:   logger,
	}
}

// Enabled reports whether a Provider is configured.
func (g *Gate) Enabled() bool {
	return g.provider != nil
}

// HasUsableCredential reports whether a key can be used right now.
// Without a provider it returns false and no error.
func (g *Gate) HasUsableCredential(ctx context.Context) (bool, error) {
	if g.provider == nil {
		return false, nil
	}
	ok, err := g.provider.HasSelectedKey(ctx)
	if err != nil {
		return false, fmt.Errorf("credential: check selected key: %w", err)
	}
	return ok, nil
}

// RequestSelection selects key and then re-checks availability. A selection
// that returns without error but leaves no usable key yields
// ErrSelectionNotConfirmed.
func (g *Gate) RequestSelection(ctx context.Context, key string) error {
	if g.provider == nil {
		g.logger.Warn("key selection requested but no credential provider is configured")
		return nil
	}
	if strings.TrimSpace(key) == "" {
		return ErrBlankKey
	}

	if err := g.provider.OpenSelectKey(ctx, key); err != nil {
		return fmt.Errorf("credential: select key: %w", err)
	}

	ok, err := g.HasUsableCredential(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSelectionNotConfirmed
	}

	g.logger.Info("api key selected")
	return nil
}

// APIKey returns the active key, or ErrNoCredential.
func (g *Gate) APIKey(ctx context.Context) (string, error) {
	if g.provider == nil {
		return "", ErrNoCredential
	}
	key, err := g.provider.APIKey(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(key) == "" {
		return "", ErrNoCredential
	}
	return key, nil
}
