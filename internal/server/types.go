// Package server provides the HTTP server for the LogoMotion API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// CreateImageRequest is the HTTP request body for generating a logo image.
type CreateImageRequest struct {
	// Prompt describes the company or brand the logo is for.
	Prompt string `json:"prompt" validate:"required,max=4000"`
	// Resolution is the image size tier (1K, 2K or 4K). Defaults to 1K.
	Resolution string `json:"resolution" validate:"omitempty,max=8"`
}

// CreateAnimationRequest is the HTTP request body for animating the held image.
type CreateAnimationRequest struct {
	// Prompt describes the desired motion. Defaults to a cinematic spin.
	Prompt string `json:"prompt" validate:"max=4000"`
	// AspectRatio is the video frame proportion. Defaults to 16:9.
	AspectRatio string `json:"aspect_ratio" validate:"omitempty,oneof=16:9 9:16"`
}

// SelectCredentialRequest is the HTTP request body for selecting an API key.
type SelectCredentialRequest struct {
	// APIKey is the key to use for generation calls.
	APIKey string `json:"api_key" validate:"required"`
}

// PublishRequest is the HTTP request body for publishing a held artifact.
type PublishRequest struct {
	// Kind selects the artifact to publish.
	Kind string `json:"kind" validate:"required,oneof=image video"`
}

// SessionResponse is the HTTP response describing a session's workflow state.
type SessionResponse struct {
	// ID is the unique identifier for the session.
	ID string `json:"id"`
	// Status is the current generation status.
	Status string `json:"status"`
	// Error is the message of the last failure, if any.
	Error string `json:"error,omitempty"`
	// HasImage reports whether a generated image is held.
	HasImage bool `json:"has_image"`
	// HasVideo reports whether a generated video is held.
	HasVideo bool `json:"has_video"`
	// ImageURL is the held image as a data URL.
	ImageURL string `json:"image_url,omitempty"`
	// UpdatedAt is when the status last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionListResponse is the HTTP response for GET /sessions.
type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

// CredentialResponse is the HTTP response for credential checks.
type CredentialResponse struct {
	// HasUsableCredential reports whether generation calls can be made.
	HasUsableCredential bool `json:"has_usable_credential"`
	// SelectionEnabled reports whether a key provider is configured.
	SelectionEnabled bool `json:"selection_enabled"`
}

// PublishResponse is the HTTP response after publishing an artifact.
type PublishResponse struct {
	// Kind is the published artifact kind.
	Kind string `json:"kind"`
	// Key is the object key in the bucket.
	Key string `json:"key"`
	// URL is where the artifact can be fetched.
	URL string `json:"url"`
}

// EventMessage is a WebSocket frame carrying a session update.
type EventMessage struct {
	// Type is the event type. Always "status".
	Type string `json:"type"`
	// Session is the session state after the change.
	Session SessionResponse `json:"session"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
