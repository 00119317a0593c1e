// Package id provides unique identifier generation for sessions.
package id

import "github.com/google/uuid"

// Prefix is prepended to every generated session ID.
const Prefix = "session-"

// Generate creates a new unique session ID.
// Format: session-<uuid>
// Example: session-9b2f6c1e-3d4a-4f5b-8c7d-1e2f3a4b5c6d
func Generate() string {
	return Prefix + uuid.NewString()
}
