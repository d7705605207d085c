// Package push defines the narrow interface to the platform push backend
// and an HTTP client implementing it against an APNS-style provider API.
package push

import (
	"context"
	"time"
)

// EndpointAttributes describes the delivery health of one platform endpoint.
type EndpointAttributes struct {
	Token string `json:"token"`
	// Enabled is cleared by the platform when the device token receives
	// invalid-delivery feedback.
	Enabled bool `json:"enabled"`
}

// PlatformHealth describes the liveness of the platform application itself.
type PlatformHealth struct {
	Enabled           bool      `json:"enabled"`
	CertificateExpiry time.Time `json:"certificate_expiry"`
}

// Backend is the external push collaborator. Implementations must make
// CreateOrReuseEndpoint idempotent: the same token always yields the same
// endpoint ref, never a duplicate.
type Backend interface {
	// CreateOrReuseEndpoint returns the endpoint ref bound to token,
	// creating it on first use and reusing the existing binding after.
	CreateOrReuseEndpoint(ctx context.Context, token string) (string, error)

	// UpdateEndpoint rebinds an existing endpoint to a new token.
	UpdateEndpoint(ctx context.Context, endpointRef, token string) error

	// DeleteEndpoint removes an endpoint binding.
	DeleteEndpoint(ctx context.Context, endpointRef string) error

	// GetEndpointAttributes fetches an endpoint's delivery health.
	GetEndpointAttributes(ctx context.Context, endpointRef string) (*EndpointAttributes, error)

	// PublishToEndpoint delivers a serialized notification payload.
	PublishToEndpoint(ctx context.Context, endpointRef string, payload []byte) error

	// Health probes the platform application.
	Health(ctx context.Context) (*PlatformHealth, error)
}
