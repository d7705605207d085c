package storage

import (
	"context"

	"github.com/vscarpenter/spend-monitor/pkg/model"
)

// Storage is the persistence layer for device registrations and the
// enrichment spend counters. Registrations are keyed by device token;
// spend counters are keyed by billing period.
type Storage interface {
	// PutRegistration inserts or replaces the registration for its token.
	PutRegistration(ctx context.Context, reg *model.DeviceRegistration) error

	// GetRegistration retrieves a registration by device token.
	GetRegistration(ctx context.Context, token string) (*model.DeviceRegistration, error)

	// GetRegistrationByEndpoint retrieves a registration by endpoint ref.
	GetRegistrationByEndpoint(ctx context.Context, endpointRef string) (*model.DeviceRegistration, error)

	// ListRegistrations returns all registrations, or only active ones.
	ListRegistrations(ctx context.Context, activeOnly bool) ([]model.DeviceRegistration, error)

	// DeleteRegistrationByEndpoint removes a registration. Deleting an
	// absent endpoint is not an error.
	DeleteRegistrationByEndpoint(ctx context.Context, endpointRef string) error

	// AddSpend atomically adds usd to a billing period's enrichment
	// counter and returns the new total.
	AddSpend(ctx context.Context, period string, usd float64) (float64, error)

	// GetSpend returns a billing period's enrichment total, zero if absent.
	GetSpend(ctx context.Context, period string) (float64, error)

	// ResetSpend zeroes a billing period's enrichment counter.
	ResetSpend(ctx context.Context, period string) error

	// Close releases resources.
	Close() error
}
