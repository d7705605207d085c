// Package registry owns the lifecycle of push-notification device
// bindings: validation, idempotent registration, token rotation, removal,
// and platform health checks.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vscarpenter/spend-monitor/pkg/model"
	"github.com/vscarpenter/spend-monitor/pkg/push"
	"github.com/vscarpenter/spend-monitor/pkg/storage"
)

// tokenLength is the exact length of a device token.
const tokenLength = 64

// certWarningDays is the certificate validity below which a health check
// reports warning.
const certWarningDays = 30

// HealthStatus grades the registry's platform health.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// HealthReport summarizes the platform application and endpoint population.
type HealthReport struct {
	Status                   HealthStatus `json:"status"`
	CertificateDaysRemaining int          `json:"certificate_days_remaining"`
	ActiveEndpoints          int          `json:"active_endpoints"`
	InvalidEndpoints         int          `json:"invalid_endpoints"`
	Recommendations          []string     `json:"recommendations,omitempty"`
}

// RemovalReport is the partial-failure outcome of RemoveInvalidTokens.
type RemovalReport struct {
	Removed []string          `json:"removed"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// DeviceRegistry manages device registrations against the push backend and
// the local store. The backend's token-to-endpoint idempotency is the
// source of truth for concurrent registrations; the store only mirrors it.
type DeviceRegistry struct {
	backend push.Backend
	store   storage.Storage
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a device registry.
func New(backend push.Backend, store storage.Storage, logger *slog.Logger) *DeviceRegistry {
	return &DeviceRegistry{
		backend: backend,
		store:   store,
		logger:  logger.With("component", "registry"),
		now:     time.Now,
	}
}

// ValidateToken checks that token is exactly 64 hex characters. Rejection
// happens before any network call.
func ValidateToken(token string) error {
	if token == "" {
		return model.NewValidationError("device token is empty")
	}
	if len(token) != tokenLength {
		return model.NewValidationError(fmt.Sprintf(
			"device token must be %d characters, got %d", tokenLength, len(token)))
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return model.NewValidationError(fmt.Sprintf(
				"device token contains non-hex character %q at position %d", c, i))
		}
	}
	return nil
}

// Register validates token and idempotently binds it to a platform
// endpoint. Registering an already-known token reuses the existing
// endpoint and refreshes its metadata; two racing registrations of the
// same token converge on the same endpoint ref because the backend, not
// in-process locking, deduplicates per token.
func (r *DeviceRegistry) Register(ctx context.Context, token, ownerID string) (*model.DeviceRegistration, error) {
	if err := ValidateToken(token); err != nil {
		return nil, err
	}

	endpointRef, err := r.backend.CreateOrReuseEndpoint(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("obtain platform endpoint: %w", err)
	}

	now := r.now().UTC()
	reg := &model.DeviceRegistration{
		DeviceToken: token,
		EndpointRef: endpointRef,
		OwnerID:     ownerID,
		LastUpdated: now,
		Active:      true,
	}
	existing, err := r.store.GetRegistration(ctx, token)
	switch {
	case err == nil:
		// Preserve the original registration date across re-registers.
		reg.RegisteredAt = existing.RegisteredAt
	case model.IsNotFound(err):
		reg.RegisteredAt = now
	default:
		return nil, fmt.Errorf("look up existing registration: %w", err)
	}

	if err := r.store.PutRegistration(ctx, reg); err != nil {
		return nil, fmt.Errorf("persist registration: %w", err)
	}

	r.logger.Info("device registered",
		"endpoint", endpointRef, "owner", ownerID)
	return reg, nil
}

// UpdateToken validates newToken and rebinds the stored endpoint to it.
func (r *DeviceRegistry) UpdateToken(ctx context.Context, endpointRef, newToken string) error {
	if err := ValidateToken(newToken); err != nil {
		return err
	}

	reg, err := r.store.GetRegistrationByEndpoint(ctx, endpointRef)
	if err != nil {
		return err
	}

	if err := r.backend.UpdateEndpoint(ctx, endpointRef, newToken); err != nil {
		return fmt.Errorf("rebind endpoint: %w", err)
	}

	// The token is the store key, so rotation replaces the old record.
	if err := r.store.DeleteRegistrationByEndpoint(ctx, endpointRef); err != nil {
		return fmt.Errorf("drop old registration: %w", err)
	}
	reg.DeviceToken = newToken
	reg.LastUpdated = r.now().UTC()
	if err := r.store.PutRegistration(ctx, reg); err != nil {
		return fmt.Errorf("persist rotated registration: %w", err)
	}

	r.logger.Info("device token rotated", "endpoint", endpointRef)
	return nil
}

// Remove deletes an endpoint binding. Removing an already-removed
// endpoint succeeds silently.
func (r *DeviceRegistry) Remove(ctx context.Context, endpointRef string) error {
	if err := r.backend.DeleteEndpoint(ctx, endpointRef); err != nil && !model.IsNotFound(err) {
		return fmt.Errorf("delete endpoint: %w", err)
	}
	if err := r.store.DeleteRegistrationByEndpoint(ctx, endpointRef); err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	r.logger.Info("device removed", "endpoint", endpointRef)
	return nil
}

// RemoveInvalidTokens queries each endpoint's delivery health and removes
// those the platform reports as disabled. A failure on one entry is
// collected and does not stop the sweep.
func (r *DeviceRegistry) RemoveInvalidTokens(ctx context.Context, endpointRefs []string) (*RemovalReport, error) {
	report := &RemovalReport{Errors: make(map[string]string)}

	for _, ref := range endpointRefs {
		attrs, err := r.backend.GetEndpointAttributes(ctx, ref)
		if err != nil {
			if model.IsNotFound(err) {
				// Already gone on the platform side; drop our mirror too.
				if derr := r.store.DeleteRegistrationByEndpoint(ctx, ref); derr != nil {
					report.Errors[ref] = derr.Error()
					continue
				}
				report.Removed = append(report.Removed, ref)
				continue
			}
			report.Errors[ref] = err.Error()
			continue
		}
		if attrs.Enabled {
			continue
		}

		// Confirmed invalid: mark inactive first so a crash mid-sweep
		// never leaves an invalid endpoint looking deliverable.
		if reg, err := r.store.GetRegistrationByEndpoint(ctx, ref); err == nil {
			reg.Active = false
			reg.LastUpdated = r.now().UTC()
			if err := r.store.PutRegistration(ctx, reg); err != nil {
				report.Errors[ref] = err.Error()
				continue
			}
		}

		if err := r.Remove(ctx, ref); err != nil {
			report.Errors[ref] = err.Error()
			continue
		}
		report.Removed = append(report.Removed, ref)
	}

	if len(report.Errors) == 0 {
		report.Errors = nil
	}
	r.logger.Info("invalid token sweep finished",
		"checked", len(endpointRefs), "removed", len(report.Removed))
	return report, nil
}

// ListActive returns all active registrations, the dispatch fan-out set.
func (r *DeviceRegistry) ListActive(ctx context.Context) ([]model.DeviceRegistration, error) {
	return r.store.ListRegistrations(ctx, true)
}

// HealthCheck probes the platform application and summarizes the endpoint
// population. Certificate validity under 30 days degrades to warning; an
// expired certificate or a disabled or unreachable platform application is
// critical.
func (r *DeviceRegistry) HealthCheck(ctx context.Context) (*HealthReport, error) {
	report := &HealthReport{Status: HealthHealthy}

	regs, err := r.store.ListRegistrations(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	for _, reg := range regs {
		if reg.Active {
			report.ActiveEndpoints++
		} else {
			report.InvalidEndpoints++
		}
	}

	health, err := r.backend.Health(ctx)
	if err != nil {
		report.Status = HealthCritical
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("platform application unreachable: %v", err))
		return report, nil
	}

	expiryKnown := !health.CertificateExpiry.IsZero()
	if expiryKnown {
		report.CertificateDaysRemaining = int(time.Until(health.CertificateExpiry).Hours() / 24)
	}

	switch {
	case !health.Enabled:
		report.Status = HealthCritical
		report.Recommendations = append(report.Recommendations,
			"platform application is disabled; renew credentials and re-enable it")
	case expiryKnown && report.CertificateDaysRemaining <= 0:
		report.Status = HealthCritical
		report.Recommendations = append(report.Recommendations,
			"push certificate has expired; renew it before devices can be reached again")
	case expiryKnown && report.CertificateDaysRemaining < certWarningDays:
		report.Status = HealthWarning
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("push certificate expires in %d days; rotate it soon", report.CertificateDaysRemaining))
	}

	if report.InvalidEndpoints > 0 {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("%d inactive endpoints pending removal; run a prune sweep", report.InvalidEndpoints))
	}
	return report, nil
}
