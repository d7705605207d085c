package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vscarpenter/spend-monitor/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLite implements the Storage interface using an SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) PutRegistration(ctx context.Context, reg *model.DeviceRegistration) error {
	now := time.Now().UTC()
	if reg.RegisteredAt.IsZero() {
		reg.RegisteredAt = now
	}
	if reg.LastUpdated.IsZero() {
		reg.LastUpdated = now
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO device_registrations (device_token, endpoint_ref, owner_id, registered_at, last_updated, active)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(device_token) DO UPDATE SET
		   endpoint_ref = excluded.endpoint_ref,
		   owner_id = excluded.owner_id,
		   last_updated = excluded.last_updated,
		   active = excluded.active`,
		reg.DeviceToken, reg.EndpointRef, reg.OwnerID,
		reg.RegisteredAt, reg.LastUpdated, boolToInt(reg.Active),
	)
	if err != nil {
		return fmt.Errorf("put registration: %w", err)
	}
	return nil
}

func (s *SQLite) GetRegistration(ctx context.Context, token string) (*model.DeviceRegistration, error) {
	return s.getRegistrationBy(ctx, "device_token", token)
}

func (s *SQLite) GetRegistrationByEndpoint(ctx context.Context, endpointRef string) (*model.DeviceRegistration, error) {
	return s.getRegistrationBy(ctx, "endpoint_ref", endpointRef)
}

func (s *SQLite) getRegistrationBy(ctx context.Context, column, value string) (*model.DeviceRegistration, error) {
	var reg model.DeviceRegistration
	var active int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT device_token, endpoint_ref, owner_id, registered_at, last_updated, active
		 FROM device_registrations WHERE %s = ?`, column), value,
	).Scan(&reg.DeviceToken, &reg.EndpointRef, &reg.OwnerID,
		&reg.RegisteredAt, &reg.LastUpdated, &active)
	if err == sql.ErrNoRows {
		return nil, model.NewNotFoundError("registration", value)
	}
	if err != nil {
		return nil, fmt.Errorf("get registration: %w", err)
	}
	reg.Active = active != 0
	return &reg, nil
}

func (s *SQLite) ListRegistrations(ctx context.Context, activeOnly bool) ([]model.DeviceRegistration, error) {
	query := `SELECT device_token, endpoint_ref, owner_id, registered_at, last_updated, active
		FROM device_registrations`
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY registered_at"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.DeviceRegistration
	for rows.Next() {
		var reg model.DeviceRegistration
		var active int
		if err := rows.Scan(&reg.DeviceToken, &reg.EndpointRef, &reg.OwnerID,
			&reg.RegisteredAt, &reg.LastUpdated, &active); err != nil {
			return nil, fmt.Errorf("scan registration row: %w", err)
		}
		reg.Active = active != 0
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

func (s *SQLite) DeleteRegistrationByEndpoint(ctx context.Context, endpointRef string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM device_registrations WHERE endpoint_ref = ?`, endpointRef)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	return nil
}

func (s *SQLite) AddSpend(ctx context.Context, period string, usd float64) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO enrichment_spend (period, total_usd, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(period) DO UPDATE SET
		   total_usd = total_usd + excluded.total_usd,
		   updated_at = excluded.updated_at
		 RETURNING total_usd`,
		period, usd, time.Now().UTC(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("add spend: %w", err)
	}
	return total, nil
}

func (s *SQLite) GetSpend(ctx context.Context, period string) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx,
		`SELECT total_usd FROM enrichment_spend WHERE period = ?`, period,
	).Scan(&total)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get spend: %w", err)
	}
	return total, nil
}

func (s *SQLite) ResetSpend(ctx context.Context, period string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE enrichment_spend SET total_usd = 0.0, updated_at = ? WHERE period = ?`,
		time.Now().UTC(), period)
	if err != nil {
		return fmt.Errorf("reset spend: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
