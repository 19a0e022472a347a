package registry

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/gridhouse/peerreg/pkg/database"
	"github.com/gridhouse/peerreg/pkg/errors"
	"github.com/jackc/pgx/v5"
)

// Registration table queries. The (service_name, environment) pair is the
// natural key; GREATEST keeps last_heartbeat monotonically non-decreasing
// even when writes arrive out of order.
const (
	createRegistrationsTableSQL = `
		CREATE TABLE IF NOT EXISTS registrations (
			id             UUID PRIMARY KEY,
			service_name   TEXT NOT NULL,
			environment    TEXT NOT NULL,
			endpoint       TEXT NOT NULL,
			capabilities   TEXT[] NOT NULL DEFAULT '{}',
			last_heartbeat TIMESTAMPTZ NOT NULL,
			metadata       JSONB NOT NULL DEFAULT '{}',
			UNIQUE (service_name, environment)
		)`

	createHeartbeatIndexSQL = `
		CREATE INDEX IF NOT EXISTS registrations_last_heartbeat_idx
		ON registrations (last_heartbeat)`

	upsertRegistrationSQL = `
		INSERT INTO registrations (id, service_name, environment, endpoint, capabilities, last_heartbeat, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (service_name, environment) DO UPDATE SET
			endpoint       = EXCLUDED.endpoint,
			capabilities   = EXCLUDED.capabilities,
			last_heartbeat = GREATEST(registrations.last_heartbeat, EXCLUDED.last_heartbeat),
			metadata       = EXCLUDED.metadata`

	touchRegistrationSQL = `
		UPDATE registrations
		SET last_heartbeat = GREATEST(last_heartbeat, $3)
		WHERE service_name = $1 AND environment = $2`

	deleteRegistrationSQL = `
		DELETE FROM registrations WHERE service_name = $1 AND environment = $2`

	deleteRegistrationsByNameSQL = `
		DELETE FROM registrations WHERE service_name = $1`

	getRegistrationSQL = `
		SELECT id, service_name, environment, endpoint, capabilities, last_heartbeat, metadata
		FROM registrations
		WHERE service_name = $1
		ORDER BY last_heartbeat DESC
		LIMIT 1`

	listByCapabilitySQL = `
		SELECT id, service_name, environment, endpoint, capabilities, last_heartbeat, metadata
		FROM registrations
		WHERE last_heartbeat > $1 AND $2 = ANY(capabilities)
		ORDER BY last_heartbeat DESC`

	listByEnvironmentSQL = `
		SELECT id, service_name, environment, endpoint, capabilities, last_heartbeat, metadata
		FROM registrations
		WHERE environment = $1
		ORDER BY service_name`

	listAllRegistrationsSQL = `
		SELECT id, service_name, environment, endpoint, capabilities, last_heartbeat, metadata
		FROM registrations
		ORDER BY service_name, environment`

	deleteOlderThanSQL = `
		DELETE FROM registrations WHERE last_heartbeat < $1`
)

// PGStore implements Store over a PostgreSQL connection pool. It accepts
// the database.Database interface so it runs identically against a pool,
// a transaction, or a mock.
type PGStore struct {
	db database.Database

	now func() time.Time
}

// NewPGStore creates a store over an established database connection.
// Callers own the connection's lifecycle; closing the pool invalidates the
// store.
func NewPGStore(db database.Database) *PGStore {
	return &PGStore{
		db:  db,
		now: time.Now,
	}
}

// EnsureSchema creates the registrations table and its indexes when they do
// not exist yet. Statements run separately because the extended query
// protocol rejects multi-statement strings.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{createRegistrationsTableSQL, createHeartbeatIndexSQL} {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return classifyStoreError("ensure schema", err)
		}
	}
	return nil
}

// Upsert inserts a record for the registration's natural key or updates the
// existing one in place, preserving its ID and keeping the heartbeat
// monotonic.
func (s *PGStore) Upsert(ctx context.Context, reg Registration) error {
	if reg.ServiceName == "" {
		return errors.NewInvalidInput("service_name", "service name is required")
	}
	if reg.Endpoint == "" {
		return errors.NewInvalidInput("endpoint", "endpoint is required")
	}

	capabilities := reg.Capabilities
	if capabilities == nil {
		capabilities = []string{}
	}
	metadata := reg.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	_, err := s.db.Exec(ctx, upsertRegistrationSQL,
		uuid.New().String(),
		reg.ServiceName,
		reg.Environment,
		reg.Endpoint,
		capabilities,
		s.now().UTC(),
		metadata,
	)
	if err != nil {
		return classifyStoreError("upsert registration", err)
	}
	return nil
}

// Touch refreshes the heartbeat timestamp for the given key.
func (s *PGStore) Touch(ctx context.Context, name, environment string) (bool, error) {
	tag, err := s.db.Exec(ctx, touchRegistrationSQL, name, environment, s.now().UTC())
	if err != nil {
		return false, classifyStoreError("touch registration", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes the record for the given key.
func (s *PGStore) Delete(ctx context.Context, name, environment string) (bool, error) {
	tag, err := s.db.Exec(ctx, deleteRegistrationSQL, name, environment)
	if err != nil {
		return false, classifyStoreError("delete registration", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteByName removes every environment's record for the given name.
func (s *PGStore) DeleteByName(ctx context.Context, name string) (bool, error) {
	tag, err := s.db.Exec(ctx, deleteRegistrationsByNameSQL, name)
	if err != nil {
		return false, classifyStoreError("delete registrations", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get returns the record for the name with the most recent heartbeat across
// environments.
func (s *PGStore) Get(ctx context.Context, name string) (*RegistrationRecord, error) {
	row := s.db.QueryRow(ctx, getRegistrationSQL, name)

	var rec RegistrationRecord
	err := row.Scan(&rec.ID, &rec.ServiceName, &rec.Environment, &rec.Endpoint,
		&rec.Capabilities, &rec.LastHeartbeat, &rec.Metadata)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFound("service", name)
		}
		return nil, classifyStoreError("get registration", err)
	}
	return &rec, nil
}

// ListByCapability returns records inside the health window that advertise
// the capability, most recently heartbeated first. The cutoff comparison is
// strict so a heartbeat exactly window old is already excluded.
func (s *PGStore) ListByCapability(ctx context.Context, capability string, window time.Duration) ([]RegistrationRecord, error) {
	cutoff := s.now().UTC().Add(-window)
	return s.list(ctx, "list by capability", listByCapabilitySQL, cutoff, capability)
}

// ListByEnvironment returns every record registered under the environment,
// healthy or not.
func (s *PGStore) ListByEnvironment(ctx context.Context, environment string) ([]RegistrationRecord, error) {
	return s.list(ctx, "list by environment", listByEnvironmentSQL, environment)
}

// ListAll returns every record in the store.
func (s *PGStore) ListAll(ctx context.Context) ([]RegistrationRecord, error) {
	return s.list(ctx, "list registrations", listAllRegistrationsSQL)
}

// DeleteOlderThan removes records whose heartbeat is strictly older than
// the cutoff.
func (s *PGStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, deleteOlderThanSQL, cutoff.UTC())
	if err != nil {
		return 0, classifyStoreError("delete stale registrations", err)
	}
	return tag.RowsAffected(), nil
}

// Check verifies the store can reach the database. It satisfies
// health.Checker.
func (s *PGStore) Check(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return errors.NewUnavailable("postgres", "store health check failed", err)
	}
	return nil
}

// list runs a query returning registration rows and scans them all.
func (s *PGStore) list(ctx context.Context, op, query string, args ...interface{}) ([]RegistrationRecord, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classifyStoreError(op, err)
	}
	defer rows.Close()

	var records []RegistrationRecord
	for rows.Next() {
		var rec RegistrationRecord
		err := rows.Scan(&rec.ID, &rec.ServiceName, &rec.Environment, &rec.Endpoint,
			&rec.Capabilities, &rec.LastHeartbeat, &rec.Metadata)
		if err != nil {
			return nil, errors.NewTransient(op+" scan failed", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyStoreError(op, err)
	}
	return records, nil
}

// classifyStoreError maps driver failures onto the registry taxonomy so the
// resolver can tell an unreachable database from a failing query.
func classifyStoreError(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return errors.NewUnavailable("postgres", op+" could not reach the database", err)
	}
	return errors.NewTransient(op+" failed", err)
}
