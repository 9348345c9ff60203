package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseph-ayodele/rxverify/internal/common"
	"github.com/joseph-ayodele/rxverify/internal/entity"
)

// ErrEmptyFingerprint is returned by every registry backend for an entry
// without a fingerprint.
var ErrEmptyFingerprint = errors.New("registry: empty fingerprint")

const registrySchema = `
CREATE TABLE IF NOT EXISTS registry_entries (
	seq               BIGSERIAL PRIMARY KEY,
	id                UUID        NOT NULL,
	fingerprint       CHAR(64)    NOT NULL,
	doctor_name       TEXT        NOT NULL,
	patient_name      TEXT        NOT NULL,
	prescription_date DATE        NOT NULL,
	registered_at     TIMESTAMPTZ NOT NULL,
	valid             BOOLEAN     NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS registry_entries_fingerprint_idx ON registry_entries (fingerprint);
`

// RegistryEntryRepository is the Postgres-backed registry store.
type RegistryEntryRepository interface {
	EnsureSchema(ctx context.Context) error
	ExistsAndValid(ctx context.Context, fingerprint string) (bool, error)
	Insert(ctx context.Context, entry entity.RegistryEntry) (string, error)
	Entries(ctx context.Context) ([]entity.RegistryEntry, error)
	Close() error
}

type registryEntryRepo struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

func NewRegistryEntryRepository(pool *pgxpool.Pool, logger *slog.Logger) RegistryEntryRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &registryEntryRepo{
		pool:   pool,
		logger: logger,
		now:    time.Now,
	}
}

func (r *registryEntryRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, registrySchema); err != nil {
		r.logger.Error("failed to create registry schema", "error", err)
		return fmt.Errorf("%w: create registry schema: %v", common.ErrDatabase, err)
	}
	return nil
}

func (r *registryEntryRepo) ExistsAndValid(ctx context.Context, fingerprint string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT valid FROM registry_entries WHERE fingerprint = $1 AND valid ORDER BY seq DESC LIMIT 1`,
		fingerprint,
	).Scan(&ok)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		r.logger.Error("failed to look up registry entry", "fingerprint", fingerprint, "error", err)
		return false, fmt.Errorf("%w: registry lookup: %v", common.ErrDatabase, err)
	}
	return ok, nil
}

func (r *registryEntryRepo) Insert(ctx context.Context, entry entity.RegistryEntry) (string, error) {
	if entry.Fingerprint == "" {
		return "", ErrEmptyFingerprint
	}
	e := entry.Stamped(r.now())
	_, err := r.pool.Exec(ctx,
		`INSERT INTO registry_entries (id, fingerprint, doctor_name, patient_name, prescription_date, registered_at, valid)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Fingerprint, e.DoctorName, e.PatientName, e.PrescriptionDate, e.RegisteredAt, e.Valid,
	)
	if err != nil {
		r.logger.Error("failed to insert registry entry", "fingerprint", e.Fingerprint, "error", err)
		return "", fmt.Errorf("%w: registry insert: %v", common.ErrDatabase, err)
	}
	return e.Fingerprint, nil
}

func (r *registryEntryRepo) Entries(ctx context.Context) ([]entity.RegistryEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, fingerprint, doctor_name, patient_name, prescription_date, registered_at, valid
		 FROM registry_entries ORDER BY seq`)
	if err != nil {
		r.logger.Error("failed to list registry entries", "error", err)
		return nil, fmt.Errorf("%w: registry list: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []entity.RegistryEntry
	for rows.Next() {
		var e entity.RegistryEntry
		if err := rows.Scan(&e.ID, &e.Fingerprint, &e.DoctorName, &e.PatientName, &e.PrescriptionDate, &e.RegisteredAt, &e.Valid); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *registryEntryRepo) Close() error {
	Close(r.pool, r.logger)
	return nil
}
