package registry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/rxverify/internal/entity"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS registry_entries (
	seq               INTEGER PRIMARY KEY AUTOINCREMENT,
	id                TEXT    NOT NULL,
	fingerprint       TEXT    NOT NULL,
	doctor_name       TEXT    NOT NULL,
	patient_name      TEXT    NOT NULL,
	prescription_date TEXT    NOT NULL,
	registered_at     TEXT    NOT NULL,
	valid             INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS registry_entries_fingerprint_idx ON registry_entries (fingerprint);
`

// SQLite is a file-backed registry for single-node deployments.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one writer keeps inserts ordered and avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	logger.Info("sqlite registry opened", "path", path)
	return &SQLite{db: db, logger: logger, now: time.Now}, nil
}

func (s *SQLite) ExistsAndValid(ctx context.Context, fingerprint string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM registry_entries WHERE fingerprint = ? AND valid = 1`, fingerprint,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite lookup: %w", err)
	}
	return n > 0, nil
}

func (s *SQLite) Insert(ctx context.Context, entry entity.RegistryEntry) (string, error) {
	if entry.Fingerprint == "" {
		return "", ErrEmptyFingerprint
	}
	e := entry.Stamped(s.now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO registry_entries (id, fingerprint, doctor_name, patient_name, prescription_date, registered_at, valid)
		 VALUES (?, ?, ?, ?, ?, ?, 1)`,
		e.ID.String(), e.Fingerprint, e.DoctorName, e.PatientName,
		e.PrescriptionDate.Format(time.RFC3339Nano), e.RegisteredAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		s.logger.Error("failed to insert registry entry", "fingerprint", e.Fingerprint, "error", err)
		return "", fmt.Errorf("sqlite insert: %w", err)
	}
	return e.Fingerprint, nil
}

func (s *SQLite) Entries(ctx context.Context) ([]entity.RegistryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fingerprint, doctor_name, patient_name, prescription_date, registered_at, valid
		 FROM registry_entries ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("sqlite list: %w", err)
	}
	defer rows.Close()

	var out []entity.RegistryEntry
	for rows.Next() {
		var (
			id, date, at string
			valid        int
			e            entity.RegistryEntry
		)
		if err := rows.Scan(&id, &e.Fingerprint, &e.DoctorName, &e.PatientName, &date, &at, &valid); err != nil {
			return nil, err
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("sqlite row id %q: %w", id, err)
		}
		if e.PrescriptionDate, err = time.Parse(time.RFC3339Nano, date); err != nil {
			return nil, err
		}
		if e.RegisteredAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, err
		}
		e.Valid = valid == 1
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
