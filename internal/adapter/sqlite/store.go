// Package sqlite persists named water analyses (raw water and drain samples).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/couchcryptid/nutrient-calc/internal/domain"
)

// Store is a SQLite-backed sample store.
type Store struct {
	conn *sqlx.DB
}

// sampleRow is the table layout; ions are stored as a JSON object.
type sampleRow struct {
	Name     string  `db:"name"`
	TakenAt  string  `db:"taken_at"`
	EC       float64 `db:"ec"`
	IonsJSON string  `db:"ions_json"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*Store, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("samples db: %w", err)
	}
	return nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS samples (
		name TEXT PRIMARY KEY,
		taken_at TEXT NOT NULL,
		ec REAL NOT NULL,
		ions_json TEXT NOT NULL
	);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// Put inserts or replaces the sample with the same name.
func (s *Store) Put(ctx context.Context, sample domain.Sample) error {
	if err := validateSample(sample); err != nil {
		return err
	}
	ions, err := json.Marshal(sample.Ions)
	if err != nil {
		return fmt.Errorf("encode ions: %w", err)
	}
	_, err = s.conn.ExecContext(ctx,
		"INSERT OR REPLACE INTO samples (name, taken_at, ec, ions_json) VALUES (?, ?, ?, ?)",
		sample.Name, sample.TakenAt.UTC().Format(time.RFC3339Nano), sample.EC, string(ions),
	)
	if err != nil {
		return fmt.Errorf("put sample %q: %w", sample.Name, err)
	}
	return nil
}

// Sample returns the named analysis, or domain.ErrSampleNotFound.
func (s *Store) Sample(ctx context.Context, name string) (domain.Sample, error) {
	var row sampleRow
	err := s.conn.GetContext(ctx, &row,
		"SELECT name, taken_at, ec, ions_json FROM samples WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Sample{}, fmt.Errorf("%w: %s", domain.ErrSampleNotFound, name)
	}
	if err != nil {
		return domain.Sample{}, fmt.Errorf("get sample %q: %w", name, err)
	}
	return row.toDomain()
}

// List returns every stored analysis ordered by name.
func (s *Store) List(ctx context.Context) ([]domain.Sample, error) {
	var rows []sampleRow
	if err := s.conn.SelectContext(ctx, &rows,
		"SELECT name, taken_at, ec, ions_json FROM samples ORDER BY name"); err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}

	out := make([]domain.Sample, 0, len(rows))
	for _, row := range rows {
		sample, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, sample)
	}
	return out, nil
}

// Delete removes the named analysis, or returns domain.ErrSampleNotFound.
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.conn.ExecContext(ctx, "DELETE FROM samples WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete sample %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete sample %q: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrSampleNotFound, name)
	}
	return nil
}

func (r sampleRow) toDomain() (domain.Sample, error) {
	takenAt, err := time.Parse(time.RFC3339Nano, r.TakenAt)
	if err != nil {
		return domain.Sample{}, fmt.Errorf("decode taken_at for %q: %w", r.Name, err)
	}
	ions := domain.IonVector{}
	if err := json.Unmarshal([]byte(r.IonsJSON), &ions); err != nil {
		return domain.Sample{}, fmt.Errorf("decode ions for %q: %w", r.Name, err)
	}
	return domain.Sample{Name: r.Name, TakenAt: takenAt, EC: r.EC, Ions: ions}, nil
}

func validateSample(s domain.Sample) error {
	if s.Name == "" {
		return fmt.Errorf("%w: sample name is required", domain.ErrInvalidRequest)
	}
	for ion := range s.Ions {
		if !ion.Valid() {
			return fmt.Errorf("%w: unknown ion %q", domain.ErrInvalidRequest, ion)
		}
	}
	return nil
}
