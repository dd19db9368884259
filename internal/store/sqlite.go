package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite database using the pure-Go
// modernc.org/sqlite driver, so deployments need no cgo toolchain.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) the context database at path and
// runs schema migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening context store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging context store: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating context store: %w", err)
	}
	return s, nil
}

// migration is a single versioned schema step.
type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "context_units",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS context_units (
				id TEXT PRIMARY KEY,
				repository TEXT NOT NULL,
				section TEXT NOT NULL,
				content TEXT NOT NULL,
				token_count INTEGER NOT NULL DEFAULT 0,
				embedding BLOB,
				created_at TEXT NOT NULL DEFAULT (datetime('now'))
			)`,
			`CREATE INDEX IF NOT EXISTS idx_context_units_section ON context_units(section)`,
			`CREATE INDEX IF NOT EXISTS idx_context_units_repository ON context_units(repository)`,
		},
	},
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`); err != nil {
		return err
	}

	var current int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		for _, stmt := range m.stmts {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
			}
		}
		if _, err := s.db.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
			return err
		}
	}
	return nil
}

// Get implements Reader.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, repository, section, content, token_count, embedding FROM context_units WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading record %q: %w", id, err)
	}
	return rec, nil
}

// ListAll implements Reader. Ordered by id so index builds are deterministic.
func (s *SQLiteStore) ListAll(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, repository, section, content, token_count, embedding FROM context_units ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// upsertRecord inserts a record, replacing the row when the id already
// exists. Re-ingesting a changed document writes over its previous records
// while created_at keeps the original ingest time.
const upsertRecord = `INSERT INTO context_units (id, repository, section, content, token_count, embedding)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		repository = excluded.repository,
		section = excluded.section,
		content = excluded.content,
		token_count = excluded.token_count,
		embedding = excluded.embedding`

// Put implements Writer.
func (s *SQLiteStore) Put(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx, upsertRecord,
		rec.ID, rec.Repository, string(rec.Section), rec.Text, rec.TokenCount, encodeVector(rec.Embedding))
	if err != nil {
		return fmt.Errorf("storing record %q: %w", rec.ID, err)
	}
	return nil
}

// PutBatch implements Writer.
func (s *SQLiteStore) PutBatch(ctx context.Context, recs []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning batch insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertRecord)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range recs {
		rec := &recs[i]
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.Repository, string(rec.Section), rec.Text, rec.TokenCount, encodeVector(rec.Embedding)); err != nil {
			return fmt.Errorf("storing record %q: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*Record, error) {
	var (
		rec     Record
		section string
		blob    []byte
	)
	if err := row.Scan(&rec.ID, &rec.Repository, &section, &rec.Text, &rec.TokenCount, &blob); err != nil {
		return nil, err
	}
	rec.Section = ParseSection(section)

	vec, err := decodeVector(blob)
	if err != nil {
		return nil, err
	}
	rec.Embedding = vec
	return &rec, nil
}

var _ Store = (*SQLiteStore)(nil)
