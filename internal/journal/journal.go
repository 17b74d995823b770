// Package journal keeps a local SQLite history of pruning recommendations.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/drpaneas/vitisexpert/internal/advice"
)

// DefaultLimit is used by List when limit is not positive.
const DefaultLimit = 20

// timeLayout has a fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned by Get for an unknown ID.
var ErrNotFound = errors.New("journal entry not found")

const schema = `
CREATE TABLE IF NOT EXISTS advice (
	id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	input TEXT NOT NULL,
	recommendation TEXT NOT NULL,
	provider TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_advice_created ON advice(created_at);
`

// Entry is one recorded recommendation.
type Entry struct {
	ID             string                `json:"id"`
	CreatedAt      time.Time             `json:"createdAt"`
	Input          advice.Input          `json:"input"`
	Recommendation advice.Recommendation `json:"recommendation"`
	Provider       string                `json:"provider,omitempty"`
	Model          string                `json:"model,omitempty"`
}

// Journal is a SQLite-backed recommendation log.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the journal database at path.
func Open(ctx context.Context, path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}
	slog.Debug("opened journal", "path", path)
	return &Journal{db: db, now: time.Now}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores e, assigning a fresh ID and timestamp.
func (j *Journal) Record(ctx context.Context, e Entry) (Entry, error) {
	e.ID = uuid.NewString()
	e.CreatedAt = j.now().UTC()

	in, err := json.Marshal(e.Input)
	if err != nil {
		return Entry{}, fmt.Errorf("encoding input: %w", err)
	}
	rec, err := json.Marshal(e.Recommendation)
	if err != nil {
		return Entry{}, fmt.Errorf("encoding recommendation: %w", err)
	}

	_, err = j.db.ExecContext(ctx,
		`INSERT INTO advice (id, created_at, input, recommendation, provider, model) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.CreatedAt.Format(timeLayout), string(in), string(rec), e.Provider, e.Model)
	if err != nil {
		return Entry{}, fmt.Errorf("recording advice: %w", err)
	}
	slog.Debug("recorded advice", "id", e.ID, "verdict", e.Recommendation.Verdict)
	return e, nil
}

// List returns up to limit entries, newest first.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, created_at, input, recommendation, provider, model FROM advice ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("listing advice: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing advice: %w", err)
	}
	return entries, nil
}

// Get returns the entry with the given ID.
func (j *Journal) Get(ctx context.Context, id string) (Entry, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT id, created_at, input, recommendation, provider, model FROM advice WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	var created, in, rec string
	if err := s.Scan(&e.ID, &created, &in, &rec, &e.Provider, &e.Model); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("reading advice row: %w", err)
	}
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp of %s: %w", e.ID, err)
	}
	e.CreatedAt = t
	if err := json.Unmarshal([]byte(in), &e.Input); err != nil {
		return Entry{}, fmt.Errorf("decoding input of %s: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(rec), &e.Recommendation); err != nil {
		return Entry{}, fmt.Errorf("decoding recommendation of %s: %w", e.ID, err)
	}
	return e, nil
}
