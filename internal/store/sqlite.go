// Package store persists analysis results in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/clausewise/internal/model"
)

// ErrNotFound is returned when no analysis has the requested ID
var ErrNotFound = errors.New("analysis not found")

// Fixed-width UTC timestamps sort chronologically as text
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Summary is one row of the analysis history
type Summary struct {
	ID             string       `json:"id"`
	Source         string       `json:"source"`
	Format         model.Format `json:"format"`
	Classification string       `json:"classification,omitempty"`
	Clauses        int          `json:"clauses"`
	Entities       int          `json:"entities"`
	Complete       bool         `json:"complete"`
	AnalyzedAt     time.Time    `json:"analyzed_at"`
}

// SQLiteStore keeps every saved AnalysisResult as a JSON blob, plus one row
// per entity occurrence for lookups.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens a SQLite database with WAL mode and foreign keys enabled
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// PRAGMAs are per connection; one connection keeps foreign_keys in force
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS analyses (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	source TEXT NOT NULL,
	format TEXT NOT NULL,
	classification TEXT,
	clauses INTEGER NOT NULL DEFAULT 0,
	entities INTEGER NOT NULL DEFAULT 0,
	complete INTEGER NOT NULL DEFAULT 0,
	analyzed_at TEXT NOT NULL,
	result_json TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_analyzed_at ON analyses(analyzed_at);

CREATE TABLE IF NOT EXISTS entities (
	analysis_id TEXT NOT NULL,
	clause_index INTEGER NOT NULL,
	category TEXT NOT NULL,
	text TEXT NOT NULL,
	span_start INTEGER NOT NULL,
	span_end INTEGER NOT NULL,
	confidence REAL NOT NULL,
	FOREIGN KEY(analysis_id) REFERENCES analyses(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_entities_lookup ON entities(category, text);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Save stores result, replacing any earlier result with the same ID
func (s *SQLiteStore) Save(ctx context.Context, result *model.AnalysisResult) error {
	blob, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const stmt = `
INSERT INTO analyses (id, document_id, source, format, classification, clauses, entities, complete, analyzed_at, result_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	document_id=excluded.document_id,
	source=excluded.source,
	format=excluded.format,
	classification=excluded.classification,
	clauses=excluded.clauses,
	entities=excluded.entities,
	complete=excluded.complete,
	analyzed_at=excluded.analyzed_at,
	result_json=excluded.result_json;
`
	_, err = tx.ExecContext(ctx, stmt,
		result.ID,
		result.Document.ID,
		result.Document.Source,
		string(result.Document.Format),
		result.Classification,
		result.Stats.Clauses,
		result.Stats.Entities,
		boolToInt(result.Complete),
		result.AnalyzedAt.UTC().Format(timeLayout),
		string(blob),
	)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}

	if err := replaceEntities(ctx, tx, result); err != nil {
		return fmt.Errorf("insert entities: %w", err)
	}

	return tx.Commit()
}

func replaceEntities(ctx context.Context, tx *sql.Tx, result *model.AnalysisResult) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE analysis_id=?`, result.ID); err != nil {
		return err
	}
	if result.Stats.Entities == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO entities (analysis_id, clause_index, category, text, span_start, span_end, confidence)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range result.Clauses() {
		for _, e := range c.Entities {
			if _, err := stmt.ExecContext(ctx, result.ID, c.Index, string(e.Category), e.Text,
				e.Span.Start, e.Span.End, e.Confidence); err != nil {
				return err
			}
		}
	}
	return nil
}

// Get loads a saved result
func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.AnalysisResult, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT result_json FROM analyses WHERE id=?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var result model.AnalysisResult
	if err := json.Unmarshal([]byte(blob), &result); err != nil {
		return nil, fmt.Errorf("decode analysis %s: %w", id, err)
	}
	return &result, nil
}

// List returns the most recent analyses first. limit <= 0 means no limit.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, source, format, classification, clauses, entities, complete, analyzed_at
FROM analyses
ORDER BY analyzed_at DESC, id
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanSummaries(rows)
}

// FindByEntity lists analyses that mention an entity of the given category
// and text, most recent first
func (s *SQLiteStore) FindByEntity(ctx context.Context, category model.EntityCategory, text string, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT a.id, a.source, a.format, a.classification, a.clauses, a.entities, a.complete, a.analyzed_at
FROM analyses a
WHERE EXISTS (
	SELECT 1 FROM entities e
	WHERE e.analysis_id = a.id AND e.category = ? AND e.text = ?
)
ORDER BY a.analyzed_at DESC, a.id
LIMIT ?`, string(category), text, limit)
	if err != nil {
		return nil, err
	}
	return scanSummaries(rows)
}

// Delete removes a saved result and its entities
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSummaries(rows *sql.Rows) ([]Summary, error) {
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum            Summary
			format         string
			classification sql.NullString
			complete       int
			analyzedAt     string
		)
		if err := rows.Scan(&sum.ID, &sum.Source, &format, &classification,
			&sum.Clauses, &sum.Entities, &complete, &analyzedAt); err != nil {
			return nil, err
		}
		sum.Format = model.Format(format)
		sum.Classification = classification.String
		sum.Complete = complete != 0
		if t, err := time.Parse(timeLayout, analyzedAt); err == nil {
			sum.AnalyzedAt = t
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
