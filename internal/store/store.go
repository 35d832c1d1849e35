package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/valpere/rephraser/internal"
)

// Store records rephrase requests and their ranked output.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rephrase_requests (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		prefix TEXT,
		suffix TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS rephrase_results (
		request_id TEXT NOT NULL,
		rank INTEGER NOT NULL,
		paraphrase TEXT NOT NULL,
		score REAL NOT NULL,
		PRIMARY KEY (request_id, rank),
		FOREIGN KEY (request_id) REFERENCES rephrase_requests(id)
	);

	CREATE INDEX IF NOT EXISTS idx_requests_text ON rephrase_requests(text);
	CREATE INDEX IF NOT EXISTS idx_results_request ON rephrase_results(request_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) SaveRequest(ctx context.Context, req internal.RephraseRequest) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rephrase_requests (id, text, prefix, suffix, created_at) VALUES (?, ?, ?, ?, ?)`,
		req.ID, normalizeText(req.Text), req.Prefix, req.Suffix, req.Timestamp)
	return err
}

// SaveResults stores the ranked paraphrases of one request, rank 1 first.
func (s *Store) SaveResults(ctx context.Context, requestID string, results []internal.Paraphrase) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO rephrase_results (request_id, rank, paraphrase, score) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range results {
		if _, err := stmt.ExecContext(ctx, requestID, i+1, r.Text, r.Score); err != nil {
			return fmt.Errorf("failed to save result %d: %w", i+1, err)
		}
	}
	return tx.Commit()
}

// HistoryEntry is one request with a summary of its output.
type HistoryEntry struct {
	internal.RephraseRequest
	ResultCount int
	Best        string
	BestScore   float64
}

// HistoryStats summarises the request history.
type HistoryStats struct {
	Requests      int
	Results       int
	EmptyRequests int
}

// ListRequests returns the most recent requests first. limit ≤ 0 returns all.
func (s *Store) ListRequests(ctx context.Context, limit int) ([]HistoryEntry, error) {
	query := `
		SELECT r.id, r.text, COALESCE(r.prefix, ''), COALESCE(r.suffix, ''), r.created_at,
			(SELECT COUNT(*) FROM rephrase_results x WHERE x.request_id = r.id),
			COALESCE((SELECT paraphrase FROM rephrase_results x WHERE x.request_id = r.id AND x.rank = 1), ''),
			COALESCE((SELECT score FROM rephrase_results x WHERE x.request_id = r.id AND x.rank = 1), 0)
		FROM rephrase_requests r
		ORDER BY r.created_at DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.Text, &e.Prefix, &e.Suffix, &e.Timestamp,
			&e.ResultCount, &e.Best, &e.BestScore); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Results returns the ranked paraphrases saved for a request.
func (s *Store) Results(ctx context.Context, requestID string) ([]internal.Paraphrase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT paraphrase, score FROM rephrase_results WHERE request_id = ? ORDER BY rank`,
		requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []internal.Paraphrase
	for rows.Next() {
		var p internal.Paraphrase
		if err := rows.Scan(&p.Text, &p.Score); err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// LatestResults returns the output of the most recent request for text.
func (s *Store) LatestResults(ctx context.Context, text string) ([]internal.Paraphrase, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM rephrase_requests WHERE text = ? ORDER BY created_at DESC LIMIT 1`,
		normalizeText(text)).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	results, err := s.Results(ctx, id)
	return results, true, err
}

func (s *Store) Stats(ctx context.Context) (*HistoryStats, error) {
	stats := &HistoryStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM rephrase_requests),
			(SELECT COUNT(*) FROM rephrase_results),
			(SELECT COUNT(*) FROM rephrase_requests r
				WHERE NOT EXISTS (SELECT 1 FROM rephrase_results x WHERE x.request_id = r.id))`).Scan(
		&stats.Requests,
		&stats.Results,
		&stats.EmptyRequests,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// DeleteRequest removes a request and its results.
func (s *Store) DeleteRequest(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rephrase_results WHERE request_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rephrase_requests WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// Clear removes the whole history and returns the number of requests removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rephrase_results`); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM rephrase_requests`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText trims whitespace and applies Unicode NFC normalization
// for consistent lookups.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
