package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ppiankov/scrapenet/internal/model"
)

// SQLite archives round reports locally and serves them back to the status API
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the archive at path
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS rounds (
			round_id TEXT PRIMARY KEY,
			platform TEXT NOT NULL,
			search_key TEXT,
			block INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			peers INTEGER NOT NULL,
			report TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_created ON rounds(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_platform ON rounds(platform)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Store implements Sink
func (s *SQLite) Store(ctx context.Context, report *model.RoundReport, responses []json.RawMessage) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO rounds (round_id, platform, search_key, block, created_at, peers, report)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.RoundID, string(report.Platform), report.SearchKey, int64(report.Block),
		report.CreatedAt.UTC().Format(time.RFC3339Nano), len(report.UIDs), string(data))
	if err != nil {
		return fmt.Errorf("insert round %s: %w", report.RoundID, err)
	}
	return nil
}

// Recent returns up to limit reports, newest first. An empty platform matches all.
func (s *SQLite) Recent(ctx context.Context, platform model.Platform, limit int) ([]*model.RoundReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT report FROM rounds
		 WHERE (? = '' OR platform = ?)
		 ORDER BY created_at DESC, block DESC
		 LIMIT ?`,
		string(platform), string(platform), limit)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	var out []*model.RoundReport
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		var r model.RoundReport
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode round: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// Get returns one report by round id, nil when absent
func (s *SQLite) Get(ctx context.Context, roundID string) (*model.RoundReport, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT report FROM rounds WHERE round_id = ?`, roundID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query round %s: %w", roundID, err)
	}
	var r model.RoundReport
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("decode round: %w", err)
	}
	return &r, nil
}

// Close implements Sink
func (s *SQLite) Close() error {
	return s.db.Close()
}
