// Package sqlite implements the results store over a single SQLite
// file, with bundled schema migrations applied on open.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gofhir/orchestra/storage"
	"github.com/gofhir/orchestra/storage/sqlite/migrations"
)

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements storage.Store over SQLite.
type Store struct {
	db *sql.DB
}

// Open opens the results store and applies bundled migrations, so
// callers never coordinate schema setup themselves.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := applyMigrations(db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveSession persists a session record with its results and issues in
// one transaction.
func (s *Store) SaveSession(ctx context.Context, record storage.SessionRecord) error {
	if record.ID == "" {
		return fmt.Errorf("session id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save session: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO sessions (id, device_address, device_hostname, profile_url, payload_count, engine_count, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		record.ID,
		record.DeviceAddress,
		record.DeviceHostname,
		record.ProfileURL,
		record.PayloadCount,
		record.EngineCount,
		toMillis(record.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	for _, result := range record.Results {
		_, err = tx.ExecContext(ctx, `
INSERT INTO results (id, session_id, position, payload_index, engine_index, engine_identity, engine_name,
                     profile_url, valid, initiated_at, completed_at, outcome_document)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
			result.ID,
			record.ID,
			result.Position,
			result.PayloadIndex,
			result.EngineIndex,
			result.EngineIdentity,
			result.EngineName,
			result.ProfileURL,
			boolToInt(result.Valid),
			toMillis(result.InitiatedAt),
			toMillis(result.CompletedAt),
			result.OutcomeDocument,
		)
		if err != nil {
			return fmt.Errorf("insert result: %w", err)
		}

		for _, issue := range result.Issues {
			_, err = tx.ExecContext(ctx, `
INSERT INTO issues (id, result_id, position, severity, message, line, col, diagnostics)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
				issue.ID,
				result.ID,
				issue.Position,
				issue.Severity,
				issue.Message,
				nullableInt(issue.Line),
				nullableInt(issue.Column),
				issue.Diagnostics,
			)
			if err != nil {
				return fmt.Errorf("insert issue: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save session: %w", err)
	}
	return nil
}

// GetSession loads one session with its results and issues.
func (s *Store) GetSession(ctx context.Context, id string) (storage.SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, device_address, device_hostname, profile_url, payload_count, engine_count, created_at
FROM sessions WHERE id = ?
`, id)

	record, err := scanSession(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.SessionRecord{}, storage.ErrNotFound
		}
		return storage.SessionRecord{}, fmt.Errorf("get session: %w", err)
	}

	record.Results, err = s.ResultsBySession(ctx, record.ID)
	if err != nil {
		return storage.SessionRecord{}, err
	}
	return record, nil
}

// ListSessions returns up to limit sessions, newest first, without
// their result lists.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]storage.SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, device_address, device_hostname, profile_url, payload_count, engine_count, created_at
FROM sessions ORDER BY created_at DESC, id LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	records := []storage.SessionRecord{}
	for rows.Next() {
		record, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return records, nil
}

// ResultsBySession returns a session's results, with issues, in stored
// order.
func (s *Store) ResultsBySession(ctx context.Context, sessionID string) ([]storage.ResultRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, position, payload_index, engine_index, engine_identity, engine_name,
       profile_url, valid, initiated_at, completed_at, outcome_document
FROM results WHERE session_id = ? ORDER BY position
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("results by session: %w", err)
	}
	defer rows.Close()

	results := []storage.ResultRecord{}
	for rows.Next() {
		var (
			r         storage.ResultRecord
			valid     int
			initiated int64
			completed int64
		)
		if err := rows.Scan(
			&r.ID, &r.SessionID, &r.Position, &r.PayloadIndex, &r.EngineIndex,
			&r.EngineIdentity, &r.EngineName, &r.ProfileURL, &valid,
			&initiated, &completed, &r.OutcomeDocument,
		); err != nil {
			return nil, fmt.Errorf("results by session: %w", err)
		}
		r.Valid = valid != 0
		r.InitiatedAt = fromMillis(initiated)
		r.CompletedAt = fromMillis(completed)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("results by session: %w", err)
	}

	for i := range results {
		issues, err := s.issuesByResult(ctx, results[i].ID)
		if err != nil {
			return nil, err
		}
		results[i].Issues = issues
	}
	return results, nil
}

func (s *Store) issuesByResult(ctx context.Context, resultID string) ([]storage.IssueRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, result_id, position, severity, message, line, col, diagnostics
FROM issues WHERE result_id = ? ORDER BY position
`, resultID)
	if err != nil {
		return nil, fmt.Errorf("issues by result: %w", err)
	}
	defer rows.Close()

	issues := []storage.IssueRecord{}
	for rows.Next() {
		var (
			issue     storage.IssueRecord
			line, col sql.NullInt64
		)
		if err := rows.Scan(
			&issue.ID, &issue.ResultID, &issue.Position, &issue.Severity,
			&issue.Message, &line, &col, &issue.Diagnostics,
		); err != nil {
			return nil, fmt.Errorf("issues by result: %w", err)
		}
		if line.Valid {
			v := int(line.Int64)
			issue.Line = &v
		}
		if col.Valid {
			v := int(col.Int64)
			issue.Column = &v
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("issues by result: %w", err)
	}
	return issues, nil
}

func scanSession(scan func(dest ...any) error) (storage.SessionRecord, error) {
	var (
		record    storage.SessionRecord
		createdAt int64
	)
	if err := scan(
		&record.ID, &record.DeviceAddress, &record.DeviceHostname,
		&record.ProfileURL, &record.PayloadCount, &record.EngineCount, &createdAt,
	); err != nil {
		return storage.SessionRecord{}, err
	}
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

var _ storage.Store = (*Store)(nil)
