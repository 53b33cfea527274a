package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mkraev/tgbridge/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		phone_number TEXT,
		credential_blob TEXT,
		authenticated INTEGER NOT NULL DEFAULT 0,
		user_id INTEGER,
		first_name TEXT,
		username TEXT,
		qr_token TEXT,
		qr_token_expires INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const sessionColumns = `session_id, phone_number, credential_blob, authenticated,
	user_id, first_name, username, qr_token, qr_token_expires, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*domain.SessionRecord, error) {
	var rec domain.SessionRecord
	var phone, blob, firstName, username, qrToken sql.NullString
	var authenticated int
	var userID, qrExpires sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&rec.SessionID, &phone, &blob, &authenticated,
		&userID, &firstName, &username, &qrToken, &qrExpires,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.PhoneNumber = phone.String
	rec.CredentialBlob = blob.String
	rec.Authenticated = authenticated != 0
	rec.UserID = userID.Int64
	rec.FirstName = firstName.String
	rec.Username = username.String
	rec.QRToken = qrToken.String
	if qrExpires.Valid {
		rec.QRTokenExpires = time.Unix(qrExpires.Int64, 0)
	}
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)
	return &rec, nil
}

// GetSession retrieves a session record by id.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE session_id = ?`
	rec, err := scanSession(s.db.QueryRowContext(ctx, query, sessionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return rec, nil
}

// SetSession creates or replaces a session record. SQLITE_BUSY conflicts are
// retried with exponential backoff; the busy timeout alone is not always
// enough under WAL when another writer holds the lock.
func (s *SQLiteStore) SetSession(ctx context.Context, rec *domain.SessionRecord) error {
	query := `
	INSERT INTO sessions (` + sessionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		phone_number = excluded.phone_number,
		credential_blob = excluded.credential_blob,
		authenticated = excluded.authenticated,
		user_id = excluded.user_id,
		first_name = excluded.first_name,
		username = excluded.username,
		qr_token = excluded.qr_token,
		qr_token_expires = excluded.qr_token_expires,
		updated_at = excluded.updated_at`

	authenticated := 0
	if rec.Authenticated {
		authenticated = 1
	}
	var qrExpires any
	if !rec.QRTokenExpires.IsZero() {
		qrExpires = rec.QRTokenExpires.Unix()
	}

	run := func() error {
		_, err := s.db.ExecContext(ctx, query,
			rec.SessionID, rec.PhoneNumber, rec.CredentialBlob, authenticated,
			rec.UserID, rec.FirstName, rec.Username, rec.QRToken, qrExpires,
			rec.CreatedAt.Unix(), rec.UpdatedAt.Unix(),
		)
		return err
	}

	if err := withBusyRetry(ctx, run); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

// DeleteSession removes a session record.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	var rows int64
	run := func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	}
	if err := withBusyRetry(ctx, run); err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return rows > 0, nil
}

// ListSessions returns all persisted session records.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*domain.SessionRecord, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY updated_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var recs []*domain.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return recs, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// isBusyError checks for SQLite concurrency errors that warrant a retry.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withBusyRetry runs fn, retrying SQLITE_BUSY conflicts with exponential
// backoff: 50ms, 100ms, 200ms.
func withBusyRetry(ctx context.Context, fn func() error) error {
	const maxRetries = 3
	delay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil || !isBusyError(err) {
			return err
		}
		if i == maxRetries-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}
