package database

import (
	"context"
	"fmt"
	"time"
)

// BackupType classifies how a backup was triggered.
type BackupType string

const (
	BackupManual    BackupType = "manual"
	BackupAutomatic BackupType = "automatic"
	BackupScheduled BackupType = "scheduled"
)

// sqliteTimeLayout matches CURRENT_TIMESTAMP.
const sqliteTimeLayout = "2006-01-02 15:04:05"

const backupsSchema = `
CREATE TABLE IF NOT EXISTS backups (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	filename   TEXT    NOT NULL,
	file_path  TEXT    NOT NULL,
	size_bytes INTEGER NOT NULL DEFAULT 0,
	type       TEXT    NOT NULL DEFAULT 'manual'
	           CHECK (type IN ('manual', 'automatic', 'scheduled')),
	created_by TEXT,
	created_at TEXT    NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// Record is one row of the backups table.
type Record struct {
	ID        int64      `json:"id"`
	Filename  string     `json:"filename"`
	FilePath  string     `json:"file_path"`
	SizeBytes int64      `json:"size_bytes"`
	Type      BackupType `json:"type"`
	CreatedBy string     `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// RecordBackup inserts rec and returns its id. A zero CreatedAt is
// stamped with the current time; an empty Type means manual.
func (s *SQLite) RecordBackup(ctx context.Context, rec Record) (int64, error) {
	db, err := s.DB()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRecordFailed, err)
	}
	if rec.Type == "" {
		rec.Type = BackupManual
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	var createdBy any
	if rec.CreatedBy != "" {
		createdBy = rec.CreatedBy
	}

	res, err := db.ExecContext(ctx,
		`INSERT INTO backups (filename, file_path, size_bytes, type, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Filename, rec.FilePath, rec.SizeBytes, string(rec.Type), createdBy,
		rec.CreatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: insert %q: %w", ErrRecordFailed, rec.Filename, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: last insert id: %w", ErrRecordFailed, err)
	}
	return id, nil
}

// BackupHistory returns the most recent records first. limit <= 0 returns
// every record.
func (s *SQLite) BackupHistory(ctx context.Context, limit int) ([]Record, error) {
	db, err := s.DB()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, filename, file_path, size_bytes, type, COALESCE(created_by, ''), created_at
		 FROM backups ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query backup history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec       Record
			typ       string
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.Filename, &rec.FilePath, &rec.SizeBytes, &typ, &rec.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scan backup record: %w", err)
		}
		rec.Type = BackupType(typ)
		rec.CreatedAt = parseTimestamp(createdAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backup history: %w", err)
	}
	return records, nil
}

func parseTimestamp(value string) time.Time {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}
