// Package integrity decides whether a SQLite file is fit to become the
// live database.
package integrity

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	_ "modernc.org/sqlite" // SQLite driver
)

// ErrIntegrity indicates the candidate failed the consistency check.
var ErrIntegrity = errors.New("database integrity check failed")

var sqliteMagic = []byte("SQLite format 3\x00")

// Verify runs PRAGMA integrity_check against path. Only the single
// result row "ok" passes.
func Verify(ctx context.Context, path string) error {
	if err := checkHeader(path); err != nil {
		return err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("%w: open %q: %w", ErrIntegrity, path, err)
	}
	defer db.Close()

	return Check(ctx, db)
}

// Check runs PRAGMA integrity_check on an open connection.
func Check(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return fmt.Errorf("%w: query: %w", ErrIntegrity, err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return fmt.Errorf("%w: scan: %w", ErrIntegrity, err)
		}
		results = append(results, line)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrIntegrity, err)
	}
	if len(results) != 1 || results[0] != "ok" {
		return fmt.Errorf("%w: %v", ErrIntegrity, results)
	}
	return nil
}

// checkHeader rejects missing, empty and non-SQLite files before the
// driver gets a chance to create or reinterpret them.
func checkHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIntegrity, err)
	}
	defer f.Close()

	buf := make([]byte, len(sqliteMagic))
	if _, err := io.ReadFull(f, buf); err != nil {
		return fmt.Errorf("%w: %q is too short to be a database", ErrIntegrity, path)
	}
	if !bytes.Equal(buf, sqliteMagic) {
		return fmt.Errorf("%w: %q is not a SQLite database", ErrIntegrity, path)
	}
	return nil
}
