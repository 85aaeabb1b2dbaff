package integrity

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createDatabase(t *testing.T, path string, rows int) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE students (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)
	for i := 0; i < rows; i++ {
		_, err = db.Exec(`INSERT INTO students (name) VALUES (?)`, fmt.Sprintf("student-%04d-%s", i, strings.Repeat("x", 80)))
		require.NoError(t, err)
	}
}

func TestVerify_ValidDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marka.db")
	createDatabase(t, path, 10)

	assert.NoError(t, Verify(context.Background(), path))
}

func TestVerify_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")

	err := Verify(context.Background(), path)
	require.ErrorIs(t, err, ErrIntegrity)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "verification must not create the file")
}

func TestVerify_RejectsNonDatabases(t *testing.T) {
	cases := map[string][]byte{
		"empty":   {},
		"short":   []byte("SQLite"),
		"garbage": bytes.Repeat([]byte{0xAB}, 8192),
		"text":    []byte("this is a plain text file pretending to be a database\n"),
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "candidate.db")
			require.NoError(t, os.WriteFile(path, content, 0o600))

			require.ErrorIs(t, Verify(context.Background(), path), ErrIntegrity)
		})
	}
}

func TestVerify_CorruptedPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marka.db")
	createDatabase(t, path, 500)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 3*4096)

	// Keep the header page intact, smash the table's b-tree pages.
	for i := 4096; i < 3*4096; i++ {
		data[i] = 0xFF
	}
	require.NoError(t, os.WriteFile(path, data, 0o600))

	require.ErrorIs(t, Verify(context.Background(), path), ErrIntegrity)
}
