package cloud

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/markabak/internal/config"
)

// memProvider keeps objects in memory.
type memProvider struct {
	name      string
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
	block     bool
}

func newMem(name string) *memProvider {
	return &memProvider{name: name, objects: map[string][]byte{}}
}

func (m *memProvider) Name() string { return m.name }

func (m *memProvider) Upload(ctx context.Context, key string, r io.Reader, size int64) error {
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memProvider) Download(_ context.Context, key string, w io.Writer) error {
	m.mu.Lock()
	data, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return errors.New("no such key")
	}
	_, err := io.Copy(w, bytes.NewReader(data))
	return err
}

func writeLocal(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}

func TestUploadAll_EveryProvider(t *testing.T) {
	gcp, minio := newMem(ProviderGCP), newMem(ProviderMinio)
	tr := NewTransfer([]Provider{gcp, minio}, WithPrefix("/school/backups/"))
	local := writeLocal(t, t.TempDir(), "marka-backup-20250101-000000.marka", []byte("artifact"))

	require.NoError(t, tr.UploadAll(context.Background(), local))

	key := "school/backups/marka-backup-20250101-000000.marka"
	assert.Equal(t, []byte("artifact"), gcp.objects[key])
	assert.Equal(t, []byte("artifact"), minio.objects[key])
	assert.Equal(t, []string{ProviderGCP, ProviderMinio}, tr.Providers())
}

func TestUploadAll_FirstFailureCancelsOthers(t *testing.T) {
	failing := newMem(ProviderAWS)
	failing.uploadErr = errors.New("access denied")
	slow := newMem(ProviderGCP)
	slow.block = true

	tr := NewTransfer([]Provider{slow, failing}, WithTimeout(time.Minute))
	local := writeLocal(t, t.TempDir(), "marka-backup-20250101-000000.marka", []byte("artifact"))

	done := make(chan error, 1)
	go func() { done <- tr.UploadAll(context.Background(), local) }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrCloudTransfer)
		assert.Contains(t, err.Error(), "access denied")
	case <-time.After(10 * time.Second):
		t.Fatal("blocked upload was not cancelled")
	}
}

func TestUploadAll_DisabledIsNoop(t *testing.T) {
	tr := NewTransfer(nil)
	assert.False(t, tr.Enabled())
	assert.NoError(t, tr.UploadAll(context.Background(), "/does/not/matter"))
}

func TestDownload(t *testing.T) {
	p := newMem(ProviderMinio)
	p.objects["backups/marka-backup-20250101-000000.marka"] = []byte("remote artifact")
	tr := NewTransfer([]Provider{p})
	dir := filepath.Join(t.TempDir(), "incoming")

	path, err := tr.Download(context.Background(), "marka-backup-20250101-000000.marka", ProviderMinio, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "marka-backup-20250101-000000.marka"), path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("remote artifact"), got)
}

func TestDownload_FailureLeavesNothing(t *testing.T) {
	tr := NewTransfer([]Provider{newMem(ProviderMinio)})
	dir := t.TempDir()

	_, err := tr.Download(context.Background(), "missing.marka", ProviderMinio, dir)
	require.ErrorIs(t, err, ErrCloudTransfer)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownload_UnknownProvider(t *testing.T) {
	tr := NewTransfer([]Provider{newMem(ProviderMinio)})
	_, err := tr.Download(context.Background(), "a.marka", ProviderGCP, t.TempDir())
	require.ErrorIs(t, err, ErrCloudTransfer)
	require.ErrorIs(t, err, ErrUnknownProvider)
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("marka-backup-20250101-000000.marka"))
	for _, bad := range []string{"", ".", "..", "../etc/passwd", "a/b.marka", `a\b.marka`} {
		assert.ErrorIs(t, ValidateName(bad), ErrInvalidName, bad)
	}
}

func TestFromConfig_NoProviders(t *testing.T) {
	tr, err := FromConfig(context.Background(), config.CloudConfig{}, nil)
	require.NoError(t, err)
	assert.False(t, tr.Enabled())
}

func TestFromConfig_Rejects(t *testing.T) {
	_, err := FromConfig(context.Background(), config.CloudConfig{Providers: []string{"dropbox"}}, nil)
	require.ErrorIs(t, err, ErrUnknownProvider)

	_, err = FromConfig(context.Background(), config.CloudConfig{Providers: []string{ProviderMinio}}, nil)
	assert.Error(t, err, "minio without endpoint must fail")
}
