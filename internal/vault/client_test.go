package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/markabak/internal/config"
)

const loginToken = "s.approle-token"

// fakeVault serves a tiny subset of the Vault HTTP API.
func fakeVault(t *testing.T, secrets map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/auth/approle/role/marka/secret-id", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"secret_id": "sid-123"}})
	})
	mux.HandleFunc("/v1/auth/approle/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["role_id"] != "role-abc" || body["secret_id"] != "sid-123" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"errors": []string{"invalid role or secret ID"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"auth": map[string]any{"client_token": loginToken}})
	})
	mux.HandleFunc("/v1/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") == "" {
			writeJSON(w, http.StatusForbidden, map[string]any{"errors": []string{"permission denied"}})
			return
		}
		data, ok := secrets[r.URL.Path[len("/v1/"):]]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"errors": []string{}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": data})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestReadField_KVLayouts(t *testing.T) {
	srv := fakeVault(t, map[string]any{
		"secret/data/marka": map[string]any{
			"data":     map[string]any{"encryption_key": "kv2-secret"},
			"metadata": map[string]any{"version": 3},
		},
		"kv/marka": map[string]any{"encryption_key": "kv1-secret", "pin": 1234},
	})
	ctx := context.Background()
	client, err := NewClient(ctx, WithAddress(srv.URL), WithToken("root"))
	require.NoError(t, err)

	got, err := client.ReadField(ctx, "secret/data/marka", "encryption_key")
	require.NoError(t, err)
	assert.Equal(t, "kv2-secret", got)

	got, err = client.ReadField(ctx, "kv/marka", "encryption_key")
	require.NoError(t, err)
	assert.Equal(t, "kv1-secret", got)

	got, err = client.ReadField(ctx, "kv/marka", "pin")
	require.NoError(t, err)
	assert.Equal(t, "1234", got)
}

func TestReadField_Missing(t *testing.T) {
	srv := fakeVault(t, map[string]any{"kv/marka": map[string]any{"other": "x"}})
	ctx := context.Background()
	client, err := NewClient(ctx, WithAddress(srv.URL), WithToken("root"))
	require.NoError(t, err)

	_, err = client.ReadField(ctx, "kv/absent", "encryption_key")
	require.ErrorIs(t, err, ErrSecretNotFound)

	_, err = client.ReadField(ctx, "kv/marka", "encryption_key")
	require.ErrorIs(t, err, ErrSecretNotFound)
}

func TestNewClient_AppRoleLogin(t *testing.T) {
	srv := fakeVault(t, map[string]any{"kv/marka": map[string]any{"encryption_key": "k"}})
	ctx := context.Background()

	client, err := NewClient(ctx, WithAddress(srv.URL), WithAppRole("role-abc", "marka"))
	require.NoError(t, err)
	assert.Equal(t, loginToken, client.api.Token())

	_, err = NewClient(ctx, WithAddress(srv.URL), WithAppRole("wrong", "marka"))
	require.ErrorIs(t, err, ErrClientInit)
}

func TestResolveEncryptionKey(t *testing.T) {
	ctx := context.Background()

	t.Run("config wins", func(t *testing.T) {
		var cfg config.Config
		cfg.Backup.EncryptionKey = "from-config"
		cfg.Vault.KeyPath = "kv/marka"
		key, err := ResolveEncryptionKey(ctx, cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, "from-config", key)
	})

	t.Run("nothing configured", func(t *testing.T) {
		key, err := ResolveEncryptionKey(ctx, config.Config{}, nil)
		require.NoError(t, err)
		assert.Empty(t, key)
	})

	t.Run("from vault", func(t *testing.T) {
		srv := fakeVault(t, map[string]any{"kv/marka": map[string]any{"backup_secret": "from-vault"}})
		var cfg config.Config
		cfg.Vault.Address = srv.URL
		cfg.Vault.RoleID = "role-abc"
		cfg.Vault.RoleName = "marka"
		cfg.Vault.KeyPath = "kv/marka"
		cfg.Vault.KeyField = "backup_secret"

		key, err := ResolveEncryptionKey(ctx, cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, "from-vault", key)
	})

	t.Run("missing field names the path", func(t *testing.T) {
		srv := fakeVault(t, map[string]any{"kv/marka": map[string]any{"other": "x"}})
		var cfg config.Config
		cfg.Vault.Address = srv.URL
		cfg.Vault.RoleID = "role-abc"
		cfg.Vault.RoleName = "marka"
		cfg.Vault.KeyPath = "kv/marka"

		_, err := ResolveEncryptionKey(ctx, cfg, nil)
		require.ErrorIs(t, err, ErrSecretNotFound)
		assert.Contains(t, err.Error(), "vault read kv/marka: ")
	})
}
