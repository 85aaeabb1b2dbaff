package vault

import (
	"context"
	"errors"
	"fmt"
	"os"

	vault "github.com/hashicorp/vault/api"
	"github.com/mitchellh/mapstructure"
)

const (
	approleSecretIDPath = "auth/approle/role/%s/secret-id"
	approleLoginPath    = "auth/approle/login"
)

var (
	// ErrClientInit indicates failure to initialize the Vault API client.
	ErrClientInit = errors.New("vault client initialization failed")
	// ErrSecretNotFound indicates the path or field holds no value.
	ErrSecretNotFound = errors.New("vault secret not found")
)

type Option func(*clientConfig)

type clientConfig struct {
	address  string
	token    string
	roleID   string
	roleName string
}

type Client struct {
	api    *vault.Client
	config *clientConfig
}

func WithAddress(address string) Option {
	return func(c *clientConfig) {
		if address != "" {
			c.address = address
		}
	}
}

func WithToken(token string) Option {
	return func(c *clientConfig) {
		if token != "" {
			c.token = token
		}
	}
}

func WithAppRole(roleID, roleName string) Option {
	return func(c *clientConfig) {
		c.roleID = roleID
		c.roleName = roleName
	}
}

// NewClient creates and initializes a Vault Client using provided options.
// It will perform AppRole login if roleID and roleName are both set, otherwise
// a static token (from env or WithToken) is used.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		address: os.Getenv("VAULT_ADDR"),
		token:   os.Getenv("VAULT_TOKEN"),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	apiCfg := vault.DefaultConfig()
	if cfg.address != "" {
		apiCfg.Address = cfg.address
	}

	api, err := vault.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClientInit, err)
	}

	client := &Client{api: api, config: cfg}
	if cfg.token != "" {
		client.api.SetToken(cfg.token)
	}

	if cfg.roleID != "" && cfg.roleName != "" {
		if err := client.loginAppRole(ctx); err != nil {
			return nil, fmt.Errorf("%w: AppRole login failed: %w", ErrClientInit, err)
		}
	}
	return client, nil
}

// loginAppRole performs AppRole login using the configured roleID and roleName.
func (c *Client) loginAppRole(ctx context.Context) error {
	path := fmt.Sprintf(approleSecretIDPath, c.config.roleName)
	resp, err := c.api.Logical().WriteWithContext(ctx, path, nil)
	if err != nil {
		return fmt.Errorf("generate secret_id: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("empty response from %s", path)
	}
	sid, ok := resp.Data["secret_id"].(string)
	if !ok || sid == "" {
		return fmt.Errorf("no secret_id returned from %s", path)
	}

	loginData := map[string]any{
		"role_id":   c.config.roleID,
		"secret_id": sid,
	}
	loginResp, err := c.api.Logical().WriteWithContext(ctx, approleLoginPath, loginData)
	if err != nil {
		return fmt.Errorf("approle login request: %w", err)
	}
	if loginResp == nil || loginResp.Auth == nil || loginResp.Auth.ClientToken == "" {
		return fmt.Errorf("no token in login response")
	}
	c.api.SetToken(loginResp.Auth.ClientToken)
	return nil
}

// kvV2 is the envelope a KV version 2 engine wraps secret data in.
type kvV2 struct {
	Data     map[string]any `mapstructure:"data"`
	Metadata map[string]any `mapstructure:"metadata"`
}

// ReadField reads one string field of the KV secret at path. Both KV
// version 1 (flat) and version 2 (nested under "data") layouts work.
func (c *Client) ReadField(ctx context.Context, path, field string) (string, error) {
	secret, err := c.api.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("%w: no data found at path: %s", ErrSecretNotFound, path)
	}

	data := secret.Data
	var v2 kvV2
	if err := mapstructure.Decode(secret.Data, &v2); err == nil && v2.Data != nil && v2.Metadata != nil {
		data = v2.Data
	}

	raw, ok := data[field]
	if !ok || raw == nil {
		return "", fmt.Errorf("%w: field %q missing at path: %s", ErrSecretNotFound, field, path)
	}
	var value string
	if err := mapstructure.WeakDecode(raw, &value); err != nil {
		return "", fmt.Errorf("invalid data format at path %s field %q: %w", path, field, err)
	}
	if value == "" {
		return "", fmt.Errorf("%w: field %q is empty at path: %s", ErrSecretNotFound, field, path)
	}
	return value, nil
}
