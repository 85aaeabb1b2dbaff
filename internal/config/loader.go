package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrLoadConfig indicates a failure to read or parse the YAML configuration.
var ErrLoadConfig = errors.New("config load failed")

// ErrValidateConfig indicates that the loaded configuration is invalid.
var ErrValidateConfig = errors.New("configuration validation failed")

// EnvPrefix is prepended to every environment override, e.g.
// MARKA_BACKUP_ENCRYPTION_KEY for backup.encryption_key.
const EnvPrefix = "MARKA"

// Config represents the top-level YAML configuration file.
type Config struct {
	Include   []string        `mapstructure:"include"   yaml:"include,omitempty"`
	Database  DatabaseConfig  `mapstructure:"database"  yaml:"database"`
	Backup    BackupConfig    `mapstructure:"backup"    yaml:"backup"`
	Retention RetentionConfig `mapstructure:"retention" yaml:"retention"`
	Cloud     CloudConfig     `mapstructure:"cloud"     yaml:"cloud"`
	Vault     VaultConfig     `mapstructure:"vault"     yaml:"vault"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"  yaml:"schedule"`
	Log       LogConfig       `mapstructure:"log"       yaml:"log"`
}

// DatabaseConfig locates the live SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// BackupConfig contains global backup options.
type BackupConfig struct {
	Directory     string `mapstructure:"directory"      yaml:"directory"`
	Product       string `mapstructure:"product"        yaml:"product"`
	Extension     string `mapstructure:"extension"      yaml:"extension"`
	Codec         string `mapstructure:"codec"          yaml:"codec"`
	EncryptionKey string `mapstructure:"encryption_key" yaml:"encryption_key,omitempty"`
	CreatedBy     string `mapstructure:"created_by"     yaml:"created_by,omitempty"`
}

// RetentionConfig bounds the artifact store by count and by age.
type RetentionConfig struct {
	MaxBackups    int `mapstructure:"max_backups"    yaml:"max_backups"`
	RetentionDays int `mapstructure:"retention_days" yaml:"retention_days"`
}

// CloudConfig enables object storage providers for upload and download.
type CloudConfig struct {
	Providers []string      `mapstructure:"providers" yaml:"providers"`
	Timeout   time.Duration `mapstructure:"timeout"   yaml:"timeout"`
	Prefix    string        `mapstructure:"prefix"    yaml:"prefix"`
	GCP       GCPConfig     `mapstructure:"gcp"       yaml:"gcp"`
	AWS       AWSConfig     `mapstructure:"aws"       yaml:"aws"`
	Minio     MinioConfig   `mapstructure:"minio"     yaml:"minio"`
}

type GCPConfig struct {
	ProjectID       string `mapstructure:"project_id"       yaml:"project_id"`
	Bucket          string `mapstructure:"bucket"           yaml:"bucket"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file,omitempty"`
}

type AWSConfig struct {
	Region   string `mapstructure:"region"   yaml:"region"`
	Bucket   string `mapstructure:"bucket"   yaml:"bucket"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
}

type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"   yaml:"endpoint"`
	Bucket    string `mapstructure:"bucket"     yaml:"bucket"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"    yaml:"use_ssl"`
}

// VaultConfig holds connection settings for HashiCorp Vault. When KeyPath
// is set the backup encryption key is read from that KV secret.
type VaultConfig struct {
	Address  string `mapstructure:"address"   yaml:"address"`
	RoleID   string `mapstructure:"role_id"   yaml:"role_id,omitempty"`
	RoleName string `mapstructure:"role_name" yaml:"role_name,omitempty"`
	KeyPath  string `mapstructure:"key_path"  yaml:"key_path,omitempty"`
	KeyField string `mapstructure:"key_field" yaml:"key_field,omitempty"`
}

// ScheduleConfig drives automatic backups in daemon mode.
type ScheduleConfig struct {
	Cron string `mapstructure:"cron" yaml:"cron"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"       yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// DefaultDataDir is the application data directory used when the
// configuration does not name one.
func DefaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "marka")
	}
	return filepath.Join(os.TempDir(), "marka")
}

func setDefaults(v *viper.Viper) {
	dataDir := DefaultDataDir()
	v.SetDefault("database.path", filepath.Join(dataDir, "marka_database.db"))
	v.SetDefault("backup.directory", filepath.Join(dataDir, "backups"))
	v.SetDefault("backup.product", "marka")
	v.SetDefault("backup.extension", "marka")
	v.SetDefault("backup.codec", "zlib")
	v.SetDefault("backup.encryption_key", "")
	v.SetDefault("backup.created_by", "")
	v.SetDefault("retention.max_backups", 10)
	v.SetDefault("retention.retention_days", 30)
	v.SetDefault("cloud.providers", []string{})
	v.SetDefault("cloud.timeout", 5*time.Minute)
	v.SetDefault("cloud.prefix", "backups")
	// AutomaticEnv only overrides keys viper already knows.
	v.SetDefault("cloud.gcp.project_id", "")
	v.SetDefault("cloud.gcp.bucket", "")
	v.SetDefault("cloud.gcp.credentials_file", "")
	v.SetDefault("cloud.aws.region", "")
	v.SetDefault("cloud.aws.bucket", "")
	v.SetDefault("cloud.aws.endpoint", "")
	v.SetDefault("cloud.minio.endpoint", "")
	v.SetDefault("cloud.minio.bucket", "")
	v.SetDefault("cloud.minio.access_key", "")
	v.SetDefault("cloud.minio.secret_key", "")
	v.SetDefault("cloud.minio.use_ssl", false)
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.role_id", "")
	v.SetDefault("vault.role_name", "")
	v.SetDefault("vault.key_path", "")
	v.SetDefault("vault.key_field", "encryption_key")
	v.SetDefault("schedule.cron", "0 2 * * *")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads the configuration from the given YAML file using Viper,
// merges any included files, and unmarshals into the Config struct.
// An empty path loads defaults and environment overrides only.
func (c *Config) Load(path string) error {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		// Read base configuration
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("%w: read base config %s: %v", ErrLoadConfig, path, err)
		}

		// Merge include files (if any)
		for _, inc := range v.GetStringSlice("include") {
			data, err := os.ReadFile(inc)
			if err != nil {
				return fmt.Errorf("%w: read include %s: %v", ErrLoadConfig, inc, err)
			}
			if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
				return fmt.Errorf("%w: merge include %s: %v", ErrLoadConfig, inc, err)
			}
		}
	}

	if err := v.UnmarshalExact(c); err != nil {
		return fmt.Errorf("%w: unmarshal config: %v", ErrLoadConfig, err)
	}

	return c.Validate()
}

// Validate checks the fields the engine cannot run without.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrValidateConfig)
	}
	if c.Backup.Directory == "" {
		return fmt.Errorf("%w: backup.directory is required", ErrValidateConfig)
	}
	if c.Backup.Product == "" || c.Backup.Extension == "" {
		return fmt.Errorf("%w: backup.product and backup.extension are required", ErrValidateConfig)
	}
	switch c.Backup.Codec {
	case "zlib", "zstd":
	default:
		return fmt.Errorf("%w: unsupported backup.codec %q", ErrValidateConfig, c.Backup.Codec)
	}
	if c.Retention.MaxBackups < 0 || c.Retention.RetentionDays < 0 {
		return fmt.Errorf("%w: retention values must not be negative", ErrValidateConfig)
	}
	for _, p := range c.Cloud.Providers {
		switch p {
		case "gcp", "aws", "minio":
		default:
			return fmt.Errorf("%w: unknown cloud provider %q", ErrValidateConfig, p)
		}
	}
	return nil
}
