package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultRootFolderID  = "root"
	DefaultInterval      = "30m"
	DefaultChunkSize     = 8 << 20
	DefaultWorkers       = 1
	DefaultMaxAttempts   = 3
	DefaultLogLevel      = "info"
	DefaultLogMaxSizeMB  = 10
	DefaultLogMaxBackups = 5
)

// Config represents the main configuration for drivesync.
type Config struct {
	LocalRoot     string           `toml:"local_root"`
	RootFolderID  string           `toml:"root_folder_id"`
	Interval      string           `toml:"interval"`
	LogDir        string           `toml:"log_dir"`
	LogLevel      string           `toml:"log_level"`
	LogMaxSizeMB  int              `toml:"log_max_size_mb"`
	LogMaxBackups int              `toml:"log_max_backups"`
	Remote        RemoteConfig     `toml:"remote"`
	Database      DatabaseConfig   `toml:"database"`
	Transfer      TransferConfig   `toml:"transfer"`
	Filesystem    FilesystemConfig `toml:"filesystem"`
}

// RemoteConfig represents configuration for the remote store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RemoteConfig struct {
	Type string `toml:"type"` // "drive", "s3", or "memory"

	// Drive-specific fields (only used when Type == "drive")
	ClientSecretPath string `toml:"client_secret_path,omitempty"`
	TokenPath        string `toml:"token_path,omitempty"`
	TokenKeyPath     string `toml:"token_key_path,omitempty"` // age identity; empty stores the token in plaintext

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// DatabaseConfig represents configuration for the metadata index.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// TransferConfig tunes the transfer executor and reconciler fan-out.
type TransferConfig struct {
	ChunkSize   int64 `toml:"chunk_size"`
	Workers     int   `toml:"workers"`
	MaxAttempts int   `toml:"max_attempts"`
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

// NewConfig creates a new Config rooted at baseDir with default settings.
// The local root is left empty; it must be set before syncing.
func NewConfig(baseDir string) *Config {
	return &Config{
		RootFolderID:  DefaultRootFolderID,
		Interval:      DefaultInterval,
		LogDir:        filepath.Join(baseDir, "log"),
		LogLevel:      DefaultLogLevel,
		LogMaxSizeMB:  DefaultLogMaxSizeMB,
		LogMaxBackups: DefaultLogMaxBackups,
		Remote: RemoteConfig{
			Type:             "drive",
			ClientSecretPath: filepath.Join(baseDir, "credentials.json"),
			TokenPath:        filepath.Join(baseDir, "token.json.age"),
			TokenKeyPath:     filepath.Join(baseDir, "keys", "token.key"),
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Transfer: TransferConfig{
			ChunkSize:   DefaultChunkSize,
			Workers:     DefaultWorkers,
			MaxAttempts: DefaultMaxAttempts,
		},
	}
}

// SyncInterval parses Interval, falling back to the default when unset.
func (c *Config) SyncInterval() (time.Duration, error) {
	s := c.Interval
	if s == "" {
		s = DefaultInterval
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %s", d)
	}
	return d, nil
}

// Validate reports every missing or invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if c.LocalRoot == "" {
		errs = append(errs, errors.New("local_root is required"))
	} else if !filepath.IsAbs(c.LocalRoot) {
		errs = append(errs, fmt.Errorf("local_root must be absolute, got %q", c.LocalRoot))
	}
	if _, err := c.SyncInterval(); err != nil {
		errs = append(errs, err)
	}

	switch c.Remote.Type {
	case "drive":
		if c.Remote.ClientSecretPath == "" {
			errs = append(errs, errors.New("remote.client_secret_path is required for drive"))
		}
		if c.Remote.TokenPath == "" {
			errs = append(errs, errors.New("remote.token_path is required for drive"))
		}
	case "s3":
		if c.Remote.S3Bucket == "" {
			errs = append(errs, errors.New("remote.s3_bucket is required for s3"))
		}
		if (c.Remote.S3AccessKeyID == "") != (c.Remote.S3SecretAccessKey == "") {
			errs = append(errs, errors.New("remote.s3_access_key_id and remote.s3_secret_access_key must be set together"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown remote type: %q", c.Remote.Type))
	}

	switch c.Database.Type {
	case "sqlite":
		if c.Database.DataDir == "" {
			errs = append(errs, errors.New("database.data_dir is required for sqlite"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown database type: %q", c.Database.Type))
	}

	if c.Transfer.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("transfer.chunk_size must not be negative, got %d", c.Transfer.ChunkSize))
	}
	if c.Transfer.Workers < 0 {
		errs = append(errs, fmt.Errorf("transfer.workers must not be negative, got %d", c.Transfer.Workers))
	}
	if c.Transfer.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("transfer.max_attempts must not be negative, got %d", c.Transfer.MaxAttempts))
	}

	for _, pattern := range c.Filesystem.Ignore {
		if _, err := filepath.Match(pattern, ""); err != nil {
			errs = append(errs, fmt.Errorf("invalid ignore pattern %q: %w", pattern, err))
		}
	}

	return errors.Join(errs...)
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to path. The file may hold S3 secrets, so it
// is created owner-only.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
