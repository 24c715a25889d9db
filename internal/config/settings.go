package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	DefaultBaseURL        = "http://localhost:8000/api/v1"
	ServerEnvVar          = "SENDME_SERVER"
	defaultTimeoutSeconds = 30
	defaultMaxConcurrent  = 3
	defaultThumbnailSize  = 320
	defaultCopyResetMS    = 2000
	defaultDevice         = "desktop"
	defaultStorageBackend = "bbolt"
)

var lookupEnv = os.LookupEnv

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Device  DeviceConfig  `toml:"device"`
	Uploads UploadsConfig `toml:"uploads"`
	UI      UIConfig      `toml:"ui"`
	Logging LoggingConfig `toml:"logging"`
	Storage StorageConfig `toml:"storage"`
}

type ServerConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type DeviceConfig struct {
	Kind string `toml:"kind"`
}

type UploadsConfig struct {
	MaxConcurrent int `toml:"max_concurrent"`
	ThumbnailSize int `toml:"thumbnail_size"`
}

type UIConfig struct {
	CopyResetMS    int   `toml:"copy_reset_ms"`
	RenderMarkdown *bool `toml:"render_markdown"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

type StorageConfig struct {
	Backend string `toml:"backend"`
}

func DefaultConfig() Config {
	render := true
	return Config{
		Server: ServerConfig{
			BaseURL:        DefaultBaseURL,
			TimeoutSeconds: defaultTimeoutSeconds,
		},
		Device: DeviceConfig{Kind: defaultDevice},
		Uploads: UploadsConfig{
			MaxConcurrent: defaultMaxConcurrent,
			ThumbnailSize: defaultThumbnailSize,
		},
		UI: UIConfig{
			CopyResetMS:    defaultCopyResetMS,
			RenderMarkdown: &render,
		},
		Logging: LoggingConfig{Level: "info"},
		Storage: StorageConfig{Backend: defaultStorageBackend},
	}
}

// Load reads ~/.sendme/config.toml over the defaults. A missing file is not
// an error. SENDME_SERVER, when set, replaces the configured base URL.
func Load() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	return LoadFromPath(path)
}

func LoadFromPath(path string) (Config, error) {
	cfg := DefaultConfig()
	if err := readTOML(path, &cfg); err != nil {
		return Config{}, err
	}
	if value, ok := lookupEnv(ServerEnvVar); ok && strings.TrimSpace(value) != "" {
		cfg.Server.BaseURL = value
	}
	return cfg, nil
}

func (c Config) BaseURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.Server.BaseURL), "/")
	if base == "" {
		return DefaultBaseURL
	}
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return base
}

func (c Config) Timeout() time.Duration {
	if c.Server.TimeoutSeconds <= 0 {
		return defaultTimeoutSeconds * time.Second
	}
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

func (c Config) DeviceKind() string {
	switch strings.ToLower(strings.TrimSpace(c.Device.Kind)) {
	case "phone", "mobile":
		return "phone"
	default:
		return defaultDevice
	}
}

func (c Config) MaxConcurrentUploads() int {
	if c.Uploads.MaxConcurrent <= 0 {
		return defaultMaxConcurrent
	}
	return c.Uploads.MaxConcurrent
}

func (c Config) ThumbnailSize() int {
	if c.Uploads.ThumbnailSize <= 0 {
		return defaultThumbnailSize
	}
	return c.Uploads.ThumbnailSize
}

func (c Config) CopyWindow() time.Duration {
	if c.UI.CopyResetMS <= 0 {
		return defaultCopyResetMS * time.Millisecond
	}
	return time.Duration(c.UI.CopyResetMS) * time.Millisecond
}

func (c Config) RenderMarkdown() bool {
	if c.UI.RenderMarkdown == nil {
		return true
	}
	return *c.UI.RenderMarkdown
}

func (c Config) LogLevel() string {
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		return "info"
	}
	return level
}

func (c Config) StorageBackend() string {
	switch backend := strings.ToLower(strings.TrimSpace(c.Storage.Backend)); backend {
	case "file":
		return backend
	default:
		return defaultStorageBackend
	}
}

// Effective returns the config with every accessor default filled in.
func (c Config) Effective() Config {
	render := c.RenderMarkdown()
	return Config{
		Server: ServerConfig{
			BaseURL:        c.BaseURL(),
			TimeoutSeconds: int(c.Timeout() / time.Second),
		},
		Device: DeviceConfig{Kind: c.DeviceKind()},
		Uploads: UploadsConfig{
			MaxConcurrent: c.MaxConcurrentUploads(),
			ThumbnailSize: c.ThumbnailSize(),
		},
		UI: UIConfig{
			CopyResetMS:    int(c.CopyWindow() / time.Millisecond),
			RenderMarkdown: &render,
		},
		Logging: LoggingConfig{Level: c.LogLevel()},
		Storage: StorageConfig{Backend: c.StorageBackend()},
	}
}

func readTOML(path string, out any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return toml.Unmarshal(data, out)
}

// ResolvePath expands ~/ and makes relative paths relative to the data
// directory.
func ResolvePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("path is required")
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[2:]), nil
	}
	if filepath.IsAbs(path) {
		return path, nil
	}
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, path), nil
}
