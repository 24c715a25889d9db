package main

import (
	"errors"
	"flag"
	"io"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"sendme/internal/config"
)

type ConfigCommand struct {
	stdout io.Writer
	stderr io.Writer
	load   func() (config.Config, error)
}

const (
	configFormatJSON = "json"
	configFormatTOML = "toml"
)

type configOutput struct {
	ConfigPath string                `json:"config_path,omitempty" toml:"config_path,omitempty"`
	Server     effectiveServerConfig `json:"server" toml:"server"`
	Device     effectiveDeviceConfig `json:"device" toml:"device"`
	Uploads    effectiveUploadConfig `json:"uploads" toml:"uploads"`
	UI         effectiveUIConfig     `json:"ui" toml:"ui"`
	Logging    effectiveLogConfig    `json:"logging" toml:"logging"`
	Storage    effectiveStoreConfig  `json:"storage" toml:"storage"`
}

type effectiveServerConfig struct {
	BaseURL        string `json:"base_url" toml:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds" toml:"timeout_seconds"`
}

type effectiveDeviceConfig struct {
	Kind string `json:"kind" toml:"kind"`
}

type effectiveUploadConfig struct {
	MaxConcurrent int `json:"max_concurrent" toml:"max_concurrent"`
	ThumbnailSize int `json:"thumbnail_size" toml:"thumbnail_size"`
}

type effectiveUIConfig struct {
	CopyResetMS    int  `json:"copy_reset_ms" toml:"copy_reset_ms"`
	RenderMarkdown bool `json:"render_markdown" toml:"render_markdown"`
}

type effectiveLogConfig struct {
	Level string `json:"level" toml:"level"`
}

type effectiveStoreConfig struct {
	Backend string `json:"backend" toml:"backend"`
}

func NewConfigCommand(stdout, stderr io.Writer) *ConfigCommand {
	return &ConfigCommand{
		stdout: stdout,
		stderr: stderr,
		load:   config.Load,
	}
}

func (c *ConfigCommand) Run(args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	defaults := fs.Bool("default", false, "print default config values")
	format := fs.String("format", configFormatJSON, "output format: json|toml")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resolvedFormat, err := resolveConfigFormat(*format)
	if err != nil {
		return err
	}
	cfg := config.DefaultConfig()
	if !*defaults {
		cfg, err = c.load()
		if err != nil {
			return err
		}
	}
	out := buildConfigOutput(cfg)
	if path, err := config.ConfigPath(); err == nil {
		out.ConfigPath = path
	}
	return writeConfigOutput(c.stdout, resolvedFormat, out)
}

func buildConfigOutput(cfg config.Config) configOutput {
	eff := cfg.Effective()
	return configOutput{
		Server: effectiveServerConfig{
			BaseURL:        eff.Server.BaseURL,
			TimeoutSeconds: eff.Server.TimeoutSeconds,
		},
		Device: effectiveDeviceConfig{Kind: eff.Device.Kind},
		Uploads: effectiveUploadConfig{
			MaxConcurrent: eff.Uploads.MaxConcurrent,
			ThumbnailSize: eff.Uploads.ThumbnailSize,
		},
		UI: effectiveUIConfig{
			CopyResetMS:    eff.UI.CopyResetMS,
			RenderMarkdown: cfg.RenderMarkdown(),
		},
		Logging: effectiveLogConfig{Level: eff.Logging.Level},
		Storage: effectiveStoreConfig{Backend: eff.Storage.Backend},
	}
}

func writeConfigOutput(out io.Writer, format string, payload any) error {
	switch format {
	case configFormatJSON:
		return writeJSON(out, payload)
	case configFormatTOML:
		data, err := toml.Marshal(payload)
		if err != nil {
			return err
		}
		if len(data) == 0 || data[len(data)-1] != '\n' {
			data = append(data, '\n')
		}
		_, err = out.Write(data)
		return err
	default:
		return errors.New("unsupported format")
	}
}

func resolveConfigFormat(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", configFormatJSON:
		return configFormatJSON, nil
	case configFormatTOML:
		return configFormatTOML, nil
	default:
		return "", errors.New("invalid format: must be json or toml")
	}
}
