// Package config loads watcher settings from defaults, an optional TOML file,
// and BETWATCH_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BETWATCH_"

// Stream selects what is watched and how frames are acquired.
type Stream struct {
	Channel     string   `toml:"channel" env:"CHANNEL"`
	URLTemplate string   `toml:"url_template" env:"URL_TEMPLATE"`
	Qualities   []string `toml:"qualities" env:"QUALITIES"`
	// URL skips channel resolution when set.
	URL         string `toml:"url" env:"URL"`
	Source      string `toml:"source" env:"SOURCE"`             // stream | screen
	CaptureMode string `toml:"capture_mode" env:"CAPTURE_MODE"` // threaded | oneshot
}

// Poll controls loop cadence and notification suppression.
type Poll struct {
	IntervalSeconds float64 `toml:"interval_seconds" env:"INTERVAL_SECONDS"`
	CooldownSeconds float64 `toml:"cooldown_seconds" env:"COOLDOWN_SECONDS"`
}

// OCR configures text recognition.
type OCR struct {
	Backend         string  `toml:"backend" env:"BACKEND"` // tesseract | grpc
	Language        string  `toml:"language" env:"LANGUAGE"`
	Addr            string  `toml:"addr" env:"ADDR"`
	ListenAddr      string  `toml:"listen_addr" env:"LISTEN_ADDR"`
	TimeoutSeconds  float64 `toml:"timeout_seconds" env:"TIMEOUT_SECONDS"`
	SkipSimilar     bool    `toml:"skip_similar" env:"SKIP_SIMILAR"`
	MaxHashDistance int     `toml:"max_hash_distance" env:"MAX_HASH_DISTANCE"`
	ROIWidth        int     `toml:"roi_width" env:"ROI_WIDTH"`
	ROIHeight       int     `toml:"roi_height" env:"ROI_HEIGHT"`
}

// Reconnect bounds how hard the watcher tries to reopen a dropped stream.
type Reconnect struct {
	MaxRetries       int     `toml:"max_retries" env:"MAX_RETRIES"`
	BaseDelaySeconds float64 `toml:"base_delay_seconds" env:"BASE_DELAY_SECONDS"`
	MaxDelaySeconds  float64 `toml:"max_delay_seconds" env:"MAX_DELAY_SECONDS"`
}

// Notify selects notification channels.
type Notify struct {
	Desktop            bool    `toml:"desktop" env:"DESKTOP"`
	Beep               bool    `toml:"beep" env:"BEEP"`
	NtfyTopic          string  `toml:"ntfy_topic" env:"NTFY_TOPIC"`
	NtfyTimeoutSeconds float64 `toml:"ntfy_timeout_seconds" env:"NTFY_TIMEOUT_SECONDS"`
	Title              string  `toml:"title" env:"TITLE"`
}

// Server configures the status API and event transports.
type Server struct {
	HTTPAddr    string `toml:"http_addr" env:"HTTP_ADDR"`
	ZMQEndpoint string `toml:"zmq_endpoint" env:"ZMQ_ENDPOINT"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format" env:"FORMAT"` // auto | text | json
	Level  string `toml:"level" env:"LEVEL"`
}

// Config is the full watcher configuration.
type Config struct {
	Stream    Stream    `toml:"stream" envPrefix:"STREAM_"`
	Poll      Poll      `toml:"poll" envPrefix:"POLL_"`
	OCR       OCR       `toml:"ocr" envPrefix:"OCR_"`
	Reconnect Reconnect `toml:"reconnect" envPrefix:"RECONNECT_"`
	Notify    Notify    `toml:"notify" envPrefix:"NOTIFY_"`
	Server    Server    `toml:"server" envPrefix:"SERVER_"`
	Logging   Logging   `toml:"logging" envPrefix:"LOGGING_"`
	LockDir   string    `toml:"lock_dir" env:"LOCK_DIR"`
}

// Load builds the configuration. It returns the config file path that was
// consulted and whether it existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		data, err := os.ReadFile(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, "", false, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

// DefaultConfigPath returns the per-user config file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/betwatch/config.toml")
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", false, fmt.Errorf("config file %s does not exist", expanded)
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("betwatch.toml")
	if err != nil {
		return "", false, err
	}

	for _, candidate := range []string{defaultPath, projectPath} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

// StreamURL returns the page URL handed to the stream resolver.
func (c *Config) StreamURL() string {
	return fmt.Sprintf(c.Stream.URLTemplate, c.Stream.Channel)
}

// PollInterval returns the delay between polls.
func (c *Config) PollInterval() time.Duration { return seconds(c.Poll.IntervalSeconds) }

// Cooldown returns the notification suppression window.
func (c *Config) Cooldown() time.Duration { return seconds(c.Poll.CooldownSeconds) }

// OCRTimeout bounds a single recognition call.
func (c *Config) OCRTimeout() time.Duration { return seconds(c.OCR.TimeoutSeconds) }

// NtfyTimeout bounds a single ntfy request.
func (c *Config) NtfyTimeout() time.Duration { return seconds(c.Notify.NtfyTimeoutSeconds) }

// ReconnectDelays returns the base and maximum reconnect backoff.
func (c *Config) ReconnectDelays() (base, max time.Duration) {
	return seconds(c.Reconnect.BaseDelaySeconds), seconds(c.Reconnect.MaxDelaySeconds)
}

// LockPath returns the lock file guarding one watcher per channel.
func (c *Config) LockPath() string {
	return filepath.Join(c.LockDir, "betwatch-"+strings.ToLower(c.Stream.Channel)+".lock")
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}
