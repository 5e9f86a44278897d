package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

func (c *Config) normalize() error {
	c.Stream.Channel = strings.TrimSpace(c.Stream.Channel)
	c.Stream.Source = strings.ToLower(strings.TrimSpace(c.Stream.Source))
	c.Stream.CaptureMode = strings.ToLower(strings.TrimSpace(c.Stream.CaptureMode))
	qualities := c.Stream.Qualities[:0]
	for _, q := range c.Stream.Qualities {
		if q = strings.TrimSpace(q); q != "" {
			qualities = append(qualities, q)
		}
	}
	c.Stream.Qualities = qualities

	c.OCR.Backend = strings.ToLower(strings.TrimSpace(c.OCR.Backend))
	c.OCR.Language = strings.TrimSpace(c.OCR.Language)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Notify.NtfyTopic = strings.TrimSpace(c.Notify.NtfyTopic)

	var err error
	if c.LockDir, err = expandPath(c.LockDir); err != nil {
		return fmt.Errorf("lock_dir: %w", err)
	}
	return nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	for _, check := range []func() error{
		c.validateStream,
		c.validatePoll,
		c.validateOCR,
		c.validateReconnect,
		c.validateLogging,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateStream() error {
	switch c.Stream.Source {
	case SourceStream:
		if c.Stream.URL == "" {
			if c.Stream.Channel == "" {
				return errors.New("stream.channel must be set")
			}
			if !strings.Contains(c.Stream.URLTemplate, "%s") {
				return errors.New("stream.url_template must contain %s")
			}
			if len(c.Stream.Qualities) == 0 {
				return errors.New("stream.qualities must list at least one variant")
			}
		}
	case SourceScreen:
	default:
		return fmt.Errorf("stream.source %q must be %q or %q", c.Stream.Source, SourceStream, SourceScreen)
	}
	if !slices.Contains([]string{CaptureThreaded, CaptureOneshot}, c.Stream.CaptureMode) {
		return fmt.Errorf("stream.capture_mode %q must be %q or %q", c.Stream.CaptureMode, CaptureThreaded, CaptureOneshot)
	}
	return nil
}

func (c *Config) validatePoll() error {
	if c.Poll.IntervalSeconds <= 0 {
		return errors.New("poll.interval_seconds must be positive")
	}
	if c.Poll.CooldownSeconds < 0 {
		return errors.New("poll.cooldown_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateOCR() error {
	switch c.OCR.Backend {
	case BackendTesseract:
	case BackendGRPC:
		if strings.TrimSpace(c.OCR.Addr) == "" {
			return errors.New("ocr.addr must be set when ocr.backend is grpc")
		}
	default:
		return fmt.Errorf("ocr.backend %q must be %q or %q", c.OCR.Backend, BackendTesseract, BackendGRPC)
	}
	if c.OCR.Language == "" {
		return errors.New("ocr.language must be set")
	}
	if c.OCR.ROIWidth <= 0 || c.OCR.ROIHeight <= 0 {
		return errors.New("ocr.roi_width and ocr.roi_height must be positive")
	}
	if c.OCR.MaxHashDistance < 0 {
		return errors.New("ocr.max_hash_distance must not be negative")
	}
	return nil
}

func (c *Config) validateReconnect() error {
	if c.Reconnect.MaxRetries < 0 {
		return errors.New("reconnect.max_retries must not be negative")
	}
	if c.Reconnect.BaseDelaySeconds <= 0 || c.Reconnect.MaxDelaySeconds < c.Reconnect.BaseDelaySeconds {
		return errors.New("reconnect delays must satisfy 0 < base_delay_seconds <= max_delay_seconds")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !slices.Contains([]string{"auto", "text", "json"}, c.Logging.Format) {
		return fmt.Errorf("logging.format %q must be auto, text, or json", c.Logging.Format)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		return fmt.Errorf("logging.level %q must be debug, info, warn, or error", c.Logging.Level)
	}
	return nil
}
