// Package config loads collage settings from an optional TOML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/youruser/collageapp/internal/collage"
	imagepkg "github.com/youruser/collageapp/internal/image"
	"github.com/youruser/collageapp/internal/util"
)

// Config is the full application configuration.
type Config struct {
	Listen   string `toml:"listen"`
	DataDir  string `toml:"data_dir"`
	LogLevel string `toml:"log_level"`
	// SessionTTL is how long an untouched API session lives; zero keeps
	// sessions until deleted.
	SessionTTL time.Duration `toml:"session_ttl"`

	Canvas  Canvas  `toml:"canvas"`
	Acquire Acquire `toml:"acquire"`
	Export  Export  `toml:"export"`
}

type Canvas struct {
	Width         int     `toml:"width"`
	Height        int     `toml:"height"`
	Margin        float64 `toml:"margin"`
	Interpolation string  `toml:"interpolation"`
	// MaxEdge caps a requested canvas dimension.
	MaxEdge int `toml:"max_edge"`
}

type Acquire struct {
	FetchTimeout  time.Duration `toml:"fetch_timeout"`
	FetchAttempts int           `toml:"fetch_attempts"`
	RetryDelay    time.Duration `toml:"retry_delay"`
	MaxBytes      int64         `toml:"max_bytes"`
	Downsample    bool          `toml:"downsample"`
	// Concurrency caps parallel loads; zero loads every slot at once.
	Concurrency int `toml:"concurrency"`
	// AllowLocal lets locators name any file on this machine. Without it
	// local locators are refused unless LocalRoot is set, in which case
	// they must resolve inside it.
	AllowLocal bool   `toml:"allow_local"`
	LocalRoot  string `toml:"local_root"`
}

type Export struct {
	TempDir     string        `toml:"temp_dir"`
	Album       string        `toml:"album"`
	MediaDir    string        `toml:"media_dir"`
	JPEGQuality int           `toml:"jpeg_quality"`
	TwoPhase    bool          `toml:"two_phase"`
	ShareTTL    time.Duration `toml:"share_ttl"`
	PublicURL   string        `toml:"public_url"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen:     ":8080",
		DataDir:    "data",
		LogLevel:   "info",
		SessionTTL: collage.DefaultSessionTTL,
		Canvas: Canvas{
			Width:         imagepkg.DefaultCanvasSize,
			Height:        imagepkg.DefaultCanvasSize,
			Margin:        imagepkg.DefaultMargin,
			Interpolation: "catmullrom",
			MaxEdge:       imagepkg.DefaultMaxEdge,
		},
		Acquire: Acquire{
			FetchTimeout:  util.DefaultFetchTimeout,
			FetchAttempts: util.DefaultFetchAttempts,
			RetryDelay:    util.DefaultRetryDelay,
			MaxBytes:      imagepkg.DefaultMaxBytes,
			Downsample:    true,
		},
		Export: Export{
			Album:       "CollageApp",
			JPEGQuality: imagepkg.DefaultJPEGQuality,
			TwoPhase:    true,
			ShareTTL:    time.Hour,
		},
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
// PORT in the environment overrides the listen address.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.Listen = ":" + port
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Canvas.Width <= 0 || c.Canvas.Height <= 0:
		return fmt.Errorf("canvas size must be positive, got %dx%d", c.Canvas.Width, c.Canvas.Height)
	case c.Canvas.MaxEdge > 0 && (c.Canvas.Width > c.Canvas.MaxEdge || c.Canvas.Height > c.Canvas.MaxEdge):
		return fmt.Errorf("canvas size %dx%d exceeds max_edge %d", c.Canvas.Width, c.Canvas.Height, c.Canvas.MaxEdge)
	case c.Canvas.Margin < 0:
		return fmt.Errorf("canvas margin must not be negative")
	case c.Export.JPEGQuality < 1 || c.Export.JPEGQuality > 100:
		return fmt.Errorf("jpeg_quality must be within 1..100, got %d", c.Export.JPEGQuality)
	case c.Acquire.Concurrency < 0:
		return fmt.Errorf("acquire concurrency must not be negative")
	case c.Acquire.FetchAttempts < 0 || c.Acquire.RetryDelay < 0:
		return fmt.Errorf("acquire fetch_attempts and retry_delay must not be negative")
	case c.SessionTTL < 0:
		return fmt.Errorf("session_ttl must not be negative")
	}
	if _, err := imagepkg.Interpolator(c.Canvas.Interpolation); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// MediaDir is where saved collages go, under the data directory unless set.
func (c Config) MediaDir() string {
	if c.Export.MediaDir != "" {
		return c.Export.MediaDir
	}
	return filepath.Join(c.DataDir, "media")
}

// ShareDir is the private directory for transient shares.
func (c Config) ShareDir() string {
	if c.Export.TempDir != "" {
		return c.Export.TempDir
	}
	return filepath.Join(os.TempDir(), "collageapp-share")
}

// ShareURL is the public link for a share token.
func (c Config) ShareURL(token string) string {
	base := strings.TrimSuffix(c.Export.PublicURL, "/")
	if base == "" {
		host := c.Listen
		if strings.HasPrefix(host, ":") {
			host = "localhost" + host
		}
		base = "http://" + host
	}
	return base + "/api/shares/" + token
}

// Level is the parsed log level; verbose forces debug.
func (c Config) Level(verbose bool) log.Level {
	if verbose {
		return log.DebugLevel
	}
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}
