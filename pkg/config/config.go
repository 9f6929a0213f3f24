// Package config loads the catalog service configuration from defaults, an
// optional YAML file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/spotify-catalog-client/pkg/auth"
	"github.com/Sternrassler/spotify-catalog-client/pkg/backoff"
	"github.com/Sternrassler/spotify-catalog-client/pkg/catalog"
	"github.com/Sternrassler/spotify-catalog-client/pkg/client"
	"github.com/Sternrassler/spotify-catalog-client/pkg/logging"
	"github.com/Sternrassler/spotify-catalog-client/pkg/ratelimit"
	"github.com/Sternrassler/spotify-catalog-client/pkg/spotify"
)

// Config is the complete service configuration. Durations are in seconds.
type Config struct {
	// Retry and backoff.
	MaxRetries   int     `yaml:"max_retries"`
	InitialDelay float64 `yaml:"initial_delay"`
	MaxDelay     float64 `yaml:"max_delay"`
	Multiplier   float64 `yaml:"multiplier"`
	Jitter       float64 `yaml:"jitter"`

	// Request spacing. RedisURL switches to a gate shared across processes.
	MinRequestInterval float64 `yaml:"min_request_interval"`
	RedisURL           string  `yaml:"redis_url"`

	// Web API access.
	BaseURL        string  `yaml:"base_url"`
	TokenURL       string  `yaml:"token_url"`
	ClientID       string  `yaml:"client_id"`
	ClientSecret   string  `yaml:"client_secret"`
	AccessToken    string  `yaml:"access_token"`
	UserAgent      string  `yaml:"user_agent"`
	DefaultTimeout float64 `yaml:"default_timeout"`

	// Catalog retrieval.
	Market           string `yaml:"market"`
	PageSize         int    `yaml:"page_size"`
	PlaylistPageSize int    `yaml:"playlist_page_size"`
	TracksBatchSize  int    `yaml:"tracks_batch_size"`
	AlbumsBatchSize  int    `yaml:"albums_batch_size"`
	WorkerCount      int    `yaml:"worker_count"`

	// Server.
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`
}

// Default returns the default configuration.
func Default() Config {
	policy := backoff.DefaultPolicy()
	opts := catalog.DefaultOptions()
	return Config{
		MaxRetries:         client.DefaultRetryConfig().MaxRetries,
		InitialDelay:       policy.InitialDelay.Seconds(),
		MaxDelay:           policy.MaxDelay.Seconds(),
		Multiplier:         policy.Multiplier,
		Jitter:             policy.Jitter.Seconds(),
		MinRequestInterval: ratelimit.DefaultMinInterval.Seconds(),
		BaseURL:            client.DefaultBaseURL,
		TokenURL:           auth.DefaultTokenURL,
		UserAgent:          "spotify-catalog-client/0.1.0",
		DefaultTimeout:     client.DefaultConfig().Timeout.Seconds(),
		Market:             opts.Market,
		PageSize:           opts.PageSize,
		PlaylistPageSize:   opts.PlaylistPageSize,
		TracksBatchSize:    opts.TracksBatchSize,
		AlbumsBatchSize:    opts.AlbumsBatchSize,
		WorkerCount:        catalog.DefaultWorkers,
		Port:               "8080",
		LogLevel:           string(logging.LevelInfo),
	}
}

// LoadFile reads a YAML file over the defaults. Keys absent from the file
// keep their default.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables that are set.
func (c *Config) ApplyEnv() error {
	c.ClientID = getEnv("SPOTIFY_CLIENT_ID", c.ClientID)
	c.ClientSecret = getEnv("SPOTIFY_CLIENT_SECRET", c.ClientSecret)
	c.AccessToken = getEnv("SPOTIFY_ACCESS_TOKEN", c.AccessToken)
	c.BaseURL = getEnv("SPOTIFY_BASE_URL", c.BaseURL)
	c.TokenURL = getEnv("SPOTIFY_TOKEN_URL", c.TokenURL)
	c.Market = getEnv("SPOTIFY_MARKET", c.Market)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.UserAgent = getEnv("USER_AGENT", c.UserAgent)
	c.Port = getEnv("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	var err error
	if c.MaxRetries, err = getEnvInt("MAX_RETRIES", c.MaxRetries); err != nil {
		return err
	}
	if c.WorkerCount, err = getEnvInt("WORKER_COUNT", c.WorkerCount); err != nil {
		return err
	}
	if c.MinRequestInterval, err = getEnvFloat("MIN_REQUEST_INTERVAL", c.MinRequestInterval); err != nil {
		return err
	}
	if c.DefaultTimeout, err = getEnvFloat("DEFAULT_TIMEOUT", c.DefaultTimeout); err != nil {
		return err
	}
	if c.LogPretty, err = getEnvBool("LOG_PRETTY", c.LogPretty); err != nil {
		return err
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.MaxRetries < 0:
		return fmt.Errorf("max_retries must be >= 0 (got %d)", c.MaxRetries)
	case c.InitialDelay < 0:
		return fmt.Errorf("initial_delay must be >= 0 (got %v)", c.InitialDelay)
	case c.MaxDelay < c.InitialDelay:
		return fmt.Errorf("max_delay must be >= initial_delay (got %v < %v)", c.MaxDelay, c.InitialDelay)
	case c.Multiplier < 1:
		return fmt.Errorf("multiplier must be >= 1 (got %v)", c.Multiplier)
	case c.Jitter < 0:
		return fmt.Errorf("jitter must be >= 0 (got %v)", c.Jitter)
	case c.MinRequestInterval < 0:
		return fmt.Errorf("min_request_interval must be >= 0 (got %v)", c.MinRequestInterval)
	case c.DefaultTimeout <= 0:
		return fmt.Errorf("default_timeout must be > 0 (got %v)", c.DefaultTimeout)
	case c.TracksBatchSize < 1 || c.TracksBatchSize > spotify.MaxSeveralTracks:
		return fmt.Errorf("tracks_batch_size must be in [1, %d] (got %d)", spotify.MaxSeveralTracks, c.TracksBatchSize)
	case c.AlbumsBatchSize < 1 || c.AlbumsBatchSize > spotify.MaxSeveralAlbums:
		return fmt.Errorf("albums_batch_size must be in [1, %d] (got %d)", spotify.MaxSeveralAlbums, c.AlbumsBatchSize)
	case c.PageSize < 1 || c.PageSize > spotify.MaxArtistAlbumsLimit:
		return fmt.Errorf("page_size must be in [1, %d] (got %d)", spotify.MaxArtistAlbumsLimit, c.PageSize)
	case c.PlaylistPageSize < 1 || c.PlaylistPageSize > spotify.MaxPlaylistItemsLimit:
		return fmt.Errorf("playlist_page_size must be in [1, %d] (got %d)", spotify.MaxPlaylistItemsLimit, c.PlaylistPageSize)
	case c.WorkerCount < 1:
		return fmt.Errorf("worker_count must be >= 1 (got %d)", c.WorkerCount)
	case !catalog.ValidMarket(c.Market):
		return fmt.Errorf("market must be a two-letter upper-case code (got %q)", c.Market)
	case !logging.ValidLevel(c.LogLevel):
		return fmt.Errorf("log_level must be debug, info, warn or error (got %q)", c.LogLevel)
	case c.AccessToken == "" && (c.ClientID == "" || c.ClientSecret == ""):
		return fmt.Errorf("either access_token or client_id and client_secret are required")
	}
	return nil
}

// Policy returns the backoff policy.
func (c *Config) Policy() backoff.Policy {
	return backoff.Policy{
		InitialDelay: seconds(c.InitialDelay),
		MaxDelay:     seconds(c.MaxDelay),
		Multiplier:   c.Multiplier,
		Jitter:       seconds(c.Jitter),
	}
}

// RetryConfig returns the Retrier configuration.
func (c *Config) RetryConfig() client.RetryConfig {
	return client.RetryConfig{
		MaxRetries: c.MaxRetries,
		Policy:     c.Policy(),
	}
}

// ClientConfig returns the Web API client configuration.
func (c *Config) ClientConfig() client.Config {
	return client.Config{
		BaseURL:   c.BaseURL,
		Timeout:   seconds(c.DefaultTimeout),
		UserAgent: c.UserAgent,
	}
}

// Credentials returns the client-credentials grant parameters.
func (c *Config) Credentials() auth.Credentials {
	return auth.Credentials{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.TokenURL,
	}
}

// CatalogOptions returns the catalog options.
func (c *Config) CatalogOptions() catalog.Options {
	return catalog.Options{
		Market:           c.Market,
		PageSize:         c.PageSize,
		PlaylistPageSize: c.PlaylistPageSize,
		AlbumsBatchSize:  c.AlbumsBatchSize,
		TracksBatchSize:  c.TracksBatchSize,
	}
}

// MinInterval returns the minimum spacing between requests.
func (c *Config) MinInterval() time.Duration {
	return seconds(c.MinRequestInterval)
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
