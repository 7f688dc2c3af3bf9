package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Bounds of network.timeout
const (
	MinTimeout = 7 * time.Second
	MaxTimeout = 10 * time.Second
)

// Config holds all configuration options for instadb
type Config struct {
	// Remote feed settings
	Instagram InstagramConfig `yaml:"instagram" json:"instagram"`

	// Proxy, timeout and failure handling
	Network NetworkConfig `yaml:"network" json:"network"`

	// Pacing between requests
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Download filters and policies
	Download DownloadConfig `yaml:"download" json:"download"`

	// Local post store
	Store StoreConfig `yaml:"store" json:"store"`

	// Feed parsing policies
	Parse ParseConfig `yaml:"parse" json:"parse"`

	// Metadata embedding
	Metadata MetadataConfig `yaml:"metadata" json:"metadata"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// InstagramConfig holds feed endpoint configuration
type InstagramConfig struct {
	BaseURL   string `yaml:"base_url" json:"base_url"`
	UserAgent string `yaml:"user_agent" json:"user_agent"`
}

// NetworkConfig holds proxy and retry configuration
type NetworkConfig struct {
	Proxy   string        `yaml:"proxy" json:"proxy"`
	Proxies []string      `yaml:"proxies" json:"proxies"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// Interactive asks the operator for a replacement proxy on transient failures
	Interactive bool `yaml:"interactive" json:"interactive"`
	// MaxAttempts bounds attempts per request; 0 leaves it to the proxy rotator
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// RateLimitConfig holds the mandatory delays between requests
type RateLimitConfig struct {
	RequestDelay time.Duration `yaml:"request_delay" json:"request_delay"`
	FileDelay    time.Duration `yaml:"file_delay" json:"file_delay"`
	Jitter       time.Duration `yaml:"jitter" json:"jitter"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory     string `yaml:"base_directory" json:"base_directory"`
	CreateUserFolders bool   `yaml:"create_user_folders" json:"create_user_folders"`
	DiagnosticsFile   string `yaml:"diagnostics_file" json:"diagnostics_file"`
	CheckpointDir     string `yaml:"checkpoint_dir" json:"checkpoint_dir"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	MetadataOnly  bool `yaml:"metadata_only" json:"metadata_only"`
	NewOnly       bool `yaml:"new_only" json:"new_only"`
	Refresh       bool `yaml:"refresh" json:"refresh"`
	Backfill      bool `yaml:"backfill" json:"backfill"`
	OnlyPhotos    bool `yaml:"only_photos" json:"only_photos"`
	OnlyVideos    bool `yaml:"only_videos" json:"only_videos"`
	MinLikes      int  `yaml:"min_likes" json:"min_likes"`
	RetryAttempts int  `yaml:"retry_attempts" json:"retry_attempts"`
}

// StoreConfig holds local store configuration
type StoreConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Driver    string `yaml:"driver" json:"driver"`
	Directory string `yaml:"directory" json:"directory"`
	Backup    bool   `yaml:"backup" json:"backup"`
}

// ParseConfig holds feed parsing policies
type ParseConfig struct {
	// Timezone is "source", "local" or an IANA zone name
	Timezone string `yaml:"timezone" json:"timezone"`
	// HiddenLikes is "zero" or "null"
	HiddenLikes string `yaml:"hidden_likes" json:"hidden_likes"`
}

// MetadataConfig holds metadata embedding configuration
type MetadataConfig struct {
	Enabled  bool     `yaml:"enabled" json:"enabled"`
	Tags     []string `yaml:"tags" json:"tags"`
	ExifTool string   `yaml:"exiftool" json:"exiftool"`
	Sidecar  bool     `yaml:"sidecar" json:"sidecar"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

var proxyPattern = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}:\d{2,5}$`)

// ValidProxy reports whether p is address:port or a socks5:// URL
func ValidProxy(p string) bool {
	if strings.HasPrefix(p, "socks5://") || strings.HasPrefix(p, "socks4://") {
		return len(p) > len("socks5://")
	}
	return proxyPattern.MatchString(p)
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, "Downloads", "instadb")

	return &Config{
		Instagram: InstagramConfig{
			BaseURL:   "https://www.instagram.com",
			UserAgent: "Mozilla/5.0 (Windows NT 6.1; Win64; x64; rv:52.0) Gecko/20100101 Firefox/52.0",
		},
		Network: NetworkConfig{
			Timeout:     10 * time.Second,
			Interactive: false,
			MaxAttempts: 0,
			RetryDelay:  time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestDelay: time.Second,
			FileDelay:    time.Second,
		},
		Output: OutputConfig{
			BaseDirectory:     base,
			CreateUserFolders: true,
			DiagnosticsFile:   "bad_json.txt",
		},
		Download: DownloadConfig{
			RetryAttempts: 2,
		},
		Store: StoreConfig{
			Enabled:   true,
			Driver:    "sqlite",
			Directory: base,
			Backup:    true,
		},
		Parse: ParseConfig{
			Timezone:    "source",
			HiddenLikes: "zero",
		},
		Metadata: MetadataConfig{
			Enabled:  true,
			ExifTool: "exiftool",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := os.Getenv("INSTADB_PROXY"); v != "" {
		c.Network.Proxy = v
	}
	if v := os.Getenv("INSTADB_USER_AGENT"); v != "" {
		c.Instagram.UserAgent = v
	}
	if v := os.Getenv("INSTADB_BASE_URL"); v != "" {
		c.Instagram.BaseURL = v
	}
	if v := os.Getenv("INSTADB_RATE_LIMIT"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("INSTADB_RATE_LIMIT: %w", err))
		} else {
			c.RateLimit.RequestDelay = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("INSTADB_OUTPUT_DIR"); v != "" {
		c.Output.BaseDirectory = v
	}
	if v := os.Getenv("INSTADB_STORE_DIR"); v != "" {
		c.Store.Directory = v
	}
	if v := os.Getenv("INSTADB_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("INSTADB_TIMEZONE"); v != "" {
		c.Parse.Timezone = v
	}
	if v := os.Getenv("INSTADB_INTERACTIVE"); v != "" {
		c.Network.Interactive = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("INSTADB_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".instadb.yaml",
		".instadb.yml",
		filepath.Join(home, ".config", "instadb", "config.yaml"),
		filepath.Join(home, ".config", "instadb", "config.yml"),
		filepath.Join(home, ".instadb.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Instagram.BaseURL == "" {
		errs = append(errs, errors.New("instagram base URL is required"))
	}

	if c.Network.Proxy != "" && !ValidProxy(c.Network.Proxy) {
		errs = append(errs, fmt.Errorf("%s is not address:port", c.Network.Proxy))
	}
	for _, p := range c.Network.Proxies {
		if !ValidProxy(p) {
			errs = append(errs, fmt.Errorf("%s is not address:port", p))
		}
	}
	if c.Network.Timeout < MinTimeout || c.Network.Timeout > MaxTimeout {
		errs = append(errs, fmt.Errorf("network timeout must be between %s and %s", MinTimeout, MaxTimeout))
	}
	if c.Network.MaxAttempts < 0 {
		errs = append(errs, errors.New("max attempts cannot be negative"))
	}

	if c.RateLimit.RequestDelay < 0 || c.RateLimit.FileDelay < 0 || c.RateLimit.Jitter < 0 {
		errs = append(errs, errors.New("rate limit delays cannot be negative"))
	}

	if c.Download.OnlyPhotos && c.Download.OnlyVideos {
		errs = append(errs, errors.New("only_photos and only_videos are mutually exclusive"))
	}
	if c.Download.MinLikes < 0 {
		errs = append(errs, errors.New("min likes cannot be negative"))
	}
	if c.Download.MetadataOnly && !c.Store.Enabled {
		errs = append(errs, errors.New("metadata_only requires the store to be enabled"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	validDrivers := map[string]bool{"sqlite": true, "bolt": true, "memory": true}
	if !validDrivers[strings.ToLower(c.Store.Driver)] {
		errs = append(errs, fmt.Errorf("invalid store driver %q", c.Store.Driver))
	}
	if c.Store.Enabled && c.Store.Directory == "" {
		errs = append(errs, errors.New("store directory is required"))
	}

	if _, err := c.Parse.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.Parse.HiddenLikes != "zero" && c.Parse.HiddenLikes != "null" {
		errs = append(errs, fmt.Errorf("hidden_likes must be zero or null, got %q", c.Parse.HiddenLikes))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Location resolves the timezone policy. "source" renders feed times in UTC.
func (p ParseConfig) Location() (*time.Location, error) {
	switch p.Timezone {
	case "", "source", "utc", "UTC":
		return time.UTC, nil
	case "local":
		return time.Local, nil
	default:
		loc, err := time.LoadLocation(p.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", p.Timezone, err)
		}
		return loc, nil
	}
}

// OutputDir returns the media directory for an account
func (c *Config) OutputDir(account string) string {
	if c.Output.CreateUserFolders {
		return filepath.Join(c.Output.BaseDirectory, account)
	}
	return c.Output.BaseDirectory
}

// EffectiveTags returns the configured tags or the defaults [account, "instagram"]
func (c *Config) EffectiveTags(account string) []string {
	if len(c.Metadata.Tags) > 0 {
		return c.Metadata.Tags
	}
	return []string{account, "instagram"}
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["proxy"].(string); ok && v != "" {
		c.Network.Proxy = v
	}
	if v, ok := flags["interactive"].(bool); ok {
		c.Network.Interactive = v
	}
	if v, ok := flags["rate-limit"].(int); ok && v >= 0 {
		c.RateLimit.RequestDelay = time.Duration(v) * time.Second
	}
	if v, ok := flags["file-delay"].(int); ok && v >= 0 {
		c.RateLimit.FileDelay = time.Duration(v) * time.Second
	}
	if v, ok := flags["path"].(string); ok && v != "" {
		c.Output.BaseDirectory = v
		c.Output.CreateUserFolders = false
	}
	if v, ok := flags["likes"].(int); ok && v > 0 {
		c.Download.MinLikes = v
	}
	if v, ok := flags["photos"].(bool); ok {
		c.Download.OnlyPhotos = v
	}
	if v, ok := flags["videos"].(bool); ok {
		c.Download.OnlyVideos = v
	}
	if v, ok := flags["new"].(bool); ok {
		c.Download.NewOnly = v
	}
	if v, ok := flags["refresh"].(bool); ok {
		c.Download.Refresh = v
	}
	if v, ok := flags["backfill"].(bool); ok {
		c.Download.Backfill = v
	}
	if v, ok := flags["db"].(bool); ok {
		c.Store.Enabled = v
	}
	if v, ok := flags["only-db"].(bool); ok && v {
		c.Download.MetadataOnly = true
		c.Store.Enabled = true
	}
	if v, ok := flags["store"].(string); ok && v != "" {
		c.Store.Driver = v
	}
	if v, ok := flags["tags"].([]string); ok && len(v) > 0 {
		c.Metadata.Tags = v
	}
	if v, ok := flags["timezone"].(string); ok && v != "" {
		c.Parse.Timezone = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".instadb.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
