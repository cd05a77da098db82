// Package config loads the file manager configuration with viper.
//
// Configuration priority (highest to lowest):
//  1. Command-line flags bound by the caller
//  2. Environment variables (FILEMANAGER_ prefix, "." becomes "_")
//  3. Config file (if given)
//  4. Defaults
package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/fruitsalade/filemanager/internal/storage/factory"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "FILEMANAGER"

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string `mapstructure:"listen_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Requests per minute per client IP; 0 disables limiting.
	RateLimitRPM int `mapstructure:"rate_limit_rpm"`

	// Optional PostgreSQL audit log of domain events.
	DatabaseURL string `mapstructure:"database_url"`

	// Disks. When Disks is empty a single disk named DefaultDisk is built
	// from StorageBackend and the local/S3 settings below.
	DefaultDisk      string                `mapstructure:"default_disk"`
	Disks            map[string]DiskConfig `mapstructure:"disks"`
	StorageBackend   string                `mapstructure:"storage_backend"`
	LocalStoragePath string                `mapstructure:"local_storage_path"`
	S3Endpoint       string                `mapstructure:"s3_endpoint"`
	S3Bucket         string                `mapstructure:"s3_bucket"`
	S3AccessKey      string                `mapstructure:"s3_access_key"`
	S3SecretKey      string                `mapstructure:"s3_secret_key"`
	S3Region         string                `mapstructure:"s3_region"`
	S3UseSSL         bool                  `mapstructure:"s3_use_ssl"`

	// Uploads
	MaxUploadSize     int64            `mapstructure:"max_upload_size"`
	DefaultVisibility string           `mapstructure:"default_visibility"`
	NamingStrategy    string           `mapstructure:"naming_strategy"`
	Validation        ValidationConfig `mapstructure:"validation"`

	// Listing
	DefaultSort   string              `mapstructure:"default_sort"`
	DefaultFilter string              `mapstructure:"default_filter"`
	Buttons       map[string]bool     `mapstructure:"buttons"`
	Filters       map[string][]string `mapstructure:"filters"`

	// Jobs
	Jobs          map[string]string   `mapstructure:"jobs"`
	JobExtensions map[string][]string `mapstructure:"job_extensions"`
	Queue         string              `mapstructure:"queue"`
	JobWorkers    int                 `mapstructure:"job_workers"`
	WebhookURL    string              `mapstructure:"webhook_url"`
}

// DiskConfig describes one named disk.
type DiskConfig struct {
	Type    string         `mapstructure:"type"`
	Options map[string]any `mapstructure:"options"`
}

// ValidationConfig holds the upload rules applied to every upload.
type ValidationConfig struct {
	MaxSize           int64    `mapstructure:"max_size"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
	DeniedExtensions  []string `mapstructure:"denied_extensions"`
}

// Buttons known to the UI. All are enabled unless configured otherwise.
var defaultButtons = []string{
	"create_folder",
	"delete_folder",
	"upload_file",
	"upload_folder",
	"download_file",
	"duplicate_file",
	"rename_file",
	"move_file",
	"remove_file",
	"file_info",
}

// Defaults returns a Config with all default values set.
func Defaults() *Config {
	buttons := make(map[string]bool, len(defaultButtons))
	for _, b := range defaultButtons {
		buttons[b] = true
	}
	return &Config{
		ListenAddr:        ":8080",
		MetricsAddr:       ":9090",
		LogLevel:          "info",
		LogFormat:         "json",
		StorageBackend:    "local",
		LocalStoragePath:  "/data/storage",
		S3Endpoint:        "http://localhost:9000",
		S3Bucket:          "filemanager",
		S3AccessKey:       "minioadmin",
		S3SecretKey:       "minioadmin",
		S3Region:          "us-east-1",
		MaxUploadSize:     100 << 20,
		DefaultVisibility: "public",
		NamingStrategy:    "default",
		DefaultSort:       "name",
		Buttons:           buttons,
		Filters: map[string][]string{
			"image":    {"jpg", "jpeg", "png", "gif", "webp", "bmp", "svg", "tif", "tiff"},
			"video":    {"mp4", "mov", "avi", "mkv", "webm"},
			"audio":    {"mp3", "wav", "ogg", "flac", "m4a"},
			"document": {"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "odt", "txt", "csv", "md"},
			"archive":  {"zip", "rar", "7z", "tar", "gz"},
		},
		Queue:      "default",
		JobWorkers: 2,
	}
}

// SetDefaults registers every default with v so that environment
// variables are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("rate_limit_rpm", 0)
	v.SetDefault("database_url", "")
	v.SetDefault("default_disk", "")
	v.SetDefault("storage_backend", d.StorageBackend)
	v.SetDefault("local_storage_path", d.LocalStoragePath)
	v.SetDefault("s3_endpoint", d.S3Endpoint)
	v.SetDefault("s3_bucket", d.S3Bucket)
	v.SetDefault("s3_access_key", d.S3AccessKey)
	v.SetDefault("s3_secret_key", d.S3SecretKey)
	v.SetDefault("s3_region", d.S3Region)
	v.SetDefault("s3_use_ssl", d.S3UseSSL)
	v.SetDefault("max_upload_size", d.MaxUploadSize)
	v.SetDefault("default_visibility", d.DefaultVisibility)
	v.SetDefault("naming_strategy", d.NamingStrategy)
	v.SetDefault("validation.max_size", int64(0))
	v.SetDefault("validation.allowed_extensions", []string{})
	v.SetDefault("validation.denied_extensions", []string{})
	v.SetDefault("default_sort", d.DefaultSort)
	v.SetDefault("default_filter", "")
	v.SetDefault("buttons", d.Buttons)
	v.SetDefault("filters", d.Filters)
	v.SetDefault("queue", d.Queue)
	v.SetDefault("job_workers", d.JobWorkers)
	v.SetDefault("webhook_url", "")
}

// Load reads configuration from v. configFile is optional.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Configured button maps only override the flags they name.
	buttons := Defaults().Buttons
	for k, on := range cfg.Buttons {
		buttons[k] = on
	}
	cfg.Buttons = buttons

	if cfg.DefaultDisk == "" {
		cfg.DefaultDisk = cfg.StorageBackend
	}
	if len(cfg.Disks) == 0 {
		cfg.Disks = map[string]DiskConfig{cfg.DefaultDisk: cfg.backendDisk()}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// backendDisk builds the disk described by the flat storage settings.
func (c *Config) backendDisk() DiskConfig {
	switch c.StorageBackend {
	case "s3":
		return DiskConfig{Type: "s3", Options: map[string]any{
			"endpoint":   c.S3Endpoint,
			"bucket":     c.S3Bucket,
			"access_key": c.S3AccessKey,
			"secret_key": c.S3SecretKey,
			"region":     c.S3Region,
			"use_ssl":    c.S3UseSSL,
		}}
	case "memory":
		return DiskConfig{Type: "memory"}
	default:
		return DiskConfig{Type: c.StorageBackend, Options: map[string]any{
			"root_path":   c.LocalStoragePath,
			"create_dirs": true,
		}}
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if _, ok := c.Disks[c.DefaultDisk]; !ok {
		return fmt.Errorf("default_disk %q is not configured (have %s)", c.DefaultDisk, strings.Join(c.DiskNames(), ", "))
	}
	for name, d := range c.Disks {
		switch d.Type {
		case "local", "s3", "smb", "memory":
		default:
			return fmt.Errorf("disk %s: unknown type %q", name, d.Type)
		}
	}
	switch c.DefaultSort {
	case "name", "size", "date", "mime":
	default:
		return fmt.Errorf("default_sort %q must be one of name, size, date, mime", c.DefaultSort)
	}
	if c.DefaultFilter != "" {
		if _, ok := c.Filters[c.DefaultFilter]; !ok {
			return fmt.Errorf("default_filter %q is not a configured filter", c.DefaultFilter)
		}
	}
	if c.RateLimitRPM < 0 {
		return fmt.Errorf("rate_limit_rpm must not be negative")
	}
	if c.JobWorkers < 1 {
		return fmt.Errorf("job_workers must be at least 1")
	}
	return nil
}

// DiskNames returns the configured disk names in sorted order.
func (c *Config) DiskNames() []string {
	names := make([]string, 0, len(c.Disks))
	for n := range c.Disks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DiskDefinitions converts the disk configs into factory definitions.
func (c *Config) DiskDefinitions() (map[string]factory.Definition, error) {
	defs := make(map[string]factory.Definition, len(c.Disks))
	for name, d := range c.Disks {
		opts := d.Options
		if opts == nil {
			opts = map[string]any{}
		}
		raw, err := json.Marshal(opts)
		if err != nil {
			return nil, fmt.Errorf("disk %s: encode options: %w", name, err)
		}
		defs[name] = factory.Definition{Type: d.Type, Config: raw}
	}
	return defs, nil
}
