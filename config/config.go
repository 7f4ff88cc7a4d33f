package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Package config provides configuration management for the MolaYeri photo service

// Config struct to hold all configuration data
type Config struct {
	Photo   PhotoConfig   `yaml:"photo"`
	Batch   BatchConfig   `yaml:"batch"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Access  AccessConfig  `yaml:"access"`
	Log     LogConfig     `yaml:"log"`
	Update  UpdateConfig  `yaml:"update"`
}

// PhotoConfig holds the normalizer tuning values.
type PhotoConfig struct {
	AspectRatio      string  `yaml:"aspect_ratio"` // "16:9"
	MaxOutputWidth   int     `yaml:"max_output_width"`
	ByteBudget       int     `yaml:"byte_budget"`
	InitialQuality   float64 `yaml:"initial_quality"`
	QualityDecrement float64 `yaml:"quality_decrement"`
	QualityFloor     float64 `yaml:"quality_floor"`
	CropStrategy     string  `yaml:"crop_strategy"` // center | smart
	MaxSourcePixels  int     `yaml:"max_source_pixels"`
}

// BatchConfig holds the photo batch limits.
type BatchConfig struct {
	MaxCount int `yaml:"max_count"`
	MinCount int `yaml:"min_count"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Addr           string  `yaml:"addr"`
	MaxUploadBytes int64   `yaml:"max_upload_bytes"`
	UploadRate     float64 `yaml:"upload_rate"` // requests per second
	UploadBurst    int     `yaml:"upload_burst"`
	MaxConns       int     `yaml:"max_conns"`
	PreviewDir     string  `yaml:"preview_dir"`
	// AllowedOrigins lists extra origins allowed to open the progress socket.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig selects where normalized photos and listing records live.
type StorageConfig struct {
	Driver        string   `yaml:"driver"` // local | s3
	LocalDir      string   `yaml:"local_dir"`
	PublicBaseURL string   `yaml:"public_base_url"`
	RecordsFile   string   `yaml:"records_file"`
	S3            S3Config `yaml:"s3"`
}

// S3Config holds the S3 compatible bucket settings.
type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
}

// LogConfig controls debug output and, in release builds, the rotated log file.
type LogConfig struct {
	Debug      bool   `yaml:"debug"`
	Dir        string `yaml:"dir"` // empty means the per-OS default
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// FilePath returns the log file path, resolving the default directory:
// the user cache dir on Windows and ~/.molayeri elsewhere.
func (c LogConfig) FilePath() (string, error) {
	dir := c.Dir
	if dir == "" {
		if runtime.GOOS == "windows" {
			cacheDir, err := os.UserCacheDir()
			if err != nil {
				return "", fmt.Errorf("getting user cache directory: %w", err)
			}
			dir = filepath.Join(cacheDir, LogWinSubDir)
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("getting user home directory: %w", err)
			}
			dir = filepath.Join(home, LogSubDir)
		}
	}
	return filepath.Join(dir, AppName+LogExt), nil
}

// UpdateConfig names the GitHub repository releases are published to.
type UpdateConfig struct {
	Owner  string `yaml:"owner"`
	Repo   string `yaml:"repo"`
	APIURL string `yaml:"api_url"` // empty means api.github.com
}

// AccessConfig maps user IDs to roles for the route guard.
type AccessConfig struct {
	Users map[string]string `yaml:"users"`
}

// GetPath returns the path to the user's config directory
func GetPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "." + strings.ToLower(AppName)
	}
	return filepath.Join(homeDir, "."+strings.ToLower(AppName))
}

// GetFilename returns the path to the config file, honoring MOLAYERI_CONFIG.
func GetFilename() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return filepath.Join(GetPath(), ConfigFileName)
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	base := GetPath()
	return &Config{
		Photo: PhotoConfig{
			AspectRatio:      "16:9",
			MaxOutputWidth:   1280,
			ByteBudget:       160 * 1024,
			InitialQuality:   0.82,
			QualityDecrement: 0.07,
			QualityFloor:     0.2,
			CropStrategy:     "center",
			MaxSourcePixels:  50_000_000,
		},
		Batch: BatchConfig{
			MaxCount: 6,
			MinCount: 3,
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:8080",
			MaxUploadBytes: 32 << 20,
			UploadRate:     2,
			UploadBurst:    6,
			MaxConns:       256,
			PreviewDir:     filepath.Join(base, "previews"),
		},
		Storage: StorageConfig{
			Driver:        "local",
			LocalDir:      filepath.Join(base, "objects"),
			PublicBaseURL: "/objects",
			RecordsFile:   filepath.Join(base, "listings.json"),
			S3: S3Config{
				Region: "us-east-1",
				Bucket: "listing-photos",
			},
		},
		Access: AccessConfig{
			Users: map[string]string{},
		},
		Update: UpdateConfig{
			Owner: "muvahhid",
			Repo:  "molayeri",
		},
		Log: LogConfig{
			MaxSizeMB:  20,
			MaxBackups: 5,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

// Load reads the YAML file at path on top of the defaults and applies env overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with MOLAYERI_* environment variables.
func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Server.Addr, EnvServerAddr)
	set(&c.Storage.Driver, EnvStorageDriver)
	set(&c.Storage.PublicBaseURL, EnvPublicBaseURL)
	set(&c.Storage.S3.Endpoint, EnvS3Endpoint)
	set(&c.Storage.S3.AccessKeyID, EnvS3AccessKeyID)
	set(&c.Storage.S3.SecretAccessKey, EnvS3SecretKey)
	set(&c.Storage.S3.Bucket, EnvS3Bucket)
	set(&c.Storage.S3.Region, EnvS3Region)
}

// Validate checks the values the rest of the service cannot recover from.
func (c *Config) Validate() error {
	if c.Batch.MaxCount <= 0 {
		return fmt.Errorf("batch.max_count must be positive, got %d", c.Batch.MaxCount)
	}
	if c.Batch.MinCount < 0 || c.Batch.MinCount > c.Batch.MaxCount {
		return fmt.Errorf("batch.min_count must be between 0 and %d, got %d", c.Batch.MaxCount, c.Batch.MinCount)
	}
	switch c.Storage.Driver {
	case "local", "s3":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be positive, got %d", c.Log.MaxSizeMB)
	}
	if c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log.max_backups and log.max_age_days must not be negative")
	}
	return nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config data: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
