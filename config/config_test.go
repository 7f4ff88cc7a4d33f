package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "16:9", cfg.Photo.AspectRatio)
	assert.Equal(t, 1280, cfg.Photo.MaxOutputWidth)
	assert.Equal(t, 160*1024, cfg.Photo.ByteBudget)
	assert.InDelta(t, 0.82, cfg.Photo.InitialQuality, 1e-9)
	assert.Equal(t, 6, cfg.Batch.MaxCount)
	assert.Equal(t, 3, cfg.Batch.MinCount)
	assert.Equal(t, "local", cfg.Storage.Driver)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
photo:
  byte_budget: 204800
  crop_strategy: smart
batch:
  max_count: 8
access:
  users:
    u1: admin
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 204800, cfg.Photo.ByteBudget)
	assert.Equal(t, "smart", cfg.Photo.CropStrategy)
	assert.Equal(t, 1280, cfg.Photo.MaxOutputWidth, "untouched keys keep their defaults")
	assert.Equal(t, 8, cfg.Batch.MaxCount)
	assert.Equal(t, "admin", cfg.Access.Users["u1"])
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvStorageDriver, "s3")
	t.Setenv(EnvS3Bucket, "photos-test")
	t.Setenv(EnvServerAddr, ":9999")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "s3", cfg.Storage.Driver)
	assert.Equal(t, "photos-test", cfg.Storage.S3.Bucket)
	assert.Equal(t, ":9999", cfg.Server.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "zero max", mutate: func(c *Config) { c.Batch.MaxCount = 0 }, wantErr: true},
		{name: "min above max", mutate: func(c *Config) { c.Batch.MinCount = 7 }, wantErr: true},
		{name: "bad driver", mutate: func(c *Config) { c.Storage.Driver = "ftp" }, wantErr: true},
		{name: "zero log size", mutate: func(c *Config) { c.Log.MaxSizeMB = 0 }, wantErr: true},
		{name: "negative log backups", mutate: func(c *Config) { c.Log.MaxBackups = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Batch.MaxCount = 5

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.Batch.MaxCount)
}

func TestLogConfigFilePath(t *testing.T) {
	dir := t.TempDir()
	p, err := LogConfig{Dir: dir}.FilePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, AppName+LogExt), p)

	p, err = LogConfig{}.FilePath()
	require.NoError(t, err)
	assert.Equal(t, AppName+LogExt, filepath.Base(p))
}

func TestLoadLogSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  debug: true\n  max_size_mb: 5\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Log.Debug)
	assert.Equal(t, 5, cfg.Log.MaxSizeMB)
	assert.Equal(t, 5, cfg.Log.MaxBackups)
	assert.True(t, cfg.Log.Compress)
}
