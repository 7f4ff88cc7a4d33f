package cmd

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muvahhid/molayeri-sub002/config"
	"github.com/muvahhid/molayeri-sub002/pkg/photo"
	"github.com/muvahhid/molayeri-sub002/pkg/storage"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 3), uint8(y * 5), 90, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

// writeConfig writes a config whose data directories live under dir.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.LocalDir = filepath.Join(dir, "objects")
	cfg.Storage.RecordsFile = filepath.Join(dir, "listings.json")
	cfg.Server.PreviewDir = filepath.Join(dir, "previews")
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, cfg.Save(path))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestPhotoOptions(t *testing.T) {
	opts, err := photoOptions(config.Default().Photo)
	require.NoError(t, err)
	assert.Equal(t, photo.DefaultOptions(), opts)

	bad := config.Default().Photo
	bad.AspectRatio = "wide"
	_, err = photoOptions(bad)
	assert.Error(t, err)

	bad = config.Default().Photo
	bad.QualityFloor = 0.9
	_, err = photoOptions(bad)
	assert.Error(t, err)
}

func TestNewNormalizer_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Photo.MaxOutputWidth = 0
	_, err := newNormalizer(cfg)
	assert.ErrorIs(t, err, photo.ErrPipelineUnavailable)
}

func TestNormalizeCommand(t *testing.T) {
	t.Setenv(config.EnvStorageDriver, "")
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	var files []string
	for _, name := range []string{"a.png", "b.png"} {
		p := filepath.Join(dir, name)
		writePNG(t, p, 320, 320)
		files = append(files, p)
	}
	bad := filepath.Join(dir, "c.png")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0644))
	files = append(files, bad)

	outDir := filepath.Join(dir, "out")
	args := append([]string{"normalize", "--config", cfgPath, "--out", outDir, "--cover", "2"}, files...)
	out, err := run(t, args...)
	require.NoError(t, err, out)

	assert.Contains(t, out, "320x180")
	assert.Contains(t, out, "skipped c.png")
	assert.Contains(t, out, "not ready: 1 more photo(s) needed")
	assert.Contains(t, out, "(cover)")

	for _, name := range []string{"1.jpg", "2.jpg"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err)
	}
	_, err = os.Stat(filepath.Join(outDir, "3.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestNormalizeCommand_Publish(t *testing.T) {
	t.Setenv(config.EnvStorageDriver, "")
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	var files []string
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		p := filepath.Join(dir, name)
		writePNG(t, p, 64, 64)
		files = append(files, p)
	}

	args := append([]string{"normalize", "--config", cfgPath, "--out", filepath.Join(dir, "out"), "--publish", "l1"}, files...)
	out, err := run(t, args...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "ready: 3 photo(s)")
	assert.Contains(t, out, "published /objects/listings/l1/")

	entries, err := os.ReadDir(filepath.Join(dir, "objects", "listings", "l1"))
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	_, err = os.Stat(filepath.Join(dir, "listings.json"))
	assert.NoError(t, err, "records flushed on exit")
}

func TestNormalizeCommand_PublishNotReady(t *testing.T) {
	t.Setenv(config.EnvStorageDriver, "")
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	p := filepath.Join(dir, "a.png")
	writePNG(t, p, 64, 64)

	_, err := run(t, "normalize", "--config", cfgPath, "--out", filepath.Join(dir, "out"), "--publish", "l1", p)
	assert.Error(t, err)
}

func TestOpenObjectStore(t *testing.T) {
	cfg := config.Default().Storage
	cfg.LocalDir = t.TempDir()

	s, err := openObjectStore(t.Context(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &storage.LocalStore{}, s)

	cfg.Driver = "ftp"
	_, err = openObjectStore(t.Context(), cfg)
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, "version", "--config", writeConfig(t, dir))
	require.NoError(t, err)
	assert.Contains(t, out, config.AppName+" "+config.AppVersion)
}

func TestVersionCommand_Check(t *testing.T) {
	t.Setenv(config.EnvSkipUpdateCheck, "")
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/molayeri/releases/latest", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tag_name": "v99.0.0", "html_url": "https://rel/99"}`))
	}))
	defer api.Close()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Update = config.UpdateConfig{Owner: "acme", Repo: "molayeri", APIURL: api.URL}
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, cfg.Save(path))

	out, err := run(t, "version", "--check", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "update available: v99.0.0 (https://rel/99)")
}

func TestLock(t *testing.T) {
	dir := t.TempDir()
	ok, err := acquireLock(dir)
	require.NoError(t, err)
	assert.True(t, ok)
	releaseLock()

	ok, err = acquireLock(dir)
	require.NoError(t, err)
	assert.True(t, ok)
	releaseLock()
}
