package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), perm))
	require.NoError(t, os.Chmod(filepath.Join(dir, FileName), perm))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(dir), cfg)
}

func TestLoadFile(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	dir := t.TempDir()
	writeConfig(t, dir, "data_dir: data\nlog_level: debug\nlog_format: json\ndefault_vault: abc\n", 0600)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "abc", cfg.DefaultVault)
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "log_level: info\n", 0600)
	t.Setenv(EnvLogLevel, "error")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "log_level: [\n"},
		{"bad level", "log_level: loud\n"},
		{"bad format", "log_format: xml\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.content, 0600)
			_, err := Load(dir)
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("mode bits are not enforced on Windows")
	}
	t.Setenv(EnvLogLevel, "")
	dir := t.TempDir()
	writeConfig(t, dir, "log_level: info\n", 0644)

	_, err := Load(dir)
	assert.ErrorIs(t, err, ErrInsecure)
}

func TestLoadRejectsSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on Windows")
	}
	t.Setenv(EnvLogLevel, "")
	dir := t.TempDir()
	target := filepath.Join(dir, "real.yaml")
	require.NoError(t, os.WriteFile(target, []byte("log_level: info\n"), 0600))
	require.NoError(t, os.Symlink(target, filepath.Join(dir, FileName)))

	_, err := Load(dir)
	assert.ErrorIs(t, err, ErrSymlink)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	dir := filepath.Join(t.TempDir(), "nested")
	cfg := Default(dir)
	cfg.DefaultVault = "v1"
	require.NoError(t, cfg.Save(dir))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(dir, FileName))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestBaseDir(t *testing.T) {
	t.Setenv(EnvDir, "/tmp/keysmith-test")
	dir, err := BaseDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/keysmith-test", dir)
}

func TestReadPrivateFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")

	_, err := ReadPrivateFile(path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0600))
	content, err := ReadPrivateFile(path)
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(content))
}
