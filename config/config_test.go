package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithNoFileOrEnv(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DefaultStagingBufferSize, cfg.StagingBufferSize)
	require.Equal(t, DefaultOutputBufferSize, cfg.OutputBufferSize)
	require.Equal(t, DefaultOutputPath, cfg.OutputPath)
	require.True(t, cfg.Async)
	require.False(t, cfg.DirectIO)
	require.Equal(t, DefaultIdleWaitMicros, cfg.IdleWaitMicros)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultOutputPath, cfg.OutputPath)
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nanolog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"output_path: /var/log/app.clog\n"+
			"direct_io: true\n"+
			"staging_buffer_size: 2097152\n",
	), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/log/app.clog", cfg.OutputPath)
	require.True(t, cfg.DirectIO)
	require.Equal(t, 2097152, cfg.StagingBufferSize)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("NANOLOG_OUTPUT_PATH", "/tmp/from-env.clog")
	t.Setenv("NANOLOG_DIRECT_IO", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "/tmp/from-env.clog", cfg.OutputPath)
	require.True(t, cfg.DirectIO)
}
