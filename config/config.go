// Package config loads the tunables that belong to deployment rather than
// to compile-time constants: staging buffer capacity, output buffer size,
// the output path, and the I/O mode. It uses github.com/spf13/viper for
// environment/file-driven configuration rather than hand-rolled flag
// parsing.
package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultStagingBufferSize = 1 << 20 // 1 MiB per producer thread
	DefaultOutputBufferSize  = 1 << 20 // 1 MiB, double-buffered
	DefaultIdleWaitMicros    = 200
	DefaultOutputPath        = "/tmp/compressedLog"
)

// Config is the resolved set of runtime tunables for one Init call.
type Config struct {
	StagingBufferSize int
	OutputBufferSize  int
	OutputPath        string
	Async             bool
	DirectIO          bool
	IdleWaitMicros    int
}

// Load resolves a Config from environment variables prefixed NANOLOG_
// (NANOLOG_STAGING_BUFFER_SIZE, NANOLOG_OUTPUT_BUFFER_SIZE,
// NANOLOG_OUTPUT_PATH, NANOLOG_ASYNC, NANOLOG_DIRECT_IO,
// NANOLOG_IDLE_WAIT_MICROS) and, if present, a config file named path.
// An empty path skips the file lookup and uses environment and defaults
// only.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("nanolog")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("staging_buffer_size", DefaultStagingBufferSize)
	v.SetDefault("output_buffer_size", DefaultOutputBufferSize)
	v.SetDefault("output_path", DefaultOutputPath)
	v.SetDefault("async", true)
	v.SetDefault("direct_io", false)
	v.SetDefault("idle_wait_micros", DefaultIdleWaitMicros)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			// A missing config file at an explicitly named path is not an
			// error: env vars and defaults still apply.
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, err
			}
		}
	}

	return Config{
		StagingBufferSize: v.GetInt("staging_buffer_size"),
		OutputBufferSize:  v.GetInt("output_buffer_size"),
		OutputPath:        v.GetString("output_path"),
		Async:             v.GetBool("async"),
		DirectIO:          v.GetBool("direct_io"),
		IdleWaitMicros:    v.GetInt("idle_wait_micros"),
	}, nil
}
