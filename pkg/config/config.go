// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads the environment configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"movierec/pkg/log"

	"gopkg.in/yaml.v2"
)

// ConfigEnv stores the environment configuration from env.yaml.
type ConfigEnv struct {
	OutputDir string `yaml:"outputDir"`
	LogDB     string `yaml:"logDB"`
	CatalogDB string `yaml:"catalogDB"`

	// Megabytes. Negative disables the check.
	MinFreeDisk int64 `yaml:"minFreeDisk"`

	// Milliseconds.
	DiskCheckInterval int `yaml:"diskCheckInterval"`

	LogLevel string `yaml:"logLevel"`

	// Address of the websocket log feed. Empty disables the server.
	Listen string `yaml:"listen"`

	// Feed samples at the pace they were captured.
	RealTime bool `yaml:"realTime"`

	ConfigDir string    `yaml:"-"`
	Level     log.Level `yaml:"-"`
}

// Defaults.
const (
	defaultMinFreeDisk       = 100
	defaultDiskCheckInterval = 10000
	defaultLogLevel          = "info"
)

// ErrPathNotAbsolute path is not absolute.
var ErrPathNotAbsolute = errors.New("path is not absolute")

// NewConfigEnv parses env.yaml and fills in the defaults.
// Relative defaults are resolved against the directory of envPath.
func NewConfigEnv(envPath string, envYAML []byte) (*ConfigEnv, error) {
	var env ConfigEnv
	if err := yaml.UnmarshalStrict(envYAML, &env); err != nil {
		return nil, fmt.Errorf("unmarshal env.yaml: %w", err)
	}

	env.ConfigDir = filepath.Dir(envPath)

	if env.OutputDir == "" {
		env.OutputDir = filepath.Join(env.ConfigDir, "recordings")
	}
	if env.LogDB == "" {
		env.LogDB = filepath.Join(env.ConfigDir, "logs.db")
	}
	if env.CatalogDB == "" {
		env.CatalogDB = filepath.Join(env.ConfigDir, "catalog.db")
	}
	if env.MinFreeDisk == 0 {
		env.MinFreeDisk = defaultMinFreeDisk
	}
	if env.DiskCheckInterval <= 0 {
		env.DiskCheckInterval = defaultDiskCheckInterval
	}
	if env.LogLevel == "" {
		env.LogLevel = defaultLogLevel
	}

	level, err := log.ParseLevel(env.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logLevel: %w", err)
	}
	env.Level = level

	if !filepath.IsAbs(env.OutputDir) {
		return nil, fmt.Errorf("outputDir '%v': %w", env.OutputDir, ErrPathNotAbsolute)
	}
	if !filepath.IsAbs(env.LogDB) {
		return nil, fmt.Errorf("logDB '%v': %w", env.LogDB, ErrPathNotAbsolute)
	}
	if !filepath.IsAbs(env.CatalogDB) {
		return nil, fmt.Errorf("catalogDB '%v': %w", env.CatalogDB, ErrPathNotAbsolute)
	}

	return &env, nil
}

// ReadConfigEnv reads and parses the file at envPath.
func ReadConfigEnv(envPath string) (*ConfigEnv, error) {
	envYAML, err := os.ReadFile(envPath)
	if err != nil {
		return nil, fmt.Errorf("could not read env.yaml: %w", err)
	}
	return NewConfigEnv(envPath, envYAML)
}

// MinFreeDiskBytes returns the minimum free space in bytes, zero if disabled.
func (env ConfigEnv) MinFreeDiskBytes() int64 {
	if env.MinFreeDisk < 0 {
		return 0
	}
	return env.MinFreeDisk * 1000 * 1000
}

// DiskCheckDuration returns the disk check interval.
func (env ConfigEnv) DiskCheckDuration() time.Duration {
	return time.Duration(env.DiskCheckInterval) * time.Millisecond
}

// PrepareEnvironment creates the output directory.
func (env ConfigEnv) PrepareEnvironment() error {
	err := os.MkdirAll(env.OutputDir, 0o700)
	if err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("create output directory: %v: %w", env.OutputDir, err)
	}
	return nil
}
