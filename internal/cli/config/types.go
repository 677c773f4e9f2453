// Package config provides configuration management for the zfmrf CLI.
//
// This package extends the shared configuration types from internal/config
// with CLI-specific fields and functionality. The shared types
// (IndexConfig, ParametersConfig) are defined in internal/config and
// re-exported here via type aliases for convenience.
package config

import (
	sharedcfg "github.com/fraser29/zfmrf/internal/config"
	"github.com/fraser29/zfmrf/pkg/zfmrf"
)

// IndexConfig is an alias for the shared subject index configuration.
// This allows CLI code to use config.IndexConfig without importing
// internal/config.
type IndexConfig = sharedcfg.IndexConfig

// ParametersConfig is an alias for the shared lab parameters.
type ParametersConfig = sharedcfg.ParametersConfig

// UIConfig is an alias for the shared UI server configuration.
type UIConfig = sharedcfg.UIConfig

// ChecksConfig is an alias for the shared check script configuration.
type ChecksConfig = sharedcfg.ChecksConfig

// Config holds all CLI configuration options.
type Config struct {
	DataRoot      string           `koanf:"data_root"`
	SubjectPrefix string           `koanf:"subject_prefix"`
	Verbose       bool             `koanf:"verbose"`
	OutputFormat  string           `koanf:"output"`
	Parameters    ParametersConfig `koanf:"parameters"`
	Index         *IndexConfig     `koanf:"index"`
	UI            *UIConfig        `koanf:"ui"`
	Checks        *ChecksConfig    `koanf:"checks"`

	// ProjectRoot is the directory the config file was found in (or the
	// inferred anchor when none exists). Relative paths in the file are
	// resolved against it. Not itself configurable.
	ProjectRoot string `koanf:"-"`
}

// DefaultUIConfig returns a UIConfig with default values.
func DefaultUIConfig() *UIConfig {
	return &UIConfig{
		Port:     sharedcfg.DefaultUIPort,
		AutoOpen: true,
		Watch:    true,
		Debounce: sharedcfg.DefaultUIDebounce,
	}
}

// GetUIConfig returns the UI config with defaults applied for any unset values.
func (c *Config) GetUIConfig() *UIConfig {
	if c.UI == nil {
		return DefaultUIConfig()
	}
	ui := c.UI
	if ui.Port == 0 {
		ui.Port = sharedcfg.DefaultUIPort
	}
	if ui.Debounce == 0 {
		ui.Debounce = sharedcfg.DefaultUIDebounce
	}
	return ui
}

// Lab returns the lab parameters in the form pkg/zfmrf consumes.
func (c *Config) Lab() zfmrf.Config {
	return zfmrf.Config{
		PhysiologyDataDir: c.Parameters.PhysiologyDataDir,
		SageDataDir:       c.Parameters.SageDataDir,
		DICOMServer:       c.Parameters.DICOMServer,
	}
}

// IndexDSN returns the driver name and connection string for the
// configured subject index.
func (c *Config) IndexDSN() (driver, dsn string, err error) {
	idx := c.Index
	if idx == nil {
		idx = &IndexConfig{}
		sharedcfg.ApplyIndexDefaults(idx)
	}
	return idx.DSN()
}

// ChecksFile returns the configured Starlark check script path, or the
// default when unset.
func (c *Config) ChecksFile() string {
	if c.Checks == nil || c.Checks.File == "" {
		return sharedcfg.DefaultChecksFile
	}
	return c.Checks.File
}

// Default configuration values - uses shared defaults from internal/config
const (
	DefaultSubjectPrefix = sharedcfg.DefaultSubjectPrefix
	DefaultIndexFile     = sharedcfg.DefaultIndexPath
	DefaultChecksFile    = sharedcfg.DefaultChecksFile
	DefaultOutput        = sharedcfg.DefaultOutput // Auto-detect: TTY=text, non-TTY=markdown
)
