// Package config holds the shared configuration types for a zfmrf data
// root. Both the CLI loader and the UI server consume these; keeping them
// here avoids an import cycle between the two.
package config

import (
	"fmt"
	"time"
)

// IndexConfig describes where the subject index lives. The zero value is
// not usable; call ApplyIndexDefaults to fill in a sqlite index under the
// data root.
type IndexConfig struct {
	Type     string `koanf:"type"`     // "sqlite" or "postgres"
	Path     string `koanf:"path"`     // sqlite database file
	Host     string `koanf:"host"`     // postgres only
	Port     int    `koanf:"port"`     // postgres only
	User     string `koanf:"user"`     // postgres only
	Password string `koanf:"password"` // postgres only
	Database string `koanf:"database"` // postgres only
	SSLMode  string `koanf:"sslmode"`  // postgres only
}

// ParametersConfig carries the lab-specific locations and endpoints.
// Every field is optional; operations that need one report a config error
// when it is missing rather than failing at load time.
type ParametersConfig struct {
	// PhysiologyDataDir is the root of the scanner's physiology share,
	// organised as <root>/<station>/gating.
	PhysiologyDataDir string `koanf:"physiology_data_dir"`

	// SageDataDir is the root of the spectroscopy archive.
	SageDataDir string `koanf:"sage_data_dir"`

	// DICOMServer is the address of the Orthanc REST endpoint,
	// e.g. "orthanc.lab:8042" or "http://orthanc.lab:8042".
	DICOMServer string `koanf:"dicom_server"`
}

// UIConfig holds the settings for the local web UI.
type UIConfig struct {
	Port     int  `koanf:"port"`
	AutoOpen bool `koanf:"auto_open"`
	Watch    bool `koanf:"watch"`

	// Debounce is how long the filesystem watcher waits after the last
	// change before notifying clients. Accepts Go duration strings such
	// as "250ms" in the config file.
	Debounce time.Duration `koanf:"debounce"`
}

// ChecksConfig points at the optional Starlark check script.
type ChecksConfig struct {
	File string `koanf:"file"`
}

// RootConfig is the on-disk shape of zfmrf.yaml at a data root.
type RootConfig struct {
	DataRoot      string           `koanf:"data_root"`
	SubjectPrefix string           `koanf:"subject_prefix"`
	Parameters    ParametersConfig `koanf:"parameters"`
	Index         *IndexConfig     `koanf:"index"`
	UI            *UIConfig        `koanf:"ui"`
	Checks        *ChecksConfig    `koanf:"checks"`
}

// ApplyDefaults fills in anything the file left out.
func (c *RootConfig) ApplyDefaults() {
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = DefaultSubjectPrefix
	}
	if c.Index == nil {
		c.Index = &IndexConfig{}
	}
	ApplyIndexDefaults(c.Index)
	if c.UI == nil {
		c.UI = &UIConfig{Port: DefaultUIPort, AutoOpen: true, Watch: true}
	}
	if c.UI.Port == 0 {
		c.UI.Port = DefaultUIPort
	}
	if c.UI.Debounce == 0 {
		c.UI.Debounce = DefaultUIDebounce
	}
	if c.Checks == nil {
		c.Checks = &ChecksConfig{File: DefaultChecksFile}
	}
}

// DSN returns the driver name and connection string for the index.
func (c *IndexConfig) DSN() (driver, dsn string, err error) {
	switch c.Type {
	case "sqlite", "":
		if c.Path == "" {
			return "", "", fmt.Errorf("sqlite index requires a path")
		}
		return "sqlite", c.Path, nil
	case "postgres":
		if c.Host == "" || c.Database == "" {
			return "", "", fmt.Errorf("postgres index requires host and database")
		}
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "prefer"
		}
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			c.User, c.Password, c.Host, c.Port, c.Database, sslMode)
		return "pgx", dsn, nil
	default:
		return "", "", fmt.Errorf("unknown index type: %s (expected sqlite or postgres)", c.Type)
	}
}

// Validate checks the index configuration for the fields its type needs.
func (c *IndexConfig) Validate() error {
	_, _, err := c.DSN()
	return err
}
