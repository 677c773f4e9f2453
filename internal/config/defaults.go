package config

import "time"

// Defaults shared by the CLI loader and tests. The CLI layer seeds its
// koanf pipeline from these so that a bare `zfmrf init` produces a
// working data root without any configuration file.
const (
	// DefaultSubjectPrefix is prepended to the zero-padded subject
	// number to form directory names such as MR000001.
	DefaultSubjectPrefix = "MR"

	// DefaultIndexPath is the sqlite index location relative to the
	// data root.
	DefaultIndexPath = ".zfmrf/index.db"

	// DefaultChecksFile is the Starlark check script looked for in the
	// data root.
	DefaultChecksFile = "checks.star"

	// DefaultOutput selects the renderer; "auto" picks JSON or styled
	// text depending on whether stdout is a terminal.
	DefaultOutput = "auto"

	// DefaultUIPort is the port the local web UI binds to.
	DefaultUIPort = 8765

	// DefaultPostgresPort is filled in when a postgres index omits the
	// port.
	DefaultPostgresPort = 5432
)

// DefaultUIDebounce is the filesystem watcher settle time.
const DefaultUIDebounce = 250 * time.Millisecond

// ApplyIndexDefaults fills in the blanks for an index configuration.
func ApplyIndexDefaults(c *IndexConfig) {
	if c.Type == "" {
		c.Type = "sqlite"
	}
	if c.Type == "sqlite" && c.Path == "" {
		c.Path = DefaultIndexPath
	}
	if c.Type == "postgres" && c.Port == 0 {
		c.Port = DefaultPostgresPort
	}
}
