package config

import (
	"fmt"
	"os"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.DataRoot == "" {
		return fmt.Errorf("data_root is required")
	}
	if c.SubjectPrefix == "" {
		return fmt.Errorf("subject_prefix is required")
	}
	for _, r := range c.SubjectPrefix {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return fmt.Errorf("subject_prefix must contain only letters, got %q", c.SubjectPrefix)
		}
	}

	// Only validate directory existence if we're running a command that needs it
	// This allows help commands to work without a valid data root
	return nil
}

// ValidateDirectories checks if required directories exist.
func (c *Config) ValidateDirectories() error {
	if _, err := os.Stat(c.DataRoot); os.IsNotExist(err) {
		return fmt.Errorf("data root does not exist: %s\nHint: Run 'zfmrf init' to create a new data root, or use --data-root to point at an existing one", c.DataRoot)
	}
	return nil
}
