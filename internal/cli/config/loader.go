package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	intconfig "github.com/fraser29/zfmrf/internal/config"
)

// loggerKey is used to store logger in context.
// This key is shared with root.go via both using the same type.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config // Stores the loaded config for access by commands
)

// findConfigFile finds the config file to use.
// Priority: explicit path > zfmrf.yaml > zfmrf.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(intconfig.ConfigFileName); err == nil {
		return intconfig.ConfigFileName
	}
	if _, err := os.Stat(intconfig.ConfigFileNameAlt); err == nil {
		return intconfig.ConfigFileNameAlt
	}
	return ""
}

// configExistsIn checks if a zfmrf config file exists in the directory.
func configExistsIn(dir string) bool {
	return intconfig.FindConfigFile(dir) != ""
}

// findRootUpward searches upward from startDir for a zfmrf config file.
// Returns empty string if not found within maxUpwardSearchLevels.
func findRootUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if configExistsIn(dir) {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}
	return ""
}

// inferProjectRoot determines the config anchor from CLI flags and filesystem.
// Priority:
//  1. Explicit --data-root flag
//  2. Search upward from CWD for zfmrf.yaml
//  3. Current working directory
func inferProjectRoot(flags *pflag.FlagSet) string {
	// 1. Check explicit --data-root
	if flags != nil {
		if dataRoot, _ := flags.GetString("data-root"); dataRoot != "" && flags.Changed("data-root") {
			abs, err := filepath.Abs(dataRoot)
			if err == nil {
				return abs
			}
			return filepath.Clean(dataRoot)
		}
	}

	// 2. Search upward from CWD for zfmrf.yaml
	if cwd, err := os.Getwd(); err == nil {
		if root := findRootUpward(cwd); root != "" {
			return root
		}
	}

	// 3. Default to CWD
	cwd, _ := os.Getwd()
	if cwd == "" {
		cwd = "."
	}
	return cwd
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	// Reset koanf for fresh load
	k = koanf.New(".")

	projectRoot := inferProjectRoot(flags)

	// Pre-compute absolute paths for path flags. Flag paths are relative
	// to the CWD at invocation time, not to the project root.
	var flagDataRoot, flagIndexPath string
	if flags != nil {
		if flags.Changed("data-root") {
			if v, _ := flags.GetString("data-root"); v != "" {
				flagDataRoot, _ = filepath.Abs(v)
			}
		}
		if flags.Changed("index") {
			if v, _ := flags.GetString("index"); v != "" {
				flagIndexPath, _ = filepath.Abs(v)
			}
		}
	}

	// If an explicit config file is provided, use its directory as project root
	// (unless a more specific hint was given via flags)
	if cfgFile != "" && projectRoot == inferProjectRoot(nil) {
		// No flag-based inference happened, use config file's directory
		if absPath, err := filepath.Abs(cfgFile); err == nil {
			projectRoot = filepath.Dir(absPath)
		}
	}

	// 1. Load defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"data_root":      ".",
		"subject_prefix": intconfig.DefaultSubjectPrefix,
		"index.type":     "sqlite",
		"index.path":     intconfig.DefaultIndexPath,
		"checks.file":    intconfig.DefaultChecksFile,
		"ui.port":        intconfig.DefaultUIPort,
		"ui.auto_open":   true,
		"ui.watch":       true,
		"ui.debounce":    intconfig.DefaultUIDebounce.String(),
		"verbose":        false,
		"output":         intconfig.DefaultOutput,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	// Search in project root if no explicit config file provided
	if cfgFile == "" {
		// Look for config in inferred project root
		if candidate := intconfig.FindConfigFile(projectRoot); candidate != "" {
			cfgFile = candidate
		}
	}
	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Load environment variables (ZFMRF_ prefix)
	// Transform: ZFMRF_DATA_ROOT -> data_root
	// Lab parameters get an explicit mapping so that ZFMRF_DICOM_SERVER
	// reaches parameters.dicom_server without the nested spelling.
	if err := k.Load(env.Provider("ZFMRF_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "ZFMRF_"))
		switch key {
		case "dicom_server", "physiology_data_dir", "sage_data_dir":
			return "parameters." + key
		}
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority - overrides env vars and config file)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			// Transform kebab-case to snake_case for config keys
			key := strings.ReplaceAll(f.Name, "-", "_")

			// EXPLICIT MAPPING: Bridge the gap between short CLI flags and
			// nested config keys. The CLI uses --index for brevity, and the
			// lab parameter flags live under the parameters block.
			switch key {
			case "index":
				return "index.path", posflag.FlagVal(flags, f)
			case "dicom_server", "physiology_data_dir", "sage_data_dir":
				return "parameters." + key, posflag.FlagVal(flags, f)
			}

			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	// The duration hook lets ui.debounce accept strings like "250ms".
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
			Result:           &cfg,
			WeaklyTypedInput: true,
			TagName:          "koanf",
		},
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Set project root and resolve relative paths
	// Use project root as base for all path resolution (not config file directory)
	// This implements the "anchor pattern" for intuitive path resolution
	cfg.ProjectRoot = projectRoot

	// For paths explicitly provided via flags, use the pre-computed absolute paths
	// (already computed relative to CWD at flag parse time).
	// For paths from config file or defaults, resolve relative to project root.
	if flagDataRoot != "" {
		cfg.DataRoot = flagDataRoot
	} else {
		cfg.DataRoot = resolvePathRelativeTo(cfg.DataRoot, projectRoot)
	}

	// Initialize default index if not specified
	if cfg.Index == nil {
		cfg.Index = &IndexConfig{}
	}
	intconfig.ApplyIndexDefaults(cfg.Index)
	if flagIndexPath != "" {
		cfg.Index.Path = flagIndexPath
	} else {
		cfg.Index.Path = resolvePathRelativeTo(cfg.Index.Path, projectRoot)
	}

	if cfg.Checks == nil {
		cfg.Checks = &ChecksConfig{File: intconfig.DefaultChecksFile}
	}
	cfg.Checks.File = resolvePathRelativeTo(cfg.Checks.File, projectRoot)

	if cfg.UI == nil {
		cfg.UI = DefaultUIConfig()
	}
	if cfg.UI.Debounce == 0 {
		cfg.UI.Debounce = intconfig.DefaultUIDebounce
	}

	// Expand environment variables in lab parameters and index credentials
	expandParameterEnvVars(&cfg.Parameters)
	expandIndexEnvVars(cfg.Index)

	// Validate index configuration
	if err := cfg.Index.Validate(); err != nil {
		return nil, fmt.Errorf("invalid index configuration: %w", err)
	}

	// Store config for access by commands
	currentConfig = &cfg

	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
// This is available after LoadConfig is called.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger if not found
	return slog.New(slog.DiscardHandler)
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	// Match ${VAR} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR}
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Return original if not found
	})
}

// expandParameterEnvVars expands environment variables in the lab parameters.
func expandParameterEnvVars(p *ParametersConfig) {
	if p == nil {
		return
	}
	p.PhysiologyDataDir = expandEnvVars(p.PhysiologyDataDir)
	p.SageDataDir = expandEnvVars(p.SageDataDir)
	p.DICOMServer = expandEnvVars(p.DICOMServer)
}

// expandIndexEnvVars expands environment variables in sensitive index fields.
func expandIndexEnvVars(c *IndexConfig) {
	if c == nil {
		return
	}
	c.Password = expandEnvVars(c.Password)
	c.User = expandEnvVars(c.User)
	c.Host = expandEnvVars(c.Host)
	c.Database = expandEnvVars(c.Database)
}
