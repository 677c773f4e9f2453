package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fraser29/zfmrf/internal/cli/config"
	"github.com/fraser29/zfmrf/internal/cli/output"
	intconfig "github.com/fraser29/zfmrf/internal/config"
	"github.com/fraser29/zfmrf/internal/state"
	"github.com/fraser29/zfmrf/pkg/core"
	"github.com/fraser29/zfmrf/pkg/subject"
	"github.com/fraser29/zfmrf/pkg/zfmrf"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Store    core.Store
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with the subject index open.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	st, err := openIndex(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	mode := output.ParseMode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	cleanup := func() {
		_ = st.Close()
	}

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Store:    st,
		Renderer: r,
	}, cleanup, nil
}

// NewCommandContextWithoutIndex creates a CommandContext without opening
// the index. Useful for commands that only touch the data root.
func NewCommandContextWithoutIndex(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.ParseMode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// Helper functions shared across commands

// getConfig returns the current configuration.
// It uses config.GetCurrentConfig() if available, otherwise falls back to environment variables.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}

	// Fallback: read from environment with defaults
	dataRoot := getEnvOrDefault("ZFMRF_DATA_ROOT", ".")
	prefix := getEnvOrDefault("ZFMRF_SUBJECT_PREFIX", config.DefaultSubjectPrefix)
	verbose := os.Getenv("ZFMRF_VERBOSE") == "true"
	outputFormat := os.Getenv("ZFMRF_OUTPUT")

	cfg := &config.Config{
		DataRoot:      dataRoot,
		SubjectPrefix: prefix,
		Verbose:       verbose,
		OutputFormat:  outputFormat,
		Parameters: config.ParametersConfig{
			PhysiologyDataDir: os.Getenv("ZFMRF_PHYSIOLOGY_DATA_DIR"),
			SageDataDir:       os.Getenv("ZFMRF_SAGE_DATA_DIR"),
			DICOMServer:       os.Getenv("ZFMRF_DICOM_SERVER"),
		},
		Index: &config.IndexConfig{},
	}
	intconfig.ApplyIndexDefaults(cfg.Index)
	return cfg
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// openIndex opens and migrates the subject index named by the config.
func openIndex(cfg *config.Config, logger *slog.Logger) (core.Store, error) {
	driver, dsn, err := cfg.IndexDSN()
	if err != nil {
		return nil, err
	}

	// A sqlite index lives in a file; make sure its directory exists.
	if driver == "sqlite" {
		dir := filepath.Dir(dsn)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, fmt.Errorf("failed to create index directory: %w", err)
			}
		}
	}

	return state.OpenStore(driver, dsn, logger)
}

// resolveSubject turns a command line argument (full ID or bare study
// number) into a lab subject rooted at the configured data root.
func resolveSubject(cfg *config.Config, arg string) (*zfmrf.Subject, error) {
	id, err := subject.ResolveID(arg, cfg.SubjectPrefix)
	if err != nil {
		return nil, err
	}
	s := zfmrf.New(cfg.DataRoot, id, cfg.Lab())
	if !s.Exists() {
		return nil, fmt.Errorf("%w: %s under %s", core.ErrSubjectNotFound, id, cfg.DataRoot)
	}
	return s, nil
}

// forEachSubject runs fn over every subject named on the command line.
// Identifiers whose directory is missing are skipped with a warning, so
// a cohort run keeps going past archived subjects. Malformed identifiers
// and fn errors are reported per subject; the returned error carries the
// failure count.
func forEachSubject(cfg *config.Config, r *output.Renderer, args []string, fn func(s *zfmrf.Subject) error) error {
	failed := 0
	for _, arg := range args {
		id, err := subject.ResolveID(arg, cfg.SubjectPrefix)
		if err != nil {
			r.Error(err.Error())
			failed++
			continue
		}
		s := zfmrf.New(cfg.DataRoot, id, cfg.Lab())
		if !s.Exists() {
			r.Warning(fmt.Sprintf("%s not found under %s, skipping", id, cfg.DataRoot))
			continue
		}
		if err := fn(s); err != nil {
			r.Error(fmt.Sprintf("%s: %v", id, err))
			failed++
		}
		_ = s.Close()
	}
	if failed > 0 {
		return fmt.Errorf("%d subject(s) failed", failed)
	}
	return nil
}

// requireDataRoot fails early when the configured data root is absent,
// which usually means the command is running outside a zfmrf project.
func requireDataRoot(cfg *config.Config) error {
	if cfg.DataRoot == "" {
		return fmt.Errorf("no data root configured (set data_root in zfmrf.yaml or pass --data-root)")
	}
	if _, err := os.Stat(cfg.DataRoot); os.IsNotExist(err) {
		return fmt.Errorf("data root does not exist: %s", cfg.DataRoot)
	}
	return nil
}
