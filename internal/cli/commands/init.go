package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fraser29/zfmrf/internal/cli/config"
	"github.com/fraser29/zfmrf/internal/cli/output"
	intconfig "github.com/fraser29/zfmrf/internal/config"
)

// initConfig is the document written to zfmrf.yaml. A dedicated type
// keeps the generated file free of CLI-only fields like verbose.
type initConfig struct {
	DataRoot      string         `yaml:"data_root"`
	SubjectPrefix string         `yaml:"subject_prefix"`
	Parameters    initParameters `yaml:"parameters"`
	Index         initIndex      `yaml:"index"`
	Checks        initChecks     `yaml:"checks"`
}

type initParameters struct {
	DICOMServer       string `yaml:"dicom_server"`
	PhysiologyDataDir string `yaml:"physiology_data_dir"`
	SageDataDir       string `yaml:"sage_data_dir"`
}

type initIndex struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

type initChecks struct {
	File string `yaml:"file"`
}

const initConfigHeader = `# zfmrf project configuration.
#
# Paths are resolved relative to this file. Values can reference
# environment variables as ${VAR}, and every key can be overridden
# with a ZFMRF_ environment variable or the matching CLI flag.
`

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	var dataRoot string
	var dicomServer string
	var physiologyDir string
	var sageDir string

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new zfmrf project",
		Long: `Initialize a new zfmrf project directory.

This creates:
  - zfmrf.yaml configuration file
  - the subject data root (default: the project directory itself)
  - .zfmrf/ directory for the subject index
  - checks.star starter check script`,
		Example: `  # Initialize in current directory
  zfmrf init

  # Initialize a new directory with the scanner shares configured
  zfmrf init /data/mri --dicom-server http://orthanc:8042 \
      --physiology-data-dir /mnt/scanner/physio

  # Force overwrite existing config
  zfmrf init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			cfg := getConfig()
			mode := output.ParseMode(cfg.OutputFormat)
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

			opts := initOptions{
				Dir:           dir,
				Force:         force,
				DataRoot:      dataRoot,
				DICOMServer:   dicomServer,
				PhysiologyDir: physiologyDir,
				SageDir:       sageDir,
			}
			return runInit(r, opts)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().StringVar(&dataRoot, "data-root", "", "Subject data root to record in the config (default: the project directory)")
	cmd.Flags().StringVar(&dicomServer, "dicom-server", "", "DICOM server base URL to record in the config")
	cmd.Flags().StringVar(&physiologyDir, "physiology-data-dir", "", "Gating share to record in the config")
	cmd.Flags().StringVar(&sageDir, "sage-data-dir", "", "SAGE archive to record in the config")

	return cmd
}

type initOptions struct {
	Dir           string
	Force         bool
	DataRoot      string
	DICOMServer   string
	PhysiologyDir string
	SageDir       string
}

func runInit(r *output.Renderer, opts initOptions) error {
	if opts.Dir != "." {
		if err := os.MkdirAll(opts.Dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", opts.Dir, err)
		}
	}

	configPath := filepath.Join(opts.Dir, intconfig.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil && !opts.Force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", intconfig.ConfigFileName)
	}

	if err := writeInitConfig(configPath, opts); err != nil {
		return fmt.Errorf("failed to write %s: %w", intconfig.ConfigFileName, err)
	}
	r.StatusLine(intconfig.ConfigFileName, "success", "")

	// Data root defaults to the project directory itself
	dataRoot := opts.DataRoot
	if dataRoot == "" {
		dataRoot = opts.Dir
	} else if !filepath.IsAbs(dataRoot) {
		dataRoot = filepath.Join(opts.Dir, dataRoot)
	}
	if err := os.MkdirAll(dataRoot, 0750); err != nil {
		return fmt.Errorf("failed to create data root: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(opts.Dir, ".zfmrf"), 0750); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	r.StatusLine(".zfmrf/", "success", "")

	// Starter files from the embedded template
	if err := copyTemplate("minimal", opts.Dir, opts.Force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}
	files, _ := listTemplateFiles("minimal")
	for _, f := range files {
		r.StatusLine(f, "success", "")
	}

	r.Println("")
	r.Success("zfmrf project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. Review zfmrf.yaml (scanner shares, DICOM server)")
	r.Println("  2. Run 'zfmrf load <dicom-dir>' to load a study")
	r.Println("  3. Run 'zfmrf list' to see all subjects")
	r.Println("  4. Run 'zfmrf ui' to browse subjects in the browser")

	return nil
}

// writeInitConfig renders the starter zfmrf.yaml. The config is built
// from the init flags so a scripted 'zfmrf init --dicom-server ...'
// produces a working file with no edits needed.
func writeInitConfig(path string, opts initOptions) error {
	dataRoot := opts.DataRoot
	if dataRoot == "" {
		dataRoot = "."
	}

	doc := initConfig{
		DataRoot:      dataRoot,
		SubjectPrefix: config.DefaultSubjectPrefix,
		Parameters: initParameters{
			DICOMServer:       opts.DICOMServer,
			PhysiologyDataDir: opts.PhysiologyDir,
			SageDataDir:       opts.SageDir,
		},
		Index: initIndex{
			Type: "sqlite",
			Path: intconfig.DefaultIndexPath,
		},
		Checks: initChecks{File: intconfig.DefaultChecksFile},
	}

	body, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append([]byte(initConfigHeader), body...), 0600)
}
