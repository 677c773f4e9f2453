// Package cli provides the command-line interface for zfmrf.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/fraser29/zfmrf/internal/cli/commands"
	"github.com/fraser29/zfmrf/internal/cli/config"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.3.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "zfmrf",
		Short: "zfmrf - MRI study management for the ZfMRF lab",
		Long: `zfmrf manages MRI studies on the lab file share.

Each study lives in a numbered subject directory with a fixed layout
(RAW/DICOM, RAW/PHYSIOLOGICAL_DATA, RAW/SPECTRA, META, PROJECTS). The
tool loads scanner output into that layout, fetches gating and spectra
recordings from the acquisition shares, verifies image counts against
the DICOM server, and keeps a queryable index of every subject.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.LoadConfig(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			// Store the logger in context for commands to pick up
			logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose)
			ctx := context.WithValue(cmd.Context(), config.LoggerKey(), logger)
			cmd.SetContext(ctx)

			if cfg.Verbose {
				if configFile := config.GetConfigFileUsed(); configFile != "" {
					fmt.Fprintf(os.Stderr, "Using config file: %s\n", configFile)
				}
			}

			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set version template
	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
MRI study management for the ZfMRF lab
`)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./zfmrf.yaml)")
	rootCmd.PersistentFlags().String("data-root", "", "Path to the subject data root")
	rootCmd.PersistentFlags().String("index", "", "Path to the subject index database")
	rootCmd.PersistentFlags().String("subject-prefix", "", "Subject ID prefix (default: MR)")
	rootCmd.PersistentFlags().String("dicom-server", "", "DICOM server base URL (Orthanc REST API)")
	rootCmd.PersistentFlags().String("physiology-data-dir", "", "Share the scanner writes gating recordings to")
	rootCmd.PersistentFlags().String("sage-data-dir", "", "SAGE spectroscopy archive directory")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format (auto|text|markdown|json)")

	// Register completion for output flag
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "text", "markdown", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewInitCommand())
	rootCmd.AddCommand(commands.NewLoadCommand())
	rootCmd.AddCommand(commands.NewIndexCommand())
	rootCmd.AddCommand(commands.NewListCommand())
	rootCmd.AddCommand(commands.NewShowCommand())
	rootCmd.AddCommand(commands.NewFindCommand())
	rootCmd.AddCommand(commands.NewGatingCommand())
	rootCmd.AddCommand(commands.NewSpectraCommand())
	rootCmd.AddCommand(commands.NewPullCommand())
	rootCmd.AddCommand(commands.NewPushCommand())
	rootCmd.AddCommand(commands.NewCheckCommand())
	rootCmd.AddCommand(commands.NewActionsCommand())
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewProjectCommand())
	rootCmd.AddCommand(commands.NewArchiveCommand())
	rootCmd.AddCommand(commands.NewQueryCommand())
	rootCmd.AddCommand(commands.NewBrowseCommand())
	rootCmd.AddCommand(commands.NewDoctorCommand())
	rootCmd.AddCommand(commands.NewUICommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// newLogger builds the CLI logger. Verbose mode shows debug records,
// otherwise only warnings and errors reach the terminal.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for zfmrf.

To load completions:

Bash:
  $ source <(zfmrf completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ zfmrf completion bash > /etc/bash_completion.d/zfmrf
  # macOS:
  $ zfmrf completion bash > $(brew --prefix)/etc/bash_completion.d/zfmrf

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ zfmrf completion zsh > "${fpath[1]}/_zfmrf"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ zfmrf completion fish | source

  # To load completions for each session, execute once:
  $ zfmrf completion fish > ~/.config/fish/completions/zfmrf.fish

PowerShell:
  PS> zfmrf completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> zfmrf completion powershell > zfmrf.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}
	return cmd
}
