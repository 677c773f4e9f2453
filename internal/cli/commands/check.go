package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fraser29/zfmrf/internal/checks"
	"github.com/fraser29/zfmrf/internal/cli/output"
	"github.com/fraser29/zfmrf/pkg/subject"
	"github.com/fraser29/zfmrf/pkg/zfmrf"
)

// CheckOptions holds options for the check command.
type CheckOptions struct {
	All bool
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	opts := &CheckOptions{}

	cmd := &cobra.Command{
		Use:   "check [subject]",
		Short: "Run data completeness checks against subjects",
		Long: `Run the builtin completeness checks against a subject: metadata
present, DICOM files on disk, series recorded, gating and spectra
status, and the server image count when a DICOM server is
configured.

Lab-specific checks can be added in a Starlark script (checks.star
by default). Every top-level check_* function in the script becomes
an extra check.

The command exits non-zero when any check fails.`,
		Example: `  # Check one subject
  zfmrf check MR000042

  # Check every subject under the data root
  zfmrf check --all

  # Machine-readable report
  zfmrf check 42 -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arg := ""
			if len(args) > 0 {
				arg = args[0]
			}
			return runCheck(cmd, arg, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "Check every subject under the data root")

	return cmd
}

func runCheck(cmd *cobra.Command, arg string, opts *CheckOptions) error {
	cmdCtx := NewCommandContextWithoutIndex(cmd)
	cfg := cmdCtx.Cfg
	r := cmdCtx.Renderer

	if err := requireDataRoot(cfg); err != nil {
		return err
	}
	if opts.All && arg != "" {
		return fmt.Errorf("--all cannot be combined with a subject")
	}
	if !opts.All && arg == "" {
		return fmt.Errorf("give a subject or --all")
	}

	runner, err := newCheckRunner(cmdCtx)
	if err != nil {
		return err
	}

	if !opts.All {
		s, err := resolveSubject(cfg, arg)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()
		return renderReports(r, []*checks.Report{runner.Run(cmd.Context(), s)})
	}

	ids, err := subject.List(cfg.DataRoot, cfg.SubjectPrefix)
	if err != nil {
		return fmt.Errorf("failed to list subjects: %w", err)
	}
	reports := make([]*checks.Report, 0, len(ids))
	for _, id := range ids {
		if err := cmd.Context().Err(); err != nil {
			return err
		}
		s := zfmrf.New(cfg.DataRoot, id, cfg.Lab())
		reports = append(reports, runner.Run(cmd.Context(), s))
		_ = s.Close()
	}
	return renderReports(r, reports)
}

// newCheckRunner builds the check runner, appending script checks when the
// configured checks file exists.
func newCheckRunner(cmdCtx *CommandContext) (*checks.Runner, error) {
	path := cmdCtx.Cfg.ChecksFile()
	if _, err := os.Stat(path); err != nil {
		cmdCtx.Logger.Debug("no checks script", "path", path)
		return checks.NewRunner(cmdCtx.Logger), nil
	}
	extra, err := checks.LoadScript(path, cmdCtx.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return checks.NewRunner(cmdCtx.Logger, extra...), nil
}

func renderReports(r *output.Renderer, reports []*checks.Report) error {
	if r.EffectiveMode() == output.ModeJSON {
		if len(reports) == 1 {
			if err := r.JSON(reports[0]); err != nil {
				return err
			}
		} else if err := r.JSON(reports); err != nil {
			return err
		}
		return failCount(reports)
	}

	for i, rep := range reports {
		if i > 0 {
			r.Println("")
		}
		r.Header(2, rep.SubjectID)
		for _, res := range rep.Results {
			r.StatusLine(res.Name, string(res.Status), res.Detail)
		}
		pass, warn, fail, skip := rep.Counts()
		summary := fmt.Sprintf("Score %d/100 (%d passed, %d warnings, %d failed", rep.Score, pass, warn, fail)
		if skip > 0 {
			summary += fmt.Sprintf(", %d skipped", skip)
		}
		summary += ")"
		if fail > 0 {
			r.Warning(summary)
		} else {
			r.Success(summary)
		}
	}
	return failCount(reports)
}

func failCount(reports []*checks.Report) error {
	failed := 0
	for _, rep := range reports {
		for _, res := range rep.Results {
			if res.Status == checks.StatusFail {
				failed++
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}
