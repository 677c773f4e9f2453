package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fraser29/zfmrf/internal/actions"
	"github.com/fraser29/zfmrf/internal/cli/output"
	"github.com/fraser29/zfmrf/pkg/core"
	"github.com/fraser29/zfmrf/pkg/zfmrf"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	History bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <subject> [action]",
		Short: "Run a registered action against a subject",
		Long: `Run one of the registered actions against a subject and record
the execution in the index. 'zfmrf actions' lists what is available.

With --history the past runs for the subject are shown instead.`,
		Example: `  # Verify the server holds every local DICOM
  zfmrf run MR000042 dicom-count-check

  # Fetch gating data
  zfmrf run 42 copy-gating

  # What has been run against this subject?
  zfmrf run 42 --history`,
		Args: cobra.RangeArgs(1, 2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) != 1 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			var names []string
			for _, info := range zfmrf.ActionInfos() {
				names = append(names, info.Name)
			}
			return names, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := ""
			if len(args) > 1 {
				action = args[1]
			}
			return runRun(cmd, args[0], action, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.History, "history", false, "Show past runs for the subject")

	return cmd
}

func runRun(cmd *cobra.Command, arg, action string, opts *RunOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	cfg := cmdCtx.Cfg
	r := cmdCtx.Renderer

	if err := requireDataRoot(cfg); err != nil {
		return err
	}
	s, err := resolveSubject(cfg, arg)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if opts.History {
		return runHistory(cmdCtx, s.ID)
	}
	if action == "" {
		return fmt.Errorf("no action given (see 'zfmrf actions')")
	}

	run, runErr := actions.Execute(cmd.Context(), cmdCtx.Store, s, action, cmdCtx.Logger)

	if r.EffectiveMode() == output.ModeJSON {
		out := map[string]any{"run": run}
		if runErr != nil {
			out["error"] = runErr.Error()
		}
		if err := r.JSON(out); err != nil {
			return err
		}
		return runErr
	}

	if runErr != nil {
		r.StatusLine(action, "failed", runErr.Error())
		return fmt.Errorf("action %s failed for %s", action, s.ID)
	}
	detail := ""
	if run != nil {
		detail = run.Detail
	}
	r.StatusLine(action, "completed", detail)
	return nil
}

func runHistory(cmdCtx *CommandContext, id string) error {
	r := cmdCtx.Renderer
	runs, err := cmdCtx.Store.ListActionRuns(id)
	if err != nil {
		return fmt.Errorf("failed to read run history: %w", err)
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(runs)
	}
	if len(runs) == 0 {
		r.Muted(fmt.Sprintf("No recorded runs for %s.", id))
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		detail := run.Detail
		if run.Status == core.ActionRunStatusFailed {
			detail = run.Error
		}
		rows = append(rows, []string{
			run.Action,
			string(run.Status),
			run.StartedAt.Format(time.RFC3339),
			detail,
		})
	}
	r.Table([]string{"Action", "Status", "Started", "Detail"}, rows)
	return nil
}
