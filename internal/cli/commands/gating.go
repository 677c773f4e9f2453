package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fraser29/zfmrf/internal/cli/output"
	"github.com/fraser29/zfmrf/pkg/gating"
	"github.com/fraser29/zfmrf/pkg/zfmrf"
)

// GatingOptions holds options for the gating command.
type GatingOptions struct {
	DryRun bool
}

// NewGatingCommand creates the gating command.
func NewGatingCommand() *cobra.Command {
	opts := &GatingOptions{}

	cmd := &cobra.Command{
		Use:   "gating <subjects...>",
		Short: "Copy physiological gating recordings into subjects",
		Long: `Copy the physiological recordings acquired during each subject's exam
from the scanner backup share into RAW/PHYSIOLOGICAL_DATA.

Recordings are matched by the timestamp encoded in their file name
against the exam's series time window. Files named outside the
expected pattern are skipped with a warning.

Several subjects can be named at once; a subject directory that does
not exist is skipped and the rest still run.`,
		Example: `  # Copy gating data for a subject
  zfmrf gating MR000042

  # The whole week's cohort in one go
  zfmrf gating 42 43 44

  # Preview what would be copied
  zfmrf gating 42 --dry-run`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGating(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "List matching recordings without copying")

	return cmd
}

func runGating(cmd *cobra.Command, args []string, opts *GatingOptions) error {
	cmdCtx := NewCommandContextWithoutIndex(cmd)
	cfg := cmdCtx.Cfg
	r := cmdCtx.Renderer

	if err := requireDataRoot(cfg); err != nil {
		return err
	}

	showHeaders := len(args) > 1
	return forEachSubject(cfg, r, args, func(s *zfmrf.Subject) error {
		if showHeaders {
			r.Header(2, s.ID)
		}
		if opts.DryRun {
			return gatingDryRun(s, r)
		}
		copied, err := s.CopyGatingToStudy(cmd.Context())
		if err != nil {
			return fmt.Errorf("gating copy failed: %w", err)
		}
		if copied == 0 {
			r.Warning(fmt.Sprintf("No recordings matched the exam window for %s", s.ID))
			return nil
		}
		r.Success(fmt.Sprintf("Copied %d gating recording(s) to %s", copied, s.ID))
		return nil
	})
}

func gatingDryRun(s *zfmrf.Subject, r *output.Renderer) error {
	gatingDir, err := s.GatingDir()
	if err != nil {
		return err
	}
	window, err := s.ExamWindow()
	if err != nil {
		return err
	}
	files, skipped, err := gating.Scan(gatingDir)
	if err != nil {
		return err
	}
	matched := gating.MatchWindow(files, window)

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string]any{
			"GatingDir":   gatingDir,
			"WindowStart": window.Start,
			"WindowEnd":   window.End,
			"Matched":     matched,
			"Skipped":     len(skipped),
		})
	}

	r.KeyValue("Backup dir", gatingDir)
	r.KeyValue("Exam window", fmt.Sprintf("%s to %s",
		window.Start.Format("2006-01-02 15:04:05"), window.End.Format("15:04:05")))
	if len(matched) == 0 {
		r.Muted("No recordings inside the exam window.")
		return nil
	}
	rows := make([][]string, 0, len(matched))
	for _, f := range matched {
		rows = append(rows, []string{f.Name, f.Time.Format("2006-01-02 15:04:05")})
	}
	r.Table([]string{"Recording", "Acquired"}, rows)
	if len(skipped) > 0 {
		r.Muted(fmt.Sprintf("%d file(s) with unparseable names skipped", len(skipped)))
	}
	return nil
}
