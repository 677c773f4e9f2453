package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fraser29/zfmrf/internal/cli/output"
	"github.com/fraser29/zfmrf/internal/state"
	"github.com/fraser29/zfmrf/pkg/core"
)

// ListOptions holds options for the list command.
type ListOptions struct {
	NoSync bool
}

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	opts := &ListOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all subjects in the data root",
		Long: `List every subject in the index with patient, study and image counts.

The index is reconciled against the data root first, so the listing
reflects what is actually on disk. Use --no-sync to skip the rescan on
large data roots.

Output adapts to environment:
  - Terminal: Styled, colored output
  - Piped/Scripted: Markdown format (agent-friendly)

Use --output to override: auto, text, markdown, json`,
		Example: `  # List all subjects
  zfmrf list

  # List subjects as JSON
  zfmrf list --output json

  # Skip the disk rescan
  zfmrf list --no-sync`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.NoSync, "no-sync", false, "Skip reconciling the index against the data root")

	return cmd
}

func runList(cmd *cobra.Command, opts *ListOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := cmdCtx.Cfg
	r := cmdCtx.Renderer

	if !opts.NoSync {
		if err := requireDataRoot(cfg); err != nil {
			return err
		}
		if _, err := state.SyncIndex(cmd.Context(), cmdCtx.Store, cfg.DataRoot, cfg.SubjectPrefix, cmdCtx.Logger); err != nil {
			return fmt.Errorf("failed to sync index: %w", err)
		}
	}

	recs, err := cmdCtx.Store.ListSubjects()
	if err != nil {
		return fmt.Errorf("failed to list subjects: %w", err)
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(recs)
	}
	return listTable(r, recs)
}

func listTable(r *output.Renderer, recs []*core.SubjectRecord) error {
	r.Header(1, fmt.Sprintf("Subjects (%d total)", len(recs)))

	if len(recs) == 0 {
		r.Muted("No subjects indexed. Load a study with 'zfmrf load <dicom-dir>'.")
		return nil
	}

	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		scanned := "-"
		if !rec.ScannedAt.IsZero() {
			scanned = rec.ScannedAt.Format("2006-01-02")
		}
		rows = append(rows, []string{
			rec.SubjectID,
			rec.PatientName,
			rec.StudyDate,
			rec.ExamID,
			fmt.Sprintf("%d", rec.DICOMCount),
			scanned,
		})
	}
	r.Table([]string{"Subject", "Patient", "Study date", "Exam", "DICOMs", "Scanned"}, rows)
	return nil
}
