package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fraser29/zfmrf/internal/cli/output"
	"github.com/fraser29/zfmrf/pkg/zfmrf"
)

// SpectraOptions holds options for the spectra command.
type SpectraOptions struct {
	Force  bool
	Status bool
}

// NewSpectraCommand creates the spectra command.
func NewSpectraCommand() *cobra.Command {
	opts := &SpectraOptions{}

	cmd := &cobra.Command{
		Use:   "spectra <subjects...>",
		Short: "Retrieve spectroscopy data from the SAGE archive",
		Long: `Locate each subject's exam in the SAGE archive and copy the export
into RAW/SPECTRA.

The archive is searched by PatientID and ExamID first. When that
misses (renamed directories, moved exports) every DICOM in the
archive is scanned for the subject's StudyInstanceUID, which is slow
but reliable. A subject that already has spectra is skipped unless
--force is given.

Several subjects can be named at once; a subject directory that does
not exist is skipped and the rest still run.`,
		Example: `  # Retrieve spectra for a subject
  zfmrf spectra MR000042

  # A batch of subjects
  zfmrf spectra 42 43 44

  # Re-copy over an existing export
  zfmrf spectra 42 --force

  # Report which series still lack a processed PDF
  zfmrf spectra 42 --status`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSpectra(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "Copy even when spectra already exist")
	cmd.Flags().BoolVar(&opts.Status, "status", false, "Show processing status instead of copying")

	return cmd
}

func runSpectra(cmd *cobra.Command, args []string, opts *SpectraOptions) error {
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
		if opts.Status {
			return spectraStatus(r, s.ID, s.SpectraPDFs, s.IsSpectraComplete)
		}

		spinner := r.NewSpinner(fmt.Sprintf("Searching SAGE archive for %s...", s.ID))
		spinner.Start()
		copied, err := s.CopySpectraToStudy(cmd.Context(), opts.Force)
		if err != nil {
			spinner.Fail("Spectra retrieval failed")
			return err
		}
		if !copied {
			spinner.Stop()
			r.StatusLine(s.ID, "skipped", "spectra already present (use --force to re-copy)")
			return nil
		}
		spinner.Success(fmt.Sprintf("Copied spectra to %s", s.ID))
		return nil
	})
}

func spectraStatus(r *output.Renderer, id string, pdfsFn func() (map[string]string, error), completeFn func() (bool, error)) error {
	pdfs, err := pdfsFn()
	if err != nil {
		return err
	}
	complete, err := completeFn()
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string]any{
			"SubjectID": id,
			"Series":    pdfs,
			"Complete":  complete,
		})
	}

	if len(pdfs) == 0 {
		r.Muted(fmt.Sprintf("%s has no spectra series.", id))
		return nil
	}

	series := make([]string, 0, len(pdfs))
	for name := range pdfs {
		series = append(series, name)
	}
	sort.Strings(series)

	for _, name := range series {
		if pdfs[name] != "" {
			r.StatusLine("series "+name, "success", pdfs[name])
		} else {
			r.StatusLine("series "+name, "pending", "awaiting processed PDF")
		}
	}
	if complete {
		r.Success("All spectra series processed")
	} else {
		r.Warning("Spectra processing incomplete")
	}
	return nil
}
