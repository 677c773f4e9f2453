package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fraser29/zfmrf/internal/cli/output"
	"github.com/fraser29/zfmrf/pkg/core"
	"github.com/fraser29/zfmrf/pkg/zfmrf"
)

// ShowOptions holds options for the show command.
type ShowOptions struct {
	Series bool
}

// showOutput is the JSON output for the show command.
type showOutput struct {
	*core.SubjectRecord
	Path       string        `json:"Path"`
	Series     []core.Series `json:"Series,omitempty"`
	HasGating  bool          `json:"HasGating"`
	HasSpectra bool          `json:"HasSpectra"`
	Projects   []string      `json:"Projects,omitempty"`
}

// NewShowCommand creates the show command.
func NewShowCommand() *cobra.Command {
	opts := &ShowOptions{}

	cmd := &cobra.Command{
		Use:   "show <subject>",
		Short: "Show details for one subject",
		Long: `Show study metadata, image counts and data status for a subject.

The subject can be given as a full ID (MR000042) or a bare study
number (42).`,
		Example: `  # Show a subject
  zfmrf show MR000042

  # Same subject, bare number
  zfmrf show 42

  # Include the series table
  zfmrf show 42 --series`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Series, "series", false, "Include the series table")

	return cmd
}

func runShow(cmd *cobra.Command, arg string, opts *ShowOptions) error {
	cmdCtx := NewCommandContextWithoutIndex(cmd)
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

	rec, err := s.Record()
	if err != nil {
		return fmt.Errorf("failed to read subject: %w", err)
	}

	out := showOutput{
		SubjectRecord: rec,
		Path:          s.Path(),
		HasGating:     s.HasGatingData(),
		HasSpectra:    s.HasSpectra(),
	}
	if m, err := s.LoadMeta(); err == nil {
		out.Series = m.Series
	}
	if projects, err := s.Projects(); err == nil {
		out.Projects = projects
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}
	return showText(r, s, out, opts)
}

func showText(r *output.Renderer, s *zfmrf.Subject, out showOutput, opts *ShowOptions) error {
	r.Header(1, s.ID)

	r.KeyValue("Patient", out.PatientName)
	r.KeyValue("Patient ID", out.PatientID)
	r.KeyValue("Study date", out.StudyDate)
	r.KeyValue("Exam ID", out.ExamID)
	r.KeyValue("Station", out.StationName)
	r.KeyValue("Study UID", out.StudyUID)
	r.KeyValue("Path", out.Path)
	r.KeyValue("DICOM files", fmt.Sprintf("%d", out.DICOMCount))
	r.KeyValue("Gating data", yesNo(out.HasGating))
	r.KeyValue("Spectra", yesNo(out.HasSpectra))
	if len(out.Projects) > 0 {
		r.KeyValue("Projects", fmt.Sprintf("%v", out.Projects))
	}

	if opts.Series && len(out.Series) > 0 {
		r.Println("")
		r.Header(2, "Series")
		rows := make([][]string, 0, len(out.Series))
		for _, se := range out.Series {
			rows = append(rows, []string{
				fmt.Sprintf("%d", se.Number),
				se.Description,
				se.Time,
				fmt.Sprintf("%d", se.ImageCount),
			})
		}
		r.Table([]string{"Number", "Description", "Time", "Images"}, rows)
	}

	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
