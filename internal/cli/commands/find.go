package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fraser29/zfmrf/internal/cli/output"
	"github.com/fraser29/zfmrf/pkg/core"
)

// FindOptions holds options for the find command.
type FindOptions struct {
	Name string
	Exam string
	UID  string
	Date string
}

// NewFindCommand creates the find command.
func NewFindCommand() *cobra.Command {
	opts := &FindOptions{}

	cmd := &cobra.Command{
		Use:   "find",
		Short: "Find subjects in the index",
		Long: `Find subjects by patient name, exam ID, study UID or study date.

Name matching is a case-insensitive substring search. The other
filters match exactly. Filters combine with AND.`,
		Example: `  # All subjects for a patient
  zfmrf find --name smith

  # The subject holding a scanner exam
  zfmrf find --exam 5566

  # Subjects scanned on a given day
  zfmrf find --date 20180426`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFind(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "Patient name substring")
	cmd.Flags().StringVar(&opts.Exam, "exam", "", "Exam ID")
	cmd.Flags().StringVar(&opts.UID, "uid", "", "Study instance UID")
	cmd.Flags().StringVar(&opts.Date, "date", "", "Study date (YYYYMMDD)")

	return cmd
}

func runFind(cmd *cobra.Command, opts *FindOptions) error {
	if opts.Name == "" && opts.Exam == "" && opts.UID == "" && opts.Date == "" {
		return fmt.Errorf("no filters given (use --name, --exam, --uid or --date)")
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	r := cmdCtx.Renderer

	var recs []*core.SubjectRecord
	if opts.Name != "" {
		recs, err = cmdCtx.Store.SearchSubjects(opts.Name)
	} else {
		recs, err = cmdCtx.Store.ListSubjects()
	}
	if err != nil {
		return fmt.Errorf("failed to query index: %w", err)
	}

	matches := make([]*core.SubjectRecord, 0, len(recs))
	for _, rec := range recs {
		if !matchRecord(rec, opts) {
			continue
		}
		matches = append(matches, rec)
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(matches)
	}

	if len(matches) == 0 {
		r.Muted("No subjects matched.")
		return nil
	}
	rows := make([][]string, 0, len(matches))
	for _, rec := range matches {
		rows = append(rows, []string{rec.SubjectID, rec.PatientName, rec.StudyDate, rec.ExamID})
	}
	r.Table([]string{"Subject", "Patient", "Study date", "Exam"}, rows)
	r.Println("")
	r.Muted(fmt.Sprintf("%d subject(s) matched", len(matches)))
	return nil
}

func matchRecord(rec *core.SubjectRecord, opts *FindOptions) bool {
	if opts.Name != "" && !strings.Contains(strings.ToLower(rec.PatientName), strings.ToLower(opts.Name)) {
		return false
	}
	if opts.Exam != "" && rec.ExamID != opts.Exam {
		return false
	}
	if opts.UID != "" && rec.StudyUID != opts.UID {
		return false
	}
	if opts.Date != "" && rec.StudyDate != opts.Date {
		return false
	}
	return true
}
