package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fraser29/zfmrf/pkg/zfmrf"
)

// PullOptions holds options for the pull command.
type PullOptions struct {
	Archive string
}

// NewPullCommand creates the pull command.
func NewPullCommand() *cobra.Command {
	opts := &PullOptions{}

	cmd := &cobra.Command{
		Use:   "pull <subjects...>",
		Short: "Pull subjects' DICOMs back from a remote archive",
		Long: `Locate each subject's exam in a remote archive and load its DICOMs
into RAW/DICOM.

The exam is found by PatientID, StudyDate and exam number, which must
already be present in the subject metadata. This restores subjects
whose image data was trimmed locally after archival.

Several subjects can be named at once; a subject directory that does
not exist is skipped and the rest still run.`,
		Example: `  # Restore images from the archive share
  zfmrf pull MR000042 --archive /mnt/archive/mr3t

  # Restore a whole cohort
  zfmrf pull 42 43 44 --archive /mnt/archive/mr3t`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPull(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Archive, "archive", "", "Remote archive directory (required)")
	_ = cmd.MarkFlagRequired("archive")

	return cmd
}

func runPull(cmd *cobra.Command, args []string, opts *PullOptions) error {
	cmdCtx := NewCommandContextWithoutIndex(cmd)
	cfg := cmdCtx.Cfg
	r := cmdCtx.Renderer

	if err := requireDataRoot(cfg); err != nil {
		return err
	}

	return forEachSubject(cfg, r, args, func(s *zfmrf.Subject) error {
		spinner := r.NewSpinner(fmt.Sprintf("Pulling %s from archive...", s.ID))
		spinner.Start()
		loaded, err := s.PullFromArchive(cmd.Context(), opts.Archive)
		if err != nil {
			spinner.Fail("Archive pull failed")
			return err
		}
		if loaded == 0 {
			spinner.Stop()
			r.Warning(fmt.Sprintf("No files found in the archive for %s", s.ID))
			return nil
		}
		spinner.Success(fmt.Sprintf("Loaded %d file(s) into %s", loaded, s.ID))
		return nil
	})
}
