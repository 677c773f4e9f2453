package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

// PushOptions holds options for the push command.
type PushOptions struct {
	Dir string
}

// NewPushCommand creates the push command.
func NewPushCommand() *cobra.Command {
	opts := &PushOptions{}

	cmd := &cobra.Command{
		Use:   "push <subject>",
		Short: "Push a subject's DICOMs to the DICOM server",
		Long: `Upload a subject's DICOM files to the configured DICOM server.

By default the whole of RAW/DICOM is sent. Pass --dir to push a
single series directory instead. The server accepts re-sent
instances idempotently, so pushing twice is safe.`,
		Example: `  # Push all images for a subject
  zfmrf push MR000042

  # Push one series only
  zfmrf push 42 --dir RAW/DICOM/SE5_DTI`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", "", "Directory to push (relative to the subject), default RAW/DICOM")

	return cmd
}

func runPush(cmd *cobra.Command, arg string, opts *PushOptions) error {
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

	dir := opts.Dir
	if dir != "" && !filepath.IsAbs(dir) {
		dir = filepath.Join(s.Path(), dir)
	}

	spinner := r.NewSpinner(fmt.Sprintf("Pushing %s to %s...", s.ID, cfg.Parameters.DICOMServer))
	spinner.Start()
	sent, err := s.PushToServer(cmd.Context(), dir)
	if err != nil {
		spinner.Fail("Push failed")
		return err
	}
	spinner.Success(fmt.Sprintf("Pushed %d file(s) from %s", sent, s.ID))
	return nil
}
