package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

// ArchiveOptions holds options for the archive command.
type ArchiveOptions struct {
	Dest string
}

// NewArchiveCommand creates the archive command.
func NewArchiveCommand() *cobra.Command {
	opts := &ArchiveOptions{}

	cmd := &cobra.Command{
		Use:   "archive <subject>",
		Short: "Move a subject out of the active data root",
		Long: `Move a subject's whole directory tree to an archive location and
drop it from the index.

The move falls back to copy-and-delete when the archive sits on a
different filesystem. An archived subject can be re-indexed later by
pointing --data-root at the archive.`,
		Example: `  # Archive a finished subject
  zfmrf archive MR000042 --dest /mnt/archive/done`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchive(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Dest, "dest", "", "Archive directory (required)")
	_ = cmd.MarkFlagRequired("dest")

	return cmd
}

func runArchive(cmd *cobra.Command, arg string, opts *ArchiveOptions) error {
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

	dest, err := filepath.Abs(opts.Dest)
	if err != nil {
		return err
	}

	spinner := r.NewSpinner(fmt.Sprintf("Archiving %s...", s.ID))
	spinner.Start()
	if err := s.Archive(dest); err != nil {
		spinner.Fail("Archive failed")
		return err
	}
	spinner.Success(fmt.Sprintf("Moved %s to %s", s.ID, s.Path()))

	if err := cmdCtx.Store.DeleteSubject(s.ID); err != nil {
		r.Warning(fmt.Sprintf("Subject moved but not dropped from the index: %v", err))
	}
	return nil
}
