package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fraser29/zfmrf/internal/state"
)

// NewIndexCommand creates the index command.
func NewIndexCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild the subject index from the data root",
		Long: `Walk the data root and rebuild the subject index.

Every directory matching the subject ID scheme is (re)read and upserted
into the index; rows whose directories have disappeared are removed.
The directories remain the source of truth, the index is only a cache
over them.`,
		Example: `  # Rebuild the index after copying subjects in by hand
  zfmrf index`,
		Args: cobra.NoArgs,
		RunE: runIndex,
	}

	return cmd
}

func runIndex(cmd *cobra.Command, _ []string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := cmdCtx.Cfg
	if err := requireDataRoot(cfg); err != nil {
		return err
	}

	n, err := state.SyncIndex(cmd.Context(), cmdCtx.Store, cfg.DataRoot, cfg.SubjectPrefix, cmdCtx.Logger)
	if err != nil {
		return fmt.Errorf("failed to rebuild index: %w", err)
	}

	cmdCtx.Renderer.Success(fmt.Sprintf("Indexed %d subjects from %s", n, cfg.DataRoot))
	return nil
}
