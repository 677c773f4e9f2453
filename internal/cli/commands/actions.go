package commands

import (
	"github.com/spf13/cobra"

	"github.com/fraser29/zfmrf/internal/cli/output"
	"github.com/fraser29/zfmrf/pkg/zfmrf"
)

// NewActionsCommand creates the actions command.
func NewActionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "List the registered subject actions",
		Long: `List the actions that can be run against a subject with
'zfmrf run'. Each action is also available from the web UI.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runActions(cmd)
		},
	}

	return cmd
}

func runActions(cmd *cobra.Command) error {
	cmdCtx := NewCommandContextWithoutIndex(cmd)
	r := cmdCtx.Renderer

	infos := zfmrf.ActionInfos()
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(infos)
	}

	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, []string{info.Name, info.Description})
	}
	r.Table([]string{"Action", "Description"}, rows)
	return nil
}
