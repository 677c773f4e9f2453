package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fraser29/zfmrf/internal/cli/output"
)

// ProjectOptions holds options for the project command.
type ProjectOptions struct {
	Name string
	Set  []string
}

// NewProjectCommand creates the project command.
func NewProjectCommand() *cobra.Command {
	opts := &ProjectOptions{}

	cmd := &cobra.Command{
		Use:   "project <subject>",
		Short: "Manage a subject's project working areas",
		Long: `Manage the analysis working areas under a subject's PROJECTS
directory.

Without flags the subject's projects are listed. With --name the
project's metadata document is shown; adding --set key=value pairs
updates it, creating the working area on first write.`,
		Example: `  # List the projects a subject takes part in
  zfmrf project MR000042

  # Show one project's metadata
  zfmrf project 42 --name flow2024

  # Record an analysis state
  zfmrf project 42 --name flow2024 --set segmented=true --set operator=kh`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProject(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "Project name")
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "Set a metadata key (key=value, repeatable)")

	return cmd
}

func runProject(cmd *cobra.Command, arg string, opts *ProjectOptions) error {
	cmdCtx := NewCommandContextWithoutIndex(cmd)
	cfg := cmdCtx.Cfg
	r := cmdCtx.Renderer

	if err := requireDataRoot(cfg); err != nil {
		return err
	}
	if len(opts.Set) > 0 && opts.Name == "" {
		return fmt.Errorf("--set needs --name")
	}
	s, err := resolveSubject(cfg, arg)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if opts.Name == "" {
		names, err := s.Projects()
		if err != nil {
			return err
		}
		if r.EffectiveMode() == output.ModeJSON {
			return r.JSON(names)
		}
		if len(names) == 0 {
			r.Muted(fmt.Sprintf("%s is not part of any project.", s.ID))
			return nil
		}
		for _, name := range names {
			r.Println(name)
		}
		return nil
	}

	if len(opts.Set) > 0 {
		patch, err := parseSetPairs(opts.Set)
		if err != nil {
			return err
		}
		if err := s.UpdateProjectMeta(opts.Name, patch); err != nil {
			return err
		}
		r.Success(fmt.Sprintf("Updated %s metadata for %s", opts.Name, s.ID))
	}

	meta, err := s.ProjectMeta(opts.Name)
	if err != nil {
		return err
	}
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(meta)
	}
	if len(meta) == 0 {
		r.Muted("No metadata recorded.")
		return nil
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.KeyValue(k, fmt.Sprintf("%v", meta[k]))
	}
	return nil
}

func parseSetPairs(pairs []string) (map[string]any, error) {
	patch := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q (want key=value)", pair)
		}
		patch[key] = value
	}
	return patch, nil
}
