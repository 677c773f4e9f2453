package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fraser29/zfmrf/internal/cli/config"
	"github.com/fraser29/zfmrf/pkg/dicom"
	"github.com/fraser29/zfmrf/pkg/subject"
	"github.com/fraser29/zfmrf/pkg/zfmrf"
)

// LoadOptions holds options for the load command.
type LoadOptions struct {
	Subject string
}

// NewLoadCommand creates the load command.
func NewLoadCommand() *cobra.Command {
	opts := &LoadOptions{}

	cmd := &cobra.Command{
		Use:   "load <dicom-dir>",
		Short: "Load DICOM studies into the data root",
		Long: `Scan a directory for DICOM files and load them into subject directories.

Files are grouped by StudyInstanceUID. Each study goes to the subject
already holding that study, or to a freshly numbered subject directory
when the study is new. Images are sorted into series folders under
RAW/DICOM and the study metadata is written to META/.`,
		Example: `  # Load everything the scanner exported
  zfmrf load /mnt/scanner/export

  # Add late series to a known subject
  zfmrf load /mnt/scanner/export --subject MR000042`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Subject, "subject", "s", "", "Load into this subject instead of matching by study UID")

	return cmd
}

func runLoad(cmd *cobra.Command, dir string, opts *LoadOptions) error {
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

	ctx := cmd.Context()
	sc := dicom.NewScanner(cmdCtx.Logger)

	spin := r.NewSpinner(fmt.Sprintf("Scanning %s...", dir))
	spin.Start()
	studies, err := sc.ScanDirectory(ctx, dir)
	if err != nil {
		spin.Fail("scan failed")
		return err
	}
	spin.Success(fmt.Sprintf("Found %d studies", len(studies)))

	if len(studies) == 0 {
		r.Warning(fmt.Sprintf("No DICOM files found in %s", dir))
		return nil
	}
	if opts.Subject != "" && len(studies) > 1 {
		return fmt.Errorf("--subject targets one study, but %s holds %d", dir, len(studies))
	}

	total := 0
	for _, study := range studies {
		s, err := targetSubject(ctx, cmdCtx, study, opts.Subject)
		if err != nil {
			return err
		}

		n, err := s.LoadStudy(ctx, sc, study)
		if err != nil {
			_ = s.Close()
			return fmt.Errorf("load into %s: %w", s.ID, err)
		}
		total += n

		if rec, err := s.Record(); err == nil {
			if err := cmdCtx.Store.UpsertSubject(rec); err != nil {
				cmdCtx.Logger.Warn("could not index subject", "subject", s.ID, "error", err)
			}
		}

		r.StatusLine(s.ID, "success", fmt.Sprintf("%d files, %s", n, s.Name()))
		_ = s.Close()
	}

	r.Println("")
	r.Success(fmt.Sprintf("Loaded %d studies (%d files)", len(studies), total))
	return nil
}

// targetSubject picks the subject directory a study belongs in: the
// explicitly named one, the one already holding the study UID, or a
// freshly numbered one.
func targetSubject(ctx context.Context, cmdCtx *CommandContext, study *dicom.Study, explicit string) (*zfmrf.Subject, error) {
	cfg := cmdCtx.Cfg

	if explicit != "" {
		id, err := subject.ResolveID(explicit, cfg.SubjectPrefix)
		if err != nil {
			return nil, err
		}
		s := zfmrf.New(cfg.DataRoot, id, cfg.Lab())
		if !s.Exists() {
			if err := s.Create(); err != nil {
				return nil, err
			}
		}
		return s, nil
	}

	if s, err := findByStudyUID(ctx, cfg, study.UID); err != nil {
		return nil, err
	} else if s != nil {
		return s, nil
	}

	n, err := subject.NextNumber(cfg.DataRoot, cfg.SubjectPrefix)
	if err != nil {
		return nil, err
	}
	s := zfmrf.New(cfg.DataRoot, subject.FormatID(cfg.SubjectPrefix, n), cfg.Lab())
	if err := s.Create(); err != nil {
		return nil, err
	}
	cmdCtx.Logger.Info("created subject", "subject", s.ID, "study", study.UID)
	return s, nil
}

// findByStudyUID walks the data root looking for the subject whose
// metadata carries the given StudyInstanceUID.
func findByStudyUID(ctx context.Context, cfg *config.Config, studyUID string) (*zfmrf.Subject, error) {
	if studyUID == "" {
		return nil, nil
	}
	ids, err := subject.List(cfg.DataRoot, cfg.SubjectPrefix)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s := zfmrf.New(cfg.DataRoot, id, cfg.Lab())
		if s.StudyUID() == studyUID {
			return s, nil
		}
		_ = s.Close()
	}
	return nil, nil
}
