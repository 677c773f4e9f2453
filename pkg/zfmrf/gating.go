package zfmrf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fraser29/zfmrf/pkg/core"
	"github.com/fraser29/zfmrf/pkg/gating"
	"github.com/fraser29/zfmrf/pkg/subject"
)

// gatingSubdir is the per-scanner directory on the backup share.
const gatingSubdir = "gating"

// GatingDir returns the backup share directory for this subject's scanner:
// <physiology_data_dir>/<StationName>/gating.
func (s *Subject) GatingDir() (string, error) {
	if s.cfg.PhysiologyDataDir == "" {
		return "", fmt.Errorf("physiology_data_dir is not set - set in config file")
	}
	if info, err := os.Stat(s.cfg.PhysiologyDataDir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("physiology_data_dir is not a directory: %s", s.cfg.PhysiologyDataDir)
	}
	station, err := s.Tag(core.TagStationName)
	if err != nil {
		return "", fmt.Errorf("gating needs StationName: %w", err)
	}
	return filepath.Join(s.cfg.PhysiologyDataDir, station, gatingSubdir), nil
}

// CopyGatingToStudy finds the physiological recordings acquired during this
// subject's exam and copies them into RAW/PHYSIOLOGICAL_DATA. Recordings
// are matched by the timestamp in their file name against the exam window;
// names that do not parse are logged and skipped. Returns the number of
// files copied.
func (s *Subject) CopyGatingToStudy(ctx context.Context) (int, error) {
	gatingDir, err := s.GatingDir()
	if err != nil {
		return 0, err
	}
	if info, err := os.Stat(gatingDir); err != nil || !info.IsDir() {
		return 0, fmt.Errorf("gating backup directory not accessible: %s", gatingDir)
	}

	window, err := s.ExamWindow()
	if err != nil {
		return 0, fmt.Errorf("gating needs the exam window: %w", err)
	}

	files, skipped, err := gating.Scan(gatingDir)
	if err != nil {
		return 0, err
	}
	for _, sk := range skipped {
		s.Log().Warn("could not parse date from file", "file", sk.Name, "error", sk.Err)
	}

	dest, err := s.Ensure(s.PhysiologicalDataDir())
	if err != nil {
		return 0, err
	}

	copied := 0
	for _, f := range gating.MatchWindow(files, window) {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		if err := subject.CopyFileInto(f.Path, dest); err != nil {
			return copied, err
		}
		s.Log().Debug("copied gating file", "file", f.Name, "acquired", f.Time)
		copied++
	}
	s.Log().Info("copied gating files to study", "count", copied, "window_start", window.Start, "window_end", window.End)
	return copied, nil
}

// HasGatingData reports whether RAW/PHYSIOLOGICAL_DATA holds anything.
func (s *Subject) HasGatingData() bool {
	entries, err := os.ReadDir(s.PhysiologicalDataDir())
	return err == nil && len(entries) > 0
}
