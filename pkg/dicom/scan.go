package dicom

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fraser29/zfmrf/pkg/core"
)

// Study is one DICOM study reassembled from loose files.
type Study struct {
	UID   string
	Tags  core.Tags
	Files []FileInfo
}

// FileCount returns the number of files found for the study.
func (st *Study) FileCount() int {
	return len(st.Files)
}

// Meta summarises the study for the subject metadata file.
func (st *Study) Meta(scannedAt time.Time) core.Meta {
	type agg struct {
		series core.Series
		count  int
	}
	byUID := make(map[string]*agg)
	for _, f := range st.Files {
		a, ok := byUID[f.SeriesInstanceUID]
		if !ok {
			a = &agg{series: core.Series{
				Number:      f.SeriesNumber,
				Description: f.SeriesDescription,
				UID:         f.SeriesInstanceUID,
				Time:        f.SeriesTime,
			}}
			byUID[f.SeriesInstanceUID] = a
		}
		a.count++
	}

	meta := core.Meta{
		Tags:      st.Tags.Clone(),
		ScannedAt: scannedAt,
	}
	for _, a := range byUID {
		a.series.ImageCount = a.count
		meta.Series = append(meta.Series, a.series)
	}
	meta.SortSeries()
	return meta
}

// Scanner walks directory trees and reassembles studies from the DICOM
// files it finds.
type Scanner struct {
	logger *slog.Logger
	limit  int
}

// NewScanner creates a scanner. A nil logger discards scan diagnostics.
func NewScanner(logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scanner{logger: logger, limit: runtime.NumCPU()}
}

// ScanDirectory parses every DICOM file under root and groups the results
// by StudyInstanceUID. Non-DICOM files are ignored and unreadable DICOM
// files are logged and skipped. Header parsing runs on all CPUs.
func (s *Scanner) ScanDirectory(ctx context.Context, root string) ([]*Study, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	var (
		mu      sync.Mutex
		studies = make(map[string]*Study)
		skipped int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for _, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if !IsDICOMFile(path) {
				return nil
			}
			info, err := ReadFileInfo(path)
			if err != nil {
				s.logger.Debug("skipping unreadable file", "path", path, "error", err)
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			st, ok := studies[info.StudyInstanceUID]
			if !ok {
				st = &Study{UID: info.StudyInstanceUID, Tags: info.Tags.Clone()}
				studies[info.StudyInstanceUID] = st
			}
			st.Files = append(st.Files, info)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*Study, 0, len(studies))
	for _, st := range studies {
		sort.Slice(st.Files, func(i, j int) bool {
			a, b := st.Files[i], st.Files[j]
			if a.SeriesNumber != b.SeriesNumber {
				return a.SeriesNumber < b.SeriesNumber
			}
			if a.InstanceNumber != b.InstanceNumber {
				return a.InstanceNumber < b.InstanceNumber
			}
			return a.Path < b.Path
		})
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })

	s.logger.Debug("scan complete", "root", root, "studies", len(out), "skipped", skipped)
	return out, nil
}

// FindStudy scans root for one specific StudyInstanceUID.
func (s *Scanner) FindStudy(ctx context.Context, root, studyUID string) (*Study, error) {
	studies, err := s.ScanDirectory(ctx, root)
	if err != nil {
		return nil, err
	}
	for _, st := range studies {
		if st.UID == studyUID {
			return st, nil
		}
	}
	return nil, fmt.Errorf("study %s not found under %s", studyUID, root)
}

// CountFiles counts the DICOM files under root.
func CountFiles(root string) (int64, error) {
	var n int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if IsDICOMFile(path) {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk %s: %w", root, err)
	}
	return n, nil
}
