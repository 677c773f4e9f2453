package zfmrf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fraser29/zfmrf/pkg/core"
	"github.com/fraser29/zfmrf/pkg/subject"
)

// HasSpectra reports whether RAW/SPECTRA holds anything.
func (s *Subject) HasSpectra() bool {
	entries, err := os.ReadDir(s.SpectraDir())
	return err == nil && len(entries) > 0
}

// FindSpectraInSage locates this subject's exam in the SAGE archive.
//
// Fast path first: SAGE lays out <sage_data_dir>/<dir containing
// PatientID>/<ExamID>, so a directory listing usually resolves it. When
// that misses, every DICOM in the archive is scanned for this subject's
// StudyInstanceUID, which is slow but survives renamed directories.
func (s *Subject) FindSpectraInSage(ctx context.Context) (string, error) {
	if s.cfg.SageDataDir == "" {
		return "", fmt.Errorf("sage_data_dir is not set - set in config file")
	}

	patID := s.TagValue(core.TagPatientID)
	examID := s.ExamID()
	s.Log().Info("searching sage archive", "patient_id", patID, "exam_id", examID)

	if patID != "" && examID != "" {
		entries, err := os.ReadDir(s.cfg.SageDataDir)
		if err != nil {
			return "", fmt.Errorf("read sage archive: %w", err)
		}
		for _, e := range entries {
			if !e.IsDir() || !strings.Contains(e.Name(), patID) {
				continue
			}
			candidate := filepath.Join(s.cfg.SageDataDir, e.Name(), examID)
			if info, err := os.Stat(candidate); err == nil && info.IsDir() {
				s.Log().Info("found sage study directory", "dir", candidate)
				return candidate, nil
			}
			s.Log().Warn("expected sage study directory not found", "dir", candidate)
		}
	} else {
		s.Log().Warn("cannot search sage by ids", "patient_id", patID, "exam_id", examID)
	}
	s.Log().Info("sage fast path failed, scanning archive dicoms")

	uid := s.StudyUID()
	if uid == "" {
		return "", fmt.Errorf("%s: no StudyInstanceUID to search sage archive with", s.ID)
	}
	study, err := s.Scanner().FindStudy(ctx, s.cfg.SageDataDir, uid)
	if err != nil {
		return "", fmt.Errorf("sage archive scan: %w", err)
	}
	if len(study.Files) == 0 {
		return "", fmt.Errorf("sage archive scan found no files for %s", uid)
	}
	// The study directory is the common parent of the matched files.
	dir := filepath.Dir(study.Files[0].Path)
	s.Log().Info("found sage study directory by scan", "dir", dir)
	return dir, nil
}

// CopySpectraToStudy copies the exam's SAGE export into RAW/SPECTRA.
// Without force, a subject that already has spectra is left alone. Returns
// true when files were copied.
func (s *Subject) CopySpectraToStudy(ctx context.Context, force bool) (bool, error) {
	if !force && s.HasSpectra() {
		s.Log().Info("spectra already present, skipping copy")
		return false, nil
	}

	sageDir, err := s.FindSpectraInSage(ctx)
	if err != nil {
		return false, err
	}
	dest, err := s.Ensure(s.SpectraDir())
	if err != nil {
		return false, err
	}
	if err := subject.CopyTree(sageDir, dest); err != nil {
		return false, fmt.Errorf("copy spectra: %w", err)
	}
	s.Log().Info("copied spectra to study", "from", sageDir, "to", dest)
	return true, nil
}

// SpectraPDFs maps each numeric spectra series directory to its processed
// P*.7.PDF report, or "" when the report has not been generated yet.
func (s *Subject) SpectraPDFs() (map[string]string, error) {
	entries, err := os.ReadDir(s.SpectraDir())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read spectra dir: %w", err)
	}

	pdfs := make(map[string]string)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := strconv.Atoi(e.Name()); err != nil {
			continue
		}
		pdfs[e.Name()] = ""
		seriesDir := filepath.Join(s.SpectraDir(), e.Name())
		subEntries, err := os.ReadDir(seriesDir)
		if err != nil {
			return nil, fmt.Errorf("read spectra series %s: %w", e.Name(), err)
		}
		for _, sub := range subEntries {
			name := sub.Name()
			if strings.HasPrefix(name, "P") && strings.HasSuffix(name, ".7.PDF") {
				pdfs[e.Name()] = filepath.Join(seriesDir, name)
			}
		}
	}
	return pdfs, nil
}

// IsSpectraComplete reports whether spectra exist and every series has its
// processed PDF report.
func (s *Subject) IsSpectraComplete() (bool, error) {
	if !s.HasSpectra() {
		return false, nil
	}
	pdfs, err := s.SpectraPDFs()
	if err != nil {
		return false, err
	}
	for _, pdf := range pdfs {
		if pdf == "" {
			return false, nil
		}
		if info, err := os.Stat(pdf); err != nil || info.IsDir() {
			return false, nil
		}
	}
	return true, nil
}
