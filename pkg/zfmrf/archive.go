package zfmrf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fraser29/zfmrf/pkg/core"
)

// findArchiveStudyDirs resolves where a subject's exam sits in the remote
// archive. The archive keeps one _<PatientID>* directory per patient, and
// inside it one directory per exam carrying both the study date and the
// exam number in its name.
func findArchiveStudyDirs(archiveDir, patientID, studyDate, examID string) ([]string, error) {
	entries, err := os.ReadDir(archiveDir)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}

	var patientDir string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "_"+patientID) {
			patientDir = filepath.Join(archiveDir, e.Name())
		}
	}
	if patientDir == "" {
		return nil, fmt.Errorf("no archive directory for patient %s under %s", patientID, archiveDir)
	}

	subEntries, err := os.ReadDir(patientDir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", patientDir, err)
	}
	var matches []string
	for _, e := range subEntries {
		if !e.IsDir() {
			continue
		}
		if strings.Contains(e.Name(), studyDate) && strings.Contains(e.Name(), examID) {
			matches = append(matches, filepath.Join(patientDir, e.Name()))
		}
	}
	return matches, nil
}

// PullFromArchive loads this subject's DICOMs from a remote archive
// directory into RAW/DICOM. The exam is located by PatientID, StudyDate
// and exam number, all of which must already be in the subject metadata.
// Returns the number of files loaded.
func (s *Subject) PullFromArchive(ctx context.Context, archiveDir string) (int, error) {
	patientID, err := s.Tag(core.TagPatientID)
	if err != nil {
		return 0, fmt.Errorf("archive pull needs PatientID: %w", err)
	}
	studyDate, err := s.Tag(core.TagStudyDate)
	if err != nil {
		return 0, fmt.Errorf("archive pull needs StudyDate: %w", err)
	}
	examID := s.ExamID()
	if examID == "" {
		return 0, fmt.Errorf("archive pull needs an exam id for %s", s.ID)
	}

	s.Log().Debug("locating exam in archive", "archive", archiveDir, "patient_id", patientID)
	dirs, err := findArchiveStudyDirs(archiveDir, patientID, studyDate, examID)
	if err != nil {
		return 0, err
	}
	s.Log().Debug("archive directories matched", "count", len(dirs))

	loaded := 0
	for _, dir := range dirs {
		s.Log().Info("loading dicoms from archive", "dir", dir)
		studies, err := s.Scanner().ScanDirectory(ctx, dir)
		if err != nil {
			return loaded, err
		}
		for _, study := range studies {
			n, err := s.LoadStudy(ctx, s.Scanner(), study)
			loaded += n
			if err != nil {
				return loaded, err
			}
		}
	}
	return loaded, nil
}
