package subject

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fraser29/zfmrf/pkg/core"
	"github.com/fraser29/zfmrf/pkg/dicom"
	"github.com/fraser29/zfmrf/pkg/gating"
)

// NameUnknown is the fallback subject name for anonymised studies.
const NameUnknown = "NAME-Unknown"

// MetaPath returns META/<SUBJID>_meta.json.
func (s *Subject) MetaPath() string {
	return filepath.Join(s.MetaDir(), s.ID+"_meta.json")
}

// LoadMeta reads the subject metadata document. Returns core.ErrNoMeta when
// the file has not been written yet. The document is cached until SaveMeta.
func (s *Subject) LoadMeta() (*core.Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta != nil {
		return s.meta, nil
	}

	data, err := os.ReadFile(s.MetaPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", s.ID, core.ErrNoMeta)
		}
		return nil, fmt.Errorf("read meta: %w", err)
	}
	var m core.Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.MetaPath(), err)
	}
	s.meta = &m
	return s.meta, nil
}

// SaveMeta writes the metadata document and refreshes the cache. The file
// is indented so it stays hand-editable.
func (s *Subject) SaveMeta(m *core.Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.Ensure(s.MetaDir()); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	if err := os.WriteFile(s.MetaPath(), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	s.meta = m
	return nil
}

// Tag returns a metadata tag value or an error when the tag or the whole
// document is missing.
func (s *Subject) Tag(name string) (string, error) {
	m, err := s.LoadMeta()
	if err != nil {
		return "", err
	}
	return m.Tags.Get(name)
}

// TagValue returns a metadata tag value, or "" when absent.
func (s *Subject) TagValue(name string) string {
	m, err := s.LoadMeta()
	if err != nil {
		return ""
	}
	return m.Tags.Value(name)
}

// Name returns the subject's patient name, or NameUnknown for anonymised
// studies.
func (s *Subject) Name() string {
	if name := s.TagValue(core.TagPatientName); name != "" {
		return name
	}
	return NameUnknown
}

// Label builds the human-facing subject label: the study date as YY_MM_DD
// followed by the cleaned name, e.g. 18_04_26_BROWN_James. Anonymised
// studies without a usable date get a Scan_ prefix instead. With
// includeExamID the StudyID is appended.
func (s *Subject) Label(includeExamID bool) string {
	name := s.Name()
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "^", "_")
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}

	var label string
	date := s.TagValue(core.TagStudyDate)
	if len(date) == 8 {
		label = fmt.Sprintf("%s_%s_%s_%s", date[2:4], date[4:6], date[6:8], name)
	} else {
		label = "Scan_" + name
	}
	if includeExamID {
		label = fmt.Sprintf("%s_%s", label, s.TagValue(core.TagStudyID))
	}
	return label
}

// StudyUID returns the StudyInstanceUID tag.
func (s *Subject) StudyUID() string {
	return s.TagValue(core.TagStudyInstanceUID)
}

// ExamID returns the exam identifier, preferring StudyID and falling back
// to ScannerStudyID when StudyID is absent or zeroed by anonymisation.
func (s *Subject) ExamID() string {
	m, err := s.LoadMeta()
	if err != nil {
		return ""
	}
	return m.Tags.ExamID()
}

// ExamWindow derives the exam time window from the study date and the first
// and last series times.
func (s *Subject) ExamWindow() (gating.Window, error) {
	m, err := s.LoadMeta()
	if err != nil {
		return gating.Window{}, err
	}
	date := m.Tags.Value(core.TagStudyDate)
	if len(date) != 8 {
		return gating.Window{}, fmt.Errorf("%s: unusable StudyDate %q", s.ID, date)
	}
	first, last, ok := m.SeriesTimeRange()
	if !ok {
		return gating.Window{}, fmt.Errorf("%s: no series times in metadata", s.ID)
	}
	return gating.ExamWindow(date, first, last)
}

// Record summarises the subject for the index database.
func (s *Subject) Record() (*core.SubjectRecord, error) {
	count, err := s.CountDICOMs()
	if err != nil {
		return nil, err
	}
	rec := &core.SubjectRecord{
		SubjectID:  s.ID,
		DICOMCount: count,
		UpdatedAt:  time.Now().UTC(),
	}
	m, err := s.LoadMeta()
	if err != nil {
		// Indexable without metadata, just sparse.
		return rec, nil
	}
	rec.PatientName = m.Tags.Value(core.TagPatientName)
	rec.PatientID = m.Tags.Value(core.TagPatientID)
	rec.StudyDate = m.Tags.Value(core.TagStudyDate)
	rec.StudyUID = m.Tags.Value(core.TagStudyInstanceUID)
	rec.ExamID = m.Tags.ExamID()
	rec.StationName = m.Tags.Value(core.TagStationName)
	rec.ScannedAt = m.ScannedAt
	return rec, nil
}

// LoadStudy organizes a scanned study into RAW/DICOM and writes the
// metadata document when the subject does not have one yet. Returns the
// number of files placed.
func (s *Subject) LoadStudy(ctx context.Context, sc *dicom.Scanner, st *dicom.Study) (int, error) {
	dest, err := s.Ensure(s.DICOMDir())
	if err != nil {
		return 0, err
	}
	n, err := sc.Organize(ctx, st, dest)
	if err != nil {
		return n, err
	}
	if _, err := s.LoadMeta(); err != nil {
		meta := st.Meta(time.Now().UTC())
		if err := s.SaveMeta(&meta); err != nil {
			return n, err
		}
	}
	s.Log().Info("loaded study", "study", st.UID, "files", n)
	return n, nil
}
