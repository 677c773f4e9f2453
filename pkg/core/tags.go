package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Well-known DICOM tag keywords stored in subject metadata.
// Values are kept as the strings read from the DICOM headers.
const (
	TagPatientName           = "PatientName"
	TagPatientID             = "PatientID"
	TagPatientBirthDate      = "PatientBirthDate"
	TagPatientSex            = "PatientSex"
	TagStudyDate             = "StudyDate"
	TagStudyTime             = "StudyTime"
	TagStudyID               = "StudyID"
	TagStudyInstanceUID      = "StudyInstanceUID"
	TagStudyDescription      = "StudyDescription"
	TagStationName           = "StationName"
	TagInstitutionName       = "InstitutionName"
	TagMagneticFieldStrength = "MagneticFieldStrength"
	TagManufacturer          = "Manufacturer"
	TagModality              = "Modality"

	// ScannerStudyID is a scanner-assigned exam number carried alongside the
	// DICOM StudyID. Some anonymisation pipelines zero StudyID but keep this.
	TagScannerStudyID = "ScannerStudyID"
)

// dicomDateLayout is the DA value representation (e.g. 20180426).
const dicomDateLayout = "20060102"

// Tags holds DICOM tag keyword -> value pairs for one study.
type Tags map[string]string

// Get returns the value for a tag keyword or ErrTagNotFound.
func (t Tags) Get(name string) (string, error) {
	v, ok := t[name]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrTagNotFound, name)
	}
	return v, nil
}

// Value returns the tag value, or the empty string when absent.
func (t Tags) Value(name string) string {
	return t[name]
}

// ValueOr returns the tag value, or fallback when absent or empty.
func (t Tags) ValueOr(name, fallback string) string {
	if v := t[name]; v != "" {
		return v
	}
	return fallback
}

// Has reports whether a non-empty value exists for the tag keyword.
func (t Tags) Has(name string) bool {
	return t[name] != ""
}

// Int returns the tag value parsed as an integer.
func (t Tags) Int(name string) (int, error) {
	v, err := t.Get(name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("tag %s is not an integer: %w", name, err)
	}
	return n, nil
}

// StudyDate returns the parsed StudyDate tag.
func (t Tags) StudyDate() (time.Time, error) {
	v, err := t.Get(TagStudyDate)
	if err != nil {
		return time.Time{}, err
	}
	d, err := time.Parse(dicomDateLayout, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid StudyDate %q: %w", v, err)
	}
	return d, nil
}

// PatientName returns the PatientName tag with DICOM caret separators kept.
// Callers wanting a filesystem-safe form should use subject labels instead.
func (t Tags) PatientName() string {
	return t.Value(TagPatientName)
}

// ExamID returns the exam identifier: the StudyID tag, falling back to
// ScannerStudyID when StudyID is absent or the literal "0".
func (t Tags) ExamID() string {
	id := strings.TrimSpace(t.Value(TagStudyID))
	if id == "" || id == "0" {
		if alt := strings.TrimSpace(t.Value(TagScannerStudyID)); alt != "" {
			return alt
		}
	}
	return id
}

// Clone returns a copy of the tag map.
func (t Tags) Clone() Tags {
	out := make(Tags, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
