// Package dicom reads study and series metadata out of DICOM files and
// sorts loose scanner exports into the subject directory layout.
//
// Only headers are read. Pixel data is skipped everywhere, which keeps a
// full-study scan cheap enough to run from the command line.
package dicom

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	suya "github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/fraser29/zfmrf/pkg/core"
)

// FileInfo is the header summary of one DICOM file.
type FileInfo struct {
	Path              string
	StudyInstanceUID  string
	SeriesInstanceUID string
	SeriesNumber      int
	SeriesDescription string
	SeriesTime        string
	InstanceNumber    int
	SOPInstanceUID    string
	Tags              core.Tags
}

// studyTags are the study-level keywords copied into subject metadata.
var studyTags = map[string]tag.Tag{
	core.TagPatientName:           tag.PatientName,
	core.TagPatientID:             tag.PatientID,
	core.TagPatientBirthDate:      tag.PatientBirthDate,
	core.TagPatientSex:            tag.PatientSex,
	core.TagStudyDate:             tag.StudyDate,
	core.TagStudyTime:             tag.StudyTime,
	core.TagStudyID:               tag.StudyID,
	core.TagStudyInstanceUID:      tag.StudyInstanceUID,
	core.TagStudyDescription:      tag.StudyDescription,
	core.TagStationName:           tag.StationName,
	core.TagInstitutionName:       tag.InstitutionName,
	core.TagMagneticFieldStrength: tag.MagneticFieldStrength,
	core.TagManufacturer:          tag.Manufacturer,
	core.TagModality:              tag.Modality,
}

// IsDICOMFile sniffs the DICM magic at offset 128.
func IsDICOMFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	var preamble [132]byte
	if _, err := io.ReadFull(f, preamble[:]); err != nil {
		return false
	}
	return string(preamble[128:132]) == "DICM"
}

// ReadFileInfo parses one file's headers.
func ReadFileInfo(path string) (FileInfo, error) {
	ds, err := suya.ParseFile(path, nil, suya.SkipPixelData())
	if err != nil {
		return FileInfo{}, fmt.Errorf("parse %s: %w", path, err)
	}

	info := FileInfo{
		Path: path,
		Tags: make(core.Tags, len(studyTags)),
	}
	for keyword, t := range studyTags {
		if v := datasetString(&ds, t); v != "" {
			info.Tags[keyword] = v
		}
	}

	info.StudyInstanceUID = info.Tags[core.TagStudyInstanceUID]
	info.SeriesInstanceUID = datasetString(&ds, tag.SeriesInstanceUID)
	info.SeriesDescription = datasetString(&ds, tag.SeriesDescription)
	info.SeriesTime = datasetString(&ds, tag.SeriesTime)
	info.SOPInstanceUID = datasetString(&ds, tag.SOPInstanceUID)
	info.SeriesNumber = datasetInt(&ds, tag.SeriesNumber)
	info.InstanceNumber = datasetInt(&ds, tag.InstanceNumber)

	if info.StudyInstanceUID == "" {
		return FileInfo{}, fmt.Errorf("%s has no StudyInstanceUID", path)
	}
	return info, nil
}

// ReadTags parses one file and returns its study-level tags.
func ReadTags(path string) (core.Tags, error) {
	info, err := ReadFileInfo(path)
	if err != nil {
		return nil, err
	}
	return info.Tags, nil
}

func datasetString(ds *suya.Dataset, t tag.Tag) string {
	el, err := ds.FindElementByTag(t)
	if err != nil || el == nil {
		return ""
	}
	return elementString(el)
}

func datasetInt(ds *suya.Dataset, t tag.Tag) int {
	s := datasetString(ds, t)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// elementString flattens an element value to a single trimmed string.
// Multi-valued elements keep the DICOM backslash separator.
func elementString(el *suya.Element) string {
	if el.Value == nil {
		return ""
	}
	switch v := el.Value.GetValue().(type) {
	case []string:
		return strings.TrimSpace(strings.Join(v, `\`))
	case []int:
		parts := make([]string, len(v))
		for i, n := range v {
			parts[i] = strconv.Itoa(n)
		}
		return strings.Join(parts, `\`)
	case []float64:
		parts := make([]string, len(v))
		for i, f := range v {
			parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return strings.Join(parts, `\`)
	case string:
		return strings.TrimSpace(v)
	default:
		return ""
	}
}
