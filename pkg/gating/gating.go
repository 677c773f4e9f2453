// Package gating locates physiological gating recordings for an MRI exam.
//
// Scanners write cardiac and respiratory waveforms to a backup share as flat
// files whose names encode the acquisition timestamp. The encoding is
// positional: splitting the name on underscores, the date block sits four
// fields from the end (or second from the front for SPU recordings) and the
// minute and second sit in the following two fields. Nothing else about the
// name is stable across scanner software versions, so parsing is strict and
// callers are expected to skip names that do not parse.
package gating

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// spuPrefix marks single physiological unit recordings, which carry the date
// block directly after the prefix instead of counting from the end.
const spuPrefix = "SPU"

// timestampLayout is the wire order of the name fields: MMDDYYYY date block,
// then hour, minute, second.
const timestampLayout = "01022006150405"

// examLayout combines a DICOM StudyDate with a time of day.
const examLayout = "20060102150405"

// File is one gating recording with its decoded acquisition time.
type File struct {
	Name string
	Path string
	Time time.Time
}

// Skipped records a directory entry whose name did not parse.
type Skipped struct {
	Name string
	Err  error
}

// Window is an exam time window. Matching is strictly exclusive on both
// ends: recordings stamped exactly at the first or last series time belong
// to localizers run outside the exam proper.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls strictly inside the window.
func (w Window) Contains(t time.Time) bool {
	return t.After(w.Start) && t.Before(w.End)
}

// ExamWindow builds a Window from a DICOM StudyDate (YYYYMMDD) and the first
// and last series times of the exam (HHMMSS).
func ExamWindow(studyDate, startTime, endTime string) (Window, error) {
	start, err := time.Parse(examLayout, studyDate+startTime)
	if err != nil {
		return Window{}, fmt.Errorf("exam start: %w", err)
	}
	end, err := time.Parse(examLayout, studyDate+endTime)
	if err != nil {
		return Window{}, fmt.Errorf("exam end: %w", err)
	}
	return Window{Start: start, End: end}, nil
}

// ParseTimestamp decodes the acquisition time embedded in a gating file
// name. Names are split on underscores; the date block is field 1 for SPU
// recordings and the fourth field from the end otherwise. The date block is
// eight digits of MMDDYYYY followed by the hour, and the next two fields
// hold minute and second.
func ParseTimestamp(name string) (time.Time, error) {
	parts := strings.Split(name, "_")
	if len(parts) < 4 {
		return time.Time{}, fmt.Errorf("name %q has %d underscore fields, need at least 4", name, len(parts))
	}

	dateBlock := parts[len(parts)-4]
	if strings.HasPrefix(name, spuPrefix) {
		dateBlock = parts[1]
	}
	if len(dateBlock) < 8 {
		return time.Time{}, fmt.Errorf("name %q date block %q is too short", name, dateBlock)
	}

	date := dateBlock[:8]
	hour := dateBlock[len(dateBlock)-2:]
	minute := parts[len(parts)-3]
	second := parts[len(parts)-2]

	ts, err := time.Parse(timestampLayout, date+hour+minute+second)
	if err != nil {
		return time.Time{}, fmt.Errorf("name %q: %w", name, err)
	}
	return ts, nil
}

// Scan reads a gating backup directory and decodes every file name. Names
// that do not parse come back in skipped so callers can log and move on.
// Files are returned in acquisition order.
func Scan(dir string) (files []File, skipped []Skipped, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read gating dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ts, perr := ParseTimestamp(e.Name())
		if perr != nil {
			skipped = append(skipped, Skipped{Name: e.Name(), Err: perr})
			continue
		}
		files = append(files, File{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Time: ts,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Time.Before(files[j].Time) })
	return files, skipped, nil
}

// MatchWindow filters files to those acquired strictly inside the window.
func MatchWindow(files []File, w Window) []File {
	var out []File
	for _, f := range files {
		if w.Contains(f.Time) {
			out = append(out, f)
		}
	}
	return out
}
