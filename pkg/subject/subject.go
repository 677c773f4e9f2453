// Package subject manages standardised imaging subject directories.
//
// Every subject lives under a shared data root as <PREFIX><NNNNNN>, with a
// fixed layout underneath:
//
//	MR000123/
//	  RAW/
//	    DICOM/                organized series directories
//	    PHYSIOLOGICAL_DATA/   gating recordings matched to the exam
//	    SPECTRA/              spectroscopy exports
//	  META/                   metadata document and subject log
//	  PROJECTS/               per-project working areas
//
// The directory tree is the source of truth. Subjects carry their own
// append-only log in META so that every action against a subject leaves a
// trace next to the data it touched.
package subject

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fraser29/zfmrf/pkg/core"
	"github.com/fraser29/zfmrf/pkg/dicom"
)

// Layout directory names.
const (
	DirRaw      = "RAW"
	DirDICOM    = "DICOM"
	DirPhysData = "PHYSIOLOGICAL_DATA"
	DirSpectra  = "SPECTRA"
	DirMeta     = "META"
	DirProjects = "PROJECTS"
)

// Subject is one imaging exam laid out on disk.
type Subject struct {
	ID   string
	Root string

	mu      sync.Mutex
	echo    io.Writer
	level   slog.Leveler
	logger  *slog.Logger
	logFile *os.File
	meta    *core.Meta
}

// New returns a handle on <root>/<id>. Nothing is created on disk until
// Create or a write path needs it.
func New(root, id string) *Subject {
	return &Subject{ID: id, Root: root}
}

// SetEcho mirrors subject log lines to w at the given level. Takes effect
// on the next Log call, so set it before logging starts.
func (s *Subject) SetEcho(w io.Writer, level slog.Leveler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.echo = w
	s.level = level
	s.logger = nil
}

// Path returns the subject directory.
func (s *Subject) Path() string {
	return filepath.Join(s.Root, s.ID)
}

// Exists reports whether the subject directory is present.
func (s *Subject) Exists() bool {
	info, err := os.Stat(s.Path())
	return err == nil && info.IsDir()
}

// Create builds the full directory layout.
func (s *Subject) Create() error {
	for _, dir := range []string{
		s.DICOMDir(),
		s.PhysiologicalDataDir(),
		s.SpectraDir(),
		s.MetaDir(),
		s.ProjectsDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// RawDir returns RAW.
func (s *Subject) RawDir() string {
	return filepath.Join(s.Path(), DirRaw)
}

// DICOMDir returns RAW/DICOM.
func (s *Subject) DICOMDir() string {
	return filepath.Join(s.RawDir(), DirDICOM)
}

// PhysiologicalDataDir returns RAW/PHYSIOLOGICAL_DATA.
func (s *Subject) PhysiologicalDataDir() string {
	return filepath.Join(s.RawDir(), DirPhysData)
}

// SpectraDir returns RAW/SPECTRA.
func (s *Subject) SpectraDir() string {
	return filepath.Join(s.RawDir(), DirSpectra)
}

// MetaDir returns META.
func (s *Subject) MetaDir() string {
	return filepath.Join(s.Path(), DirMeta)
}

// ProjectsDir returns PROJECTS.
func (s *Subject) ProjectsDir() string {
	return filepath.Join(s.Path(), DirProjects)
}

// Ensure creates dir if needed and hands it back, so write paths can do
// dst, err := s.Ensure(s.SpectraDir()).
func (s *Subject) Ensure(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}

// LogPath returns META/<SUBJID>.log.
func (s *Subject) LogPath() string {
	return filepath.Join(s.MetaDir(), s.ID+".log")
}

// Log returns the subject logger. The first call opens the subject log for
// append; when the file cannot be opened the logger degrades to the echo
// writer, and to discard when there is none.
func (s *Subject) Log() *slog.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logger != nil {
		return s.logger
	}

	level := s.level
	if level == nil {
		level = slog.LevelInfo
	}

	var sinks []io.Writer
	if _, err := s.Ensure(s.MetaDir()); err == nil {
		f, err := os.OpenFile(s.LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			s.logFile = f
			sinks = append(sinks, f)
		}
	}
	if s.echo != nil {
		sinks = append(sinks, s.echo)
	}

	if len(sinks) == 0 {
		s.logger = slog.New(slog.DiscardHandler)
		return s.logger
	}
	s.logger = slog.New(slog.NewTextHandler(io.MultiWriter(sinks...), &slog.HandlerOptions{
		Level: level,
	})).With("subject", s.ID)
	return s.logger
}

// Close releases the subject log file.
func (s *Subject) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = nil
	if s.logFile == nil {
		return nil
	}
	err := s.logFile.Close()
	s.logFile = nil
	return err
}

// CountDICOMs counts the DICOM files under RAW/DICOM. A subject without a
// DICOM directory has zero.
func (s *Subject) CountDICOMs() (int64, error) {
	dir := s.DICOMDir()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return 0, nil
	}
	return dicom.CountFiles(dir)
}

// SeriesFolders lists the organized series directory names under RAW/DICOM.
func (s *Subject) SeriesFolders() ([]string, error) {
	entries, err := os.ReadDir(s.DICOMDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dicom dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (s *Subject) String() string {
	return fmt.Sprintf("%s (%s)", s.ID, s.Path())
}
