// Package zfmrf extends the base subject with the ZFMRF lab workflow.
//
// The lab runs MR exams whose DICOMs land in subject directories, mirrors
// them to an Orthanc server, and collects two kinds of sidecar data per
// exam: physiological gating recordings from the scanner backup share and
// spectroscopy exports from the SAGE workstation. Subject wires those
// sources together, and the action registry surfaces the operations to the
// command line and the web UI.
package zfmrf

import (
	"context"
	"fmt"
	"strings"

	"github.com/fraser29/zfmrf/pkg/core"
	"github.com/fraser29/zfmrf/pkg/dicom"
	"github.com/fraser29/zfmrf/pkg/orthanc"
	"github.com/fraser29/zfmrf/pkg/subject"
)

// Category groups the lab's actions in the CLI and web UI.
const Category = "ZFMRF"

// Config carries the lab parameters from the configuration file.
type Config struct {
	// PhysiologyDataDir is the scanner backup share holding gating
	// recordings, one <StationName>/gating directory per scanner.
	PhysiologyDataDir string
	// SageDataDir is the SAGE spectroscopy archive.
	SageDataDir string
	// DICOMServer is the Orthanc server address. Empty disables all
	// server-side operations.
	DICOMServer string
}

// Subject is a base subject plus the lab's exam plumbing.
type Subject struct {
	*subject.Subject

	cfg     Config
	server  *orthanc.Client
	scanner *dicom.Scanner
}

// New returns a handle on <root>/<id> with the lab configuration attached.
func New(root, id string, cfg Config) *Subject {
	return &Subject{Subject: subject.New(root, id), cfg: cfg}
}

// Config returns the lab configuration the subject was opened with.
func (s *Subject) Config() Config {
	return s.cfg
}

// SetServer replaces the Orthanc client, mainly for tests.
func (s *Subject) SetServer(c *orthanc.Client) {
	s.server = c
}

// Server returns the Orthanc client, or core.ErrNoServer when no server is
// configured.
func (s *Subject) Server() (*orthanc.Client, error) {
	if s.server != nil {
		return s.server, nil
	}
	if s.cfg.DICOMServer == "" {
		return nil, core.ErrNoServer
	}
	c, err := orthanc.New(s.cfg.DICOMServer, s.Log())
	if err != nil {
		return nil, err
	}
	s.server = c
	return s.server, nil
}

// Scanner returns the DICOM scanner, logging through the subject log.
func (s *Subject) Scanner() *dicom.Scanner {
	if s.scanner == nil {
		s.scanner = dicom.NewScanner(s.Log())
	}
	return s.scanner
}

// ServerDICOMCount asks the server how many instances it holds for this
// subject's study. A study the server does not know counts as zero.
func (s *Subject) ServerDICOMCount(ctx context.Context) (int64, error) {
	uid := s.StudyUID()
	if uid == "" {
		return 0, fmt.Errorf("%s: no StudyInstanceUID in metadata", s.ID)
	}
	server, err := s.Server()
	if err != nil {
		return 0, err
	}
	return server.CountInstancesByStudyUID(ctx, uid)
}

// VerifyServerCount compares the local DICOM file count against the
// server's instance count for the same study.
func (s *Subject) VerifyServerCount(ctx context.Context) (local, remote int64, err error) {
	local, err = s.CountDICOMs()
	if err != nil {
		return 0, 0, err
	}
	remote, err = s.ServerDICOMCount(ctx)
	if err != nil {
		return local, 0, err
	}
	s.Log().Info("dicom count check", "local", local, "server", remote, "match", local == remote)
	return local, remote, nil
}

// PushToServer uploads a directory of DICOMs to the server. An empty dir
// defaults to the subject's RAW/DICOM. Uploading an empty directory is a
// warned no-op.
func (s *Subject) PushToServer(ctx context.Context, dir string) (int, error) {
	server, err := s.Server()
	if err != nil {
		return 0, err
	}
	if dir == "" {
		dir = s.DICOMDir()
	}
	s.Log().Info("uploading to dicom server", "dir", dir, "server", server.BaseURL())
	n, err := server.UploadDirectory(ctx, dir)
	if err != nil {
		return n, fmt.Errorf("upload to server: %w", err)
	}
	s.Log().Info("upload finished", "files", n)
	return n, nil
}

// HasDTI reports whether any organized series folder looks like a DTI
// acquisition.
func (s *Subject) HasDTI() (bool, error) {
	return s.hasSeriesFolder("dti")
}

// HasT1 reports whether any organized series folder looks like a T1
// acquisition.
func (s *Subject) HasT1() (bool, error) {
	return s.hasSeriesFolder("t1")
}

func (s *Subject) hasSeriesFolder(token string) (bool, error) {
	names, err := s.SeriesFolders()
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if strings.Contains(strings.ToLower(name), token) {
			return true, nil
		}
	}
	return false, nil
}
