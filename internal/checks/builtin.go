package checks

import (
	"context"
	"errors"

	"github.com/fraser29/zfmrf/pkg/core"
	"github.com/fraser29/zfmrf/pkg/zfmrf"
)

// Builtins returns the standard check set every subject is held to.
func Builtins() []Check {
	return []Check{
		{
			ID:    "meta",
			Name:  "Meta file present",
			Order: 1,
			Fn:    checkMeta,
		},
		{
			ID:    "dicom-files",
			Name:  "DICOM files present",
			Order: 2,
			Fn:    checkDICOMFiles,
		},
		{
			ID:    "series",
			Name:  "Series organized",
			Order: 3,
			Fn:    checkSeries,
		},
		{
			ID:    "gating",
			Name:  "Gating data copied",
			Order: 10,
			Fn:    checkGating,
		},
		{
			ID:    "spectra",
			Name:  "Spectra complete",
			Order: 10,
			Fn:    checkSpectra,
		},
		{
			ID:    "server-count",
			Name:  "DICOM server agreement",
			Order: 20,
			Fn:    checkServerCount,
		},
	}
}

func checkMeta(_ context.Context, s *zfmrf.Subject) Result {
	m, err := s.LoadMeta()
	if errors.Is(err, core.ErrNoMeta) {
		return fail("no meta file - load a study first")
	}
	if err != nil {
		return fail("meta unreadable: %v", err)
	}
	name := m.Tags.ValueOr(core.TagPatientName, "(unnamed)")
	date := m.Tags.ValueOr(core.TagStudyDate, "(undated)")
	return pass("%s scanned %s, %d series", name, date, len(m.Series))
}

func checkDICOMFiles(_ context.Context, s *zfmrf.Subject) Result {
	n, err := s.CountDICOMs()
	if err != nil {
		return fail("count failed: %v", err)
	}
	if n == 0 {
		return fail("no DICOM files under %s", s.DICOMDir())
	}
	return pass("%d DICOM files", n)
}

func checkSeries(_ context.Context, s *zfmrf.Subject) Result {
	folders, err := s.SeriesFolders()
	if err != nil {
		return fail("list failed: %v", err)
	}
	if len(folders) == 0 {
		return warn("DICOMs not organized into series folders")
	}
	return pass("%d series folders", len(folders))
}

func checkGating(_ context.Context, s *zfmrf.Subject) Result {
	if !s.HasGatingData() {
		return warn("no gating data - run copy-gating")
	}
	return pass("gating directory present")
}

func checkSpectra(_ context.Context, s *zfmrf.Subject) Result {
	if !s.HasSpectra() {
		return warn("no spectra data - run copy-spectra")
	}
	complete, err := s.IsSpectraComplete()
	if err != nil {
		return fail("spectra unreadable: %v", err)
	}
	if !complete {
		return warn("spectra present but PDFs missing")
	}
	return pass("spectra complete")
}

func checkServerCount(ctx context.Context, s *zfmrf.Subject) Result {
	if s.Config().DICOMServer == "" {
		return skip("no DICOM server configured")
	}
	if s.StudyUID() == "" {
		return skip("no StudyInstanceUID in meta")
	}
	local, remote, err := s.VerifyServerCount(ctx)
	if err != nil {
		return warn("server not reachable: %v", err)
	}
	if local != remote {
		return fail("count mismatch: %d local, %d in server", local, remote)
	}
	return pass("%d DICOMs locally and in server", local)
}
