package zfmrf

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraser29/zfmrf/pkg/core"
)

func TestFindArchiveStudyDirs(t *testing.T) {
	archive := t.TempDir()
	patientDir := filepath.Join(archive, "_MR8812_BROWN_James")
	require.NoError(t, os.MkdirAll(filepath.Join(patientDir, "20180426_5566_MR"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(patientDir, "20180426_9999_MR"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(patientDir, "20190102_5566_MR"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(archive, "_MR0000_OTHER"), 0o755))

	dirs, err := findArchiveStudyDirs(archive, "MR8812", "20180426", "5566")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(patientDir, "20180426_5566_MR")}, dirs)
}

func TestFindArchiveStudyDirsNoPatient(t *testing.T) {
	archive := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(archive, "_MR0000_OTHER"), 0o755))

	_, err := findArchiveStudyDirs(archive, "MR8812", "20180426", "5566")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MR8812")
}

func TestPullFromArchiveNeedsMeta(t *testing.T) {
	s := New(t.TempDir(), "MR000003", Config{})
	require.NoError(t, s.Create())
	defer s.Close()

	_, err := s.PullFromArchive(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, core.ErrNoMeta)
}

func TestPullFromArchiveNothingParsable(t *testing.T) {
	archive := t.TempDir()
	examDir := filepath.Join(archive, "_MR8812_BROWN", "20180426_5566_MR")
	require.NoError(t, os.MkdirAll(examDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(examDir, "index.html"), []byte("<html>"), 0o644))

	s := newLabSubject(t, Config{})

	n, err := s.PullFromArchive(context.Background(), archive)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing in the archive dir parses as DICOM")
}
