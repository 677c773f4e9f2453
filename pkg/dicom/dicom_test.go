package dicom

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraser29/zfmrf/pkg/core"
)

// writeFakeDICOM writes a file that passes the DICM preamble sniff but has
// no parsable dataset behind it.
func writeFakeDICOM(t *testing.T, path string) {
	t.Helper()
	data := make([]byte, 132)
	copy(data[128:], "DICM")
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestIsDICOMFile(t *testing.T) {
	dir := t.TempDir()

	dcm := filepath.Join(dir, "im1")
	writeFakeDICOM(t, dcm)
	assert.True(t, IsDICOMFile(dcm))

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("just text, no preamble"), 0o644))
	assert.False(t, IsDICOMFile(txt))

	short := filepath.Join(dir, "short")
	require.NoError(t, os.WriteFile(short, []byte("tiny"), 0o644))
	assert.False(t, IsDICOMFile(short))

	assert.False(t, IsDICOMFile(filepath.Join(dir, "missing")))
}

func TestCountFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "SE2_Loc")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	writeFakeDICOM(t, filepath.Join(dir, "im1"))
	writeFakeDICOM(t, filepath.Join(sub, "im2"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("x"), 0o644))

	n, err := CountFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestScanDirectorySkipsUnreadable(t *testing.T) {
	dir := t.TempDir()
	// Passes the sniff, fails the parse: scanned over, not fatal.
	writeFakeDICOM(t, filepath.Join(dir, "broken"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	studies, err := NewScanner(nil).ScanDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, studies)
}

func TestScanDirectoryMissingRoot(t *testing.T) {
	_, err := NewScanner(nil).ScanDirectory(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestStudyMeta(t *testing.T) {
	st := &Study{
		UID: "1.2.840.999.1",
		Tags: core.Tags{
			core.TagPatientName: "BROWN^James",
			core.TagStudyDate:   "20180426",
		},
		Files: []FileInfo{
			{SeriesInstanceUID: "1.2.s5", SeriesNumber: 5, SeriesDescription: "DTI 32dir", SeriesTime: "143233"},
			{SeriesInstanceUID: "1.2.s5", SeriesNumber: 5, SeriesDescription: "DTI 32dir", SeriesTime: "143233"},
			{SeriesInstanceUID: "1.2.s2", SeriesNumber: 2, SeriesDescription: "3Plane Loc", SeriesTime: "140501"},
		},
	}

	scannedAt := time.Date(2018, 4, 27, 8, 0, 0, 0, time.UTC)
	meta := st.Meta(scannedAt)

	assert.Equal(t, "BROWN^James", meta.Tags[core.TagPatientName])
	assert.Equal(t, scannedAt, meta.ScannedAt)

	require.Len(t, meta.Series, 2)
	assert.Equal(t, 2, meta.Series[0].Number)
	assert.Equal(t, 1, meta.Series[0].ImageCount)
	assert.Equal(t, 5, meta.Series[1].Number)
	assert.Equal(t, 2, meta.Series[1].ImageCount)
	assert.Equal(t, "DTI 32dir", meta.Series[1].Description)

	// Meta tags are a copy, not a view.
	meta.Tags[core.TagPatientName] = "changed"
	assert.Equal(t, "BROWN^James", st.Tags[core.TagPatientName])
}

func TestSeriesDirName(t *testing.T) {
	tests := []struct {
		number      int
		description string
		want        string
	}{
		{2, "3Plane Loc", "SE2_3PlaneLoc"},
		{5, "Ax T1 BRAVO", "SE5_AxT1BRAVO"},
		{7, "DTI 32dir (b=1000)", "SE7_DTI32dirb1000"},
		{9, "", "SE9"},
		{11, "???", "SE11"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SeriesDirName(tt.number, tt.description))
	}
}

func TestOrganize(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()

	paths := make([]string, 3)
	for i := range paths {
		paths[i] = filepath.Join(src, "f"+string(rune('a'+i)))
		require.NoError(t, os.WriteFile(paths[i], []byte("data"), 0o644))
	}

	st := &Study{
		UID: "1.2.840.999.1",
		Files: []FileInfo{
			{Path: paths[0], SeriesNumber: 2, SeriesDescription: "3Plane Loc", InstanceNumber: 1},
			{Path: paths[1], SeriesNumber: 2, SeriesDescription: "3Plane Loc", InstanceNumber: 2},
			{Path: paths[2], SeriesNumber: 5, SeriesDescription: "Ax T1", InstanceNumber: 1},
		},
	}

	n, err := NewScanner(nil).Organize(context.Background(), st, dest)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.FileExists(t, filepath.Join(dest, "SE2_3PlaneLoc", "IM-00001.dcm"))
	assert.FileExists(t, filepath.Join(dest, "SE2_3PlaneLoc", "IM-00002.dcm"))
	assert.FileExists(t, filepath.Join(dest, "SE5_AxT1", "IM-00001.dcm"))
}

func TestOrganizeInstanceCollisions(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()

	paths := make([]string, 3)
	for i := range paths {
		paths[i] = filepath.Join(src, "f"+string(rune('a'+i)))
		require.NoError(t, os.WriteFile(paths[i], []byte("file "+string(rune('a'+i))), 0o644))
	}

	// Three files claim instance 1: one keeps the name, one falls back to
	// its SOPInstanceUID, one has no UID and gets a numeric suffix.
	st := &Study{
		UID: "1.2.840.999.1",
		Files: []FileInfo{
			{Path: paths[0], SeriesNumber: 2, InstanceNumber: 1, SOPInstanceUID: "1.2.i1"},
			{Path: paths[1], SeriesNumber: 2, InstanceNumber: 1, SOPInstanceUID: "1.2.i2"},
			{Path: paths[2], SeriesNumber: 2, InstanceNumber: 1},
		},
	}

	n, err := NewScanner(nil).Organize(context.Background(), st, dest)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	dir := filepath.Join(dest, "SE2")
	assert.FileExists(t, filepath.Join(dir, "IM-00001.dcm"))
	assert.FileExists(t, filepath.Join(dir, "1.2.i2.dcm"))
	assert.FileExists(t, filepath.Join(dir, "IM-00001-1.dcm"))

	// Nothing got overwritten.
	data, err := os.ReadFile(filepath.Join(dir, "IM-00001.dcm"))
	require.NoError(t, err)
	assert.Equal(t, "file a", string(data))
	data, err = os.ReadFile(filepath.Join(dir, "IM-00001-1.dcm"))
	require.NoError(t, err)
	assert.Equal(t, "file c", string(data))
}

func TestOrganizeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := t.TempDir()
	p := filepath.Join(src, "f")
	require.NoError(t, os.WriteFile(p, []byte("data"), 0o644))

	st := &Study{Files: []FileInfo{{Path: p, SeriesNumber: 1, InstanceNumber: 1}}}
	n, err := NewScanner(nil).Organize(ctx, st, t.TempDir())
	assert.Error(t, err)
	assert.Zero(t, n)
}
