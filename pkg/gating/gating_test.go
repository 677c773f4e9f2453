package gating

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		want     time.Time
		wantErr  bool
	}{
		{
			name:     "standard waveform name",
			fileName: "ECGData_epiRT_phys_0426201814_32_33_0",
			want:     time.Date(2018, 4, 26, 14, 32, 33, 0, time.UTC),
		},
		{
			name:     "respiratory waveform",
			fileName: "RespData_epiRT_phys_1231201923_59_58_0",
			want:     time.Date(2019, 12, 31, 23, 59, 58, 0, time.UTC),
		},
		{
			name:     "spu recording takes date from second field",
			fileName: "SPU1_0426201814_5566_32_33_0",
			want:     time.Date(2018, 4, 26, 14, 32, 33, 0, time.UTC),
		},
		{
			name:     "spu with date in fourth-from-end position too",
			fileName: "SPUData_0426201814_32_33_0",
			want:     time.Date(2018, 4, 26, 14, 32, 33, 0, time.UTC),
		},
		{
			name:     "too few fields",
			fileName: "README.txt",
			wantErr:  true,
		},
		{
			name:     "date block too short",
			fileName: "ECGData_epiRT_phys_0426_32_33_0",
			wantErr:  true,
		},
		{
			name:     "non numeric date block",
			fileName: "ECGData_epiRT_phys_aprilfool18_32_33_0",
			wantErr:  true,
		},
		{
			name:     "spu with too few fields",
			fileName: "SPU1_0426201814_32",
			wantErr:  true,
		},
		{
			name:     "month out of range",
			fileName: "ECGData_epiRT_phys_1326201814_32_33_0",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.fileName)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "ParseTimestamp(%q) = %v, want %v", tt.fileName, got, tt.want)
		})
	}
}

func TestExamWindow(t *testing.T) {
	w, err := ExamWindow("20180426", "140000", "153000")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2018, 4, 26, 14, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2018, 4, 26, 15, 30, 0, 0, time.UTC), w.End)

	_, err = ExamWindow("2018-04-26", "140000", "153000")
	assert.Error(t, err, "dashed study date should not parse")

	_, err = ExamWindow("20180426", "1400", "153000")
	assert.Error(t, err, "short start time should not parse")
}

func TestWindowContainsIsStrict(t *testing.T) {
	w := Window{
		Start: time.Date(2018, 4, 26, 14, 0, 0, 0, time.UTC),
		End:   time.Date(2018, 4, 26, 15, 0, 0, 0, time.UTC),
	}

	assert.False(t, w.Contains(w.Start), "a file stamped at exam start is outside")
	assert.False(t, w.Contains(w.End), "a file stamped at exam end is outside")
	assert.True(t, w.Contains(w.Start.Add(time.Second)))
	assert.True(t, w.Contains(w.End.Add(-time.Second)))
	assert.False(t, w.Contains(w.Start.Add(-time.Hour)))
	assert.False(t, w.Contains(w.End.Add(time.Hour)))
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"ECGData_epiRT_phys_0426201814_32_33_0",
		"PPGData_epiRT_phys_0426201814_05_10_0",
		"SPU1_0426201814_5566_40_00_0",
		"notes.txt",
	}
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("waveform"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0o755))

	files, skipped, err := Scan(dir)
	require.NoError(t, err)

	require.Len(t, files, 3)
	require.Len(t, skipped, 1)
	assert.Equal(t, "notes.txt", skipped[0].Name)
	assert.Error(t, skipped[0].Err)

	// Acquisition order, not directory order.
	assert.Equal(t, "PPGData_epiRT_phys_0426201814_05_10_0", files[0].Name)
	assert.Equal(t, "ECGData_epiRT_phys_0426201814_32_33_0", files[1].Name)
	assert.Equal(t, "SPU1_0426201814_5566_40_00_0", files[2].Name)

	for _, f := range files {
		assert.Equal(t, filepath.Join(dir, f.Name), f.Path)
	}
}

func TestScanMissingDir(t *testing.T) {
	_, _, err := Scan(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestMatchWindow(t *testing.T) {
	w := Window{
		Start: time.Date(2018, 4, 26, 14, 0, 0, 0, time.UTC),
		End:   time.Date(2018, 4, 26, 15, 0, 0, 0, time.UTC),
	}
	files := []File{
		{Name: "before", Time: w.Start.Add(-time.Minute)},
		{Name: "at-start", Time: w.Start},
		{Name: "inside-a", Time: w.Start.Add(10 * time.Minute)},
		{Name: "inside-b", Time: w.Start.Add(50 * time.Minute)},
		{Name: "at-end", Time: w.End},
		{Name: "after", Time: w.End.Add(time.Minute)},
	}

	got := MatchWindow(files, w)
	require.Len(t, got, 2)
	assert.Equal(t, "inside-a", got[0].Name)
	assert.Equal(t, "inside-b", got[1].Name)
}
