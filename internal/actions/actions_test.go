package actions

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraser29/zfmrf/internal/state"
	"github.com/fraser29/zfmrf/pkg/core"
	"github.com/fraser29/zfmrf/pkg/zfmrf"
)

func setupStore(t *testing.T) core.Store {
	t.Helper()
	st := state.NewSQLiteStore(nil)
	require.NoError(t, st.Open(":memory:"))
	require.NoError(t, st.InitSchema())
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func setupSubject(t *testing.T) *zfmrf.Subject {
	t.Helper()
	s := zfmrf.New(t.TempDir(), "MR000001", zfmrf.Config{})
	require.NoError(t, s.Create())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestExecute_UnknownAction(t *testing.T) {
	st := setupStore(t)
	s := setupSubject(t)

	run, err := Execute(context.Background(), st, s, "no-such-action", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrActionNotFound)
	assert.Nil(t, run)

	// Nothing recorded for an action that does not exist.
	runs, err := st.ListActionRuns("MR000001")
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestExecute_RecordsSuccess(t *testing.T) {
	st := setupStore(t)
	s := setupSubject(t)

	// A subject that already has spectra makes copy-spectra a recorded no-op.
	spectraFile := filepath.Join(s.SpectraDir(), "5", "P12345.7")
	require.NoError(t, os.MkdirAll(filepath.Dir(spectraFile), 0755))
	require.NoError(t, os.WriteFile(spectraFile, []byte("raw"), 0644))

	run, err := Execute(context.Background(), st, s, "copy-spectra", nil)
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.Equal(t, core.ActionRunStatusCompleted, run.Status)
	assert.Equal(t, "spectra already present", run.Detail)
	assert.NotNil(t, run.CompletedAt)
	assert.Empty(t, run.Error)

	runs, err := st.ListActionRuns("MR000001")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "copy-spectra", runs[0].Action)
}

func TestExecute_RecordsFailure(t *testing.T) {
	st := setupStore(t)
	s := setupSubject(t)

	// No DICOM server configured, so the count check cannot run.
	run, err := Execute(context.Background(), st, s, "dicom-count-check", nil)
	require.Error(t, err)
	require.NotNil(t, run)

	assert.Equal(t, core.ActionRunStatusFailed, run.Status)
	assert.NotEmpty(t, run.Error)
	assert.NotNil(t, run.CompletedAt)

	latest, err := st.LatestActionRun("MR000001", "dicom-count-check")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, core.ActionRunStatusFailed, latest.Status)
}

func TestExecute_WithoutStore(t *testing.T) {
	s := setupSubject(t)
	spectraFile := filepath.Join(s.SpectraDir(), "5", "P12345.7")
	require.NoError(t, os.MkdirAll(filepath.Dir(spectraFile), 0755))
	require.NoError(t, os.WriteFile(spectraFile, []byte("raw"), 0644))

	run, err := Execute(context.Background(), nil, s, "copy-spectra", nil)
	require.NoError(t, err)
	assert.Nil(t, run)
}
