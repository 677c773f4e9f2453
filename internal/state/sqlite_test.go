package state

import (
	"errors"
	"testing"
	"time"

	"github.com/fraser29/zfmrf/pkg/core"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(nil)
	if err := store.Open(":memory:"); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	return store
}

func testRecord(id string) *core.SubjectRecord {
	return &core.SubjectRecord{
		SubjectID:   id,
		PatientName: "BROWN^James William",
		PatientID:   "MR8812",
		StudyDate:   "20180426",
		StudyUID:    "1.2.840.999.1.777",
		ExamID:      "5566",
		StationName: "MR3T01",
		DICOMCount:  2191,
		ScannedAt:   time.Date(2018, 4, 27, 9, 0, 0, 0, time.UTC),
	}
}

func TestSQLiteStore_OpenClose(t *testing.T) {
	store := NewSQLiteStore(nil)

	if err := store.Open(":memory:"); err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestSQLiteStore_InitSchema(t *testing.T) {
	store := setupTestStore(t)

	// Verify tables exist by querying them
	tables := []string{"subjects", "action_runs"}
	for _, table := range tables {
		rows, err := store.db.Query("SELECT 1 FROM " + table + " LIMIT 1")
		if err != nil {
			t.Errorf("table %s does not exist: %v", table, err)
		} else {
			rows.Close()
		}
	}

	version, err := store.GetMigrationVersion()
	if err != nil {
		t.Fatalf("failed to get migration version: %v", err)
	}
	if version < 2 {
		t.Errorf("migration version = %d, want >= 2", version)
	}
}

func TestSQLiteStore_InitSchemaIdempotent(t *testing.T) {
	store := setupTestStore(t)
	if err := store.InitSchema(); err != nil {
		t.Fatalf("second InitSchema failed: %v", err)
	}
}

func TestSQLiteStore_UpsertAndGetSubject(t *testing.T) {
	store := setupTestStore(t)

	rec := testRecord("MR000001")
	if err := store.UpsertSubject(rec); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}
	if rec.UpdatedAt.IsZero() {
		t.Error("UpsertSubject should set UpdatedAt")
	}

	got, err := store.GetSubject("MR000001")
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if got.PatientName != "BROWN^James William" {
		t.Errorf("patient name = %q", got.PatientName)
	}
	if got.DICOMCount != 2191 {
		t.Errorf("dicom count = %d", got.DICOMCount)
	}
	if !got.ScannedAt.Equal(rec.ScannedAt) {
		t.Errorf("scanned at = %v, want %v", got.ScannedAt, rec.ScannedAt)
	}
}

func TestSQLiteStore_UpsertUpdatesExisting(t *testing.T) {
	store := setupTestStore(t)

	rec := testRecord("MR000001")
	if err := store.UpsertSubject(rec); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	rec.DICOMCount = 3000
	rec.PatientName = "BROWN^James W"
	if err := store.UpsertSubject(rec); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	all, err := store.ListSubjects()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 subject after re-upsert, got %d", len(all))
	}
	if all[0].DICOMCount != 3000 {
		t.Errorf("dicom count = %d, want 3000", all[0].DICOMCount)
	}
}

func TestSQLiteStore_GetSubjectNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetSubject("MR999999")
	if !errors.Is(err, core.ErrSubjectNotFound) {
		t.Errorf("expected ErrSubjectNotFound, got %v", err)
	}
}

func TestSQLiteStore_ZeroScannedAtStaysZero(t *testing.T) {
	store := setupTestStore(t)

	rec := testRecord("MR000001")
	rec.ScannedAt = time.Time{}
	if err := store.UpsertSubject(rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := store.GetSubject("MR000001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.ScannedAt.IsZero() {
		t.Errorf("scanned at should stay zero, got %v", got.ScannedAt)
	}
}

func TestSQLiteStore_ListSubjectsOrdered(t *testing.T) {
	store := setupTestStore(t)

	for _, id := range []string{"MR000003", "MR000001", "MR000002"} {
		rec := testRecord(id)
		if err := store.UpsertSubject(rec); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}

	all, err := store.ListSubjects()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 subjects, got %d", len(all))
	}
	for i, want := range []string{"MR000001", "MR000002", "MR000003"} {
		if all[i].SubjectID != want {
			t.Errorf("position %d: got %s, want %s", i, all[i].SubjectID, want)
		}
	}
}

func TestSQLiteStore_SearchSubjects(t *testing.T) {
	store := setupTestStore(t)

	a := testRecord("MR000001")
	b := testRecord("MR000002")
	b.PatientName = "SMITH^Anna"
	b.PatientID = "MR9944"
	b.ExamID = "7001"
	for _, rec := range []*core.SubjectRecord{a, b} {
		if err := store.UpsertSubject(rec); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"BROWN", []string{"MR000001"}},
		{"brown", []string{"MR000001"}},
		{"SMITH", []string{"MR000002"}},
		{"MR000", []string{"MR000001", "MR000002"}},
		{"7001", []string{"MR000002"}},
		{"nobody", nil},
	}

	for _, tt := range tests {
		got, err := store.SearchSubjects(tt.query)
		if err != nil {
			t.Fatalf("search %q: %v", tt.query, err)
		}
		if len(got) != len(tt.want) {
			t.Errorf("search %q: got %d results, want %d", tt.query, len(got), len(tt.want))
			continue
		}
		for i := range tt.want {
			if got[i].SubjectID != tt.want[i] {
				t.Errorf("search %q position %d: got %s, want %s", tt.query, i, got[i].SubjectID, tt.want[i])
			}
		}
	}
}

func TestSQLiteStore_DeleteSubject(t *testing.T) {
	store := setupTestStore(t)

	rec := testRecord("MR000001")
	if err := store.UpsertSubject(rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := store.CreateActionRun("MR000001", "copy-gating"); err != nil {
		t.Fatalf("create run: %v", err)
	}

	if err := store.DeleteSubject("MR000001"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := store.GetSubject("MR000001"); !errors.Is(err, core.ErrSubjectNotFound) {
		t.Errorf("subject should be gone, got %v", err)
	}
	runs, err := store.ListActionRuns("MR000001")
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("action history should be gone, got %d runs", len(runs))
	}

	if err := store.DeleteSubject("MR000001"); !errors.Is(err, core.ErrSubjectNotFound) {
		t.Errorf("deleting again should report not found, got %v", err)
	}
}

func TestSQLiteStore_ActionRunLifecycle(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.CreateActionRun("MR000001", "dicom-count-check")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if run.ID == "" {
		t.Error("run ID should not be empty")
	}
	if run.Status != ActionRunStatusRunning {
		t.Errorf("status = %q, want running", run.Status)
	}
	if run.CompletedAt != nil {
		t.Error("new run should not have CompletedAt")
	}

	err = store.CompleteActionRun(run.ID, ActionRunStatusCompleted, "2191 DICOMs locally and in server", "")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, err := store.GetActionRun(run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != ActionRunStatusCompleted {
		t.Errorf("status = %q", got.Status)
	}
	if got.Detail != "2191 DICOMs locally and in server" {
		t.Errorf("detail = %q", got.Detail)
	}
	if got.CompletedAt == nil {
		t.Fatal("completed run should have CompletedAt")
	}
	if got.Duration() < 0 {
		t.Errorf("duration = %v", got.Duration())
	}
}

func TestSQLiteStore_FailedActionRun(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.CreateActionRun("MR000001", "dicom-count-check")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = store.CompleteActionRun(run.ID, ActionRunStatusFailed, "", "count mismatch: 100 local, 2191 in server")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, err := store.GetActionRun(run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != ActionRunStatusFailed {
		t.Errorf("status = %q", got.Status)
	}
	if got.Error == "" {
		t.Error("failed run should keep its error message")
	}
}

func TestSQLiteStore_CompleteUnknownRun(t *testing.T) {
	store := setupTestStore(t)

	err := store.CompleteActionRun("no-such-id", ActionRunStatusCompleted, "", "")
	if err == nil {
		t.Fatal("expected error for unknown run ID")
	}
}

func TestSQLiteStore_ListAndLatestActionRuns(t *testing.T) {
	store := setupTestStore(t)

	first, err := store.CreateActionRun("MR000001", "copy-gating")
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	// Force distinct timestamps for deterministic ordering
	if _, err := store.db.Exec(`UPDATE action_runs SET started_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-time.Hour), first.ID); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	second, err := store.CreateActionRun("MR000001", "copy-gating")
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if _, err := store.CreateActionRun("MR000002", "copy-gating"); err != nil {
		t.Fatalf("create other subject: %v", err)
	}

	runs, err := store.ListActionRuns("MR000001")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != second.ID {
		t.Errorf("newest run should come first, got %s", runs[0].ID)
	}

	latest, err := store.LatestActionRun("MR000001", "copy-gating")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.ID != second.ID {
		t.Errorf("latest = %+v, want ID %s", latest, second.ID)
	}

	none, err := store.LatestActionRun("MR000001", "never-ran")
	if err != nil {
		t.Fatalf("latest none: %v", err)
	}
	if none != nil {
		t.Errorf("expected nil for action that never ran, got %+v", none)
	}
}

func TestOpenStore(t *testing.T) {
	st, err := OpenStore("sqlite", ":memory:", nil)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer st.Close()

	if err := st.UpsertSubject(testRecord("MR000001")); err != nil {
		t.Fatalf("store should be migrated and usable: %v", err)
	}

	if _, err := OpenStore("oracle", "dsn", nil); err == nil {
		t.Error("expected error for unknown driver")
	}
}
