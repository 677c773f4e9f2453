package checks

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fraser29/zfmrf/pkg/core"
	"github.com/fraser29/zfmrf/pkg/zfmrf"
)

func writeFakeDICOM(t *testing.T, path string) {
	t.Helper()
	buf := make([]byte, 132, 160)
	copy(buf[128:], "DICM")
	buf = append(buf, []byte("not a real image")...)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		t.Fatal(err)
	}
}

// setupHealthySubject builds a subject that passes every builtin check
// except server-count, which skips without a configured server.
func setupHealthySubject(t *testing.T) *zfmrf.Subject {
	t.Helper()
	root := t.TempDir()
	s := zfmrf.New(root, "MR000001", zfmrf.Config{})
	if err := s.Create(); err != nil {
		t.Fatal(err)
	}

	meta := &core.Meta{
		Tags: core.Tags{
			core.TagPatientName:      "BROWN^James",
			core.TagPatientID:        "MR8812",
			core.TagStudyDate:        "20180426",
			core.TagStudyInstanceUID: "1.2.840.999.1.777",
			core.TagStudyID:          "5566",
			core.TagStationName:      "MR3T01",
		},
		Series: []core.Series{
			{Number: 3, Description: "FLAIR", UID: "1.2.840.999.1.777.3", Time: "090000", ImageCount: 2},
		},
		ScannedAt: time.Date(2018, 4, 27, 9, 0, 0, 0, time.UTC),
	}
	if err := s.SaveMeta(meta); err != nil {
		t.Fatal(err)
	}

	writeFakeDICOM(t, filepath.Join(s.DICOMDir(), "SE3_FLAIR", "IM-00001.dcm"))
	writeFakeDICOM(t, filepath.Join(s.DICOMDir(), "SE3_FLAIR", "IM-00002.dcm"))

	gating := filepath.Join(s.PhysiologicalDataDir(), "SPU_04262018090512")
	if err := os.WriteFile(gating, []byte("waveform"), 0644); err != nil {
		t.Fatal(err)
	}

	spectraSeries := filepath.Join(s.SpectraDir(), "5")
	if err := os.MkdirAll(spectraSeries, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(spectraSeries, "P12345.7.PDF"), []byte("%PDF"), 0644); err != nil {
		t.Fatal(err)
	}
	return s
}

func resultByID(t *testing.T, rep *Report, id string) Result {
	t.Helper()
	for _, r := range rep.Results {
		if r.ID == id {
			return r
		}
	}
	t.Fatalf("no result with id %q in %v", id, rep.Results)
	return Result{}
}

func TestRun_HealthySubject(t *testing.T) {
	s := setupHealthySubject(t)
	rep := NewRunner(nil).Run(context.Background(), s)

	if rep.SubjectID != "MR000001" {
		t.Errorf("subject id = %q, want MR000001", rep.SubjectID)
	}
	if rep.GeneratedAt.IsZero() {
		t.Error("GeneratedAt not set")
	}

	for _, id := range []string{"meta", "dicom-files", "series", "gating", "spectra"} {
		if r := resultByID(t, rep, id); r.Status != StatusPass {
			t.Errorf("%s = %s (%s), want pass", id, r.Status, r.Detail)
		}
	}
	if r := resultByID(t, rep, "server-count"); r.Status != StatusSkip {
		t.Errorf("server-count = %s (%s), want skip", r.Status, r.Detail)
	}
	if meta := resultByID(t, rep, "meta"); !strings.Contains(meta.Detail, "BROWN^James") {
		t.Errorf("meta detail %q missing patient name", meta.Detail)
	}
	if rep.Score != 100 {
		t.Errorf("score = %d, want 100", rep.Score)
	}
}

func TestRun_EmptySubject(t *testing.T) {
	root := t.TempDir()
	s := zfmrf.New(root, "MR000002", zfmrf.Config{})
	if err := s.Create(); err != nil {
		t.Fatal(err)
	}

	rep := NewRunner(nil).Run(context.Background(), s)

	wantStatus := map[string]Status{
		"meta":         StatusFail,
		"dicom-files":  StatusFail,
		"series":       StatusWarn,
		"gating":       StatusWarn,
		"spectra":      StatusWarn,
		"server-count": StatusSkip,
	}
	for id, want := range wantStatus {
		if r := resultByID(t, rep, id); r.Status != want {
			t.Errorf("%s = %s (%s), want %s", id, r.Status, r.Detail, want)
		}
	}
	if r := resultByID(t, rep, "meta"); !strings.Contains(r.Detail, "no meta file") {
		t.Errorf("meta detail = %q", r.Detail)
	}

	// 0 pass, 3 warn, 2 fail, skips excluded: 1.5/5 rounds to 30.
	if rep.Score != 30 {
		t.Errorf("score = %d, want 30", rep.Score)
	}
}

func TestRun_SpectraWithoutPDF(t *testing.T) {
	s := setupHealthySubject(t)
	if err := os.Remove(filepath.Join(s.SpectraDir(), "5", "P12345.7.PDF")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.SpectraDir(), "5", "P12345.7"), []byte("raw"), 0644); err != nil {
		t.Fatal(err)
	}

	rep := NewRunner(nil).Run(context.Background(), s)
	r := resultByID(t, rep, "spectra")
	if r.Status != StatusWarn {
		t.Fatalf("spectra = %s, want warn", r.Status)
	}
	if !strings.Contains(r.Detail, "PDFs missing") {
		t.Errorf("spectra detail = %q", r.Detail)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	s := setupHealthySubject(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := NewRunner(nil).Run(ctx, s)
	for _, r := range rep.Results {
		if r.Status != StatusSkip {
			t.Errorf("%s = %s after cancel, want skip", r.ID, r.Status)
		}
	}
}

func TestRun_StampsResultIdentity(t *testing.T) {
	s := setupHealthySubject(t)
	rep := NewRunner(nil).Run(context.Background(), s)

	if len(rep.Results) != len(Builtins()) {
		t.Fatalf("got %d results, want %d", len(rep.Results), len(Builtins()))
	}
	for _, r := range rep.Results {
		if r.ID == "" || r.Name == "" {
			t.Errorf("result missing identity: %+v", r)
		}
	}
}

func TestReportScore(t *testing.T) {
	res := func(statuses ...Status) []Result {
		out := make([]Result, len(statuses))
		for i, st := range statuses {
			out[i] = Result{Status: st}
		}
		return out
	}

	tests := []struct {
		name    string
		results []Result
		want    int
	}{
		{"empty", nil, 100},
		{"all pass", res(StatusPass, StatusPass), 100},
		{"all skip", res(StatusSkip, StatusSkip), 100},
		{"half", res(StatusPass, StatusFail), 50},
		{"warn counts half", res(StatusPass, StatusPass, StatusWarn, StatusFail), 63},
		{"skip excluded", res(StatusPass, StatusSkip), 100},
		{"all fail", res(StatusFail, StatusFail), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := &Report{Results: tt.results}
			if got := rep.score(); got != tt.want {
				t.Errorf("score() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReportCounts(t *testing.T) {
	rep := &Report{Results: []Result{
		{Status: StatusPass},
		{Status: StatusPass},
		{Status: StatusWarn},
		{Status: StatusFail},
		{Status: StatusSkip},
	}}
	pass, warn, fail, skip := rep.Counts()
	if pass != 2 || warn != 1 || fail != 1 || skip != 1 {
		t.Errorf("Counts() = %d/%d/%d/%d, want 2/1/1/1", pass, warn, fail, skip)
	}
}

func TestNewRunner_Ordering(t *testing.T) {
	extra := []Check{
		{ID: "zeta", Name: "Z", Order: scriptOrder},
		{ID: "alpha", Name: "A", Order: scriptOrder},
	}
	runner := NewRunner(nil, extra...)

	var ids []string
	for _, c := range runner.Checks() {
		ids = append(ids, c.ID)
	}
	want := []string{"meta", "dicom-files", "series", "gating", "spectra", "server-count", "alpha", "zeta"}
	if len(ids) != len(want) {
		t.Fatalf("got %d checks %v, want %d", len(ids), ids, len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("check[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestLoadScript(t *testing.T) {
	tests := []struct {
		name      string
		script    string // empty means no file is written
		wantIDs   []string
		wantNil   bool
		wantErr   bool
		errSubstr string
	}{
		{
			name:    "missing file",
			wantNil: true,
		},
		{
			name: "exported checks only",
			script: `
def check_scan_protocol(s):
    return True

def check_count(s):
    return True

def helper(s):
    return False

check_not_callable = "nope"

_private = 1
`,
			wantIDs: []string{"count", "scan-protocol"},
		},
		{
			name: "syntax error",
			script: `
def check_broken(:
    return 1
`,
			wantErr:   true,
			errSubstr: "check script error",
		},
		{
			name:    "no checks defined",
			script:  "x = 1\n",
			wantIDs: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "checks.star")
			if tt.script != "" {
				if err := os.WriteFile(path, []byte(tt.script), 0644); err != nil {
					t.Fatal(err)
				}
			}

			checks, err := LoadScript(path, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errSubstr) {
					t.Errorf("error = %v, want substring %q", err, tt.errSubstr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantNil {
				if checks != nil {
					t.Fatalf("expected nil checks, got %v", checks)
				}
				return
			}

			var ids []string
			for _, c := range checks {
				ids = append(ids, c.ID)
				if c.Order != scriptOrder {
					t.Errorf("check %s order = %d, want %d", c.ID, c.Order, scriptOrder)
				}
			}
			if len(ids) != len(tt.wantIDs) {
				t.Fatalf("got checks %v, want %v", ids, tt.wantIDs)
			}
			for i := range tt.wantIDs {
				if ids[i] != tt.wantIDs[i] {
					t.Errorf("check[%d] = %q, want %q", i, ids[i], tt.wantIDs[i])
				}
			}
		})
	}
}

func TestScriptChecks_ResultMapping(t *testing.T) {
	s := setupHealthySubject(t)

	script := `
def check_true(s):
    return True

def check_false(s):
    return False

def check_warning(s):
    return "only " + str(s["dicom_count"]) + " DICOM files"

def check_none(s):
    return None

def check_broken(s):
    fail("boom")

def check_wrong_type(s):
    return 42
`
	path := filepath.Join(t.TempDir(), "checks.star")
	if err := os.WriteFile(path, []byte(script), 0644); err != nil {
		t.Fatal(err)
	}
	checks, err := LoadScript(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	byID := make(map[string]Check)
	for _, c := range checks {
		byID[c.ID] = c
	}

	tests := []struct {
		id         string
		wantStatus Status
		wantDetail string
	}{
		{"true", StatusPass, ""},
		{"false", StatusFail, ""},
		{"warning", StatusWarn, "only 2 DICOM files"},
		{"none", StatusSkip, ""},
		{"broken", StatusFail, "boom"},
		{"wrong-type", StatusFail, "want bool, string or None"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			c, ok := byID[tt.id]
			if !ok {
				t.Fatalf("check %q not loaded", tt.id)
			}
			res := c.Fn(context.Background(), s)
			if res.Status != tt.wantStatus {
				t.Errorf("status = %s (%s), want %s", res.Status, res.Detail, tt.wantStatus)
			}
			if tt.wantDetail != "" && !strings.Contains(res.Detail, tt.wantDetail) {
				t.Errorf("detail = %q, want substring %q", res.Detail, tt.wantDetail)
			}
		})
	}
}

func TestScriptChecks_SubjectDict(t *testing.T) {
	s := setupHealthySubject(t)

	script := `
def check_subject_shape(s):
    if s["id"] != "MR000001":
        return "wrong id: " + s["id"]
    if s["tags"]["PatientName"] != "BROWN^James":
        return "wrong name"
    if len(s["series"]) != 1:
        return "wrong series count"
    if s["series"][0]["number"] != 3:
        return "wrong series number"
    if s["series"][0]["description"] != "FLAIR":
        return "wrong series description"
    if s["dicom_count"] != 2:
        return "wrong dicom count"
    if not s["has_gating"]:
        return "gating missing"
    if not s["has_spectra"]:
        return "spectra missing"
    if s["has_dti"] or s["has_t1"]:
        return "unexpected dti/t1"
    return True
`
	path := filepath.Join(t.TempDir(), "checks.star")
	if err := os.WriteFile(path, []byte(script), 0644); err != nil {
		t.Fatal(err)
	}
	checks, err := LoadScript(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(checks) != 1 {
		t.Fatalf("got %d checks, want 1", len(checks))
	}

	res := checks[0].Fn(context.Background(), s)
	if res.Status != StatusPass {
		t.Errorf("status = %s, detail = %q, want pass", res.Status, res.Detail)
	}
}

func TestScriptChecks_RunThroughRunner(t *testing.T) {
	s := setupHealthySubject(t)

	script := `
def check_has_flair(s):
    for se in s["series"]:
        if "FLAIR" in se["description"]:
            return True
    return False
`
	path := filepath.Join(t.TempDir(), "checks.star")
	if err := os.WriteFile(path, []byte(script), 0644); err != nil {
		t.Fatal(err)
	}
	checks, err := LoadScript(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	rep := NewRunner(nil, checks...).Run(context.Background(), s)
	r := resultByID(t, rep, "has-flair")
	if r.Status != StatusPass {
		t.Errorf("has-flair = %s (%s), want pass", r.Status, r.Detail)
	}
	if r.Name == "" {
		t.Error("script check name not stamped")
	}
	if rep.Score != 100 {
		t.Errorf("score = %d, want 100", rep.Score)
	}
}
