package commands

import (
	"testing"
	"time"

	"github.com/fraser29/zfmrf/internal/cli/testutil"
	"github.com/fraser29/zfmrf/pkg/core"
)

func testRecords() []*core.SubjectRecord {
	return []*core.SubjectRecord{
		{
			SubjectID:   "MR000001",
			PatientName: "BROWN^James",
			StudyDate:   "20180426",
			ExamID:      "5566",
			DICOMCount:  412,
			ScannedAt:   time.Date(2018, 4, 27, 9, 0, 0, 0, time.UTC),
		},
		{
			SubjectID:   "MR000002",
			PatientName: "SMITH^Anne",
			StudyDate:   "20180502",
			ExamID:      "5571",
			DICOMCount:  388,
		},
	}
}

func TestListTable(t *testing.T) {
	tr := testutil.NewTestRendererMarkdown()

	if err := listTable(tr.Renderer, testRecords()); err != nil {
		t.Fatalf("listTable: %v", err)
	}

	out := tr.Output()
	testutil.AssertNoANSI(t, out)
	testutil.AssertContains(t, out, "Subjects (2 total)")
	testutil.AssertContains(t, out, "MR000001")
	testutil.AssertContains(t, out, "BROWN^James")
	testutil.AssertContains(t, out, "2018-04-27")
	// Never-scanned subjects show a dash
	testutil.AssertContains(t, out, "MR000002")
}

func TestListTableEmpty(t *testing.T) {
	tr := testutil.NewTestRendererText()

	if err := listTable(tr.Renderer, nil); err != nil {
		t.Fatalf("listTable: %v", err)
	}

	testutil.AssertContains(t, tr.Output(), "Subjects (0 total)")
	testutil.AssertContains(t, tr.Output(), "No subjects indexed")
}
