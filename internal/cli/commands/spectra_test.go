package commands

import (
	"testing"

	"github.com/fraser29/zfmrf/internal/cli/testutil"
)

func TestSpectraStatusComplete(t *testing.T) {
	tr := testutil.NewTestRendererMarkdown()

	pdfs := func() (map[string]string, error) {
		return map[string]string{
			"5": "/data/MR000042/RAW/SPECTRA/5/P12345.7.PDF",
			"7": "/data/MR000042/RAW/SPECTRA/7/P12399.7.PDF",
		}, nil
	}
	complete := func() (bool, error) { return true, nil }

	if err := spectraStatus(tr.Renderer, "MR000042", pdfs, complete); err != nil {
		t.Fatalf("spectraStatus: %v", err)
	}

	out := tr.Output()
	testutil.AssertContains(t, out, "series 5")
	testutil.AssertContains(t, out, "P12345.7.PDF")
	testutil.AssertContains(t, out, "All spectra series processed")
}

func TestSpectraStatusPending(t *testing.T) {
	tr := testutil.NewTestRendererMarkdown()

	pdfs := func() (map[string]string, error) {
		return map[string]string{"5": ""}, nil
	}
	complete := func() (bool, error) { return false, nil }

	if err := spectraStatus(tr.Renderer, "MR000042", pdfs, complete); err != nil {
		t.Fatalf("spectraStatus: %v", err)
	}

	testutil.AssertContains(t, tr.Output(), "awaiting processed PDF")
	testutil.AssertContains(t, tr.ErrorOutput(), "Spectra processing incomplete")
}

func TestSpectraStatusNoSeries(t *testing.T) {
	tr := testutil.NewTestRendererMarkdown()

	pdfs := func() (map[string]string, error) { return map[string]string{}, nil }
	complete := func() (bool, error) { return false, nil }

	if err := spectraStatus(tr.Renderer, "MR000042", pdfs, complete); err != nil {
		t.Fatalf("spectraStatus: %v", err)
	}

	testutil.AssertContains(t, tr.Output(), "no spectra series")
}
