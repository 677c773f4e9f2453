package commands

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fraser29/zfmrf/internal/cli/config"
	"github.com/fraser29/zfmrf/internal/cli/testutil"
	"github.com/fraser29/zfmrf/pkg/zfmrf"
)

func cohortTestConfig(dataRoot string) *config.Config {
	return &config.Config{
		DataRoot:      dataRoot,
		SubjectPrefix: "MR",
	}
}

func TestForEachSubjectResolvesBareNumbers(t *testing.T) {
	root := testutil.SetupTestDataRoot(t)
	tr := testutil.NewTestRendererMarkdown()

	var visited []string
	err := forEachSubject(cohortTestConfig(root), tr.Renderer, []string{"1"}, func(s *zfmrf.Subject) error {
		visited = append(visited, s.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("forEachSubject: %v", err)
	}
	if len(visited) != 1 || visited[0] != "MR000001" {
		t.Fatalf("visited = %v, want [MR000001]", visited)
	}
}

func TestForEachSubjectSkipsMissingDirectories(t *testing.T) {
	root := testutil.SetupTestDataRoot(t)
	if err := os.MkdirAll(filepath.Join(root, "MR000003", "META"), 0755); err != nil {
		t.Fatal(err)
	}
	tr := testutil.NewTestRendererMarkdown()

	var visited []string
	err := forEachSubject(cohortTestConfig(root), tr.Renderer, []string{"1", "2", "3"}, func(s *zfmrf.Subject) error {
		visited = append(visited, s.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("a missing directory should be skipped, not failed: %v", err)
	}
	if len(visited) != 2 || visited[0] != "MR000001" || visited[1] != "MR000003" {
		t.Fatalf("visited = %v, want [MR000001 MR000003]", visited)
	}
	testutil.AssertContains(t, tr.ErrorOutput(), "MR000002 not found")
}

func TestForEachSubjectContinuesPastFailures(t *testing.T) {
	root := testutil.SetupTestDataRoot(t)
	if err := os.MkdirAll(filepath.Join(root, "MR000002", "META"), 0755); err != nil {
		t.Fatal(err)
	}
	tr := testutil.NewTestRendererMarkdown()

	var visited []string
	err := forEachSubject(cohortTestConfig(root), tr.Renderer, []string{"1", "2"}, func(s *zfmrf.Subject) error {
		visited = append(visited, s.ID)
		if s.ID == "MR000001" {
			return errors.New("no exam window")
		}
		return nil
	})
	if err == nil {
		t.Fatal("expected a failure count error")
	}
	testutil.AssertContains(t, err.Error(), "1 subject(s) failed")
	if len(visited) != 2 {
		t.Fatalf("visited = %v, the second subject should still run", visited)
	}
	testutil.AssertContains(t, tr.ErrorOutput(), "MR000001: no exam window")
}

func TestForEachSubjectRejectsMalformedIdentifier(t *testing.T) {
	root := testutil.SetupTestDataRoot(t)
	tr := testutil.NewTestRendererMarkdown()

	err := forEachSubject(cohortTestConfig(root), tr.Renderer, []string{"XY999"}, func(s *zfmrf.Subject) error {
		t.Fatalf("fn should not run for %s", s.ID)
		return nil
	})
	if err == nil {
		t.Fatal("expected a failure count error")
	}
}
