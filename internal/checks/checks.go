// Package checks evaluates the completeness of a subject directory.
//
// A check inspects one aspect of a subject (meta file, DICOM files,
// gating data, spectra, DICOM server agreement) and reports pass, warn,
// fail or skip. Labs extend the builtin set with a checks.star script:
// every top-level function named check_* is run with a subject dict and
// its return value decides the status (True pass, False fail, a string
// warns with that detail, None skips).
package checks

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/fraser29/zfmrf/pkg/zfmrf"
)

// Status classifies a check outcome.
type Status string

// Check outcomes.
const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// Result is the outcome of one check for one subject.
type Result struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Check is a single named inspection of a subject.
type Check struct {
	ID    string
	Name  string
	Order int
	Fn    func(ctx context.Context, s *zfmrf.Subject) Result
}

// Report collects all results for one subject.
type Report struct {
	SubjectID   string    `json:"subject_id"`
	Results     []Result  `json:"results"`
	Score       int       `json:"score"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Counts returns the number of results per status.
func (r *Report) Counts() (pass, warn, fail, skip int) {
	for _, res := range r.Results {
		switch res.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		case StatusSkip:
			skip++
		}
	}
	return
}

// score computes a 0-100 health score. Warnings count half, skipped
// checks are excluded. A subject with nothing applicable scores 100.
func (r *Report) score() int {
	pass, warn, fail, _ := r.Counts()
	total := pass + warn + fail
	if total == 0 {
		return 100
	}
	return int(math.Round(100 * (float64(pass) + 0.5*float64(warn)) / float64(total)))
}

// Runner executes a fixed set of checks against subjects.
type Runner struct {
	checks []Check
	logger *slog.Logger
}

// NewRunner builds a runner over the builtin checks plus any extras,
// ordered by Order then ID.
func NewRunner(logger *slog.Logger, extra ...Check) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	all := append(Builtins(), extra...)
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Order != all[j].Order {
			return all[i].Order < all[j].Order
		}
		return all[i].ID < all[j].ID
	})
	return &Runner{checks: all, logger: logger}
}

// Checks returns the runner's check set in execution order.
func (r *Runner) Checks() []Check {
	return r.checks
}

// Run evaluates every check against the subject.
func (r *Runner) Run(ctx context.Context, s *zfmrf.Subject) *Report {
	report := &Report{
		SubjectID:   s.ID,
		GeneratedAt: time.Now().UTC(),
	}

	for _, c := range r.checks {
		if err := ctx.Err(); err != nil {
			report.Results = append(report.Results, Result{
				ID: c.ID, Name: c.Name, Status: StatusSkip, Detail: "cancelled",
			})
			continue
		}
		res := c.Fn(ctx, s)
		res.ID = c.ID
		res.Name = c.Name
		r.logger.Debug("check evaluated",
			slog.String("subject", s.ID),
			slog.String("check", c.ID),
			slog.String("status", string(res.Status)))
		report.Results = append(report.Results, res)
	}

	report.Score = report.score()
	return report
}

// pass, warn, fail and skip build results with a formatted detail.
func pass(format string, args ...any) Result {
	return Result{Status: StatusPass, Detail: fmt.Sprintf(format, args...)}
}

func warn(format string, args ...any) Result {
	return Result{Status: StatusWarn, Detail: fmt.Sprintf(format, args...)}
}

func fail(format string, args ...any) Result {
	return Result{Status: StatusFail, Detail: fmt.Sprintf(format, args...)}
}

func skip(format string, args ...any) Result {
	return Result{Status: StatusSkip, Detail: fmt.Sprintf(format, args...)}
}
