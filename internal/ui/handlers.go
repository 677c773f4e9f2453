package ui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/fraser29/zfmrf/internal/actions"
	"github.com/fraser29/zfmrf/internal/checks"
	"github.com/fraser29/zfmrf/internal/ui/notify"
	"github.com/fraser29/zfmrf/pkg/core"
	"github.com/fraser29/zfmrf/pkg/subject"
	"github.com/fraser29/zfmrf/pkg/zfmrf"
)

// Handlers serves the subject pages and the JSON API.
type Handlers struct {
	cfg     Config
	runner  *checks.Runner
	hub     *notify.Hub
	metrics *Metrics
	tmpl    *pageTemplates
	logger  *slog.Logger
}

func newHandlers(cfg Config, runner *checks.Runner, hub *notify.Hub, metrics *Metrics, tmpl *pageTemplates, logger *slog.Logger) *Handlers {
	return &Handlers{
		cfg:     cfg,
		runner:  runner,
		hub:     hub,
		metrics: metrics,
		tmpl:    tmpl,
		logger:  logger,
	}
}

// Routes registers the page, SSE and API routes.
func (h *Handlers) Routes(r chi.Router) {
	r.Get("/", h.Index)
	r.Get("/updates", h.Updates)

	r.Route("/subjects/{id}", func(r chi.Router) {
		r.Get("/", h.SubjectPage)
		r.Get("/checks/sse", h.ChecksSSE)
		r.Post("/actions/{name}", h.RunActionSSE)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/subjects", h.APISubjects)
		r.Get("/subjects/{id}", h.APISubject)
		r.Get("/subjects/{id}/checks", h.APIChecks)
		r.Get("/subjects/{id}/runs", h.APIRuns)
		r.Post("/subjects/{id}/actions/{name}", h.APIRunAction)
		r.Get("/actions", h.APIActions)
	})

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", h.metrics.Handler())
}

// resolveSubject maps the {id} URL parameter to a subject on disk.
func (h *Handlers) resolveSubject(r *http.Request) (*zfmrf.Subject, error) {
	id, err := subject.ResolveID(chi.URLParam(r, "id"), h.cfg.SubjectPrefix)
	if err != nil {
		return nil, err
	}
	s := zfmrf.New(h.cfg.DataRoot, id, h.cfg.Lab)
	if !s.Exists() {
		return nil, fmt.Errorf("%w: %s", core.ErrSubjectNotFound, id)
	}
	return s, nil
}

func (h *Handlers) listSubjects(query string) ([]*core.SubjectRecord, error) {
	if query != "" {
		return h.cfg.Store.SearchSubjects(query)
	}
	return h.cfg.Store.ListSubjects()
}

// Index renders the subject list page.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	recs, err := h.listSubjects(query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	data := indexData{Title: "Subjects", DataRoot: h.cfg.DataRoot, Query: query, Subjects: recs}
	if err := h.tmpl.renderIndex(w, data); err != nil {
		h.logger.Error("render index page", "error", err)
	}
}

// Updates is the long-lived SSE endpoint for the subject list. Content is
// rendered by Index; this only pushes changes when the data root changes.
func (h *Handlers) Updates(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	updates := h.hub.Subscribe()
	defer h.hub.Unsubscribe(updates)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			if err := h.patchSubjects(sse); err != nil {
				_ = sse.ConsoleError(err)
			}
		}
	}
}

func (h *Handlers) patchSubjects(sse *datastar.ServerSentEventGenerator) error {
	recs, err := h.cfg.Store.ListSubjects()
	if err != nil {
		return err
	}
	html, err := h.tmpl.fragment("subjects", indexData{Subjects: recs})
	if err != nil {
		return err
	}
	return sse.PatchElements(html)
}

// SubjectPage renders one subject's detail page.
func (h *Handlers) SubjectPage(w http.ResponseWriter, r *http.Request) {
	s, err := h.resolveSubject(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	rec, err := h.cfg.Store.GetSubject(s.ID)
	if errors.Is(err, core.ErrSubjectNotFound) {
		// On disk but not yet indexed.
		if rec, err = s.Record(); err == nil {
			err = h.cfg.Store.UpsertSubject(rec)
		}
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var series []core.Series
	if m, merr := s.LoadMeta(); merr == nil {
		series = m.Series
	}
	runs, err := h.cfg.Store.ListActionRuns(s.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := subjectData{
		Title:    s.ID,
		DataRoot: h.cfg.DataRoot,
		Record:   rec,
		Series:   series,
		Actions:  zfmrf.ActionInfos(),
		Runs:     runs,
	}
	if err := h.tmpl.renderSubject(w, data); err != nil {
		h.logger.Error("render subject page", "subject", s.ID, "error", err)
	}
}

// ChecksSSE evaluates the subject's checks and patches the report into the
// page. Loaded lazily so a slow DICOM server cannot hold up the page.
func (h *Handlers) ChecksSSE(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	s, err := h.resolveSubject(r)
	if err != nil {
		_ = sse.ConsoleError(err)
		return
	}

	rep := h.runner.Run(r.Context(), s)
	h.metrics.IncCheckReports()

	html, err := h.tmpl.fragment("checks", checksData{Report: rep})
	if err != nil {
		_ = sse.ConsoleError(err)
		return
	}
	if err := sse.PatchElements(html); err != nil {
		_ = sse.ConsoleError(err)
	}
}

// RunActionSSE executes an action from the subject page and patches the
// outcome and the run history.
func (h *Handlers) RunActionSSE(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	s, err := h.resolveSubject(r)
	if err != nil {
		_ = sse.ConsoleError(err)
		return
	}
	name := chi.URLParam(r, "name")

	run, runErr := h.executeAction(r.Context(), s, name)
	if errors.Is(runErr, core.ErrActionNotFound) {
		_ = sse.ConsoleError(runErr)
		return
	}

	result := runResultData{Action: name, Status: core.ActionRunStatusCompleted}
	if runErr != nil {
		result.Status = core.ActionRunStatusFailed
		result.Error = runErr.Error()
	}
	if run != nil {
		result.Detail = run.Detail
	}

	if html, err := h.tmpl.fragment("run-result", result); err == nil {
		_ = sse.PatchElements(html)
	}
	runs, err := h.cfg.Store.ListActionRuns(s.ID)
	if err != nil {
		_ = sse.ConsoleError(err)
		return
	}
	if html, err := h.tmpl.fragment("runs", runsData{Runs: runs}); err == nil {
		_ = sse.PatchElements(html)
	}
}

// executeAction runs a registry action with metrics and a change broadcast.
func (h *Handlers) executeAction(ctx context.Context, s *zfmrf.Subject, name string) (*core.ActionRun, error) {
	start := time.Now()
	run, err := actions.Execute(ctx, h.cfg.Store, s, name, h.logger)
	if errors.Is(err, core.ErrActionNotFound) {
		return nil, err
	}

	status := core.ActionRunStatusCompleted
	if err != nil {
		status = core.ActionRunStatusFailed
	}
	h.metrics.ObserveAction(name, status, time.Since(start))
	h.hub.Broadcast(notify.Event{SubjectID: s.ID})
	return run, err
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", "error", err)
	}
}

func (h *Handlers) jsonError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// APISubjects lists indexed subjects, optionally filtered with ?q=.
func (h *Handlers) APISubjects(w http.ResponseWriter, r *http.Request) {
	recs, err := h.listSubjects(strings.TrimSpace(r.URL.Query().Get("q")))
	if err != nil {
		h.jsonError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, recs)
}

// APISubject returns one subject read from disk, with its series.
func (h *Handlers) APISubject(w http.ResponseWriter, r *http.Request) {
	s, err := h.resolveSubject(r)
	if err != nil {
		h.jsonError(w, http.StatusNotFound, err)
		return
	}
	rec, err := s.Record()
	if err != nil {
		h.jsonError(w, http.StatusInternalServerError, err)
		return
	}
	resp := struct {
		*core.SubjectRecord
		Series []core.Series `json:",omitempty"`
	}{SubjectRecord: rec}
	if m, merr := s.LoadMeta(); merr == nil {
		resp.Series = m.Series
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// APIChecks evaluates and returns the subject's check report.
func (h *Handlers) APIChecks(w http.ResponseWriter, r *http.Request) {
	s, err := h.resolveSubject(r)
	if err != nil {
		h.jsonError(w, http.StatusNotFound, err)
		return
	}
	rep := h.runner.Run(r.Context(), s)
	h.metrics.IncCheckReports()
	h.writeJSON(w, http.StatusOK, rep)
}

// APIRuns returns the subject's action run history, newest first.
func (h *Handlers) APIRuns(w http.ResponseWriter, r *http.Request) {
	s, err := h.resolveSubject(r)
	if err != nil {
		h.jsonError(w, http.StatusNotFound, err)
		return
	}
	runs, err := h.cfg.Store.ListActionRuns(s.ID)
	if err != nil {
		h.jsonError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, runs)
}

// APIActions lists the registered subject actions.
func (h *Handlers) APIActions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, zfmrf.ActionInfos())
}

// APIRunAction executes an action and returns the recorded run. A failed
// action still answers 200; the run carries the failure.
func (h *Handlers) APIRunAction(w http.ResponseWriter, r *http.Request) {
	s, err := h.resolveSubject(r)
	if err != nil {
		h.jsonError(w, http.StatusNotFound, err)
		return
	}
	name := chi.URLParam(r, "name")

	run, runErr := h.executeAction(r.Context(), s, name)
	if errors.Is(runErr, core.ErrActionNotFound) {
		h.jsonError(w, http.StatusNotFound, runErr)
		return
	}

	resp := map[string]any{"run": run}
	if runErr != nil {
		resp["error"] = runErr.Error()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Healthz answers liveness probes.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
