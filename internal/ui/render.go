package ui

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/fraser29/zfmrf/internal/checks"
	"github.com/fraser29/zfmrf/pkg/core"
)

//go:embed templates/*.html
var templateFS embed.FS

// pageTemplates holds one parsed set per page. Both pages define "content",
// so they cannot share a single template set.
type pageTemplates struct {
	index   *template.Template
	subject *template.Template
}

func parseTemplates() (*pageTemplates, error) {
	index, err := template.ParseFS(templateFS,
		"templates/layout.html", "templates/fragments.html", "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse index templates: %w", err)
	}
	subject, err := template.ParseFS(templateFS,
		"templates/layout.html", "templates/fragments.html", "templates/subject.html")
	if err != nil {
		return nil, fmt.Errorf("parse subject templates: %w", err)
	}
	return &pageTemplates{index: index, subject: subject}, nil
}

func (p *pageTemplates) renderIndex(w io.Writer, data indexData) error {
	return p.index.ExecuteTemplate(w, "layout", data)
}

func (p *pageTemplates) renderSubject(w io.Writer, data subjectData) error {
	return p.subject.ExecuteTemplate(w, "layout", data)
}

// fragment renders a named fragment to a string for SSE element patches.
func (p *pageTemplates) fragment(name string, data any) (string, error) {
	var sb strings.Builder
	if err := p.index.ExecuteTemplate(&sb, name, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

type indexData struct {
	Title    string
	DataRoot string
	Query    string
	Subjects []*core.SubjectRecord
}

type subjectData struct {
	Title    string
	DataRoot string
	Record   *core.SubjectRecord
	Series   []core.Series
	Actions  []core.ActionInfo
	Runs     []*core.ActionRun
}

type checksData struct {
	Report *checks.Report
}

type runsData struct {
	Runs []*core.ActionRun
}

type runResultData struct {
	Action string
	Status core.ActionRunStatus
	Detail string
	Error  string
}
