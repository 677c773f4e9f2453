package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/fraser29/zfmrf/internal/cli/config"
	"github.com/fraser29/zfmrf/internal/state"
	"github.com/fraser29/zfmrf/pkg/core"
	"github.com/fraser29/zfmrf/pkg/zfmrf"
)

// NewBrowseCommand creates the browse command.
func NewBrowseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse subjects in an interactive terminal UI",
		Long: `Browse the indexed subjects in a full-screen terminal UI.

Arrow keys move, / filters by subject or patient, enter opens a
subject's detail view, esc goes back, q quits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBrowse(cmd)
		},
	}

	return cmd
}

func runBrowse(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	cfg := cmdCtx.Cfg

	if err := requireDataRoot(cfg); err != nil {
		return err
	}
	if _, err := state.SyncIndex(cmd.Context(), cmdCtx.Store, cfg.DataRoot, cfg.SubjectPrefix, cmdCtx.Logger); err != nil {
		return fmt.Errorf("failed to sync index: %w", err)
	}
	recs, err := cmdCtx.Store.ListSubjects()
	if err != nil {
		return fmt.Errorf("failed to list subjects: %w", err)
	}
	if len(recs) == 0 {
		cmdCtx.Renderer.Muted("No subjects indexed. Load a study with 'zfmrf load <dicom-dir>'.")
		return nil
	}

	p := tea.NewProgram(newBrowseModel(cfg, recs), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// subjectItem adapts a subject record to the list widget.
type subjectItem struct {
	rec *core.SubjectRecord
}

func (i subjectItem) Title() string { return i.rec.SubjectID }

func (i subjectItem) Description() string {
	parts := []string{}
	if i.rec.PatientName != "" {
		parts = append(parts, i.rec.PatientName)
	}
	if i.rec.StudyDate != "" {
		parts = append(parts, i.rec.StudyDate)
	}
	parts = append(parts, fmt.Sprintf("%d files", i.rec.DICOMCount))
	return strings.Join(parts, " · ")
}

func (i subjectItem) FilterValue() string {
	return i.rec.SubjectID + " " + i.rec.PatientName + " " + i.rec.PatientID
}

var (
	browseTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	browseLabelStyle  = lipgloss.NewStyle().Bold(true)
	browseMutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	browseDetailStyle = lipgloss.NewStyle().Padding(1, 2)
)

// browseModel is the terminal UI state. It flips between the subject list
// and a detail pane for the selected subject.
type browseModel struct {
	cfg    *config.Config
	list   list.Model
	detail string
	width  int
	height int
}

func newBrowseModel(cfg *config.Config, recs []*core.SubjectRecord) browseModel {
	items := make([]list.Item, len(recs))
	for i, rec := range recs {
		items[i] = subjectItem{rec: rec}
	}

	openKey := key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open"))

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "zfmrf subjects"
	l.SetStatusBarItemName("subject", "subjects")
	l.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{openKey}
	}

	return browseModel{cfg: cfg, list: l}
}

func (m browseModel) Init() tea.Cmd {
	return nil
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if m.detail != "" {
			switch msg.String() {
			case "esc", "backspace", "q":
				m.detail = ""
				return m, nil
			case "ctrl+c":
				return m, tea.Quit
			}
			return m, nil
		}

		// Keys fall through to the list while its filter is being typed.
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "enter":
			if item, ok := m.list.SelectedItem().(subjectItem); ok {
				m.detail = m.renderDetail(item.rec)
			}
			return m, nil
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m browseModel) View() string {
	if m.detail != "" {
		return browseDetailStyle.Render(m.detail)
	}
	return m.list.View()
}

// renderDetail builds the detail pane for one subject, reading series and
// data status from disk.
func (m browseModel) renderDetail(rec *core.SubjectRecord) string {
	var b strings.Builder

	b.WriteString(browseTitleStyle.Render(rec.SubjectID))
	b.WriteString("\n\n")

	kv := func(label, value string) {
		if value == "" {
			value = "-"
		}
		b.WriteString(fmt.Sprintf("%s %s\n", browseLabelStyle.Render(label+":"), value))
	}
	kv("Patient", rec.PatientName)
	kv("Patient ID", rec.PatientID)
	kv("Study date", rec.StudyDate)
	kv("Exam ID", rec.ExamID)
	kv("Station", rec.StationName)
	kv("DICOM files", fmt.Sprintf("%d", rec.DICOMCount))

	s := zfmrf.New(m.cfg.DataRoot, rec.SubjectID, m.cfg.Lab())
	defer func() { _ = s.Close() }()
	kv("Gating data", yesNo(s.HasGatingData()))
	kv("Spectra", yesNo(s.HasSpectra()))

	if meta, err := s.LoadMeta(); err == nil && len(meta.Series) > 0 {
		b.WriteString("\n")
		b.WriteString(browseLabelStyle.Render("Series"))
		b.WriteString("\n")
		for _, se := range meta.Series {
			b.WriteString(fmt.Sprintf("  %3d  %-40s %6d images\n", se.Number, se.Description, se.ImageCount))
		}
	}

	b.WriteString("\n")
	b.WriteString(browseMutedStyle.Render("esc back · ctrl+c quit"))
	return b.String()
}
