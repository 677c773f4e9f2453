package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/spf13/cobra"

	"github.com/fraser29/zfmrf/internal/checks"
	"github.com/fraser29/zfmrf/internal/cli/config"
	"github.com/fraser29/zfmrf/internal/cli/output"
	"github.com/fraser29/zfmrf/internal/state"
	"github.com/fraser29/zfmrf/pkg/orthanc"
	"github.com/fraser29/zfmrf/pkg/subject"
)

// doctorPingTimeout bounds the DICOM server probe.
const doctorPingTimeout = 5 * time.Second

// DoctorOptions holds options for the doctor command.
type DoctorOptions struct {
	Format string // Output format: text, json
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	opts := &DoctorOptions{}
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run a comprehensive environment health check",
		Long: `Diagnose the zfmrf working environment.

The doctor command probes everything the other commands depend on
and reports what it finds:
- Configuration (config file, data root)
- Subject index (reachable, in step with the directory tree)
- Lab services (DICOM server, physiology share, SAGE archive)
- Check script (parses, how many checks it adds)

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON: Machine-readable format`,
		Example: `  # Run environment check
  zfmrf doctor

  # Output as JSON
  zfmrf doctor --format json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: text, json")

	return cmd
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	Summary         EnvironmentSummary `json:"summary"`
	HealthChecks    []HealthCheck      `json:"health_checks"`
	Score           int                `json:"score"`
	Recommendations []string           `json:"recommendations"`
	IssueCount      int                `json:"issue_count"`
}

// EnvironmentSummary contains environment-level statistics.
type EnvironmentSummary struct {
	ConfigFile      string `json:"config_file"`
	DataRoot        string `json:"data_root"`
	SubjectsOnDisk  int    `json:"subjects_on_disk"`
	SubjectsIndexed int    `json:"subjects_indexed"`
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	CheckID string `json:"check_id"`
	Name    string `json:"name"`
	Group   string `json:"group"`
	Status  string `json:"status"` // "pass", "warn", "error"
	Detail  string `json:"detail,omitempty"`
}

func runDoctor(cmd *cobra.Command, opts *DoctorOptions) error {
	cmdCtx := NewCommandContextWithoutIndex(cmd)
	cfg := cmdCtx.Cfg
	r := cmdCtx.Renderer

	// Override renderer if format flag is set
	if opts.Format != "" {
		r = output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(opts.Format))
	}

	doctorOutput := buildDoctorOutput(cmd.Context(), cmdCtx, cfg)

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(doctorOutput)
	case output.ModeMarkdown:
		return renderDoctorMarkdown(r, doctorOutput)
	default:
		return renderDoctorText(r, doctorOutput)
	}
}

func buildDoctorOutput(ctx context.Context, cmdCtx *CommandContext, cfg *config.Config) *DoctorOutput {
	summary := EnvironmentSummary{
		ConfigFile: config.GetConfigFileUsed(),
		DataRoot:   cfg.DataRoot,
	}

	var healthChecks []HealthCheck
	add := func(c HealthCheck) { healthChecks = append(healthChecks, c) }

	// Configuration
	if summary.ConfigFile != "" {
		add(HealthCheck{"ENV01", "Configuration file", "configuration", "pass", summary.ConfigFile})
	} else {
		add(HealthCheck{"ENV01", "Configuration file", "configuration", "warn", "no zfmrf.yaml found, running on defaults"})
	}

	switch {
	case cfg.DataRoot == "":
		add(HealthCheck{"ENV02", "Data root", "configuration", "error", "no data root configured"})
	default:
		if info, err := os.Stat(cfg.DataRoot); err != nil || !info.IsDir() {
			add(HealthCheck{"ENV02", "Data root", "configuration", "error", fmt.Sprintf("%s is not a directory", cfg.DataRoot)})
		} else {
			ids, err := subject.List(cfg.DataRoot, cfg.SubjectPrefix)
			if err != nil {
				add(HealthCheck{"ENV02", "Data root", "configuration", "error", err.Error()})
			} else {
				summary.SubjectsOnDisk = len(ids)
				add(HealthCheck{"ENV02", "Data root", "configuration", "pass",
					fmt.Sprintf("%s (%d subjects)", cfg.DataRoot, len(ids))})
			}
		}
	}

	// Index
	indexed, indexCheck := probeIndex(cmdCtx, cfg)
	add(indexCheck)
	summary.SubjectsIndexed = indexed
	if indexCheck.Status == "pass" && indexed != summary.SubjectsOnDisk {
		add(HealthCheck{"IDX02", "Index freshness", "index", "warn",
			fmt.Sprintf("%d indexed, %d on disk", indexed, summary.SubjectsOnDisk)})
	} else if indexCheck.Status == "pass" {
		add(HealthCheck{"IDX02", "Index freshness", "index", "pass",
			fmt.Sprintf("in step with the data root (%d subjects)", indexed)})
	}

	// Lab services
	add(probeDICOMServer(ctx, cmdCtx, cfg))
	add(probeShare("SRV02", "Physiology share", cfg.Parameters.PhysiologyDataDir,
		"physiology_data_dir not set, gating copies disabled"))
	add(probeShare("SRV03", "SAGE archive", cfg.Parameters.SageDataDir,
		"sage_data_dir not set, spectra retrieval disabled"))

	// Check script
	add(probeChecksScript(cmdCtx, cfg))

	sort.SliceStable(healthChecks, func(i, j int) bool {
		if healthChecks[i].Group != healthChecks[j].Group {
			return healthChecks[i].Group < healthChecks[j].Group
		}
		return healthChecks[i].CheckID < healthChecks[j].CheckID
	})

	issues := 0
	for _, c := range healthChecks {
		if c.Status != "pass" {
			issues++
		}
	}

	return &DoctorOutput{
		Summary:         summary,
		HealthChecks:    healthChecks,
		Score:           calculateHealthScore(healthChecks),
		Recommendations: generateRecommendations(healthChecks),
		IssueCount:      issues,
	}
}

// probeIndex opens the configured index and counts subjects. A sqlite index
// that does not exist yet is reported without creating it.
func probeIndex(cmdCtx *CommandContext, cfg *config.Config) (int, HealthCheck) {
	driver, dsn, err := cfg.IndexDSN()
	if err != nil {
		return 0, HealthCheck{"IDX01", "Subject index", "index", "error", err.Error()}
	}
	if driver == "sqlite" {
		if _, err := os.Stat(dsn); os.IsNotExist(err) {
			return 0, HealthCheck{"IDX01", "Subject index", "index", "warn",
				fmt.Sprintf("not created yet at %s", dsn)}
		}
	}
	st, err := state.OpenStore(driver, dsn, cmdCtx.Logger)
	if err != nil {
		return 0, HealthCheck{"IDX01", "Subject index", "index", "error", err.Error()}
	}
	defer func() { _ = st.Close() }()
	recs, err := st.ListSubjects()
	if err != nil {
		return 0, HealthCheck{"IDX01", "Subject index", "index", "error", err.Error()}
	}
	return len(recs), HealthCheck{"IDX01", "Subject index", "index", "pass",
		fmt.Sprintf("%s, %d subjects", driver, len(recs))}
}

func probeDICOMServer(ctx context.Context, cmdCtx *CommandContext, cfg *config.Config) HealthCheck {
	server := cfg.Parameters.DICOMServer
	if server == "" {
		return HealthCheck{"SRV01", "DICOM server", "lab services", "warn",
			"dicom_server not set, count checks and push disabled"}
	}
	client, err := orthanc.New(server, cmdCtx.Logger)
	if err != nil {
		return HealthCheck{"SRV01", "DICOM server", "lab services", "error", err.Error()}
	}
	pingCtx, cancel := context.WithTimeout(ctx, doctorPingTimeout)
	defer cancel()
	info, err := client.Ping(pingCtx)
	if err != nil {
		return HealthCheck{"SRV01", "DICOM server", "lab services", "error",
			fmt.Sprintf("%s unreachable: %v", server, err)}
	}
	return HealthCheck{"SRV01", "DICOM server", "lab services", "pass",
		fmt.Sprintf("%s (%s %s)", server, info.Name, info.Version)}
}

func probeShare(id, name, dir, unsetDetail string) HealthCheck {
	if dir == "" {
		return HealthCheck{id, name, "lab services", "warn", unsetDetail}
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return HealthCheck{id, name, "lab services", "error", fmt.Sprintf("%s is not accessible", dir)}
	}
	return HealthCheck{id, name, "lab services", "pass", dir}
}

func probeChecksScript(cmdCtx *CommandContext, cfg *config.Config) HealthCheck {
	path := cfg.ChecksFile()
	if _, err := os.Stat(path); err != nil {
		return HealthCheck{"CHK01", "Check script", "checks", "warn",
			fmt.Sprintf("%s not found, builtin checks only", filepath.Base(path))}
	}
	extra, err := checks.LoadScript(path, cmdCtx.Logger)
	if err != nil {
		return HealthCheck{"CHK01", "Check script", "checks", "error", err.Error()}
	}
	return HealthCheck{"CHK01", "Check script", "checks", "pass",
		fmt.Sprintf("%s adds %d check(s)", path, len(extra))}
}

// calculateHealthScore computes a health score from 0-100. Errors weigh
// double.
func calculateHealthScore(healthChecks []HealthCheck) int {
	if len(healthChecks) == 0 {
		return 100
	}

	score := 100.0
	for _, check := range healthChecks {
		switch check.Status {
		case "error":
			score -= 20
		case "warn":
			score -= 10
		}
	}

	if score < 0 {
		score = 0
	}
	return int(score)
}

// generateRecommendations creates actionable recommendations based on findings.
func generateRecommendations(healthChecks []HealthCheck) []string {
	var recommendations []string
	seen := make(map[string]bool)

	for _, check := range healthChecks {
		if check.Status == "pass" {
			continue
		}
		rec := getRecommendation(check.CheckID)
		if rec != "" && !seen[rec] {
			recommendations = append(recommendations, rec)
			seen[rec] = true
		}
	}

	if len(recommendations) > 5 {
		recommendations = recommendations[:5]
	}
	return recommendations
}

// getRecommendation returns a recommendation for a specific check.
func getRecommendation(checkID string) string {
	switch checkID {
	case "ENV01":
		return "Create a config file with 'zfmrf init'"
	case "ENV02":
		return "Point data_root in zfmrf.yaml (or --data-root) at the subject directory tree"
	case "IDX01":
		return "Fix the index settings in zfmrf.yaml, or delete the index file to start over"
	case "IDX02":
		return "Refresh the index with 'zfmrf list'"
	case "SRV01":
		return "Set dicom_server in zfmrf.yaml to the Orthanc URL, and check it is running"
	case "SRV02":
		return "Set physiology_data_dir to the mounted scanner backup share"
	case "SRV03":
		return "Set sage_data_dir to the mounted SAGE archive"
	case "CHK01":
		return "Fix the check script, or remove it to run builtin checks only"
	default:
		return ""
	}
}

func renderDoctorText(r *output.Renderer, out *DoctorOutput) error {
	styles := r.Styles()

	r.Println("")
	r.Println(styles.Header1.Render("zfmrf Environment Report"))
	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	r.Println("")

	r.Println(styles.Header2.Render("Summary"))
	configFile := out.Summary.ConfigFile
	if configFile == "" {
		configFile = "(defaults)"
	}
	r.Printf("   Config: %s\n", configFile)
	r.Printf("   Data root: %s\n", out.Summary.DataRoot)
	r.Printf("   Subjects: %d on disk | %d indexed\n", out.Summary.SubjectsOnDisk, out.Summary.SubjectsIndexed)
	r.Println("")

	r.Println(styles.Header2.Render("Health Checks"))
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println(styles.Bold.Render("   " + titleCaser.String(currentGroup)))
			r.Println(styles.Muted.Render("   " + strings.Repeat("-", 40)))
		}

		icon := styles.StatusSuccess.Render("✓")
		switch check.Status {
		case "warn":
			icon = styles.Warning.Render("!")
		case "error":
			icon = styles.StatusFailed.Render("✗")
		}

		r.Printf("   %s %s\n", icon, check.Name)
		if check.Detail != "" {
			r.Println(styles.Muted.Render("       " + check.Detail))
		}
	}
	r.Println("")

	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	scoreStyle := styles.Success
	if out.Score < 70 {
		scoreStyle = styles.Warning
	}
	if out.Score < 50 {
		scoreStyle = styles.Error
	}
	r.Printf("   Health Score: %s\n", scoreStyle.Render(fmt.Sprintf("%d/100", out.Score)))
	r.Println("")

	if len(out.Recommendations) > 0 {
		r.Println(styles.Header2.Render("Recommendations"))
		for i, rec := range out.Recommendations {
			r.Printf("   %d. %s\n", i+1, rec)
		}
		r.Println("")
	}

	return nil
}

func renderDoctorMarkdown(r *output.Renderer, out *DoctorOutput) error {
	r.Println("# zfmrf Environment Report")
	r.Println("")

	r.Println("## Summary")
	r.Println("")
	configFile := out.Summary.ConfigFile
	if configFile == "" {
		configFile = "(defaults)"
	}
	r.Printf("- **Config**: %s\n", configFile)
	r.Printf("- **Data root**: %s\n", out.Summary.DataRoot)
	r.Printf("- **Subjects on disk**: %d\n", out.Summary.SubjectsOnDisk)
	r.Printf("- **Subjects indexed**: %d\n", out.Summary.SubjectsIndexed)
	r.Println("")

	r.Println("## Health Checks")
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println("### " + titleCaser.String(currentGroup))
			r.Println("")
		}

		status := "PASS"
		switch check.Status {
		case "warn":
			status = "WARN"
		case "error":
			status = "ERROR"
		}

		r.Printf("- **[%s]** %s", status, check.Name)
		if check.Detail != "" {
			r.Printf(": %s", check.Detail)
		}
		r.Println("")
	}
	r.Println("")

	r.Println("## Health Score")
	r.Println("")
	r.Printf("**%d/100**\n", out.Score)
	r.Println("")

	if len(out.Recommendations) > 0 {
		r.Println("## Recommendations")
		r.Println("")
		for i, rec := range out.Recommendations {
			r.Printf("%d. %s\n", i+1, rec)
		}
		r.Println("")
	}

	return nil
}
