package commands

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/fraser29/zfmrf/internal/ui"
)

// UIOptions holds options for the ui command.
type UIOptions struct {
	Port      int
	NoBrowser bool
	Watch     bool
}

// NewUICommand creates the ui command.
func NewUICommand() *cobra.Command {
	opts := &UIOptions{}

	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Start the zfmrf web UI",
		Long: `Start a local web server over the subject directory tree.

The UI provides:
- Subject browser with patient and study details
- Series tables and data status per subject
- One-click actions (count check, gating, spectra, push)
- Live check reports
- Action run history

Pages update in place when subject directories change on disk.`,
		Example: `  # Start UI on default port
  zfmrf ui

  # Start on custom port
  zfmrf ui --port 3000

  # Start without auto-opening browser
  zfmrf ui --no-browser`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUI(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Port, "port", 0, "Port to serve on (default: 8765)")
	cmd.Flags().BoolVar(&opts.NoBrowser, "no-browser", false, "Don't auto-open browser")
	cmd.Flags().BoolVar(&opts.Watch, "watch", true, "Watch the data root for changes")

	return cmd
}

func runUI(cmd *cobra.Command, opts *UIOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	cfg := cmdCtx.Cfg

	if err := requireDataRoot(cfg); err != nil {
		return err
	}

	// Get UI config with defaults
	uiCfg := cfg.GetUIConfig()

	// CLI flags override config file
	port := uiCfg.Port
	if opts.Port != 0 {
		port = opts.Port
	}

	autoOpen := uiCfg.AutoOpen
	if opts.NoBrowser {
		autoOpen = false
	}

	watch := uiCfg.Watch
	if cmd.Flags().Changed("watch") {
		watch = opts.Watch
	}

	server, err := ui.NewServer(ui.Config{
		DataRoot:      cfg.DataRoot,
		SubjectPrefix: cfg.SubjectPrefix,
		Lab:           cfg.Lab(),
		Store:         cmdCtx.Store,
		Port:          port,
		Watch:         watch,
		Debounce:      uiCfg.Debounce,
		ChecksFile:    cfg.ChecksFile(),
		Logger:        cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create UI server: %w", err)
	}

	// Open browser if configured
	if autoOpen {
		url := fmt.Sprintf("http://localhost:%d", port)
		go openBrowser(url)
	}

	fmt.Printf("Starting UI server on http://localhost:%d\n", port)
	fmt.Println("Press Ctrl+C to stop")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	return server.Serve(ctx)
}

// openBrowser opens the default browser to the specified URL.
func openBrowser(url string) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url) //nolint:noctx
	case "linux":
		cmd = exec.Command("xdg-open", url) //nolint:noctx
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url) //nolint:noctx
	default:
		return
	}

	_ = cmd.Start()
}
