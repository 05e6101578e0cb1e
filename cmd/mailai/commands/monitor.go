package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/mailai/internal/model"
	"github.com/nhle/mailai/internal/processor"
	"github.com/nhle/mailai/internal/ui/dashboard"
)

var (
	monitorFlags     loopFlags
	monitorInterval  time.Duration
	monitorDashboard bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll the mailbox until interrupted",
	Long: `Run a processing cycle immediately and then once per interval until
SIGINT or SIGTERM. A message being answered when the signal arrives is
finished before the command exits.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().StringVarP(&monitorFlags.provider, "provider", "p", "", "Provider to try first")
	monitorCmd.Flags().StringVarP(&monitorFlags.model, "model", "m", "", "Model override for --provider")
	monitorCmd.Flags().IntVar(&monitorFlags.maxMessages, "max-messages", 0, "Messages per cycle (0 = config, -1 = no cap)")
	monitorCmd.Flags().DurationVarP(&monitorInterval, "interval", "i", 0, "Polling interval (default from config)")
	monitorCmd.Flags().BoolVar(&monitorDashboard, "dashboard", false, "Show a live terminal dashboard")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	opts := monitorFlags.options()
	opts.Interval = monitorInterval

	if monitorDashboard {
		return runDashboard(opts)
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	opts.OnCycle = func(r *model.CycleReport) {
		// Quiet ticks stay in the log only.
		if len(r.Results) == 0 && r.Err == nil {
			return
		}
		_ = printReport(r)
	}
	return a.Loop.Monitor(ctx, opts)
}

// runDashboard drives the monitor from the terminal dashboard. Logs go to
// a file beside the config since the dashboard owns the screen.
func runDashboard(opts processor.Options) error {
	logPath := filepath.Join(filepath.Dir(configPath), "mailai.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer f.Close()

	a, err := loadAppLoggingTo(f)
	if err != nil {
		return err
	}
	defer a.Close()

	return dashboard.Run(a.Loop, opts)
}
