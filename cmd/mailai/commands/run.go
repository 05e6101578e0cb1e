package commands

import (
	"github.com/spf13/cobra"
)

var runFlags loopFlags

var runCmd = &cobra.Command{
	Use:     "run",
	Aliases: []string{"once"},
	Short:   "Process unseen requests once and exit",
	Long: `Run a single processing cycle: read the unseen messages of the
mailbox, answer the ones whose subject matches a keyword, and print what
happened to each. The exit status is non-zero when the cycle aborted.`,
	RunE: runOnce,
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.provider, "provider", "p", "", "Provider to try first")
	runCmd.Flags().StringVarP(&runFlags.model, "model", "m", "", "Model override for --provider")
	runCmd.Flags().IntVar(&runFlags.maxMessages, "max-messages", 0, "Messages per cycle (0 = config, -1 = no cap)")
}

func runOnce(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	report := a.Loop.ProcessOnce(ctx, runFlags.options())
	if err := printReport(report); err != nil {
		return err
	}
	return report.Err
}
