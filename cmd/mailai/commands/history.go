package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/mailai/internal/app"
	"github.com/nhle/mailai/internal/model"
	"github.com/nhle/mailai/internal/theme"
)

var (
	historyLimit     int
	historyOlderThan time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent processing cycles from the journal",
	RunE:  runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <cycle-id>",
	Short: "Show the messages handled in one cycle",
	Long:  "Show every message result of a cycle. A unique prefix of the cycle ID is enough.",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete journal entries older than a cutoff",
	RunE:  runHistoryPrune,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of cycles to list (0 = all)")
	historyPruneCmd.Flags().DurationVar(&historyOlderThan, "older-than", 30*24*time.Hour, "Age of the cycles to delete")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyPruneCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	journal, err := app.OpenJournal(cfg)
	if err != nil {
		return err
	}
	defer journal.Close()

	cycles, err := journal.RecentCycles(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return outputJSON(cycles)
	}
	if len(cycles) == 0 {
		fmt.Println(theme.HelpStyle.Render("no cycles recorded"))
		return nil
	}
	for _, c := range cycles {
		counts := model.CycleCounts{Delivered: c.Delivered, Skipped: c.Skipped, Failed: c.Failed}
		line := fmt.Sprintf("%s  %s  %-7s  %s",
			c.ID[:8], c.StartedAt.Local().Format("2006-01-02 15:04:05"), c.Mode, theme.Counts(counts))
		if c.Error != "" {
			line += "  " + theme.StatusStyle(model.StatusFailed).Render(c.Error)
		}
		fmt.Println(line)
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	journal, err := app.OpenJournal(cfg)
	if err != nil {
		return err
	}
	defer journal.Close()

	results, err := journal.CycleOutcomes(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return outputJSON(toJSONResults(results))
	}
	if len(results) == 0 {
		fmt.Println(theme.HelpStyle.Render("no messages recorded for " + args[0]))
		return nil
	}
	for _, r := range results {
		fmt.Println(theme.Result(r))
	}
	return nil
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	journal, err := app.OpenJournal(cfg)
	if err != nil {
		return err
	}
	defer journal.Close()

	n, err := journal.Prune(cmd.Context(), time.Now().Add(-historyOlderThan))
	if err != nil {
		return err
	}
	fmt.Printf("removed %d cycle(s)\n", n)
	return nil
}
