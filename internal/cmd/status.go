package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/drover-dev/drover/internal/config"
	"github.com/drover-dev/drover/internal/ledger"
	"github.com/drover-dev/drover/internal/log"
	"github.com/drover-dev/drover/internal/state"
	"github.com/drover-dev/drover/internal/statusreport"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show run progress without touching state",
	Long: `Status reads the backlog and the progress file and prints a summary:
per-status counts, every feature in backlog order, and recent outcomes.
It is safe to run while a loop is active.`,
	RunE: runStatus,
}

var (
	statusProject string
	statusFormat  string
	statusRecent  int
	statusWatch   bool
)

func init() {
	statusCmd.Flags().StringVarP(&statusProject, "project", "p", ".", "project directory")
	statusCmd.Flags().StringVarP(&statusFormat, "format", "f", statusreport.FormatText, "output format: text, json, or yaml")
	statusCmd.Flags().IntVar(&statusRecent, "recent", statusreport.DefaultRecent, "number of recent progress entries to show")
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "re-render whenever the run state changes")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(statusProject)
	if err != nil {
		return err
	}
	setupLogging(cfg.LogLevel)
	logger := log.DefaultLogger()

	reporter := statusreport.New(
		state.NewStore(cfg.FeaturesPath()),
		ledger.New(cfg.ProgressPath()),
		logger,
	)

	render := func() error {
		snap, err := reporter.Snapshot(statusRecent)
		if err != nil {
			return err
		}
		out, err := statusreport.Render(snap, statusFormat)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	}

	if !statusWatch {
		return render()
	}

	paths := []string{cfg.FeaturesPath(), cfg.ProgressPath()}
	err = statusreport.Watch(cmd.Context(), logger, paths, func() {
		if rerr := render(); rerr != nil {
			fmt.Fprintf(os.Stderr, "status: %v\n", rerr)
		}
	})
	if stderrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
