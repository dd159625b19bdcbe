package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/drover-dev/drover/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "drover",
	Short: "Feature-by-feature coding agent orchestrator",
	Long: `drover drives an external coding agent through a project backlog one
feature at a time. It keeps durable run state in a features file, records
every outcome in an append-only progress file, and commits each completed
feature. A run can be interrupted at any point and resumed with the same
command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var verbose bool

// ExecuteContext runs the root command with the given context.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// setupLogging configures the global logger from the verbose flag and the
// configured level.
func setupLogging(level string) {
	if verbose {
		log.SetDefaultLogger(log.New(log.VerboseConfig()))
		return
	}

	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(level)
	log.SetDefaultLogger(log.New(cfg))
}
