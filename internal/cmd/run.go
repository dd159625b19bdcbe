package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drover-dev/drover/internal/agent"
	"github.com/drover-dev/drover/internal/config"
	"github.com/drover-dev/drover/internal/exitcode"
	"github.com/drover-dev/drover/internal/ledger"
	"github.com/drover-dev/drover/internal/log"
	"github.com/drover-dev/drover/internal/orchestrator"
	"github.com/drover-dev/drover/internal/state"
	"github.com/drover-dev/drover/internal/workspace"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the orchestration loop until the backlog is exhausted",
	Long: `Run drives the coding agent through every remaining feature in the
backlog. Each iteration marks one feature in_progress, invokes the agent,
commits the resulting changes, and records the outcome. Interrupt the run
at any time; the next run resumes from the persisted state.`,
	RunE: runRun,
}

var (
	runProject    string
	runDryRun     bool
	runStartFrom  string
	runStopAfter  string
	runModel      string
	runMaxRetries int
	runNoCommit   bool
)

func init() {
	runCmd.Flags().StringVarP(&runProject, "project", "p", ".", "project directory")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "report what would run without invoking the agent")
	runCmd.Flags().StringVar(&runStartFrom, "from", "", "skip pending features before this id")
	runCmd.Flags().StringVar(&runStopAfter, "stop-after", "", "end the run after this feature")
	runCmd.Flags().StringVar(&runModel, "model", "", "override the agent model")
	runCmd.Flags().IntVar(&runMaxRetries, "max-retries", 0, "override max agent invocations per feature")
	runCmd.Flags().BoolVar(&runNoCommit, "no-commit", false, "leave completed features uncommitted")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runProject)
	if err != nil {
		return err
	}
	if runStartFrom != "" {
		cfg.StartFrom = runStartFrom
	}
	if runStopAfter != "" {
		cfg.StopAfter = runStopAfter
	}
	if runModel != "" {
		cfg.Agent.Model = runModel
	}
	if runMaxRetries > 0 {
		cfg.MaxRetries = runMaxRetries
	}
	if runNoCommit {
		cfg.AutoCommit = false
	}
	setupLogging(cfg.LogLevel)
	logger := log.DefaultLogger()

	loop := orchestrator.New(
		cfg,
		state.NewStore(cfg.FeaturesPath()),
		ledger.New(cfg.ProgressPath()),
		agent.NewGateway(cfg, logger),
		workspace.New(cfg.ProjectDir, cfg.InitScript),
		logger,
		orchestrator.Options{DryRun: runDryRun},
	)

	result, err := loop.Run(cmd.Context())
	if err != nil {
		return err
	}

	if runDryRun {
		if len(result.Planned) == 0 {
			fmt.Println("Nothing left to run.")
			return nil
		}
		fmt.Println("Would run, in order:")
		for _, id := range result.Planned {
			fmt.Printf("  %s\n", id)
		}
		return nil
	}

	if result.Outcome == orchestrator.RunHalted {
		return &haltedError{cause: result.Halt}
	}
	return nil
}

// haltedError maps a mid-run halt onto the halted exit code while
// keeping the underlying classification visible for corrupt-state and
// environment causes.
type haltedError struct {
	cause error
}

func (e *haltedError) Error() string {
	if e.cause == nil {
		return "run halted"
	}
	return fmt.Sprintf("run halted: %v", e.cause)
}

func (e *haltedError) Unwrap() error { return e.cause }

// ExitCode returns the process exit code for the halt.
func (e *haltedError) ExitCode() int {
	if e.cause == nil {
		return exitcode.Halted
	}
	if code := exitcode.DetermineExitCode(e.cause); code != exitcode.GeneralError {
		return code
	}
	return exitcode.Halted
}
