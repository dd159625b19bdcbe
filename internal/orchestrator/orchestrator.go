// Package orchestrator drives the feature-by-feature implementation
// loop: select, invoke, verify, commit, record, repeat.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/drover-dev/drover/internal/agent"
	"github.com/drover-dev/drover/internal/config"
	"github.com/drover-dev/drover/internal/errors"
	"github.com/drover-dev/drover/internal/feature"
	"github.com/drover-dev/drover/internal/ledger"
	"github.com/drover-dev/drover/internal/log"
	"github.com/drover-dev/drover/internal/prompt"
	"github.com/drover-dev/drover/internal/state"
	"github.com/drover-dev/drover/internal/workspace"
)

// Workspace is the slice of workspace behavior the loop needs.
type Workspace interface {
	Prepare(ctx context.Context) error
	Commit(message string) (*workspace.CommitResult, error)
}

// RunOutcome is the final state of one loop run.
type RunOutcome string

const (
	// RunCompleted means every feature reached a terminal status, or the
	// configured feature range was exhausted.
	RunCompleted RunOutcome = "completed"
	// RunHalted means the run stopped early; RunResult.Halt carries the cause.
	RunHalted RunOutcome = "halted"
)

// RunResult summarizes one loop run.
type RunResult struct {
	RunID   string
	Outcome RunOutcome
	// Halt is the halting cause when Outcome is RunHalted.
	Halt   error
	Counts map[feature.Status]int
	// Planned is the feature order a dry run would attempt.
	Planned []string
}

// Options tune loop behavior beyond the config file.
type Options struct {
	// DryRun reports what would run without touching state, the
	// workspace, or the agent.
	DryRun bool
	// Sleeper overrides the retry backoff sleeper. Nil means real sleep.
	Sleeper agent.Sleeper
}

// Loop is the orchestration control loop for one project.
type Loop struct {
	cfg     *config.Config
	store   *state.Store
	ledger  *ledger.Ledger
	invoker agent.Invoker
	ws      Workspace
	logger  *log.Logger
	opts    Options
}

// New assembles a loop from its collaborators.
func New(cfg *config.Config, store *state.Store, led *ledger.Ledger, invoker agent.Invoker, ws Workspace, logger *log.Logger, opts Options) *Loop {
	return &Loop{
		cfg:     cfg,
		store:   store,
		ledger:  led,
		invoker: invoker,
		ws:      ws,
		logger:  logger,
		opts:    opts,
	}
}

// Run executes the loop until the backlog is exhausted or a halting
// condition occurs. The returned error covers failures before the loop
// starts (unreadable state, bad feature bounds); mid-run halts are
// reported through RunResult.Halt so partial progress stays visible.
func (l *Loop) Run(ctx context.Context) (*RunResult, error) {
	rs, err := l.store.Load()
	if err != nil {
		return nil, err
	}
	if err := l.checkBounds(rs); err != nil {
		return nil, err
	}

	if l.opts.DryRun {
		return l.planOnly(rs), nil
	}

	rs.RunID = uuid.NewString()
	rs.RunStartedAt = time.Now().UTC()
	if err := l.store.Save(rs); err != nil {
		return nil, err
	}
	result := &RunResult{RunID: rs.RunID}

	l.logger.Info("run starting",
		"run_id", rs.RunID,
		"features", len(rs.Features),
		"cursor", rs.Cursor(),
	)

	if err := l.ws.Prepare(ctx); err != nil {
		l.logger.WithError(err).Error("environment preparation failed")
		return l.halt(result, err)
	}

	if err := l.skipBeforeStart(rs); err != nil {
		return nil, err
	}

	consecutiveFailures := 0
	for {
		if ctx.Err() != nil {
			return l.halt(result, ctx.Err())
		}

		rs, err := l.store.Load()
		if err != nil {
			return l.halt(result, err)
		}

		if halted, err := l.markDependencyBlocked(result, rs); halted != nil || err != nil {
			return halted, err
		}
		rs, err = l.store.Load()
		if err != nil {
			return l.halt(result, err)
		}

		id := rs.Cursor()
		if id == "" {
			if err := l.markUnreachable(rs); err != nil {
				return l.halt(result, err)
			}
			break
		}
		f := rs.Find(id)

		if f.Status == feature.StatusInProgress {
			l.logger.Warn("resuming feature left in progress by a previous run",
				"feature_id", f.ID, "attempts", f.Attempts)
			if err := l.store.RecordAttempt(f.ID); err != nil {
				return l.halt(result, err)
			}
		} else {
			if err := l.store.MarkInProgress(f.ID); err != nil {
				return l.halt(result, err)
			}
		}

		l.logger.Info("feature starting", "feature_id", f.ID, "title", f.Title)

		agentResult, err := l.runFeature(ctx, f)
		if err != nil {
			switch {
			case errors.IsEnvironment(err) || errors.IsCorruptState(err):
				l.logger.WithError(err).Error("run-fatal failure", "feature_id", f.ID)
				l.appendEntry(ledger.Entry{FeatureID: f.ID, Outcome: ledger.OutcomeFailure, Error: err.Error()})
				return l.halt(result, err)

			case ctx.Err() != nil:
				// Leave the feature in_progress; the next run resumes it.
				l.logger.Warn("run cancelled mid-feature", "feature_id", f.ID)
				return l.halt(result, ctx.Err())
			}

			if merr := l.store.MarkFailed(f.ID, err); merr != nil {
				return l.halt(result, merr)
			}
			l.appendEntry(ledger.Entry{FeatureID: f.ID, Outcome: ledger.OutcomeFailure, Error: err.Error()})
			l.logger.WithError(err).Error("feature failed", "feature_id", f.ID)

			consecutiveFailures++
			if l.cfg.HaltOnFailure {
				return l.halt(result, err)
			}
			if l.cfg.MaxConsecutiveFailures > 0 && consecutiveFailures >= l.cfg.MaxConsecutiveFailures {
				return l.halt(result, errors.New(errors.ErrCodeAgentFailed,
					fmt.Sprintf("%d features failed consecutively", consecutiveFailures)).
					WithSuggestion("Inspect the recent failures; the backlog may be mis-ordered or the environment degraded"))
			}
		} else {
			if halted, err := l.finishFeature(result, f, agentResult); halted != nil || err != nil {
				return halted, err
			}
			consecutiveFailures = 0
		}

		if l.cfg.StopAfter != "" && f.ID == l.cfg.StopAfter {
			l.logger.Info("stop_after feature reached", "feature_id", f.ID)
			break
		}
	}

	rs, err = l.store.Load()
	if err != nil {
		return nil, err
	}
	result.Outcome = RunCompleted
	result.Counts = rs.Counts()

	l.logger.Info("run completed",
		"run_id", result.RunID,
		"done", result.Counts[feature.StatusDone],
		"failed", result.Counts[feature.StatusFailed],
		"blocked", result.Counts[feature.StatusBlocked],
	)
	return result, nil
}

// runFeature invokes the agent for one feature under the retry policy.
func (l *Loop) runFeature(ctx context.Context, f *feature.Feature) (*agent.Result, error) {
	promptText, err := prompt.Build(f, l.cfg)
	if err != nil {
		return nil, err
	}

	req := &agent.Request{
		FeatureID:    f.ID,
		Prompt:       promptText,
		WorkspaceDir: l.cfg.ProjectDir,
		ToolServers:  l.cfg.ToolServers,
	}

	policy := agent.PolicyFromConfig(l.cfg)
	policy.Sleep = l.opts.Sleeper
	policy.OnAttempt = func(attempt int) error {
		l.logger.Warn("retrying agent invocation", "feature_id", f.ID, "attempt", attempt)
		return l.store.RecordAttempt(f.ID)
	}

	return policy.Do(ctx, func(ctx context.Context) (*agent.Result, error) {
		return l.invoker.Invoke(ctx, req)
	})
}

// finishFeature commits the agent's work and records success. When the
// agent reports changed=false the commit step is skipped entirely; a
// clean tree on commit is a no-op, not an error.
func (l *Loop) finishFeature(result *RunResult, f *feature.Feature, ar *agent.Result) (*RunResult, error) {
	commitHash := ""
	if l.cfg.AutoCommit && ar.Changed {
		cr, err := l.ws.Commit(l.commitMessage(f))
		if err != nil {
			return l.commitFailure(result, f, err)
		}
		if cr.Committed {
			commitHash = cr.Hash
		} else {
			l.logger.Warn("agent reported changes but the worktree is clean", "feature_id", f.ID)
		}
	}

	if err := l.store.MarkDone(f.ID, ar.Summary, commitHash, ar.SessionID); err != nil {
		return l.halt(result, err)
	}
	l.appendEntry(ledger.Entry{
		FeatureID:  f.ID,
		Outcome:    ledger.OutcomeSuccess,
		Summary:    ar.Summary,
		CommitHash: commitHash,
		SessionID:  ar.SessionID,
	})
	l.logger.Info("feature done", "feature_id", f.ID, "commit", commitHash, "cost_usd", ar.CostUSD)
	return nil, nil
}

func (l *Loop) commitFailure(result *RunResult, f *feature.Feature, err error) (*RunResult, error) {
	if errors.IsEnvironment(err) || errors.IsCorruptState(err) {
		l.appendEntry(ledger.Entry{FeatureID: f.ID, Outcome: ledger.OutcomeFailure, Error: err.Error()})
		return l.halt(result, err)
	}
	if merr := l.store.MarkFailed(f.ID, err); merr != nil {
		return l.halt(result, merr)
	}
	l.appendEntry(ledger.Entry{FeatureID: f.ID, Outcome: ledger.OutcomeFailure, Error: err.Error()})
	l.logger.WithError(err).Error("commit failed", "feature_id", f.ID)
	return nil, nil
}

// markDependencyBlocked marks pending features whose dependency has
// terminally failed. They can never become eligible, so recording them
// keeps Complete() reachable.
func (l *Loop) markDependencyBlocked(result *RunResult, rs *feature.RunState) (*RunResult, error) {
	for _, id := range rs.BlockedByDependency() {
		reason := "dependency terminally failed"
		if err := l.store.MarkBlocked(id, reason); err != nil {
			return l.halt(result, err)
		}
		l.appendEntry(ledger.Entry{FeatureID: id, Outcome: ledger.OutcomeSkipped, Error: reason})
		l.logger.Warn("feature blocked", "feature_id", id)
	}
	return nil, nil
}

// markUnreachable handles the dead-end case: no feature is selectable
// but the backlog is not complete. Every remaining pending feature has
// a dependency that can never finish (a cycle, or a chain through a
// non-done terminal feature), so they are marked blocked rather than
// stranded pending under a run reported as completed.
func (l *Loop) markUnreachable(rs *feature.RunState) error {
	for i := range rs.Features {
		f := &rs.Features[i]
		if f.Status != feature.StatusPending {
			continue
		}
		reason := "dependencies can never be satisfied"
		if err := l.store.MarkBlocked(f.ID, reason); err != nil {
			return err
		}
		l.appendEntry(ledger.Entry{FeatureID: f.ID, Outcome: ledger.OutcomeSkipped, Error: reason})
		l.logger.Warn("feature unreachable", "feature_id", f.ID, "depends_on", f.DependsOn)
	}
	return nil
}

// skipBeforeStart marks pending features ahead of start_from as skipped.
func (l *Loop) skipBeforeStart(rs *feature.RunState) error {
	if l.cfg.StartFrom == "" {
		return nil
	}
	for i := range rs.Features {
		f := &rs.Features[i]
		if f.ID == l.cfg.StartFrom {
			break
		}
		if f.Status != feature.StatusPending {
			continue
		}
		if err := l.store.MarkSkipped(f.ID); err != nil {
			return err
		}
		l.appendEntry(ledger.Entry{FeatureID: f.ID, Outcome: ledger.OutcomeSkipped, Summary: "before start_from"})
		l.logger.Info("feature skipped", "feature_id", f.ID, "start_from", l.cfg.StartFrom)
	}
	return nil
}

func (l *Loop) checkBounds(rs *feature.RunState) error {
	for _, bound := range []string{l.cfg.StartFrom, l.cfg.StopAfter} {
		if bound != "" && rs.Find(bound) == nil {
			return errors.New(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("feature bound %q does not exist in the backlog", bound))
		}
	}
	return nil
}

// planOnly simulates selection order without mutating anything.
func (l *Loop) planOnly(rs *feature.RunState) *RunResult {
	result := &RunResult{Outcome: RunCompleted, Counts: rs.Counts()}

	sim := *rs
	sim.Features = append([]feature.Feature(nil), rs.Features...)
	started := l.cfg.StartFrom == ""
	for {
		id := sim.Cursor()
		if id == "" {
			break
		}
		f := sim.Find(id)
		if !started && f.ID == l.cfg.StartFrom {
			started = true
		}
		if started {
			result.Planned = append(result.Planned, id)
		}
		f.Status = feature.StatusDone
		if l.cfg.StopAfter != "" && id == l.cfg.StopAfter {
			break
		}
	}

	for _, id := range result.Planned {
		l.logger.Info("would run", "feature_id", id)
	}
	return result
}

func (l *Loop) commitMessage(f *feature.Feature) string {
	return fmt.Sprintf("%s%s: %s", l.cfg.CommitPrefix, f.ID, f.Title)
}

func (l *Loop) halt(result *RunResult, cause error) (*RunResult, error) {
	result.Outcome = RunHalted
	result.Halt = cause

	if rs, err := l.store.Load(); err == nil {
		result.Counts = rs.Counts()
	}
	l.logger.WithError(cause).Warn("run halted", "run_id", result.RunID)
	return result, nil
}

// appendEntry records a progress entry; failures are logged, not fatal,
// so a full disk cannot strand a feature already marked in the backlog.
func (l *Loop) appendEntry(entry ledger.Entry) {
	if err := l.ledger.Append(entry); err != nil {
		l.logger.WithError(err).Error("progress entry not recorded", "feature_id", entry.FeatureID)
	}
}
