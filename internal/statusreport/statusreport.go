// Package statusreport produces read-only snapshots of a run for the
// status command. It never mutates the backlog or the ledger.
package statusreport

import (
	"time"

	"github.com/drover-dev/drover/internal/errors"
	"github.com/drover-dev/drover/internal/feature"
	"github.com/drover-dev/drover/internal/ledger"
	"github.com/drover-dev/drover/internal/log"
	"github.com/drover-dev/drover/internal/state"
)

// DefaultRecent is how many ledger entries a snapshot carries unless the
// caller asks for more.
const DefaultRecent = 5

// loadRetryDelay spaces the one re-read of the backlog. A load can catch
// the store mid-rename; one short pause is enough to get past it.
const loadRetryDelay = 100 * time.Millisecond

// Row is one feature as the status command presents it.
type Row struct {
	ID         string         `json:"id" yaml:"id"`
	Title      string         `json:"title" yaml:"title"`
	Status     feature.Status `json:"status" yaml:"status"`
	Attempts   int            `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	CommitHash string         `json:"commit_hash,omitempty" yaml:"commit_hash,omitempty"`
	LastError  string         `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// Snapshot is a point-in-time view of one run.
type Snapshot struct {
	GeneratedAt time.Time              `json:"generated_at" yaml:"generated_at"`
	RunID       string                 `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Counts      map[feature.Status]int `json:"counts" yaml:"counts"`
	Total       int                    `json:"total" yaml:"total"`
	Complete    bool                   `json:"complete" yaml:"complete"`
	Features    []Row                  `json:"features" yaml:"features"`
	Recent      []ledger.Entry         `json:"recent,omitempty" yaml:"recent,omitempty"`
	// LedgerStale is set when the progress file could not be read; the
	// snapshot is still served from the backlog alone.
	LedgerStale bool `json:"ledger_stale,omitempty" yaml:"ledger_stale,omitempty"`
}

// Reporter builds snapshots from the backlog and the ledger.
type Reporter struct {
	store  *state.Store
	ledger *ledger.Ledger
	logger *log.Logger

	sleep func(time.Duration)
	now   func() time.Time
}

// New creates a reporter over the given store and ledger.
func New(store *state.Store, led *ledger.Ledger, logger *log.Logger) *Reporter {
	return &Reporter{
		store:  store,
		ledger: led,
		logger: logger,
		sleep:  time.Sleep,
		now:    time.Now,
	}
}

// Snapshot reads the backlog and the last recent ledger entries. The
// backlog read is retried once; a second failure surfaces as a stale
// status error carrying the underlying classification. An unreadable
// ledger degrades to a partial snapshot rather than an error.
func (r *Reporter) Snapshot(recent int) (*Snapshot, error) {
	if recent <= 0 {
		recent = DefaultRecent
	}

	rs, err := r.store.Load()
	if err != nil && errors.IsCorruptState(err) {
		// Only a parse failure can be a mid-rename race worth re-reading;
		// a missing features file will still be missing after the pause.
		r.sleep(loadRetryDelay)
		rs, err = r.store.Load()
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStatusStale, "run status unavailable", err).
			WithClass(errors.ClassificationOf(err)).
			WithSuggestion("Check the features file for the project")
	}

	snap := &Snapshot{
		GeneratedAt: r.now().UTC(),
		RunID:       rs.RunID,
		Counts:      rs.Counts(),
		Total:       len(rs.Features),
		Complete:    rs.Complete(),
		Features:    make([]Row, 0, len(rs.Features)),
	}
	for i := range rs.Features {
		f := &rs.Features[i]
		snap.Features = append(snap.Features, Row{
			ID:         f.ID,
			Title:      f.Title,
			Status:     f.Status,
			Attempts:   f.Attempts,
			CommitHash: f.CommitHash,
			LastError:  f.LastError,
		})
	}

	entries, err := r.ledger.ReadLast(recent)
	if err != nil {
		r.logger.WithError(err).Warn("progress file unreadable, serving partial status")
		snap.LedgerStale = true
		return snap, nil
	}
	snap.Recent = entries

	return snap, nil
}
