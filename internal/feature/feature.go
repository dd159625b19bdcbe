package feature

import (
	"time"
)

// Status represents the lifecycle state of a feature
type Status string

const (
	// StatusPending means no work has started
	StatusPending Status = "pending"
	// StatusInProgress means the loop is currently working on the feature
	StatusInProgress Status = "in_progress"
	// StatusDone means the feature was implemented and verified
	StatusDone Status = "done"
	// StatusFailed means the feature terminally failed; the run continues
	StatusFailed Status = "failed"
	// StatusBlocked means a declared dependency terminally failed
	StatusBlocked Status = "blocked"
	// StatusSkipped means an operator marked the feature to be passed over
	StatusSkipped Status = "skipped"
)

// Terminal reports whether the status is an end state for a run
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusBlocked, StatusSkipped:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status value
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDone, StatusFailed, StatusBlocked, StatusSkipped:
		return true
	default:
		return false
	}
}

// Feature is one unit of backlog work derived from a specification document.
// ID, Title, Description, and Steps are immutable after parse time; only
// the orchestration loop mutates the remaining fields.
type Feature struct {
	ID          string   `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Steps       []string `yaml:"steps,omitempty" json:"steps,omitempty"`
	DependsOn   []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`

	Status        Status `yaml:"status" json:"status"`
	Attempts      int    `yaml:"attempts,omitempty" json:"attempts,omitempty"`
	LastError     string `yaml:"last_error,omitempty" json:"last_error,omitempty"`
	LastSessionID string `yaml:"last_session_id,omitempty" json:"last_session_id,omitempty"`
	CommitHash    string `yaml:"commit_hash,omitempty" json:"commit_hash,omitempty"`
}

// RunState is the durable state of one orchestration run. Features keep
// their declaration order from the spec; that order is authoritative for
// selection.
type RunState struct {
	RunID         string    `yaml:"run_id,omitempty" json:"run_id,omitempty"`
	RunStartedAt  time.Time `yaml:"run_started_at,omitempty" json:"run_started_at,omitempty"`
	LastUpdatedAt time.Time `yaml:"last_updated_at,omitempty" json:"last_updated_at,omitempty"`
	Features      []Feature `yaml:"features" json:"features"`
}

// Find returns a pointer to the feature with the given id, or nil.
func (rs *RunState) Find(id string) *Feature {
	for i := range rs.Features {
		if rs.Features[i].ID == id {
			return &rs.Features[i]
		}
	}
	return nil
}

// InProgress returns the feature currently marked in_progress, or nil.
// At most one feature may be in_progress at any instant; Validate
// enforces that on load.
func (rs *RunState) InProgress() *Feature {
	for i := range rs.Features {
		if rs.Features[i].Status == StatusInProgress {
			return &rs.Features[i]
		}
	}
	return nil
}

// Cursor returns the id of the next feature the loop should attempt.
// It is recomputed from statuses rather than persisted, so manual edits
// to the features file stay consistent. Selection order:
//
//  1. a feature left in_progress (crash recovery — re-attempted, never
//     skipped)
//  2. the first pending feature in declaration order whose dependencies
//     are all done
//
// Returns empty string when no feature remains to attempt.
func (rs *RunState) Cursor() string {
	if f := rs.InProgress(); f != nil {
		return f.ID
	}
	for i := range rs.Features {
		f := &rs.Features[i]
		if f.Status != StatusPending {
			continue
		}
		if rs.dependenciesDone(f) {
			return f.ID
		}
	}
	return ""
}

// BlockedByDependency returns pending features whose declared dependency
// reached a terminal status other than done (failed, blocked, or
// skipped); those can never run and should be marked blocked.
func (rs *RunState) BlockedByDependency() []string {
	var blocked []string
	for i := range rs.Features {
		f := &rs.Features[i]
		if f.Status != StatusPending {
			continue
		}
		for _, dep := range f.DependsOn {
			d := rs.Find(dep)
			if d == nil {
				continue
			}
			if d.Status.Terminal() && d.Status != StatusDone {
				blocked = append(blocked, f.ID)
				break
			}
		}
	}
	return blocked
}

// Complete reports whether every feature has reached a terminal status.
func (rs *RunState) Complete() bool {
	for i := range rs.Features {
		if !rs.Features[i].Status.Terminal() {
			return false
		}
	}
	return len(rs.Features) > 0
}

// Counts returns the number of features per status.
func (rs *RunState) Counts() map[Status]int {
	counts := make(map[Status]int)
	for i := range rs.Features {
		counts[rs.Features[i].Status]++
	}
	return counts
}

func (rs *RunState) dependenciesDone(f *Feature) bool {
	for _, dep := range f.DependsOn {
		d := rs.Find(dep)
		if d == nil {
			// Unknown dependency ids don't block; the parser assigns
			// them and manual edits shouldn't wedge the run.
			continue
		}
		if d.Status != StatusDone {
			return false
		}
	}
	return true
}
