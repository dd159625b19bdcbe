package feature

import (
	"fmt"

	"github.com/drover-dev/drover/internal/errors"
)

// Validate checks structural invariants of a loaded RunState:
// unique ids, known statuses, and at most one feature in_progress.
// A violation means the persisted file was corrupted or hand-edited
// into an inconsistent shape; it is never silently repaired.
func (rs *RunState) Validate() error {
	if len(rs.Features) == 0 {
		return errors.New(errors.ErrCodeStateCorrupt, "features file contains no features").
			WithClass(errors.ClassCorruptState)
	}

	seen := make(map[string]bool, len(rs.Features))
	inProgress := 0
	for i := range rs.Features {
		f := &rs.Features[i]
		if f.ID == "" {
			return errors.New(errors.ErrCodeStateCorrupt,
				fmt.Sprintf("feature at position %d has no id", i)).
				WithClass(errors.ClassCorruptState)
		}
		if seen[f.ID] {
			return errors.New(errors.ErrCodeStateCorrupt,
				fmt.Sprintf("duplicate feature id %q", f.ID)).
				WithClass(errors.ClassCorruptState)
		}
		seen[f.ID] = true

		if f.Status == "" {
			f.Status = StatusPending
		}
		if !f.Status.Valid() {
			return errors.New(errors.ErrCodeStateCorrupt,
				fmt.Sprintf("feature %q has unknown status %q", f.ID, f.Status)).
				WithClass(errors.ClassCorruptState)
		}
		if f.Status == StatusInProgress {
			inProgress++
		}
	}

	if inProgress > 1 {
		return errors.New(errors.ErrCodeStateSingleFlight,
			fmt.Sprintf("%d features are marked in_progress; the loop is single-flight", inProgress)).
			WithClass(errors.ClassCorruptState).
			WithSuggestion("Edit the features file so at most one feature is in_progress")
	}

	return nil
}
