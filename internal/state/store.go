// Package state persists the run's feature backlog.
//
// The features file is the single source of truth for a run. Every
// mutation is a full load-modify-atomic-save cycle: the new document is
// written to a temp file in the same directory and renamed over the old
// one, so a reader never observes a torn file and the loop stays correct
// across process restarts.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/drover-dev/drover/internal/errors"
	"github.com/drover-dev/drover/internal/feature"
)

// Store manages the durable feature backlog for one project.
type Store struct {
	path string
	now  func() time.Time
}

// NewStore creates a store backed by the given features file path.
func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Path returns the features file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads and validates the persisted RunState.
// Returns a STATE-001 error when no features file exists and a
// corrupt-state error when the document cannot be parsed or violates
// the single-flight invariant.
func (s *Store) Load() (*feature.RunState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewStateNotFoundError(s.path)
		}
		return nil, errors.Wrap(errors.ErrCodeStateCorrupt, fmt.Sprintf("read features file %s", s.path), err).
			WithClass(errors.ClassCorruptState)
	}

	var rs feature.RunState
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, errors.NewStateCorruptError(s.path, err)
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}

	return &rs, nil
}

// Save atomically persists the RunState: write to temp, then rename.
// Save does not touch timestamps, so save(load()) is byte-stable;
// mutators stamp LastUpdatedAt themselves.
func (s *Store) Save(rs *feature.RunState) error {
	data, err := yaml.Marshal(rs)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStateWriteFailed, "marshal run state", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".features-*.tmp")
	if err != nil {
		return errors.Wrap(errors.ErrCodeStateWriteFailed, "create temp state file", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(errors.ErrCodeStateWriteFailed, "write temp state file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(errors.ErrCodeStateWriteFailed, "close temp state file", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(errors.ErrCodeStateWriteFailed, "replace features file", err)
	}

	return nil
}

// MarkInProgress transitions a feature to in_progress and increments its
// attempt counter. Persisted immediately so a crash after this point is
// recoverable.
func (s *Store) MarkInProgress(id string) error {
	return s.mutate(id, func(f *feature.Feature) {
		f.Status = feature.StatusInProgress
		f.Attempts++
	})
}

// MarkDone transitions a feature to done, clearing any previous error.
func (s *Store) MarkDone(id, summary, commitHash, sessionID string) error {
	_ = summary // recorded in the progress ledger, not the backlog
	return s.mutate(id, func(f *feature.Feature) {
		f.Status = feature.StatusDone
		f.LastError = ""
		if commitHash != "" {
			f.CommitHash = commitHash
		}
		if sessionID != "" {
			f.LastSessionID = sessionID
		}
	})
}

// MarkFailed transitions a feature to failed, retaining the error detail
// for diagnostics.
func (s *Store) MarkFailed(id string, failure error) error {
	return s.mutate(id, func(f *feature.Feature) {
		f.Status = feature.StatusFailed
		if failure != nil {
			f.LastError = failure.Error()
		}
	})
}

// MarkBlocked transitions a feature to blocked (dependency terminally
// failed).
func (s *Store) MarkBlocked(id, reason string) error {
	return s.mutate(id, func(f *feature.Feature) {
		f.Status = feature.StatusBlocked
		f.LastError = reason
	})
}

// MarkSkipped transitions a feature to skipped. Skipped features are
// passed over by the selector but stay in the backlog.
func (s *Store) MarkSkipped(id string) error {
	return s.mutate(id, func(f *feature.Feature) {
		f.Status = feature.StatusSkipped
	})
}

// RecordAttempt increments a feature's attempt counter without changing
// its status; the retrying gateway calls this once per agent invocation
// beyond the first.
func (s *Store) RecordAttempt(id string) error {
	return s.mutate(id, func(f *feature.Feature) {
		f.Attempts++
	})
}

func (s *Store) mutate(id string, apply func(*feature.Feature)) error {
	rs, err := s.Load()
	if err != nil {
		return err
	}

	f := rs.Find(id)
	if f == nil {
		return errors.New(errors.ErrCodeStateUnknownID, fmt.Sprintf("no feature with id %q", id))
	}

	apply(f)
	rs.LastUpdatedAt = s.now().UTC()

	return s.Save(rs)
}
