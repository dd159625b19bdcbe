// Package ledger records one entry per loop iteration outcome.
//
// The progress file is append-only JSON lines, readable by humans and
// machines while the loop is writing. Entries are destroyed only by
// explicit operator action; the loop never rewrites history.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/drover-dev/drover/internal/errors"
)

// Outcome classifies a loop iteration result
type Outcome string

const (
	// OutcomeSuccess means the feature was implemented
	OutcomeSuccess Outcome = "success"
	// OutcomeFailure means the feature terminally failed
	OutcomeFailure Outcome = "failure"
	// OutcomeSkipped means the feature was passed over (blocked or operator-skipped)
	OutcomeSkipped Outcome = "skipped"
)

// Entry is one progress record.
type Entry struct {
	ID         string    `json:"id"`
	FeatureID  string    `json:"feature_id"`
	Outcome    Outcome   `json:"outcome"`
	Timestamp  time.Time `json:"timestamp"`
	Summary    string    `json:"summary,omitempty"`
	CommitHash string    `json:"commit_hash,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Ledger appends to and reads the progress file.
type Ledger struct {
	path string
}

// New creates a ledger backed by the given progress file path.
func New(path string) *Ledger {
	return &Ledger{path: path}
}

// Path returns the progress file path.
func (l *Ledger) Path() string {
	return l.path
}

// Append writes one entry as a JSON line. I/O errors are surfaced, not
// retried: losing progress records is a correctness issue, not a
// transient one.
func (l *Ledger) Append(entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(errors.ErrCodeLedgerAppendFailed, "marshal progress entry", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeLedgerAppendFailed, "create progress directory", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(errors.ErrCodeLedgerAppendFailed, "open progress file", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return errors.Wrap(errors.ErrCodeLedgerAppendFailed, "append progress entry", err)
	}

	return nil
}

// ReadAll returns all parseable entries in file order. A missing file
// yields an empty slice; unparseable lines (e.g. a torn final line from
// a concurrent write) are skipped rather than failing the read path.
func (l *Ledger) ReadAll() ([]Entry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.ErrCodeLedgerUnreadable, fmt.Sprintf("open progress file %s", l.path), err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return entries, errors.Wrap(errors.ErrCodeLedgerUnreadable, "scan progress file", err)
	}

	return entries, nil
}

// ReadLast returns up to n most recent entries, oldest first.
func (l *Ledger) ReadLast(n int) ([]Entry, error) {
	entries, err := l.ReadAll()
	if err != nil {
		return nil, err
	}
	if n <= 0 || len(entries) <= n {
		return entries, nil
	}
	return entries[len(entries)-n:], nil
}
