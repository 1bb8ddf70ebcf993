package batch

import (
	"sync"

	"github.com/google/uuid"
)

// Outcome classifies what happened to one source file.
type Outcome int

const (
	OutcomeDecrypted Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDecrypted:
		return "decrypted"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Entry records the outcome for one source file. Err is non-nil only
// for OutcomeFailed and carries the originating path and error kind.
type Entry struct {
	Source  string
	Dest    string
	Outcome Outcome
	Err     error
}

// Manifest accumulates per-file outcomes. Append-only and safe for
// concurrent use by the batch workers.
type Manifest struct {
	RunID string

	mu      sync.Mutex
	entries []Entry
}

// NewManifest creates an empty manifest with a fresh run identifier.
func NewManifest() *Manifest {
	return &Manifest{RunID: uuid.NewString()}
}

// Append records one outcome.
func (m *Manifest) Append(e Entry) {
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
}

// Entries returns a copy of the recorded outcomes.
func (m *Manifest) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Counts returns the number of decrypted, skipped and failed files.
func (m *Manifest) Counts() (decrypted, skipped, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		switch e.Outcome {
		case OutcomeDecrypted:
			decrypted++
		case OutcomeSkipped:
			skipped++
		case OutcomeFailed:
			failed++
		}
	}
	return decrypted, skipped, failed
}
