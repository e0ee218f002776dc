package resilience

import (
	"time"

	"github.com/evetools/esigate/internal/esi"
)

// Ledger records probe outcomes in a Store.
type Ledger struct {
	store *Store
	now   func() time.Time
}

// NewLedger creates a ledger backed by store.
func NewLedger(store *Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// Record appends a probe outcome and returns the updated state.
func (l *Ledger) Record(status esi.Status, v esi.Verdict, inDowntime bool) (*State, error) {
	var out *State
	err := l.store.Update(func(s *State) error {
		s.Record(status, v, inDowntime, l.now().UTC())
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Last loads the ledger. State.Last is nil before the first probe.
func (l *Ledger) Last() (*State, error) {
	return l.store.Load()
}

// Recorded reports whether a ledger file exists.
func (l *Ledger) Recorded() bool {
	return l.store.Exists()
}

// Reset forgets the recorded history.
func (l *Ledger) Reset() error {
	return l.store.Clear()
}
