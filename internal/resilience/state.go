package resilience

import (
	"time"

	"github.com/evetools/esigate/internal/esi"
)

// StateVersion is the current ledger schema version. Files written by a
// newer version are treated as empty.
const StateVersion = 1

// State is the persisted probe ledger.
type State struct {
	Version int `json:"version"`

	// Last is the most recent recorded probe, nil before the first one.
	Last *ProbeRecord `json:"last,omitempty"`

	// ConsecutiveOffline counts offline probes since the last online one.
	ConsecutiveOffline int `json:"consecutive_offline"`

	// LastHealthyAt is when a probe was last assessed healthy.
	LastHealthyAt time.Time `json:"last_healthy_at"`

	// TotalProbes counts every recorded probe.
	TotalProbes int `json:"total_probes"`

	UpdatedAt time.Time `json:"updated_at"`
}

// ProbeRecord is one assessed probe.
type ProbeRecord struct {
	Status     esi.Status `json:"status"`
	Health     string     `json:"health"`
	RetryIn    int        `json:"retry_in,omitempty"` // seconds
	InDowntime bool       `json:"in_downtime,omitempty"`
	ObservedAt time.Time  `json:"observed_at"`
}

// NewState returns an empty ledger.
func NewState() *State {
	return &State{Version: StateVersion}
}

// Record folds a probe into the ledger.
func (s *State) Record(status esi.Status, v esi.Verdict, inDowntime bool, at time.Time) {
	s.Last = &ProbeRecord{
		Status:     status,
		Health:     v.Health.String(),
		RetryIn:    int(v.RetryIn.Seconds()),
		InDowntime: inDowntime,
		ObservedAt: at,
	}
	s.TotalProbes++

	if status.IsOnline() {
		s.ConsecutiveOffline = 0
	} else {
		s.ConsecutiveOffline++
	}
	if v.OK() {
		s.LastHealthyAt = at
	}
	s.UpdatedAt = at
}

// Age returns how long ago the last probe was recorded, or false if none was.
func (s *State) Age(now time.Time) (time.Duration, bool) {
	if s.Last == nil {
		return 0, false
	}
	return now.Sub(s.Last.ObservedAt), true
}
