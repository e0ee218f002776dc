// Package esi determines whether the EVE Swagger Interface is reachable and
// healthy enough for dependent jobs to proceed.
//
// A Fetcher probes the ESI status endpoint and yields a Status. An Evaluator
// turns a Status into a Verdict (healthy, offline, or error limit exceeded)
// and computes jittered retry delays for callers that have to back off.
package esi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Status is the result of a single ESI status probe. It is immutable.
//
// The error limit fields are either both known or both unknown; a Status
// never carries only one of them.
type Status struct {
	online    bool
	hasLimits bool
	remain    int
	reset     int
}

// NewStatus creates a Status. If either remain or reset is nil, both error
// limit fields are treated as unknown.
func NewStatus(online bool, remain, reset *int) Status {
	s := Status{online: online}
	if remain != nil && reset != nil {
		s.hasLimits = true
		s.remain = *remain
		s.reset = *reset
	}
	return s
}

// OnlineStatus returns an online Status with known error limits.
func OnlineStatus(remain, reset int) Status {
	return Status{online: true, hasLimits: true, remain: remain, reset: reset}
}

// OfflineStatus returns an offline Status with unknown error limits.
func OfflineStatus() Status {
	return Status{}
}

// ParseStatus creates a Status from raw header values. A missing or
// non-numeric value makes both error limit fields unknown.
func ParseStatus(online bool, remain, reset string) Status {
	s, _ := parseStatus(online, remain, reset)
	return s
}

// parseStatus is ParseStatus that also reports whether both limits parsed.
func parseStatus(online bool, remain, reset string) (Status, bool) {
	r, err := strconv.Atoi(strings.TrimSpace(remain))
	if err != nil {
		return Status{online: online}, false
	}
	rs, err := strconv.Atoi(strings.TrimSpace(reset))
	if err != nil {
		return Status{online: online}, false
	}
	return Status{online: online, hasLimits: true, remain: r, reset: rs}, true
}

// IsOnline reports whether ESI answered and is not in VIP mode.
func (s Status) IsOnline() bool {
	return s.online
}

// ErrorLimitRemain returns the remaining errors in the current window.
func (s Status) ErrorLimitRemain() (int, bool) {
	return s.remain, s.hasLimits
}

// ErrorLimitReset returns the seconds until the current error window resets.
func (s Status) ErrorLimitReset() (int, bool) {
	return s.reset, s.hasLimits
}

// HasErrorLimits reports whether the error limit fields are known.
func (s Status) HasErrorLimits() bool {
	return s.hasLimits
}

func (s Status) String() string {
	if !s.hasLimits {
		return fmt.Sprintf("online=%t error_limit=unknown", s.online)
	}
	return fmt.Sprintf("online=%t error_limit_remain=%d error_limit_reset=%d", s.online, s.remain, s.reset)
}

type statusJSON struct {
	IsOnline         bool `json:"is_online"`
	ErrorLimitRemain *int `json:"error_limit_remain"`
	ErrorLimitReset  *int `json:"error_limit_reset"`
}

// MarshalJSON renders unknown error limits as null.
func (s Status) MarshalJSON() ([]byte, error) {
	v := statusJSON{IsOnline: s.online}
	if s.hasLimits {
		remain, reset := s.remain, s.reset
		v.ErrorLimitRemain = &remain
		v.ErrorLimitReset = &reset
	}
	return json.Marshal(v)
}

// UnmarshalJSON restores a Status, collapsing a half-set pair of limits.
func (s *Status) UnmarshalJSON(data []byte) error {
	var v statusJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = NewStatus(v.IsOnline, v.ErrorLimitRemain, v.ErrorLimitReset)
	return nil
}
