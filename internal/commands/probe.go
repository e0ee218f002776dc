// Package commands implements the esigate subcommands.
package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/evetools/esigate/internal/appctx"
	"github.com/evetools/esigate/internal/esi"
	"github.com/evetools/esigate/internal/output"
)

// StatusReport is the output shape for an assessed probe.
type StatusReport struct {
	Health           string    `json:"health"`
	IsOnline         bool      `json:"is_online"`
	ErrorLimitRemain *int      `json:"error_limit_remain"`
	ErrorLimitReset  *int      `json:"error_limit_reset"`
	RetryIn          *int      `json:"retry_in,omitempty"` // seconds
	InDowntime       bool      `json:"in_downtime"`
	StatusURL        string    `json:"status_url"`
	ObservedAt       time.Time `json:"observed_at"`
}

// probeResult is one fetched and assessed status.
type probeResult struct {
	Status  esi.Status
	Verdict esi.Verdict
	// InDowntime is set when the downtime gate answered without a request.
	InDowntime bool
	At         time.Time
}

// probe fetches and assesses the ESI status, reporting the verdict to the
// observability hooks.
func probe(ctx context.Context, app *appctx.App) probeResult {
	status, inDowntime := app.Fetcher().FetchOrSkip(ctx)
	verdict := app.Evaluator.Assess(status)
	app.Hooks.OnVerdict(status, verdict)
	return probeResult{
		Status:     status,
		Verdict:    verdict,
		InDowntime: inDowntime,
		At:         time.Now().UTC(),
	}
}

// report converts a probe for output.
func (p probeResult) report(statusURL string) StatusReport {
	r := StatusReport{
		Health:     p.Verdict.Health.String(),
		IsOnline:   p.Status.IsOnline(),
		InDowntime: p.InDowntime,
		StatusURL:  statusURL,
		ObservedAt: p.At,
	}
	if remain, ok := p.Status.ErrorLimitRemain(); ok {
		r.ErrorLimitRemain = &remain
	}
	if reset, ok := p.Status.ErrorLimitReset(); ok {
		r.ErrorLimitReset = &reset
	}
	if p.Verdict.Health == esi.ErrorLimitExceeded {
		secs := int(p.Verdict.RetryIn.Seconds())
		r.RetryIn = &secs
	}
	return r
}

// summary is the one-line description of a probe.
func (p probeResult) summary() string {
	switch p.Verdict.Health {
	case esi.Healthy:
		return "ESI is healthy"
	case esi.ErrorLimitExceeded:
		return fmt.Sprintf("ESI error limit threshold reached, retry in %s", p.Verdict.RetryIn)
	default:
		if p.InDowntime {
			return "ESI is offline (daily downtime)"
		}
		return "ESI is offline"
	}
}

// err returns the structured error for an unhealthy probe, or nil.
func (p probeResult) err() *output.Error {
	switch p.Verdict.Health {
	case esi.Healthy:
		return nil
	case esi.Offline:
		return output.ErrOffline(p.InDowntime)
	default:
		return output.FromVerdict(p.Verdict.Err())
	}
}
