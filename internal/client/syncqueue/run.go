package syncqueue

import (
	"context"
	"time"
)

// Run drives background draining until ctx is done: on every tick, on
// Kick, when the client comes back online and when a backoff deadline
// passes.
func (e *Engine) Run(ctx context.Context) {
	updates, unsubscribe := e.state.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	retry := time.NewTimer(time.Hour)
	retry.Stop()
	defer retry.Stop()

	wasOnline := e.state.IsOnline()

	drain := func(reason string) {
		if !e.state.IsOnline() {
			return
		}
		report, err := e.Drain(ctx)
		if err != nil {
			e.log.Error(ctx, "drain failed", "reason", reason, "error", err)
			return
		}
		if !report.Ran || report.NextAttempt == nil {
			return
		}
		wait := e.cfg.RedrainDelay
		if until := report.NextAttempt.Sub(e.now()); until > wait {
			wait = until
		}
		retry.Reset(wait)
	}

	drain("start")

	for {
		select {
		case <-ticker.C:
			drain("tick")
		case <-e.kick:
			drain("enqueue")
		case <-retry.C:
			drain("retry")
		case s, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if s.IsOnline && !wasOnline {
				e.log.Info(ctx, "back online, draining queue")
				wasOnline = true
				drain("online")
				continue
			}
			wasOnline = s.IsOnline
		case <-ctx.Done():
			return
		}
	}
}
