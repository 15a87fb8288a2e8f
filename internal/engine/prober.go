package engine

import (
	"context"
	"time"

	"github.com/ozarkconnect/linkpulse/internal/codec"
)

// probeStaleAfter is how long an outstanding probe is carried before being
// abandoned, per spec.md §4.2's "unmatched tokens older than 2 s are
// discarded with a counter bump".
const probeStaleAfter = 2 * time.Second

// consecutiveFailureThreshold is the ProbeDegraded trigger (spec.md §4.2).
const consecutiveFailureThreshold = 5

// proberConfig parameterizes one run of the Latency Prober for one stage.
type proberConfig struct {
	Stage     Stage
	Cadence   time.Duration
	MaxProbes int // 0 means "run until ctx is done"
}

// outstandingProbe tracks the single in-flight ping; the Prober never queues
// a second one (spec.md §4.2 "skipped if the previous probe is still
// outstanding").
type outstandingProbe struct {
	token  uint32
	sentAt time.Time
}

// proberStats counts what one prober run sent and discarded, and whether it
// degraded. The Orchestrator does not read it; warnings reach it only
// through onWarn.
type proberStats struct {
	Sent        int
	Discarded   int
	Degraded    bool
}

// runProber drives one side-channel probe loop to completion. It blocks
// until ctx is cancelled (soft-deadline or stage end) or, for the bounded
// idle stage, until MaxProbes replies have landed or the last probe has been
// abandoned as stale. onWarn is called at most
// once per run, the first time the consecutive-failure threshold is crossed.
func runProber(ctx context.Context, sio SessionIO, session *Session, cfg proberConfig, onWarn func(string)) proberStats {
	ticker := time.NewTicker(cfg.Cadence)
	defer ticker.Stop()

	var (
		nextToken           uint32
		outstanding         *outstandingProbe
		consecutiveFailures int
		warned              bool
		stats               proberStats
	)

	for {
		if cfg.MaxProbes > 0 && stats.Sent >= cfg.MaxProbes && outstanding == nil {
			return stats
		}

		select {
		case <-ctx.Done():
			return stats

		case pong, ok := <-sio.Pongs():
			if !ok {
				return stats
			}
			if outstanding != nil && pong.Token == outstanding.token {
				rtt := time.Since(outstanding.sentAt)
				session.OnSample(LatencySample{
					RoundTripMs: float64(rtt.Microseconds()) / 1000.0,
					At:          time.Now(),
					Stage:       cfg.Stage,
				})
				outstanding = nil
				consecutiveFailures = 0
			} else {
				stats.Discarded++
			}

		case <-ticker.C:
			if outstanding != nil {
				if time.Since(outstanding.sentAt) > probeStaleAfter {
					outstanding = nil
					stats.Discarded++
				}
				continue
			}
			if cfg.MaxProbes > 0 && stats.Sent >= cfg.MaxProbes {
				continue
			}

			nextToken++
			now := time.Now()
			frame := codec.PingFrame{Token: nextToken, TSendMs: uint64(now.UnixMilli())}
			if err := sio.Send(frame); err != nil {
				consecutiveFailures++
				if consecutiveFailures >= consecutiveFailureThreshold && !warned {
					warned = true
					stats.Degraded = true
					if onWarn != nil {
						onWarn("probe send failing repeatedly; stage continues with samples collected so far")
					}
				}
				continue
			}
			outstanding = &outstandingProbe{token: nextToken, sentAt: now}
			stats.Sent++
		}
	}
}
