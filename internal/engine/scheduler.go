package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/smartsuite/cachebridge/internal/perf"
)

// RunScheduler drives the engine's background maintenance loop until ctx
// is cancelled: a periodic Performance Tracker flush (§4.7's time-based
// flush trigger, as a backstop alongside the op-count trigger that fires
// inline on every RecordHit/RecordMiss call). Grounded on the teacher's
// cluster registry monitor loop (internal/cluster/registry.go), which
// runs a single select over a ticker and ctx.Done() rather than a
// separate job-queue abstraction.
func (e *Engine) RunScheduler(ctx context.Context) {
	ticker := time.NewTicker(perf.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.perf.Flush(ctx); err != nil {
				e.log.Warn("engine: scheduled perf flush failed", zap.Error(err))
			}
		}
	}
}
