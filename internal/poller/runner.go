// internal/poller/runner.go
package poller

import (
	"context"
	"time"

	"github.com/tamzrod/dmc-bridge/internal/status"
)

// Run starts the ticker loop and emits one Report per tick on out.
// One goroutine per controller. No overlap. No retries.
// Ticks missed while a cycle or its consumer is slow are dropped.
func (p *Poller) Run(ctx context.Context, out chan<- status.Report) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rep := p.PollOnce(ctx)
			select {
			case out <- rep:
			case <-ctx.Done():
				return
			}
		}
	}
}
