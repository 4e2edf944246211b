// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/tamzrod/dmc-bridge/internal/status"
)

// Cycle is one control cycle of a controller.
// The poller depends on timing only.
type Cycle interface {
	Tick(ctx context.Context) status.Report
}

// Config is the minimal runtime config the poller needs.
type Config struct {
	Name     string
	Interval time.Duration
}

// Poller is a dumb, clock-driven tick source.
type Poller struct {
	cfg   Config
	cycle Cycle
}

// New creates a poller with immutable config.
func New(cfg Config, cycle Cycle) (*Poller, error) {
	if cfg.Name == "" {
		return nil, errors.New("poller: name required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if cycle == nil {
		return nil, errors.New("poller: cycle required")
	}
	return &Poller{cfg: cfg, cycle: cycle}, nil
}

// PollOnce performs exactly one control cycle.
func (p *Poller) PollOnce(ctx context.Context) status.Report {
	return p.cycle.Tick(ctx)
}
