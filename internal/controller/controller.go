// internal/controller/controller.go
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/tamzrod/dmc-bridge/internal/axismap"
	"github.com/tamzrod/dmc-bridge/internal/homing"
	"github.com/tamzrod/dmc-bridge/internal/model"
	"github.com/tamzrod/dmc-bridge/internal/status"
)

// PowerGuardTicks is how many ticks a mixed on/off power reading is
// tolerated after an explicit power command.
const PowerGuardTicks = 20

// requestQueueSize bounds requests waiting for the next tick.
const requestQueueSize = 16

var (
	ErrPowerOff     = errors.New("controller: motor power is off")
	ErrSizeMismatch = errors.New("controller: size mismatch")
	ErrNoModel      = errors.New("controller: model unknown")
	ErrUnknownModel = errors.New("controller: unsupported model")
	ErrOutOfRange   = errors.New("controller: value out of int32 range")
)

type request struct {
	ctx  context.Context
	fn   func(*Controller) error
	done chan error
}

// Controller owns the state of one DMC controller.
//
// All methods except Snapshot and Do must be called from the goroutine that
// drives Tick, or before that goroutine starts. Other goroutines submit
// work through Do.
type Controller struct {
	cfg    Config
	client Client
	events Events

	axes    *axismap.Map
	letters string // every configured channel

	desc     model.Descriptor
	hasModel bool
	homing   *homing.Machine

	limitActiveLow bool
	homeInverted   bool
	bits2volts     [][]float64

	state     []status.AxisState
	stopCodes []uint8
	guard     int
	moving    bool
	powered   bool
	lastErr   string

	speed []float64
	accel []float64
	decel []float64

	published status.Snapshot
	snap      atomic.Pointer[status.Snapshot]

	requests chan request
}

// New creates a controller with immutable config.
// A nil events sink logs through the standard logger.
func New(cfg Config, client Client, events Events) (*Controller, error) {
	if client == nil {
		return nil, errors.New("controller: client required")
	}

	channels := make([]int, len(cfg.Axes))
	for i, a := range cfg.Axes {
		if a.CountsPerUnit == 0 {
			return nil, fmt.Errorf("controller: axis %d: counts per unit must be non-zero", i)
		}
		if _, err := a.homeCounts(); err != nil {
			return nil, fmt.Errorf("controller: axis %d: home position: %w", i, err)
		}
		channels[i] = a.Channel
	}
	axes, err := axismap.New(channels)
	if err != nil {
		return nil, err
	}

	if events == nil {
		events = LogEvents{Name: cfg.Name}
	}

	n := len(cfg.Axes)
	c := &Controller{
		cfg:            cfg,
		client:         client,
		events:         events,
		axes:           axes,
		letters:        axes.ChannelLetters(axes.All()),
		limitActiveLow: true,
		state:          make([]status.AxisState, n),
		stopCodes:      make([]uint8, n),
		speed:          fill(n, cfg.Speed),
		accel:          fill(n, cfg.Accel),
		decel:          fill(n, cfg.Decel),
		requests:       make(chan request, requestQueueSize),
	}

	for i, a := range cfg.Axes {
		c.state[i].Name = a.Name
		c.state[i].Homed = a.Absolute
	}

	c.bits2volts = make([][]float64, len(cfg.Analog))
	for g, grp := range cfg.Analog {
		c.bits2volts[g] = fill(len(grp.Channels), 1.0)
	}

	if cfg.Model != 0 {
		d, ok := model.Lookup(cfg.Model)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownModel, cfg.Model)
		}
		c.setModel(d)
	}

	c.published = status.Snapshot{
		State: status.StateDisabled,
		Homed: Aggregate(c.state).AllHomed,
	}
	snap := c.published
	c.snap.Store(&snap)

	return c, nil
}

func (c *Controller) setModel(d model.Descriptor) {
	c.desc = d
	c.hasModel = true

	axes := make([]homing.Axis, len(c.cfg.Axes))
	for i, a := range c.cfg.Axes {
		// range checked in New
		home, _ := a.homeCounts()
		axes[i] = homing.Axis{
			Absolute:     a.Absolute,
			HomeCounts:   home,
			LimitDisable: a.homeLimitDisable(),
		}
	}

	c.homing = homing.New(homing.Config{
		Axes:                 axes,
		Map:                  c.axes,
		SupportsLimitDisable: d.SupportsLimitDisable,
		SupportsUserData:     d.SupportsUserData,
	}, homingHost{c: c})
}

// Name of the controller.
func (c *Controller) Name() string { return c.cfg.Name }

// Model in use; ok is false until a model is configured or detected.
func (c *Controller) Model() (model.Descriptor, bool) { return c.desc, c.hasModel }

// NumAxes is the number of logical axes.
func (c *Controller) NumAxes() int { return c.axes.NumAxes() }

// HomingStrategy in effect, or Native before a model is known.
func (c *Controller) HomingStrategy() homing.Strategy {
	if c.homing == nil {
		return homing.Native
	}
	return c.homing.Strategy()
}

// Snapshot returns the last published operating state.
// Safe for concurrent use.
func (c *Controller) Snapshot() status.Snapshot {
	return *c.snap.Load()
}

// Do runs fn on the cycle goroutine during the next tick and returns its error.
// Safe for concurrent use.
func (c *Controller) Do(ctx context.Context, fn func(*Controller) error) error {
	req := request{ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case c.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain runs the requests queued before this call.
// A request whose caller already gave up is dropped, not run.
func (c *Controller) drain() {
	for n := len(c.requests); n > 0; n-- {
		req := <-c.requests
		if err := req.ctx.Err(); err != nil {
			req.done <- err
			continue
		}
		req.done <- req.fn(c)
	}
}

// Close closes the transport.
func (c *Controller) Close() error {
	return c.client.Close()
}

// ---- messaging ----

func (c *Controller) emit(level Level, text string) {
	c.events.Message(level, text)
}

// send issues one command; failures are reported and returned.
func (c *Controller) send(cmd string) error {
	if err := c.client.Command(cmd); err != nil {
		c.emit(LevelError, fmt.Sprintf("SendCommand: %v", err))
		return err
	}
	return nil
}

// ---- homing host ----

type homingHost struct {
	c *Controller
}

func (h homingHost) Send(cmd string) error { return h.c.send(cmd) }
func (h homingHost) Status(msg string)     { h.c.emit(LevelStatus, msg) }
func (h homingHost) Error(msg string)      { h.c.emit(LevelError, msg) }
func (h homingHost) RestoreSpeed()         { _ = h.c.SetSpeed(h.c.speed) }

func (h homingHost) SetHomed(axis int, homed bool) {
	h.c.state[axis].Homed = homed
}

func fill(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
