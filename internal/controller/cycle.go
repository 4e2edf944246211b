// internal/controller/cycle.go
package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/tamzrod/dmc-bridge/internal/homing"
	"github.com/tamzrod/dmc-bridge/internal/model"
	"github.com/tamzrod/dmc-bridge/internal/record"
	"github.com/tamzrod/dmc-bridge/internal/status"
)

// Aggregates are the controller-wide flags derived from axis states.
type Aggregates struct {
	AnyMoving   bool
	AllMotorOn  bool
	AllMotorOff bool
	AllHomed    bool
}

// Aggregate computes the controller-wide flags. Pure.
func Aggregate(axes []status.AxisState) Aggregates {
	a := Aggregates{AllMotorOn: true, AllMotorOff: true, AllHomed: true}

	for _, s := range axes {
		if s.Moving {
			a.AnyMoving = true
		}
		if s.MotorOff {
			a.AllMotorOn = false
		} else {
			a.AllMotorOff = false
		}
		if !s.Homed {
			a.AllHomed = false
		}
	}

	return a
}

// Tick performs exactly one control cycle.
// It never fails: a record that cannot be read or decoded yields a Fault report.
func (c *Controller) Tick(ctx context.Context) status.Report {
	rep := status.Report{
		Controller: c.cfg.Name,
		At:         time.Now(),
	}

	obs, estop, err := c.update(ctx, &rep)

	state := status.StateFault
	if err != nil {
		// Frame-derived state stays stale.
		c.moving = false
		c.powered = false
		rep.Err = err

		if msg := err.Error(); msg != c.lastErr {
			c.lastErr = msg
			c.emit(LevelError, fmt.Sprintf("record: %v", err))
		}
	} else {
		c.lastErr = ""
		state = status.StateDisabled
		if c.powered {
			state = status.StateEnabled
		}
	}

	snap := status.Snapshot{
		State: state,
		Busy:  c.moving,
		Homed: Aggregate(c.state).AllHomed,
		EStop: estop,
	}
	rep.State = snap

	if !snap.SameEvent(c.published) {
		rep.Changed = true
		c.events.OperatingState(snap)
	}
	c.published = snap
	c.snap.Store(&snap)

	rep.Axes = append([]status.AxisState(nil), c.state...)

	c.drain()

	// Stale stop codes must not drive homing.
	if err == nil && c.homing != nil {
		c.homing.Step(obs)
	}

	return rep
}

// update reads and decodes one record, then refreshes axis state,
// aggregates, the power guard and analog inputs.
// Nothing is mutated when it returns an error.
func (c *Controller) update(ctx context.Context, rep *status.Report) ([]homing.Observation, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if !c.hasModel {
		return nil, false, ErrNoModel
	}

	raw, err := c.client.Frame()
	if err != nil {
		return nil, false, err
	}

	h, samples, err := record.Decode(raw, c.desc, c.axes)
	if err != nil {
		return nil, false, err
	}

	analog, err := c.analog(raw)
	if err != nil {
		return nil, false, err
	}

	rep.SampleNumber = h.SampleNumber
	rep.ErrorCode = h.ErrorCode
	rep.Analog = analog

	obs := make([]homing.Observation, len(samples))
	for i, s := range samples {
		c.updateAxis(i, s, rep.At)
		obs[i] = homing.Observation{StopCode: s.StopCode, Changed: s.StopCode != c.stopCodes[i]}
		c.stopCodes[i] = s.StopCode
	}

	agg := Aggregate(c.state)
	allOn, allOff := agg.AllMotorOn, agg.AllMotorOff

	if c.guard > 0 {
		c.guard--
	}
	if !allOn && !allOff && c.guard == 0 {
		c.emit(LevelWarning, "inconsistent motor power (turning off)")
		_ = c.DisablePower()
		allOn = false
	}

	c.moving = agg.AnyMoving
	c.powered = allOn

	return obs, h.EStop(), nil
}

func (c *Controller) updateAxis(i int, s record.AxisSample, at time.Time) {
	cfg := c.cfg.Axes[i]
	a := &c.state[i]

	a.Position = record.PositionSI(s.RawPosition, cfg.Offset, cfg.CountsPerUnit)
	a.Velocity = record.VelocitySI(s.RawVelocity, cfg.CountsPerUnit)
	a.ReferencePosition = record.PositionSI(s.RawReferencePosition, cfg.Offset, cfg.CountsPerUnit)
	a.Effort = record.EffortFromTorque(s.RawTorque)

	a.Moving = s.Status&model.StatusMotorMoving != 0
	a.MotorOff = s.Status&model.StatusMotorOff != 0

	a.SoftFwdLimit = s.StopCode == model.StopFwdLimit
	a.SoftRevLimit = s.StopCode == model.StopRevLimit

	// Switch bits follow input voltage; CN selects the active level.
	a.HardFwdLimit = c.limitActiveLow != (s.Switches&model.SwitchFwdLimit != 0)
	a.HardRevLimit = c.limitActiveLow != (s.Switches&model.SwitchRevLimit != 0)
	a.HomeSwitch = c.homeInverted != (s.Switches&model.SwitchHome != 0)

	switch {
	case cfg.Absolute:
		a.Homed = true
	case s.HasUserVar:
		a.Homed = s.RawUserVar != 0
	}

	a.StopCode = s.StopCode
	a.Timestamp = at
}

func (c *Controller) analog(raw []byte) ([][]float64, error) {
	if len(c.cfg.Analog) == 0 {
		return nil, nil
	}

	out := make([][]float64, len(c.cfg.Analog))
	for g, grp := range c.cfg.Analog {
		out[g] = make([]float64, len(grp.Channels))
		for k, ch := range grp.Channels {
			bits, err := record.AnalogIn(raw, c.desc, ch.Channel)
			if err != nil {
				return nil, err
			}
			out[g][k] = (c.bits2volts[g][k]*float64(bits) - ch.Offset) / ch.Scale
		}
	}
	return out, nil
}
