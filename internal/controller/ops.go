// internal/controller/ops.go
package controller

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/tamzrod/dmc-bridge/internal/command"
	"github.com/tamzrod/dmc-bridge/internal/homing"
)

// ---- power ----

// EnablePower turns on every configured axis and arms the power guard.
func (c *Controller) EnablePower() error {
	err := c.send(command.Axes(command.PowerOn, c.letters))
	c.guard = PowerGuardTicks
	return err
}

// DisablePower stops motion if needed, turns every axis off and arms the
// power guard.
func (c *Controller) DisablePower() error {
	var errs error
	if c.moving {
		errs = multierr.Append(errs, c.send(command.Axes(command.Stop, c.letters)))
		errs = multierr.Append(errs, c.send(command.Axes(command.WaitMotionDone, c.letters)))
		// A jog leaves SP at the jog speed.
		errs = multierr.Append(errs, c.SetSpeed(c.speed))
	}
	errs = multierr.Append(errs, c.send(command.Axes(command.PowerOff, c.letters)))
	c.guard = PowerGuardTicks
	return errs
}

// ---- setpoints ----

// ServoJP moves every axis to an absolute position (SI).
func (c *Controller) ServoJP(pos []float64) error {
	return c.servo("servo_jp", command.PositionAbsolute, pos, true, true)
}

// ServoJR moves every axis by a relative distance (SI).
func (c *Controller) ServoJR(pos []float64) error {
	return c.servo("servo_jr", command.PositionRelative, pos, false, true)
}

// ServoJV jogs every axis at a velocity (SI). SP is left untouched so
// Hold can restore it.
func (c *Controller) ServoJV(vel []float64) error {
	return c.servo("servo_jv", command.Jog, vel, false, false)
}

func (c *Controller) servo(name, verb string, data []float64, useOffset, stopFirst bool) error {
	if err := c.checkSize(name, len(data)); err != nil {
		return err
	}
	if !c.powered {
		return c.reject(name, ErrPowerOff)
	}
	if stopFirst && c.moving {
		if err := c.send(command.Axes(command.Stop, c.letters)); err != nil {
			return err
		}
	}
	if err := c.sendValues(name, verb, data, useOffset); err != nil {
		return err
	}
	return c.send(command.Axes(command.Begin, c.letters))
}

// Hold stops every axis and restores the configured speed.
func (c *Controller) Hold() error {
	if !c.powered {
		return c.reject("hold", ErrPowerOff)
	}
	return multierr.Combine(
		c.send(command.Axes(command.Stop, c.letters)),
		c.SetSpeed(c.speed),
	)
}

// SetSpeed sets SP for every axis (SI) and remembers it.
func (c *Controller) SetSpeed(v []float64) error {
	if err := c.sendValues("SetSpeed", command.Speed, v, false); err != nil {
		return err
	}
	c.speed = append([]float64(nil), v...)
	return nil
}

// SetAccel sets AC for every axis (SI).
func (c *Controller) SetAccel(v []float64) error {
	if err := c.sendValues("SetAccel", command.Accel, v, false); err != nil {
		return err
	}
	c.accel = append([]float64(nil), v...)
	return nil
}

// SetDecel sets DC for every axis (SI).
func (c *Controller) SetDecel(v []float64) error {
	if err := c.sendValues("SetDecel", command.Decel, v, false); err != nil {
		return err
	}
	c.decel = append([]float64(nil), v...)
	return nil
}

// Speed returns the remembered SP vector.
func (c *Controller) Speed() []float64 { return append([]float64(nil), c.speed...) }

// ---- homing ----

// Home starts homing the selected axes.
func (c *Controller) Home(mask []bool) error {
	if c.homing == nil {
		return c.reject("Home", ErrNoModel)
	}
	if err := c.homing.Start(mask, c.powered, c.moving); err != nil {
		return c.rejectHoming("Home", err)
	}
	return nil
}

// UnHome clears the homed flag of the selected axes.
func (c *Controller) UnHome(mask []bool) error {
	if c.homing == nil {
		return c.reject("UnHome", ErrNoModel)
	}
	if err := c.homing.Unhome(mask); err != nil {
		return c.rejectHoming("UnHome", err)
	}
	return nil
}

// FindEdge runs FE on the selected axes outside of a homing sequence.
func (c *Controller) FindEdge(mask []bool) error {
	return c.searchMotion("FindEdge", command.FindEdge, mask)
}

// FindIndex runs FI on the selected axes outside of a homing sequence.
func (c *Controller) FindIndex(mask []bool) error {
	return c.searchMotion("FindIndex", command.FindIndex, mask)
}

func (c *Controller) searchMotion(name, verb string, mask []bool) error {
	if c.homing == nil {
		return c.reject(name, ErrNoModel)
	}
	valid, err := c.homing.Check(name, mask)
	if err != nil {
		return c.rejectHoming(name, err)
	}
	if !c.powered {
		return c.reject(name, ErrPowerOff)
	}

	letters := c.axes.ChannelLetters(c.axes.ValidityMask(valid))
	if c.moving {
		if err := c.send(command.Axes(command.Stop, letters)); err != nil {
			return err
		}
	}
	if err := c.send(command.Axes(verb, letters)); err != nil {
		return err
	}
	return c.send(command.Axes(command.Begin, letters))
}

// SetHomePosition defines the current position of every axis (SI) and
// marks the axes homed on controllers with user data.
func (c *Controller) SetHomePosition(pos []float64) error {
	if err := c.sendValues("SetHomePosition", command.DefinePosition, pos, true); err != nil {
		return err
	}
	if !c.desc.SupportsUserData {
		return nil
	}

	values := make(map[int]int32, c.axes.NumAxes())
	for i := 0; i < c.axes.NumAxes(); i++ {
		values[c.axes.PhysicalOf(i)] = 1
	}
	return c.send(command.Values(command.UserData, values, c.axes.MaxChannelExclusive()))
}

// ---- raw ----

// AbortProgram stops the running DMC program and motion.
func (c *Controller) AbortProgram() error { return c.send(command.AbortProgram) }

// AbortMotion stops motion without stopping the DMC program.
func (c *Controller) AbortMotion() error { return c.send(command.AbortMotion) }

// SendCommand issues an arbitrary command.
func (c *Controller) SendCommand(cmd string) error { return c.send(cmd) }

// SendCommandReply issues an arbitrary command and returns its reply.
func (c *Controller) SendCommandReply(cmd string) (string, error) {
	reply, err := c.client.CommandReply(cmd)
	if err != nil {
		c.emit(LevelError, fmt.Sprintf("SendCommandReply: %v", err))
		return "", err
	}
	return reply, nil
}

// ---- helpers ----

func (c *Controller) checkSize(name string, got int) error {
	if want := c.axes.NumAxes(); got != want {
		return c.reject(name, fmt.Errorf("%w: got %d want %d", ErrSizeMismatch, got, want))
	}
	return nil
}

// sendValues converts SI values to counts and sends one positional command.
func (c *Controller) sendValues(name, verb string, data []float64, useOffset bool) error {
	if err := c.checkSize(name, len(data)); err != nil {
		return err
	}

	values := make(map[int]int32, len(data))
	for i, v := range data {
		a := c.cfg.Axes[i]
		var offset int32
		if useOffset {
			offset = a.Offset
		}
		counts, err := toCounts(v, a.CountsPerUnit, offset)
		if err != nil {
			return c.reject(name, fmt.Errorf("axis %d: %w", i, err))
		}
		values[c.axes.PhysicalOf(i)] = counts
	}

	return c.send(command.Values(verb, values, c.axes.MaxChannelExclusive()))
}

func (c *Controller) reject(name string, err error) error {
	c.emit(LevelError, fmt.Sprintf("%s: %v", name, err))
	return err
}

// rejectHoming reports sequencer rejections; homing-in-progress and empty
// masks are warnings.
func (c *Controller) rejectHoming(name string, err error) error {
	level := LevelError
	if errors.Is(err, homing.ErrHoming) || errors.Is(err, homing.ErrNoValidAxes) {
		level = LevelWarning
	}
	c.emit(level, fmt.Sprintf("%s: %v", name, err))
	return err
}
