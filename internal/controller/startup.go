// internal/controller/startup.go
package controller

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/tamzrod/dmc-bridge/internal/axismap"
	"github.com/tamzrod/dmc-bridge/internal/command"
	"github.com/tamzrod/dmc-bridge/internal/model"
)

// ErrModelUndetected means no model was configured and the revision string
// did not identify one.
var ErrModelUndetected = errors.New("controller: could not detect model type")

// Startup prepares and queries the controller once, before the first Tick.
//
// It downloads and starts the configured program, applies default
// speed/accel/decel, reads switch polarity and analog ranges, resolves the
// model from the revision string and reads the limit-disable register. Only an unknown model is fatal; every other
// failure is reported as a warning and startup continues.
func (c *Controller) Startup() error {
	var errs error

	errs = multierr.Append(errs, c.downloadProgram())

	errs = multierr.Append(errs, c.SetSpeed(c.speed))
	errs = multierr.Append(errs, c.SetAccel(c.accel))
	errs = multierr.Append(errs, c.SetDecel(c.decel))

	errs = multierr.Append(errs, c.readSwitches())
	errs = multierr.Append(errs, c.readAnalogRanges())

	if err := c.resolveModel(); err != nil {
		return err
	}

	errs = multierr.Append(errs, c.readLimitDisable())

	if ls, ok := c.client.(LayoutSetter); ok {
		ls.SetRecordLayout(c.desc.HasHeader)
	}

	if errs != nil {
		c.emit(LevelWarning, fmt.Sprintf("startup: %v", errs))
	}
	c.emit(LevelStatus, fmt.Sprintf("model %d, homing strategy %s", c.desc.ID, c.HomingStrategy()))
	return nil
}

// downloadProgram sends the configured program with DL and runs it with XQ.
// XQ is only sent after a successful download.
func (c *Controller) downloadProgram() error {
	if c.cfg.Program == "" {
		return nil
	}

	dl, ok := c.client.(Downloader)
	if !ok {
		return errors.New("program download not supported by transport")
	}

	program, err := command.Program(c.cfg.Program)
	if err != nil {
		return fmt.Errorf("program: %w", err)
	}
	if err := dl.Download(program); err != nil {
		return fmt.Errorf("error downloading program: %w", err)
	}
	c.emit(LevelStatus, "program downloaded")

	return c.send(command.Execute)
}

// readSwitches reads CN: limit switches are active low unless _CN0 is 1,
// the home input is inverted when _CN1 is 1.
func (c *Controller) readSwitches() error {
	var errs error

	c.limitActiveLow = true
	cn0, err := c.client.QueryDouble(command.LimitPolarityQuery)
	switch {
	case err != nil:
		errs = multierr.Append(errs, fmt.Errorf("limit switch polarity: %w", err))
	case cn0 == 1:
		c.limitActiveLow = false
	case cn0 != -1:
		errs = multierr.Append(errs, fmt.Errorf("failed to parse limit switch state (_CN0): %g", cn0))
	}

	c.homeInverted = false
	cn1, err := c.client.QueryDouble(command.HomePolarityQuery)
	switch {
	case err != nil:
		errs = multierr.Append(errs, fmt.Errorf("home switch polarity: %w", err))
	case cn1 == 1:
		c.homeInverted = true
	case cn1 != -1:
		errs = multierr.Append(errs, fmt.Errorf("failed to parse home switch state (_CN1): %g", cn1))
	}

	return errs
}

// readAnalogRanges reads AQ for each analog channel.
// The record always carries a full 16-bit value, even on 12-bit ADCs.
func (c *Controller) readAnalogRanges() error {
	var errs error

	for g, grp := range c.cfg.Analog {
		for k, ch := range grp.Channels {
			aq, err := c.client.QueryDouble(command.AnalogRangeQuery(ch.Channel))
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("analog %s[%d]: %w", grp.Name, k, err))
				continue
			}

			switch {
			case aq == 1: // -5V to +5V
				c.bits2volts[g][k] = 10.0 / 65535
			case aq == 2: // -10V to +10V
				c.bits2volts[g][k] = 20.0 / 65535
			case aq == 3: // 0V to +5V
				c.bits2volts[g][k] = 5.0 / 65535
			case aq == 4: // 0V to +10V
				c.bits2volts[g][k] = 10.0 / 65535
			case aq < 0:
				errs = multierr.Append(errs, fmt.Errorf("analog %s[%d]: differential input not supported (AQ=%g)", grp.Name, k, aq))
			default:
				errs = multierr.Append(errs, fmt.Errorf("analog %s[%d]: invalid AQ setting %g", grp.Name, k, aq))
			}
		}
	}

	return errs
}

// resolveModel reads the revision string and resolves or checks the model.
func (c *Controller) resolveModel() error {
	rev, err := c.client.CommandReply(command.RevisionQuery)
	if err != nil {
		if c.hasModel {
			c.emit(LevelWarning, fmt.Sprintf("revision query failed: %v", err))
			return nil
		}
		return fmt.Errorf("%w: %v", ErrModelUndetected, err)
	}
	c.emit(LevelStatus, "controller revision: "+rev)

	detected := model.Detect(rev)

	if !c.hasModel {
		if detected == 0 {
			c.emit(LevelError, "could not detect model type")
			return fmt.Errorf("%w: revision %q", ErrModelUndetected, rev)
		}
		d, ok := model.Lookup(detected)
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownModel, detected)
		}
		c.setModel(d)
		return nil
	}

	if detected != 0 && detected != c.desc.ID {
		c.emit(LevelWarning, fmt.Sprintf("controller model mismatch: detected %d, configured %d", detected, c.desc.ID))
	}
	return nil
}

// readLimitDisable reads LD and hands it to the homing sequencer.
// The reply lists configured channels in ascending order.
func (c *Controller) readLimitDisable() error {
	if !c.desc.SupportsLimitDisable {
		return nil
	}

	maxExcl := c.axes.MaxChannelExclusive()
	reply, err := c.client.CommandReply(command.Query(command.LimitDisable, c.axes.All(), maxExcl))
	if err != nil {
		return fmt.Errorf("could not query limit disable (LD): %w", err)
	}

	values, err := command.ParseValues(reply, c.axes.NumAxes())
	if err != nil {
		return fmt.Errorf("could not parse limit disable (LD) reply %q: %w", reply, err)
	}

	current := make([]int32, c.axes.NumAxes())
	k := 0
	for ch := 0; ch < maxExcl && ch < axismap.MaxChannels; ch++ {
		axis, ok := c.axes.LogicalOf(ch)
		if !ok {
			continue
		}
		current[axis] = values[k]
		k++
	}

	c.homing.SetLimitDisable(current)
	return nil
}
