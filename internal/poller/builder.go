// internal/poller/builder.go
package poller

import (
	"fmt"
	"math"
	"os"
	"time"

	cfg "github.com/tamzrod/dmc-bridge/internal/config"
	"github.com/tamzrod/dmc-bridge/internal/controller"
	"github.com/tamzrod/dmc-bridge/internal/transport/dmc"
)

// Build opens the controller transport, constructs the controller and a
// Poller driving it.
// Startup is left to the caller. The closer closes the transport.
func Build(c *cfg.Config, events controller.Events) (*Poller, *controller.Controller, func() error, error) {
	ccfg := ControllerConfig(c)
	if path := c.Controller.ProgramFile; path != "" {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("poller: program file: %w", err)
		}
		ccfg.Program = string(src)
	}

	client, err := Dial(c.Controller)
	if err != nil {
		return nil, nil, nil, err
	}

	ctrl, err := controller.New(ccfg, client, events)
	if err != nil {
		client.Close()
		return nil, nil, nil, err
	}

	p, err := New(
		Config{
			Name:     c.Controller.Name,
			Interval: time.Duration(c.Controller.CycleMs) * time.Millisecond,
		},
		ctrl,
	)
	if err != nil {
		client.Close()
		return nil, nil, nil, err
	}

	return p, ctrl, client.Close, nil
}

// Dial opens the configured transport: ONE attempt per call.
func Dial(c cfg.ControllerConfig) (*dmc.Conn, error) {
	timeout := time.Duration(c.TimeoutMs) * time.Millisecond

	switch c.Transport {
	case cfg.TransportTCP:
		return dmc.DialTCP(dmc.TCPConfig{
			Endpoint:   c.Endpoint,
			Timeout:    timeout,
			RecordSize: c.RecordSize,
		})
	case cfg.TransportSerial:
		return dmc.OpenSerial(dmc.SerialConfig{
			Device:     c.Serial.Port,
			BaudRate:   c.Serial.Baud,
			Timeout:    timeout,
			RecordSize: c.RecordSize,
		})
	default:
		return nil, fmt.Errorf("poller: unknown transport %q", c.Transport)
	}
}

// ControllerConfig maps file configuration to controller runtime config.
func ControllerConfig(c *cfg.Config) controller.Config {
	out := controller.Config{
		Name:  c.Controller.Name,
		Model: c.Controller.Model,
		Speed: c.Controller.Defaults.Speed,
		Accel: c.Controller.Defaults.Accel,
		Decel: c.Controller.Defaults.Decel,
	}

	out.Axes = make([]controller.Axis, 0, len(c.Axes))
	for _, a := range c.Axes {
		out.Axes = append(out.Axes, controller.Axis{
			Name:          a.Name,
			Channel:       a.Channel,
			Lower:         a.PositionLimits.Lower,
			Upper:         a.PositionLimits.Upper,
			CountsPerUnit: a.PositionBitsToSI.Scale,
			Offset:        int32(math.Round(a.PositionBitsToSI.Offset)),
			Absolute:      a.Absolute,
			HomePos:       a.HomePos,
		})
	}

	for _, g := range c.Analog {
		grp := controller.AnalogGroup{Name: g.Name}
		for _, ch := range g.Axes {
			grp.Channels = append(grp.Channels, controller.AnalogChannel{
				Channel: ch.Channel,
				Scale:   ch.VoltsToSI.Scale,
				Offset:  ch.VoltsToSI.Offset,
			})
		}
		out.Analog = append(out.Analog, grp)
	}

	return out
}
