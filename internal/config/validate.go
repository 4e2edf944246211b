// internal/config/validate.go
package config

import (
	"fmt"
	"math"

	"github.com/tamzrod/dmc-bridge/internal/axismap"
	"github.com/tamzrod/dmc-bridge/internal/model"
	"github.com/tamzrod/dmc-bridge/internal/status"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	c := cfg.Controller

	// ------------------------------------------------------------
	// CONTROLLER
	// ------------------------------------------------------------

	if c.Name == "" {
		return fmt.Errorf("controller: name is required")
	}
	// name is published in status registers (ASCII only)
	for i := 0; i < len(c.Name); i++ {
		if c.Name[i] > 0x7F {
			return fmt.Errorf("controller %q: name must contain ASCII characters only", c.Name)
		}
	}

	switch c.Transport {
	case TransportTCP:
		if c.Endpoint == "" {
			return fmt.Errorf("controller %q: tcp transport requires endpoint", c.Name)
		}
	case TransportSerial:
		if c.Serial.Port == "" {
			return fmt.Errorf("controller %q: serial transport requires serial.port", c.Name)
		}
		if c.Serial.Baud < 0 {
			return fmt.Errorf("controller %q: serial.baud must be >= 0", c.Name)
		}
	default:
		return fmt.Errorf("controller %q: unknown transport %q (want tcp or serial)", c.Name, c.Transport)
	}

	if c.TimeoutMs < 0 || c.CycleMs < 0 || c.RecordSize < 0 {
		return fmt.Errorf("controller %q: timeout_ms, cycle_ms and record_size must be >= 0", c.Name)
	}

	var desc model.Descriptor
	known := false
	if c.Model != 0 {
		d, ok := model.Lookup(c.Model)
		if !ok {
			return fmt.Errorf("controller %q: unsupported model %d", c.Name, c.Model)
		}
		desc, known = d, true

		if !d.HasHeader && c.RecordSize == 0 {
			return fmt.Errorf("controller %q: model %d has no record header; record_size is required", c.Name, c.Model)
		}
	}

	// ------------------------------------------------------------
	// AXES
	// ------------------------------------------------------------

	if len(cfg.Axes) == 0 {
		return fmt.Errorf("controller %q: at least one axis required", c.Name)
	}

	names := make(map[string]bool, len(cfg.Axes))
	channels := make([]int, 0, len(cfg.Axes))

	for i, a := range cfg.Axes {
		if a.Name == "" {
			return fmt.Errorf("axis %d: name is required", i)
		}
		if names[a.Name] {
			return fmt.Errorf("axis %q: duplicate name", a.Name)
		}
		names[a.Name] = true

		switch a.Type {
		case "", AxisPrismatic, AxisRevolute:
		default:
			return fmt.Errorf("axis %q: unknown type %q", a.Name, a.Type)
		}

		if a.PositionBitsToSI.Scale == 0 {
			return fmt.Errorf("axis %q: position_bits_to_si.scale must be non-zero", a.Name)
		}
		// offset is sent to the controller as int32 counts
		if off := math.Round(a.PositionBitsToSI.Offset); off < math.MinInt32 || off > math.MaxInt32 {
			return fmt.Errorf("axis %q: position_bits_to_si.offset %g out of int32 range", a.Name, a.PositionBitsToSI.Offset)
		}
		if a.PositionLimits.Lower > a.PositionLimits.Upper {
			return fmt.Errorf(
				"axis %q: position_limits lower %g > upper %g",
				a.Name,
				a.PositionLimits.Lower,
				a.PositionLimits.Upper,
			)
		}

		channels = append(channels, a.Channel)
	}

	// duplicates and channel range
	if _, err := axismap.New(channels); err != nil {
		return fmt.Errorf("axes: %w", err)
	}

	// ------------------------------------------------------------
	// ANALOG INPUTS
	// ------------------------------------------------------------

	if len(cfg.Analog) > 0 && known && !desc.HasAnalogIn {
		return fmt.Errorf("controller %q: model %d has no analog inputs", c.Name, c.Model)
	}

	for _, g := range cfg.Analog {
		if g.Name == "" {
			return fmt.Errorf("analog_inputs: group name is required")
		}
		for k, ch := range g.Axes {
			// any physical channel; it need not carry a configured axis
			if ch.Channel < 0 || ch.Channel >= axismap.MaxChannels {
				return fmt.Errorf(
					"analog %s[%d]: channel %d out of range [0,%d)",
					g.Name,
					k,
					ch.Channel,
					axismap.MaxChannels,
				)
			}
			if ch.VoltsToSI.Scale == 0 {
				return fmt.Errorf("analog %s[%d]: volts_to_si.scale must be non-zero", g.Name, k)
			}
		}
	}

	// ------------------------------------------------------------
	// PUBLISH
	// ------------------------------------------------------------

	if m := cfg.Publish.Modbus; m != nil {
		if m.Endpoint == "" {
			return fmt.Errorf("publish.modbus: endpoint is required")
		}
		if m.TimeoutMs < 0 {
			return fmt.Errorf("publish.modbus: timeout_ms must be >= 0")
		}

		// status block and axis blocks must not overlap
		statusEnd := int(m.StatusAddress) + status.SlotsPerController - 1
		axisEnd := int(m.AxisAddress) + len(cfg.Axes)*status.RegistersPerAxis - 1
		if statusEnd > 0xFFFF || axisEnd > 0xFFFF {
			return fmt.Errorf("publish.modbus: register blocks exceed the register space")
		}
		if !(axisEnd < int(m.StatusAddress) || int(m.AxisAddress) > statusEnd) {
			return fmt.Errorf(
				"publish.modbus: status block %d-%d overlaps axis blocks %d-%d",
				m.StatusAddress,
				statusEnd,
				m.AxisAddress,
				axisEnd,
			)
		}
	}

	if w := cfg.Publish.WebSocket; w != nil && w.Listen == "" {
		return fmt.Errorf("publish.websocket: listen is required")
	}

	return nil
}
