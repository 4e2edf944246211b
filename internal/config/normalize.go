// internal/config/normalize.go
package config

import "github.com/tamzrod/dmc-bridge/internal/status"

// Defaults applied by Normalize.
const (
	DefaultTimeoutMs       = 1000
	DefaultCycleMs         = 10
	DefaultBaud            = 115200
	DefaultSpeed           = 0.025
	DefaultAccel           = 0.256
	DefaultDecel           = 0.256
	DefaultModbusTimeoutMs = 500
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	c := &cfg.Controller

	// ------------------------------------------------------------
	// CONTROLLER DEFAULTS
	// ------------------------------------------------------------

	if c.TimeoutMs == 0 {
		c.TimeoutMs = DefaultTimeoutMs
	}
	if c.CycleMs == 0 {
		c.CycleMs = DefaultCycleMs
	}
	if c.Transport == TransportSerial && c.Serial.Baud == 0 {
		c.Serial.Baud = DefaultBaud
	}
	if c.Defaults.Speed == 0 {
		c.Defaults.Speed = DefaultSpeed
	}
	if c.Defaults.Accel == 0 {
		c.Defaults.Accel = DefaultAccel
	}
	if c.Defaults.Decel == 0 {
		c.Defaults.Decel = DefaultDecel
	}

	// Published name:
	// - ASCII already validated
	// - Truncate to the status block name capacity
	if len(c.Name) > status.NameMaxChars {
		c.Name = c.Name[:status.NameMaxChars]
	}

	// ------------------------------------------------------------
	// AXES
	// ------------------------------------------------------------

	for i := range cfg.Axes {
		if cfg.Axes[i].Type == "" {
			cfg.Axes[i].Type = AxisPrismatic
		}
	}

	// ------------------------------------------------------------
	// PUBLISH
	// ------------------------------------------------------------

	if m := cfg.Publish.Modbus; m != nil && m.TimeoutMs == 0 {
		m.TimeoutMs = DefaultModbusTimeoutMs
	}
}
