// internal/controller/config.go
package controller

import (
	"fmt"
	"math"
)

// Axis is the runtime configuration of one logical axis.
type Axis struct {
	Name    string
	Channel int

	Lower, Upper float64 // position limits, SI

	CountsPerUnit float64
	Offset        int32 // encoder counts

	Absolute bool
	HomePos  float64 // SI
}

// homeCounts is the home position in encoder counts, offset included.
func (a Axis) homeCounts() (int32, error) {
	return toCounts(a.HomePos, a.CountsPerUnit, a.Offset)
}

// toCounts converts an SI value to encoder counts plus offset.
// Results outside int32 are rejected rather than wrapped.
func toCounts(v, countsPerUnit float64, offset int32) (int32, error) {
	counts := math.Round(v*countsPerUnit) + float64(offset)
	if math.IsNaN(counts) || counts < math.MinInt32 || counts > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %g is %g counts", ErrOutOfRange, v, counts)
	}
	return int32(counts), nil
}

// homeLimitDisable is the LD value needed when the home sits on a limit.
// 2 disables the reverse limit, 1 the forward limit.
func (a Axis) homeLimitDisable() int32 {
	switch {
	case a.HomePos <= a.Lower:
		return 2
	case a.HomePos >= a.Upper:
		return 1
	}
	return 0
}

// AnalogChannel converts one analog input to SI: (volts - Offset) / Scale.
type AnalogChannel struct {
	Channel int
	Scale   float64
	Offset  float64
}

// AnalogGroup is a named set of analog inputs published together.
type AnalogGroup struct {
	Name     string
	Channels []AnalogChannel
}

// Config is the minimal runtime config the controller needs.
type Config struct {
	Name string

	// Model is a model ID; 0 means auto-detect during Startup.
	Model int

	Axes   []Axis
	Analog []AnalogGroup

	// Program is DMC program source downloaded and started with XQ
	// during Startup. Empty means none.
	Program string

	// Per-axis defaults applied during Startup, SI units.
	Speed float64
	Accel float64
	Decel float64
}
