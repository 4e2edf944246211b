// internal/status/snapshot.go
package status

import (
	"fmt"
	"time"
)

// OperatingState is the aggregate controller state.
type OperatingState uint16

const (
	StateUndefined OperatingState = 0
	StateDisabled  OperatingState = 1
	StateEnabled   OperatingState = 2
	StateFault     OperatingState = 3
)

func (s OperatingState) String() string {
	switch s {
	case StateDisabled:
		return "DISABLED"
	case StateEnabled:
		return "ENABLED"
	case StateFault:
		return "FAULT"
	default:
		return "UNDEFINED"
	}
}

// MarshalText lets JSON encoders publish the state by name.
func (s OperatingState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *OperatingState) UnmarshalText(b []byte) error {
	for _, v := range []OperatingState{StateUndefined, StateDisabled, StateEnabled, StateFault} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("status: unknown operating state %q", b)
}

// Snapshot is the operating-state event payload.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	State OperatingState `json:"state"`
	Busy  bool           `json:"busy"`
	Homed bool           `json:"homed"`
	EStop bool           `json:"estop"`
}

// SameEvent reports whether two snapshots carry the same event fields.
// EStop is informational and does not trigger an event.
func (s Snapshot) SameEvent(o Snapshot) bool {
	return s.State == o.State && s.Busy == o.Busy && s.Homed == o.Homed
}

// AxisState is the canonical per-joint state derived from one record.
type AxisState struct {
	Name              string    `json:"name"`
	Position          float64   `json:"position"`
	Velocity          float64   `json:"velocity"`
	ReferencePosition float64   `json:"reference_position"`
	Effort            float64   `json:"effort"`
	Moving            bool      `json:"moving"`
	MotorOff          bool      `json:"motor_off"`
	SoftFwdLimit      bool      `json:"soft_fwd_limit"`
	SoftRevLimit      bool      `json:"soft_rev_limit"`
	HardFwdLimit      bool      `json:"hard_fwd_limit"`
	HardRevLimit      bool      `json:"hard_rev_limit"`
	HomeSwitch        bool      `json:"home_switch"`
	Homed             bool      `json:"homed"`
	StopCode          uint8     `json:"stop_code"`
	Timestamp         time.Time `json:"timestamp"`
}

// Report is what one control cycle tick produces.
type Report struct {
	Controller string
	At         time.Time

	// Err is non-nil when the record could not be read or decoded.
	Err error

	SampleNumber uint16
	ErrorCode    uint8

	State   Snapshot
	Changed bool // State differs from the previously published event

	Axes   []AxisState
	Analog [][]float64 // per analog input group
}
