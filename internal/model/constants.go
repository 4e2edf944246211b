// internal/model/constants.go
package model

// Data record bit layouts and stop codes.
// These values are defined by the controller firmware and MUST NOT be configurable.

// ---- AXIS STATUS (u16) ----

const (
	StatusMotorMoving    uint16 = 0x8000
	StatusFindEdgeActive uint16 = 0x1000
	StatusHomeActive     uint16 = 0x0800
	StatusHome1Done      uint16 = 0x0400
	StatusHome2DoneFI    uint16 = 0x0200
	StatusHome3Active    uint16 = 0x0002
	StatusMotorOff       uint16 = 0x0001
)

// ---- AXIS SWITCHES (u8) ----

const (
	SwitchFwdLimit uint8 = 0x08
	SwitchRevLimit uint8 = 0x04
	SwitchHome     uint8 = 0x02
)

// ---- AMPLIFIER STATUS (u32) ----

const (
	AmpEloUpper          uint32 = 0x02000000 // ELO active, axes E-H
	AmpEloLower          uint32 = 0x01000000 // ELO active, axes A-D
	AmpPeakCurrentA      uint32 = 0x00010000 // shift left for B-H
	AmpHallErrorA        uint32 = 0x00000100 // shift left for B-H
	AmpUnderVoltageUpper uint32 = 0x00000080
	AmpOverTempUpper     uint32 = 0x00000040
	AmpOverVoltageUpper  uint32 = 0x00000020
	AmpOverCurrentUpper  uint32 = 0x00000010
	AmpUnderVoltageLower uint32 = 0x00000008
	AmpOverTempLower     uint32 = 0x00000004
	AmpOverVoltageLower  uint32 = 0x00000002
	AmpOverCurrentLower  uint32 = 0x00000001
)

// ---- STOP CODES (see SC) ----

const (
	StopRunning   uint8 = 0  // motors running
	StopStopped   uint8 = 1  // decelerating or stopped at position
	StopFwdLimit  uint8 = 2  // stopped at forward limit
	StopRevLimit  uint8 = 3  // stopped at reverse limit
	StopCommand   uint8 = 4  // stopped by ST
	StopOnError   uint8 = 8  // stopped by off-on-error
	StopFindEdge  uint8 = 9  // stopped after FE
	StopHomingEnd uint8 = 10 // stopped after HM or FI
)

// ---- TORQUE ----

// TorqueFullScale and TorqueVolts convert the raw torque field to amplifier
// command volts (see TT). Identical on every model.
const (
	TorqueFullScale = 32767.0
	TorqueVolts     = 9.9982
)
