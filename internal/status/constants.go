// internal/status/constants.go
package status

// Published register layout constants.
// These values define the protocol and MUST NOT be configurable.

// ---- STATUS BLOCK GEOMETRY ----

// SlotsPerController is the fixed number of registers in the status block.
const SlotsPerController = 20

// ---- STATUS SLOT INDICES ----

// SlotOperatingState holds the operating state code.
const SlotOperatingState = 0

// SlotFlags holds the busy/homed/estop flag bits.
const SlotFlags = 1

// SlotErrorCode holds the controller error code from the last record.
const SlotErrorCode = 2

// SlotSampleNumber holds the sample number of the last record.
const SlotSampleNumber = 3

// ---- RESERVED RANGE ----

// Slots 4-10 are reserved for future use.
const SlotReservedStart = 4
const SlotReservedEnd = 10

// ---- CONTROLLER NAME ----

// SlotNameStart is the first slot used for the controller name.
// The name is always placed at the END of the status block.
const SlotNameStart = 11

// SlotNameSlots is the number of slots reserved for the controller name.
const SlotNameSlots = 8

// SlotNameEnd is the last slot used for the name (inclusive).
const SlotNameEnd = SlotNameStart + SlotNameSlots - 1

// NameMaxChars is the maximum number of ASCII characters stored for the name.
const NameMaxChars = 16

// ---- FLAG BITS (SlotFlags) ----

const (
	FlagBusy  uint16 = 1 << 0
	FlagHomed uint16 = 1 << 1
	FlagEStop uint16 = 1 << 2
)

// ---- AXIS BLOCK GEOMETRY ----

// RegistersPerAxis is the size of one axis block.
const RegistersPerAxis = 12

// Axis block offsets. Floats are IEEE-754 float32, high word first.
const (
	AxisPosition          = 0
	AxisVelocity          = 2
	AxisReferencePosition = 4
	AxisEffort            = 6
	AxisStopCode          = 8
	AxisFlags             = 9
	// 10-11 reserved
)

// Axis flag bits (AxisFlags).
const (
	AxisFlagMoving uint16 = 1 << iota
	AxisFlagMotorOff
	AxisFlagSoftFwdLimit
	AxisFlagSoftRevLimit
	AxisFlagHardFwdLimit
	AxisFlagHardRevLimit
	AxisFlagHomeSwitch
	AxisFlagHomed
)
