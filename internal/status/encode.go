// internal/status/encode.go
package status

import "math"

// Encode converts a Snapshot into the live part of the status block.
// Layout is protocol-locked.
// No IO. No side effects.
func Encode(s Snapshot, errorCode uint8, sample uint16) []uint16 {
	regs := make([]uint16, SlotsPerController)

	regs[SlotOperatingState] = uint16(s.State)
	regs[SlotFlags] = Flags(s)
	regs[SlotErrorCode] = uint16(errorCode)
	regs[SlotSampleNumber] = sample

	return regs
}

// Flags packs the boolean snapshot fields.
func Flags(s Snapshot) uint16 {
	var f uint16
	if s.Busy {
		f |= FlagBusy
	}
	if s.Homed {
		f |= FlagHomed
	}
	if s.EStop {
		f |= FlagEStop
	}
	return f
}

// EncodeAxes converts axis states into consecutive axis blocks.
func EncodeAxes(axes []AxisState) []uint16 {
	regs := make([]uint16, len(axes)*RegistersPerAxis)

	for i, a := range axes {
		b := regs[i*RegistersPerAxis:]
		putFloat(b[AxisPosition:], a.Position)
		putFloat(b[AxisVelocity:], a.Velocity)
		putFloat(b[AxisReferencePosition:], a.ReferencePosition)
		putFloat(b[AxisEffort:], a.Effort)
		b[AxisStopCode] = uint16(a.StopCode)
		b[AxisFlags] = axisFlags(a)
	}

	return regs
}

func axisFlags(a AxisState) uint16 {
	bits := []bool{
		a.Moving, a.MotorOff, a.SoftFwdLimit, a.SoftRevLimit,
		a.HardFwdLimit, a.HardRevLimit, a.HomeSwitch, a.Homed,
	}
	var f uint16
	for i, on := range bits {
		if on {
			f |= 1 << i
		}
	}
	return f
}

// putFloat stores a float32 as two registers, high word first.
func putFloat(dst []uint16, v float64) {
	u := math.Float32bits(float32(v))
	dst[0] = uint16(u >> 16)
	dst[1] = uint16(u)
}
