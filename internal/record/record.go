// internal/record/record.go
package record

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tamzrod/dmc-bridge/internal/axismap"
	"github.com/tamzrod/dmc-bridge/internal/model"
)

// ErrShortFrame means the record is too short for the selected model.
var ErrShortFrame = errors.New("record: frame shorter than model layout")

// FrameHeader holds the record-level fields.
type FrameHeader struct {
	Header       uint32 // only when the model has a header
	SampleNumber uint16
	ErrorCode    uint8
	AmpStatus    uint32 // zero when HasAmpStatus is false
	HasAmpStatus bool
}

// EStop reports whether either electronic lockout bit is set.
func (h FrameHeader) EStop() bool {
	return h.HasAmpStatus && h.AmpStatus&(model.AmpEloUpper|model.AmpEloLower) != 0
}

// AxisSample is the raw per-axis content of one record.
// Bits are passed through opaque; interpretation happens later.
type AxisSample struct {
	Status               uint16
	Switches             uint8
	StopCode             uint8
	RawReferencePosition int32
	RawPosition          int32
	RawPositionError     int32
	RawAuxPosition       int32
	RawVelocity          int32 // already x64 relative to TV
	RawTorque            int32
	RawAnalogIn          uint16
	RawUserVar           int32
	HasUserVar           bool
}

// ---- axis block field tables ----

// Prefix offsets shared by every layout.
const (
	offStatus   = 0
	offSwitches = 2
	offStopCode = 3
	offRefPos   = 4
	offPos      = 8
	offPosError = 12
	offAuxPos   = 16
	offVelocity = 20
)

// tail is the width-dependent part of an axis block.
type tail struct {
	torqueOffset int
	torque16     bool
	analogOffset int
	userVar      int // -1 = absent
}

var tails = map[model.AxisDataWidth]tail{
	model.Old16BitTorque:  {torqueOffset: 24, torque16: true, analogOffset: 26, userVar: -1},
	model.New32BitTorque:  {torqueOffset: 24, analogOffset: 28, userVar: -1},
	model.MaxWithUserData: {torqueOffset: 24, analogOffset: 28, userVar: 32},
}

// Decode interprets one data record.
// It returns one sample per logical axis of the map.
// The only failure is a record too short for the model and channel set.
func Decode(raw []byte, d model.Descriptor, axes *axismap.Map) (FrameHeader, []AxisSample, error) {
	var h FrameHeader

	t, ok := tails[d.Width]
	if !ok {
		return h, nil, fmt.Errorf("record: unknown axis data width %s", d.Width)
	}

	need := d.MinFrameLength(axes.MaxChannelExclusive())
	if len(raw) < need {
		return h, nil, fmt.Errorf("%w: model=%d got=%d want>=%d", ErrShortFrame, d.ID, len(raw), need)
	}

	le := binary.LittleEndian

	if d.HasHeader {
		h.Header = le.Uint32(raw[0:4])
	}
	h.SampleNumber = le.Uint16(raw[d.SampleOffset:])
	h.ErrorCode = raw[d.ErrorCodeOffset]
	if d.HasAmpStatus() {
		h.AmpStatus = le.Uint32(raw[d.AmpStatusOffset:])
		h.HasAmpStatus = true
	}

	stride := d.Stride()
	out := make([]AxisSample, axes.NumAxes())

	for axis := range out {
		b := raw[d.AxisDataOffset+axes.PhysicalOf(axis)*stride:]
		b = b[:stride]

		s := AxisSample{
			Status:               le.Uint16(b[offStatus:]),
			Switches:             b[offSwitches],
			StopCode:             b[offStopCode],
			RawReferencePosition: int32(le.Uint32(b[offRefPos:])),
			RawPosition:          int32(le.Uint32(b[offPos:])),
			RawPositionError:     int32(le.Uint32(b[offPosError:])),
			RawAuxPosition:       int32(le.Uint32(b[offAuxPos:])),
			RawVelocity:          int32(le.Uint32(b[offVelocity:])),
		}

		if t.torque16 {
			s.RawTorque = int32(int16(le.Uint16(b[t.torqueOffset:])))
		} else {
			s.RawTorque = int32(le.Uint32(b[t.torqueOffset:]))
		}

		// 1802 reserves the analog field.
		if d.HasAnalogIn {
			s.RawAnalogIn = le.Uint16(b[t.analogOffset:])
		}

		if t.userVar >= 0 {
			s.RawUserVar = int32(le.Uint32(b[t.userVar:]))
			s.HasUserVar = true
		}

		out[axis] = s
	}

	return h, out, nil
}

// AnalogIn reads the raw analog input of one physical channel.
// Analog groups may use channels that carry no configured axis.
func AnalogIn(raw []byte, d model.Descriptor, channel int) (uint16, error) {
	t, ok := tails[d.Width]
	if !ok {
		return 0, fmt.Errorf("record: unknown axis data width %s", d.Width)
	}
	if channel < 0 || channel >= axismap.MaxChannels {
		return 0, fmt.Errorf("record: analog channel %d out of range", channel)
	}

	need := d.MinFrameLength(channel + 1)
	if len(raw) < need {
		return 0, fmt.Errorf("%w: analog channel %d needs %d bytes, got %d", ErrShortFrame, channel, need, len(raw))
	}
	if !d.HasAnalogIn {
		return 0, nil
	}

	off := d.AxisDataOffset + channel*d.Stride() + t.analogOffset
	return binary.LittleEndian.Uint16(raw[off:]), nil
}

// ---- conversions ----

// EffortFromTorque converts raw torque to amplifier command volts.
func EffortFromTorque(raw int32) float64 {
	return float64(raw) * model.TorqueVolts / model.TorqueFullScale
}

// PositionSI converts encoder counts to SI units.
func PositionSI(counts, offset int32, countsPerUnit float64) float64 {
	return float64(int64(counts)-int64(offset)) / countsPerUnit
}

// VelocitySI converts record velocity to SI units.
// The record value is already scaled by the firmware; no extra factor applies.
func VelocitySI(raw int32, countsPerUnit float64) float64 {
	return float64(raw) / countsPerUnit
}
