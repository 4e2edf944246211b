// internal/model/model.go
package model

import (
	"fmt"
	"strings"
)

// AxisDataWidth selects the per-axis block layout inside a data record.
type AxisDataWidth int

const (
	// Old16BitTorque: 16-bit torque, used by 2103 and 1802.
	Old16BitTorque AxisDataWidth = iota
	// New32BitTorque: 32-bit torque, no user data.
	New32BitTorque
	// MaxWithUserData: 32-bit torque plus hall byte and the ZA user variable.
	MaxWithUserData
)

func (w AxisDataWidth) String() string {
	switch w {
	case Old16BitTorque:
		return "old16"
	case New32BitTorque:
		return "new32"
	case MaxWithUserData:
		return "max"
	default:
		return fmt.Sprintf("width(%d)", int(w))
	}
}

// Stride is the size in bytes of one axis block.
func (w AxisDataWidth) Stride() int {
	switch w {
	case Old16BitTorque:
		return 28
	case New32BitTorque:
		return 30
	case MaxWithUserData:
		return 36
	default:
		return 0
	}
}

// Descriptor is the immutable layout and capability set of one controller model.
type Descriptor struct {
	ID              int
	AxisDataOffset  int
	Width           AxisDataWidth
	HasHeader       bool
	SampleOffset    int
	ErrorCodeOffset int

	// AmpStatusOffset is -1 when the model does not report amplifier status.
	AmpStatusOffset int

	SupportsLimitDisable bool // LD
	SupportsUserData     bool // ZA
	HasAnalogIn          bool
}

// Stride is the size in bytes of one axis block for this model.
func (d Descriptor) Stride() int {
	return d.Width.Stride()
}

// HasAmpStatus reports whether the record carries amplifier status.
func (d Descriptor) HasAmpStatus() bool {
	return d.AmpStatusOffset >= 0
}

// MinFrameLength is the shortest record that holds axis blocks for
// channels 0..maxChannelExclusive-1.
func (d Descriptor) MinFrameLength(maxChannelExclusive int) int {
	return d.AxisDataOffset + maxChannelExclusive*d.Stride()
}

// Model IDs.
const (
	DMC4000  = 4000  // 4000, 4200, 4103 and 500x0
	DMC52000 = 52000 // 52000
	DMC1806  = 1806
	DMC2103  = 2103 // 2103 and 2102
	DMC1802  = 1802
	DMC30000 = 30000 // 30010
)

var descriptors = []Descriptor{
	{ID: DMC4000, AxisDataOffset: 82, Width: MaxWithUserData, HasHeader: true, SampleOffset: 4, ErrorCodeOffset: 50, AmpStatusOffset: 52, SupportsLimitDisable: true, SupportsUserData: true, HasAnalogIn: true},
	{ID: DMC52000, AxisDataOffset: 82, Width: MaxWithUserData, HasHeader: true, SampleOffset: 4, ErrorCodeOffset: 50, AmpStatusOffset: 52, SupportsLimitDisable: true, SupportsUserData: true, HasAnalogIn: true},
	{ID: DMC1806, AxisDataOffset: 78, Width: New32BitTorque, HasHeader: false, SampleOffset: 0, ErrorCodeOffset: 46, AmpStatusOffset: -1, SupportsLimitDisable: true, SupportsUserData: true, HasAnalogIn: true},
	{ID: DMC2103, AxisDataOffset: 44, Width: Old16BitTorque, HasHeader: true, SampleOffset: 4, ErrorCodeOffset: 26, AmpStatusOffset: -1, SupportsLimitDisable: false, SupportsUserData: false, HasAnalogIn: true},
	{ID: DMC1802, AxisDataOffset: 40, Width: Old16BitTorque, HasHeader: false, SampleOffset: 0, ErrorCodeOffset: 22, AmpStatusOffset: -1, SupportsLimitDisable: false, SupportsUserData: false, HasAnalogIn: false},
	{ID: DMC30000, AxisDataOffset: 38, Width: MaxWithUserData, HasHeader: true, SampleOffset: 4, ErrorCodeOffset: 10, AmpStatusOffset: 18, SupportsLimitDisable: true, SupportsUserData: true, HasAnalogIn: true},
}

// All returns a copy of the descriptor table.
func All() []Descriptor {
	out := make([]Descriptor, len(descriptors))
	copy(out, descriptors)
	return out
}

// Lookup returns the descriptor for a model ID.
func Lookup(id int) (Descriptor, bool) {
	for _, d := range descriptors {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Detect maps a controller revision string (reply to ^R^V) to a model ID.
// Returns 0 when the revision is not recognised.
func Detect(revision string) int {
	i := strings.Index(revision, "DMC")
	if i < 0 {
		return 0
	}
	p := revision[i+3:]

	switch {
	case strings.HasPrefix(p, "4"), strings.HasPrefix(p, "50"):
		return DMC4000
	case strings.HasPrefix(p, "52"):
		return DMC52000
	case strings.HasPrefix(p, "3"):
		return DMC30000
	case strings.HasPrefix(p, "2"):
		return DMC2103
	case strings.HasPrefix(p, "1806"):
		return DMC1806
	case strings.HasPrefix(p, "1802"):
		return DMC1802
	}
	return 0
}
