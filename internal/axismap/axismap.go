// internal/axismap/axismap.go
package axismap

import (
	"errors"
	"fmt"
)

// MaxChannels is the number of hardware channels (A..H).
const MaxChannels = 8

var (
	ErrNoAxes           = errors.New("axismap: at least one axis required")
	ErrChannelRange     = errors.New("axismap: channel out of range")
	ErrDuplicateChannel = errors.New("axismap: duplicate channel")
)

// Mask is a set of physical channels. Index = physical channel.
type Mask [MaxChannels]bool

// Any reports whether at least one channel is set.
func (m Mask) Any() bool {
	for _, v := range m {
		if v {
			return true
		}
	}
	return false
}

// Map links logical axes (configuration order) to physical channels.
// Built once; never mutated afterwards.
type Map struct {
	toPhysical   []int
	toLogical    [MaxChannels]int // -1 = unused channel
	maxExclusive int
}

// New builds a map from the physical channel of each logical axis.
func New(channels []int) (*Map, error) {
	if len(channels) == 0 {
		return nil, ErrNoAxes
	}

	m := &Map{toPhysical: make([]int, len(channels))}
	for i := range m.toLogical {
		m.toLogical[i] = -1
	}

	for axis, ch := range channels {
		if ch < 0 || ch >= MaxChannels {
			return nil, fmt.Errorf("%w: axis %d channel %d", ErrChannelRange, axis, ch)
		}
		if prev := m.toLogical[ch]; prev >= 0 {
			return nil, fmt.Errorf("%w: channel %c used by axes %d and %d", ErrDuplicateChannel, Letter(ch), prev, axis)
		}
		m.toPhysical[axis] = ch
		m.toLogical[ch] = axis
		if ch+1 > m.maxExclusive {
			m.maxExclusive = ch + 1
		}
	}

	return m, nil
}

// NumAxes is the number of logical axes.
func (m *Map) NumAxes() int { return len(m.toPhysical) }

// PhysicalOf returns the channel of a logical axis.
func (m *Map) PhysicalOf(logical int) int { return m.toPhysical[logical] }

// LogicalOf returns the logical axis on a channel, if any.
func (m *Map) LogicalOf(physical int) (int, bool) {
	if physical < 0 || physical >= MaxChannels {
		return 0, false
	}
	l := m.toLogical[physical]
	return l, l >= 0
}

// MaxChannelExclusive is one past the highest configured channel.
func (m *Map) MaxChannelExclusive() int { return m.maxExclusive }

// Letter returns the channel letter of a logical axis.
func (m *Map) Letter(logical int) byte { return Letter(m.toPhysical[logical]) }

// ValidityMask converts a logical subset into a channel mask.
// Entries beyond NumAxes are ignored.
func (m *Map) ValidityMask(subset []bool) Mask {
	var out Mask
	for axis, on := range subset {
		if on && axis < len(m.toPhysical) {
			out[m.toPhysical[axis]] = true
		}
	}
	return out
}

// All is the mask of every configured channel.
func (m *Map) All() Mask {
	var out Mask
	for _, ch := range m.toPhysical {
		out[ch] = true
	}
	return out
}

// ChannelLetters lists set channels in ascending physical order ("ACD").
func (m *Map) ChannelLetters(mask Mask) string {
	buf := make([]byte, 0, MaxChannels)
	for ch := 0; ch < m.maxExclusive; ch++ {
		if mask[ch] {
			buf = append(buf, Letter(ch))
		}
	}
	return string(buf)
}

// Letter returns the letter of a physical channel (0 -> 'A').
func Letter(physical int) byte {
	return 'A' + byte(physical)
}
