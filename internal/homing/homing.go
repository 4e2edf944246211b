// internal/homing/homing.go
package homing

import (
	"errors"
	"fmt"

	"github.com/tamzrod/dmc-bridge/internal/axismap"
	"github.com/tamzrod/dmc-bridge/internal/command"
	"github.com/tamzrod/dmc-bridge/internal/model"
)

var (
	ErrHoming       = errors.New("homing: already homing")
	ErrNoValidAxes  = errors.New("homing: no valid axes")
	ErrSizeMismatch = errors.New("homing: mask size mismatch")
	ErrPowerOff     = errors.New("homing: motor power is off")
)

// SearchSpeed is the jog speed (counts/s) set before find-index.
const SearchSpeed int32 = -500

// State of the sequencer.
type State int

const (
	Idle State = iota
	Homing
)

func (s State) String() string {
	if s == Homing {
		return "homing"
	}
	return "idle"
}

// Strategy is chosen once per controller, not per axis.
type Strategy int

const (
	// Native uses HM, with LD where a home sits on a travel limit.
	Native Strategy = iota
	// CustomForRequest uses FE then FI for every axis of a request. Required
	// when LD is unsupported and any configured home coincides with a limit.
	CustomForRequest
)

func (s Strategy) String() string {
	if s == CustomForRequest {
		return "custom"
	}
	return "native"
}

// Phase is the per-axis progress inside a homing request.
// Step reads it to decide what a stop code means.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseNative
	PhaseFindingEdge
	PhaseFindingIndex
	PhaseDone
)

// Axis is the static homing configuration of one logical axis.
type Axis struct {
	Absolute bool

	// HomeCounts is the configured home position in encoder counts, offset included.
	HomeCounts int32

	// LimitDisable is the LD value needed to home onto a limit:
	// 0 none, 1 forward, 2 reverse.
	LimitDisable int32
}

// Config is fixed for the life of a Machine.
type Config struct {
	Axes                 []Axis
	Map                  *axismap.Map
	SupportsLimitDisable bool
	SupportsUserData     bool
}

// Host executes what the machine decides.
type Host interface {
	Send(cmd string) error
	Status(msg string)
	Error(msg string)
	RestoreSpeed()
	SetHomed(axis int, homed bool)
}

// Observation is one axis stop code from the current record,
// plus whether it differs from the previous record.
type Observation struct {
	StopCode uint8
	Changed  bool
}

// Machine sequences native or custom homing across a subset of axes.
// Owned by the control cycle; not safe for concurrent use.
type Machine struct {
	cfg  Config
	host Host

	strategy Strategy
	state    State
	pending  []bool
	phase    []Phase

	homeLimits    []int32 // LD values used while homing
	priorLimits   []int32 // LD register before homing
	limitsWritten bool
}

// New builds an idle machine.
func New(cfg Config, host Host) *Machine {
	n := len(cfg.Axes)
	m := &Machine{
		cfg:         cfg,
		host:        host,
		pending:     make([]bool, n),
		phase:       make([]Phase, n),
		homeLimits:  make([]int32, n),
		priorLimits: make([]int32, n),
	}
	for i, a := range cfg.Axes {
		m.homeLimits[i] = a.LimitDisable
	}
	m.strategy = m.chooseStrategy()
	return m
}

// SetLimitDisable records the LD register read at startup.
// Ignored on controllers without LD.
func (m *Machine) SetLimitDisable(current []int32) {
	if !m.cfg.SupportsLimitDisable {
		return
	}
	for i := range m.priorLimits {
		if i < len(current) {
			m.priorLimits[i] = current[i]
			m.homeLimits[i] |= current[i]
		}
	}
	m.strategy = m.chooseStrategy()
}

func (m *Machine) chooseStrategy() Strategy {
	if !m.cfg.SupportsLimitDisable && anyNonZero(m.homeLimits) {
		return CustomForRequest
	}
	return Native
}

// Strategy in effect for every request.
func (m *Machine) Strategy() Strategy { return m.strategy }

// State of the sequencer.
func (m *Machine) State() State { return m.state }

// Pending returns a copy of the pending mask.
func (m *Machine) Pending() []bool {
	out := make([]bool, len(m.pending))
	copy(out, m.pending)
	return out
}

// Phase of one axis.
func (m *Machine) Phase(axis int) Phase { return m.phase[axis] }

// Check filters a request mask: rejects size mismatch and requests while
// homing, drops absolute-encoder axes, rejects an empty result.
func (m *Machine) Check(name string, mask []bool) ([]bool, error) {
	if len(mask) != len(m.cfg.Axes) {
		return nil, fmt.Errorf("%w in %s: got %d want %d", ErrSizeMismatch, name, len(mask), len(m.cfg.Axes))
	}
	if m.state == Homing {
		return nil, fmt.Errorf("%s ignored: %w", name, ErrHoming)
	}

	out := make([]bool, len(mask))
	valid := false
	for i, on := range mask {
		out[i] = on && !m.cfg.Axes[i].Absolute && !m.pending[i]
		valid = valid || out[i]
	}
	if !valid {
		return nil, fmt.Errorf("%s: %w", name, ErrNoValidAxes)
	}
	return out, nil
}

// Start accepts a Home request and issues the entry commands.
// On rejection nothing changes.
func (m *Machine) Start(mask []bool, powered, moving bool) error {
	valid, err := m.Check("Home", mask)
	if err != nil {
		return err
	}
	if !powered {
		return ErrPowerOff
	}

	letters := m.cfg.Map.ChannelLetters(m.cfg.Map.ValidityMask(valid))

	m.unhome(valid)
	if moving {
		_ = m.host.Send(command.Axes(command.Stop, letters))
	}

	if m.cfg.SupportsLimitDisable && anyNonZero(m.homeLimits) && !equal(m.homeLimits, m.priorLimits) {
		if err := m.host.Send(m.limitCommand(m.homeLimits)); err != nil {
			m.host.Error("Home: failed to disable limits")
			return fmt.Errorf("homing: disable limits: %w", err)
		}
		m.limitsWritten = true
	}

	first := PhaseNative
	if m.strategy == CustomForRequest {
		_ = m.host.Send(command.Axes(command.FindEdge, letters))
		_ = m.host.Send(command.Axes(command.Begin, letters))
		m.host.Status("starting home (FE)")
		first = PhaseFindingEdge
	} else {
		_ = m.host.Send(command.Axes(command.Home, letters))
		_ = m.host.Send(command.Axes(command.Begin, letters))
		m.host.Status("starting home (HM)")
	}

	for i := range valid {
		m.pending[i] = valid[i]
		if valid[i] {
			m.phase[i] = first
		} else {
			m.phase[i] = PhaseIdle
		}
	}
	m.state = Homing
	return nil
}

// Unhome clears the homed flag of the requested axes.
func (m *Machine) Unhome(mask []bool) error {
	valid, err := m.Check("UnHome", mask)
	if err != nil {
		return err
	}
	m.unhome(valid)
	return nil
}

func (m *Machine) unhome(valid []bool) {
	if m.cfg.SupportsUserData {
		values := make(map[int]int32)
		for i, on := range valid {
			if on {
				values[m.cfg.Map.PhysicalOf(i)] = 0
			}
		}
		_ = m.host.Send(command.Values(command.UserData, values, m.cfg.Map.MaxChannelExclusive()))
	}
	for i, on := range valid {
		if on {
			m.host.SetHomed(i, false)
		}
	}
}

// Step consumes one record's stop codes. No-op while Idle.
func (m *Machine) Step(obs []Observation) {
	if m.state != Homing {
		return
	}

	for i := range m.pending {
		if !m.pending[i] || i >= len(obs) {
			continue
		}

		switch m.phase[i] {
		case PhaseNative:
			m.stepNative(i, obs[i])
		case PhaseFindingEdge, PhaseFindingIndex:
			m.stepCustom(i, obs[i])
		}
	}

	if !anyTrue(m.pending) {
		m.finish()
	}
}

// stepNative follows HM: the edge is reported, homing end completes the axis.
func (m *Machine) stepNative(i int, o Observation) {
	switch {
	case o.StopCode == model.StopHomingEnd:
		m.complete(i)
	case o.StopCode == model.StopRunning || !o.Changed:
	case o.StopCode == model.StopFindEdge:
		m.host.Status(fmt.Sprintf("found homing edge on axis %d", i))
	default:
		m.drop(i, o.StopCode)
	}
}

// stepCustom follows FE then FI. Every new edge or limit restarts the index
// search; only FI ends with homing end.
func (m *Machine) stepCustom(i int, o Observation) {
	switch code := o.StopCode; {
	case code == model.StopHomingEnd:
		// FE never stops with homing end; seen while finding the edge it
		// is left over from an earlier run.
		if m.phase[i] == PhaseFindingIndex {
			m.complete(i)
		}
	case code == model.StopRunning || !o.Changed:
	case code == model.StopFwdLimit:
		m.host.Status(fmt.Sprintf("found forward limit on axis %d", i))
		m.findIndex(i)
	case code == model.StopRevLimit:
		m.host.Status(fmt.Sprintf("found reverse limit on axis %d", i))
		m.findIndex(i)
	case code == model.StopFindEdge:
		m.host.Status(fmt.Sprintf("found homing edge on axis %d", i))
		m.findIndex(i)
	default:
		m.drop(i, code)
	}
}

// findIndex chains AM, JG, FI and BG on one channel.
func (m *Machine) findIndex(axis int) {
	ch := m.cfg.Map.Letter(axis)

	// Motion stopped on a limit must settle before the next move.
	_ = m.host.Send(command.Single(command.WaitMotionDone, ch))
	_ = m.host.Send(command.Assign(command.Jog, ch, SearchSpeed))
	_ = m.host.Send(command.Single(command.FindIndex, ch))
	_ = m.host.Send(command.Single(command.Begin, ch))
	m.phase[axis] = PhaseFindingIndex
}

func (m *Machine) drop(axis int, code uint8) {
	m.host.Status(fmt.Sprintf("found stop code %d when homing axis %d", code, axis))
	m.pending[axis] = false
	m.phase[axis] = PhaseIdle
}

func (m *Machine) complete(axis int) {
	m.pending[axis] = false
	m.phase[axis] = PhaseDone
	m.host.SetHomed(axis, true)

	ch := m.cfg.Map.Letter(axis)
	_ = m.host.Send(command.Single(command.WaitMotionDone, ch))
	_ = m.host.Send(command.Assign(command.DefinePosition, ch, m.cfg.Axes[axis].HomeCounts))
	if m.cfg.SupportsUserData {
		values := map[int]int32{m.cfg.Map.PhysicalOf(axis): 1}
		_ = m.host.Send(command.Values(command.UserData, values, m.cfg.Map.MaxChannelExclusive()))
	}
	m.host.RestoreSpeed()
	m.host.Status(fmt.Sprintf("finished homing on axis %d", axis))
}

func (m *Machine) finish() {
	if m.limitsWritten {
		if err := m.host.Send(m.limitCommand(m.priorLimits)); err != nil {
			m.host.Error("Home: failed to restore limits")
		}
		m.limitsWritten = false
	}
	m.host.Status("finished homing all axes")
	m.state = Idle
}

func (m *Machine) limitCommand(limits []int32) string {
	values := make(map[int]int32, len(limits))
	for i, v := range limits {
		values[m.cfg.Map.PhysicalOf(i)] = v
	}
	return command.Values(command.LimitDisable, values, m.cfg.Map.MaxChannelExclusive())
}

// ---- helpers ----

func anyTrue(v []bool) bool {
	for _, b := range v {
		if b {
			return true
		}
	}
	return false
}

func anyNonZero(v []int32) bool {
	for _, x := range v {
		if x != 0 {
			return true
		}
	}
	return false
}

func equal(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
