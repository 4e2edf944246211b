// internal/controller/controller_test.go
package controller

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tamzrod/dmc-bridge/internal/homing"
	"github.com/tamzrod/dmc-bridge/internal/model"
	"github.com/tamzrod/dmc-bridge/internal/record"
	"github.com/tamzrod/dmc-bridge/internal/status"
)

// ---- fake client ----

type fakeClient struct {
	frames   [][]byte // consumed in order, last one repeats
	frameErr error

	sent    []string
	replies map[string]string
	doubles map[string]float64

	layoutSet bool
	hasHeader bool

	programs    []string
	downloadErr error
}

func (f *fakeClient) Frame() ([]byte, error) {
	if f.frameErr != nil {
		return nil, f.frameErr
	}
	if len(f.frames) == 0 {
		return nil, errors.New("no frame")
	}
	fr := f.frames[0]
	if len(f.frames) > 1 {
		f.frames = f.frames[1:]
	}
	return fr, nil
}

func (f *fakeClient) Command(cmd string) error {
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeClient) CommandReply(cmd string) (string, error) {
	if r, ok := f.replies[cmd]; ok {
		return r, nil
	}
	return "", fmt.Errorf("no reply for %q", cmd)
}

func (f *fakeClient) QueryInt(cmd string) (int, error) {
	v, err := f.QueryDouble(cmd)
	return int(v), err
}

func (f *fakeClient) QueryDouble(cmd string) (float64, error) {
	if v, ok := f.doubles[cmd]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("no value for %q", cmd)
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) SetRecordLayout(hasHeader bool) {
	f.layoutSet = true
	f.hasHeader = hasHeader
}

func (f *fakeClient) Download(program string) error {
	f.programs = append(f.programs, program)
	if f.downloadErr != nil {
		return f.downloadErr
	}
	f.sent = append(f.sent, "DL")
	return nil
}

func (f *fakeClient) take() []string {
	out := f.sent
	f.sent = nil
	return out
}

// ---- fake events ----

type fakeEvents struct {
	states   []status.Snapshot
	messages []string
}

func (e *fakeEvents) Message(level Level, text string) {
	e.messages = append(e.messages, level.String()+": "+text)
}

func (e *fakeEvents) OperatingState(s status.Snapshot) {
	e.states = append(e.states, s)
}

func (e *fakeEvents) has(prefix string) bool {
	for _, m := range e.messages {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

// ---- frame builder ----

type axisFrame struct {
	status   uint16
	switches uint8
	stop     uint8
	ref      int32
	pos      int32
	vel      int32
	torque   int32
	analog   uint16
	userVar  int32
}

func buildFrame(d model.Descriptor, maxExcl int, axes map[int]axisFrame) []byte {
	le := binary.LittleEndian
	out := make([]byte, d.MinFrameLength(maxExcl))

	for ch, f := range axes {
		b := out[d.AxisDataOffset+ch*d.Stride():]
		le.PutUint16(b[0:], f.status)
		b[2] = f.switches
		b[3] = f.stop
		le.PutUint32(b[4:], uint32(f.ref))
		le.PutUint32(b[8:], uint32(f.pos))
		le.PutUint32(b[20:], uint32(f.vel))

		if d.Width == model.Old16BitTorque {
			le.PutUint16(b[24:], uint16(int16(f.torque)))
			le.PutUint16(b[26:], f.analog)
		} else {
			le.PutUint32(b[24:], uint32(f.torque))
			le.PutUint16(b[28:], f.analog)
		}
		if d.Width == model.MaxWithUserData {
			le.PutUint32(b[32:], uint32(f.userVar))
		}
	}
	return out
}

// Physical channels {0, 2}: logical 0 -> A, logical 1 -> C.
func twoAxisConfig(modelID int) Config {
	return Config{
		Name:  "stage",
		Model: modelID,
		Axes: []Axis{
			{Name: "X", Channel: 0, Lower: -0.05, Upper: 0.05, CountsPerUnit: 200000, HomePos: -0.05},
			{Name: "Y", Channel: 2, Lower: -0.05, Upper: 0.05, CountsPerUnit: 200000, Offset: 100, HomePos: 0},
		},
		Speed: 0.025,
		Accel: 0.256,
		Decel: 0.256,
	}
}

func newTestController(t *testing.T, cfg Config, cli *fakeClient) (*Controller, *fakeEvents) {
	t.Helper()
	ev := &fakeEvents{}
	c, err := New(cfg, cli, ev)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	return c, ev
}

func motorsFrame(d model.Descriptor, on bool) []byte {
	var st uint16
	if !on {
		st = model.StatusMotorOff
	}
	return buildFrame(d, 3, map[int]axisFrame{
		0: {status: st, stop: model.StopStopped},
		2: {status: st, stop: model.StopStopped},
	})
}

// ---- aggregates ----

func TestAggregate(t *testing.T) {
	moving := []status.AxisState{{Moving: false}, {Moving: true}, {Moving: false}}
	if !Aggregate(moving).AnyMoving {
		t.Fatalf("expected anyMoving")
	}

	allOff := []status.AxisState{{MotorOff: true}, {MotorOff: true}, {MotorOff: true}}
	a := Aggregate(allOff)
	if a.AllMotorOn || !a.AllMotorOff {
		t.Fatalf("all off: got on=%v off=%v", a.AllMotorOn, a.AllMotorOff)
	}

	mixed := []status.AxisState{{MotorOff: true}, {MotorOff: false}}
	a = Aggregate(mixed)
	if a.AllMotorOn || a.AllMotorOff {
		t.Fatalf("mixed: got on=%v off=%v", a.AllMotorOn, a.AllMotorOff)
	}

	if Aggregate([]status.AxisState{{Homed: true}, {Homed: false}}).AllHomed {
		t.Fatalf("expected allHomed=false")
	}
}

// ---- tick ----

func TestTick_OperatingStateEdgeTriggered(t *testing.T) {
	d, _ := model.Lookup(model.DMC2103)
	cli := &fakeClient{frames: [][]byte{
		motorsFrame(d, false),
		motorsFrame(d, false),
		motorsFrame(d, true),
	}}
	c, ev := newTestController(t, twoAxisConfig(model.DMC2103), cli)

	want := []status.OperatingState{status.StateDisabled, status.StateDisabled, status.StateEnabled}
	for i, w := range want {
		rep := c.Tick(context.Background())
		if rep.State.State != w {
			t.Fatalf("tick %d: state got %s want %s", i+1, rep.State.State, w)
		}
		if rep.Changed != (i == 2) {
			t.Fatalf("tick %d: changed=%v", i+1, rep.Changed)
		}
	}

	if len(ev.states) != 1 || ev.states[0].State != status.StateEnabled {
		t.Fatalf("expected exactly one Enabled event, got %+v", ev.states)
	}
	if c.Snapshot().State != status.StateEnabled {
		t.Fatalf("snapshot not published")
	}
}

func TestTick_FaultKeepsAxisStateStale(t *testing.T) {
	d, _ := model.Lookup(model.DMC4000)
	cli := &fakeClient{frames: [][]byte{
		buildFrame(d, 3, map[int]axisFrame{
			0: {status: model.StatusMotorMoving, pos: 2000},
			2: {status: model.StatusMotorMoving, pos: 100},
		}),
	}}
	c, ev := newTestController(t, twoAxisConfig(model.DMC4000), cli)

	rep := c.Tick(context.Background())
	if rep.Err != nil || rep.State.State != status.StateEnabled || !rep.State.Busy {
		t.Fatalf("first tick: %+v", rep.State)
	}

	cli.frameErr = errors.New("link down")
	rep = c.Tick(context.Background())
	if rep.Err == nil || rep.State.State != status.StateFault {
		t.Fatalf("expected fault, got %+v err=%v", rep.State, rep.Err)
	}
	if rep.State.Busy || !rep.Changed {
		t.Fatalf("fault must clear busy and emit an event: %+v changed=%v", rep.State, rep.Changed)
	}
	if rep.Axes[0].Position != 0.01 {
		t.Fatalf("axis state should stay stale, got position %v", rep.Axes[0].Position)
	}
	if !ev.has("error: record: link down") {
		t.Fatalf("expected error message, got %v", ev.messages)
	}

	// Same failure again: no new event, no repeated message.
	n := len(ev.messages)
	rep = c.Tick(context.Background())
	if rep.Changed || len(ev.messages) != n {
		t.Fatalf("repeated fault should be quiet")
	}
}

func TestTick_ShortFrameIsFault(t *testing.T) {
	d, _ := model.Lookup(model.DMC4000)
	cli := &fakeClient{frames: [][]byte{make([]byte, d.MinFrameLength(3)-1)}}
	c, _ := newTestController(t, twoAxisConfig(model.DMC4000), cli)

	rep := c.Tick(context.Background())
	if !errors.Is(rep.Err, record.ErrShortFrame) || rep.State.State != status.StateFault {
		t.Fatalf("expected short frame fault, got %v %s", rep.Err, rep.State.State)
	}
}

func TestTick_AxisConversion(t *testing.T) {
	d, _ := model.Lookup(model.DMC4000)
	cli := &fakeClient{frames: [][]byte{
		buildFrame(d, 3, map[int]axisFrame{
			0: {pos: 2000, ref: 4000, vel: -20000, torque: 16384, stop: model.StopRevLimit, userVar: 1, switches: model.SwitchFwdLimit | model.SwitchRevLimit},
			2: {pos: 100, switches: model.SwitchHome},
		}),
	}}
	c, _ := newTestController(t, twoAxisConfig(model.DMC4000), cli)

	rep := c.Tick(context.Background())
	if rep.Err != nil {
		t.Fatalf("Tick err=%v", rep.Err)
	}

	x, y := rep.Axes[0], rep.Axes[1]
	if x.Position != 0.01 || x.ReferencePosition != 0.02 || x.Velocity != -0.1 {
		t.Fatalf("x kinematics: %+v", x)
	}
	if math.Abs(x.Effort-16384*9.9982/32767) > 1e-12 {
		t.Fatalf("x effort: %v", x.Effort)
	}
	if y.Position != 0 {
		t.Fatalf("y offset not applied: %v", y.Position)
	}
	if !x.SoftRevLimit || x.SoftFwdLimit {
		t.Fatalf("soft limits from stop code: %+v", x)
	}

	// Active-low limits: a set bit means the switch is not hit.
	if x.HardFwdLimit || x.HardRevLimit || !y.HardFwdLimit || !y.HardRevLimit {
		t.Fatalf("hard limits: x=%+v y=%+v", x, y)
	}
	if x.HomeSwitch || !y.HomeSwitch {
		t.Fatalf("home switch: x=%v y=%v", x.HomeSwitch, y.HomeSwitch)
	}

	if !x.Homed || y.Homed {
		t.Fatalf("homed from user var: x=%v y=%v", x.Homed, y.Homed)
	}
	if x.Name != "X" || x.StopCode != model.StopRevLimit {
		t.Fatalf("x identity: %+v", x)
	}
}

func TestTick_AnalogInputs(t *testing.T) {
	d, _ := model.Lookup(model.DMC4000)
	cfg := twoAxisConfig(model.DMC4000)
	cfg.Analog = []AnalogGroup{{
		Name:     "force",
		Channels: []AnalogChannel{{Channel: 1, Scale: 2, Offset: 1}},
	}}

	cli := &fakeClient{frames: [][]byte{buildFrame(d, 3, map[int]axisFrame{1: {analog: 65535}})}}
	c, _ := newTestController(t, cfg, cli)
	c.bits2volts[0][0] = 10.0 / 65535

	rep := c.Tick(context.Background())
	if rep.Err != nil {
		t.Fatalf("Tick err=%v", rep.Err)
	}
	if got := rep.Analog[0][0]; math.Abs(got-4.5) > 1e-9 {
		t.Fatalf("analog got %v want 4.5", got)
	}
}

func TestTick_AnalogChannelWithoutAxis(t *testing.T) {
	d, _ := model.Lookup(model.DMC4000)
	cfg := twoAxisConfig(model.DMC4000)
	cfg.Analog = []AnalogGroup{{
		Name:     "force",
		Channels: []AnalogChannel{{Channel: 3, Scale: 1}},
	}}

	// channel D carries no axis but the record has a block for it
	full := buildFrame(d, 4, map[int]axisFrame{3: {analog: 32768}})
	// record sized for the configured axes only
	short := buildFrame(d, 3, nil)

	cli := &fakeClient{frames: [][]byte{full, short}}
	c, ev := newTestController(t, cfg, cli)
	c.bits2volts[0][0] = 10.0 / 65535

	rep := c.Tick(context.Background())
	if rep.Err != nil {
		t.Fatalf("Tick err=%v", rep.Err)
	}
	if got, want := rep.Analog[0][0], 10.0/65535*32768; math.Abs(got-want) > 1e-9 {
		t.Fatalf("analog got %v want %v", got, want)
	}

	rep = c.Tick(context.Background())
	if !errors.Is(rep.Err, record.ErrShortFrame) {
		t.Fatalf("expected ErrShortFrame, got %v", rep.Err)
	}
	if rep.State.State != status.StateFault {
		t.Fatalf("short record must fault, got %v", rep.State.State)
	}
	if !ev.has("error: record") {
		t.Fatalf("expected record error message, got %v", ev.messages)
	}
}

func TestTick_PowerGuard(t *testing.T) {
	d, _ := model.Lookup(model.DMC2103)
	mixed := buildFrame(d, 3, map[int]axisFrame{
		0: {status: model.StatusMotorOff},
		2: {status: 0},
	})
	cli := &fakeClient{frames: [][]byte{mixed}}
	c, ev := newTestController(t, twoAxisConfig(model.DMC2103), cli)

	if err := c.EnablePower(); err != nil {
		t.Fatalf("EnablePower err=%v", err)
	}
	if got := cli.take(); !reflect.DeepEqual(got, []string{"SH AC"}) {
		t.Fatalf("EnablePower sent %q", got)
	}

	for i := 1; i < PowerGuardTicks; i++ {
		c.Tick(context.Background())
		if len(cli.sent) != 0 {
			t.Fatalf("tick %d: mixed power tolerated while guard armed, sent %q", i, cli.sent)
		}
	}

	rep := c.Tick(context.Background())
	if got := cli.take(); !reflect.DeepEqual(got, []string{"MO AC"}) {
		t.Fatalf("guard expiry sent %q", got)
	}
	if rep.State.State != status.StateDisabled {
		t.Fatalf("forced off should publish Disabled, got %s", rep.State.State)
	}
	if !ev.has("warning: inconsistent motor power") {
		t.Fatalf("expected warning, got %v", ev.messages)
	}
	if c.guard != PowerGuardTicks {
		t.Fatalf("DisablePower must re-arm the guard")
	}
}

// ---- operations ----

func enabledController(t *testing.T, modelID int, moving bool) (*Controller, *fakeClient, *fakeEvents) {
	t.Helper()
	d, _ := model.Lookup(modelID)
	st := uint16(0)
	if moving {
		st = model.StatusMotorMoving
	}
	cli := &fakeClient{frames: [][]byte{buildFrame(d, 3, map[int]axisFrame{
		0: {status: st, stop: model.StopStopped},
		2: {status: st, stop: model.StopStopped},
	})}}
	c, ev := newTestController(t, twoAxisConfig(modelID), cli)
	if rep := c.Tick(context.Background()); rep.State.State != status.StateEnabled {
		t.Fatalf("expected Enabled, got %s", rep.State.State)
	}
	cli.take()
	return c, cli, ev
}

func TestOps_RejectedWhenPowerOff(t *testing.T) {
	d, _ := model.Lookup(model.DMC4000)
	cli := &fakeClient{frames: [][]byte{motorsFrame(d, false)}}
	c, ev := newTestController(t, twoAxisConfig(model.DMC4000), cli)
	c.Tick(context.Background())
	cli.take()

	calls := map[string]func() error{
		"servo_jp":  func() error { return c.ServoJP([]float64{0, 0}) },
		"servo_jr":  func() error { return c.ServoJR([]float64{0, 0}) },
		"servo_jv":  func() error { return c.ServoJV([]float64{0, 0}) },
		"hold":      c.Hold,
		"Home":      func() error { return c.Home([]bool{true, true}) },
		"FindEdge":  func() error { return c.FindEdge([]bool{true, true}) },
		"FindIndex": func() error { return c.FindIndex([]bool{true, true}) },
	}
	for name, call := range calls {
		if err := call(); !errors.Is(err, ErrPowerOff) && !errors.Is(err, homing.ErrPowerOff) {
			t.Fatalf("%s: expected power off error, got %v", name, err)
		}
	}
	if len(cli.sent) != 0 {
		t.Fatalf("rejected requests sent %q", cli.sent)
	}
	if len(ev.messages) != len(calls) {
		t.Fatalf("expected one message per rejection, got %v", ev.messages)
	}
}

func TestServoJP_OffsetsAndOrder(t *testing.T) {
	c, cli, _ := enabledController(t, model.DMC4000, true)

	if err := c.ServoJP([]float64{0.001, -0.002}); err != nil {
		t.Fatalf("ServoJP err=%v", err)
	}
	want := []string{"ST AC", "PA 200,,-300", "BG AC"}
	if got := cli.take(); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q want %q", got, want)
	}

	if err := c.ServoJR([]float64{0.001, 0.001}); err != nil {
		t.Fatalf("ServoJR err=%v", err)
	}
	want = []string{"ST AC", "PR 200,,200", "BG AC"}
	if got := cli.take(); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestServoJV_KeepsSpeedForHold(t *testing.T) {
	c, cli, _ := enabledController(t, model.DMC4000, false)

	if err := c.ServoJV([]float64{0.01, -0.01}); err != nil {
		t.Fatalf("ServoJV err=%v", err)
	}
	if err := c.Hold(); err != nil {
		t.Fatalf("Hold err=%v", err)
	}
	want := []string{"JG 2000,,-2000", "BG AC", "ST AC", "SP 5000,,5000"}
	if got := cli.take(); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestSizeMismatchRejected(t *testing.T) {
	c, cli, _ := enabledController(t, model.DMC4000, false)

	if err := c.ServoJP([]float64{0.1}); !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}
	if err := c.SetSpeed([]float64{1, 2, 3}); !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}
	if len(cli.sent) != 0 {
		t.Fatalf("sent %q", cli.sent)
	}
	if !reflect.DeepEqual(c.Speed(), []float64{0.025, 0.025}) {
		t.Fatalf("speed changed on rejection: %v", c.Speed())
	}
}

func TestServoJP_OutOfRangeRejected(t *testing.T) {
	c, cli, ev := enabledController(t, model.DMC4000, false)

	// 200000 counts per unit: 20000 units is 4e9 counts
	err := c.ServoJP([]float64{0.01, 20000})
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if got := cli.take(); len(got) != 0 {
		t.Fatalf("out of range setpoint sent %q", got)
	}
	if !ev.has("error: servo_jp") {
		t.Fatalf("expected servo_jp error, got %v", ev.messages)
	}

	if err := c.SetHomePosition([]float64{-20000, 0}); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestDisablePower_StopsMotionFirst(t *testing.T) {
	c, cli, _ := enabledController(t, model.DMC4000, true)

	if err := c.DisablePower(); err != nil {
		t.Fatalf("DisablePower err=%v", err)
	}
	want := []string{"ST AC", "AM AC", "SP 5000,,5000", "MO AC"}
	if got := cli.take(); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestSetHomePosition(t *testing.T) {
	c, cli, _ := enabledController(t, model.DMC4000, false)

	if err := c.SetHomePosition([]float64{0, 0.001}); err != nil {
		t.Fatalf("SetHomePosition err=%v", err)
	}
	want := []string{"DP 0,,300", "ZA 1,,1"}
	if got := cli.take(); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q want %q", got, want)
	}

	c2, cli2, _ := enabledController(t, model.DMC2103, false)
	if err := c2.SetHomePosition([]float64{0, 0}); err != nil {
		t.Fatalf("SetHomePosition err=%v", err)
	}
	if got := cli2.take(); !reflect.DeepEqual(got, []string{"DP 0,,100"}) {
		t.Fatalf("no ZA on models without user data, got %q", got)
	}
}

func TestHome_CustomStrategyEndToEnd(t *testing.T) {
	c, cli, _ := enabledController(t, model.DMC2103, false)

	if c.HomingStrategy() != homing.CustomForRequest {
		t.Fatalf("expected custom strategy, got %s", c.HomingStrategy())
	}
	if err := c.Home([]bool{true, true}); err != nil {
		t.Fatalf("Home err=%v", err)
	}
	if got := cli.take(); !reflect.DeepEqual(got, []string{"FE AC", "BG AC"}) {
		t.Fatalf("Home sent %q", got)
	}

	if err := c.Home([]bool{true, true}); !errors.Is(err, homing.ErrHoming) {
		t.Fatalf("expected ErrHoming, got %v", err)
	}

	d, _ := model.Lookup(model.DMC2103)
	cli.frames = [][]byte{
		buildFrame(d, 3, map[int]axisFrame{0: {stop: model.StopRevLimit}, 2: {status: model.StatusMotorMoving}}),
		buildFrame(d, 3, map[int]axisFrame{0: {stop: model.StopHomingEnd}, 2: {stop: model.StopFindEdge}}),
		buildFrame(d, 3, map[int]axisFrame{0: {stop: model.StopHomingEnd}, 2: {stop: model.StopHomingEnd}}),
	}

	c.Tick(context.Background())
	if got := cli.take(); !reflect.DeepEqual(got, []string{"AM A", "JGA=-500", "FI A", "BG A"}) {
		t.Fatalf("limit hit sent %q", got)
	}

	c.Tick(context.Background())
	want := []string{"AM A", "DPA=-10000", "SP 5000,,5000", "AM C", "JGC=-500", "FI C", "BG C"}
	if got := cli.take(); !reflect.DeepEqual(got, want) {
		t.Fatalf("tick 2 sent %q want %q", got, want)
	}

	c.Tick(context.Background())
	want = []string{"AM C", "DPC=100", "SP 5000,,5000"}
	if got := cli.take(); !reflect.DeepEqual(got, want) {
		t.Fatalf("tick 3 sent %q want %q", got, want)
	}

	// Homed flags were set by the sequencer during the step after publication.
	rep := c.Tick(context.Background())
	if !rep.State.Homed {
		t.Fatalf("expected all homed after sequence")
	}
}

func TestUnHome_ClearsHomed(t *testing.T) {
	c, cli, _ := enabledController(t, model.DMC4000, false)

	if err := c.UnHome([]bool{false, true}); err != nil {
		t.Fatalf("UnHome err=%v", err)
	}
	if got := cli.take(); !reflect.DeepEqual(got, []string{"ZA ,,0"}) {
		t.Fatalf("UnHome sent %q", got)
	}
}

func TestRawCommands(t *testing.T) {
	c, cli, _ := enabledController(t, model.DMC4000, false)
	cli.replies = map[string]string{"MG _TPA": "1234"}

	_ = c.AbortProgram()
	_ = c.AbortMotion()
	_ = c.SendCommand("XQ #AUTO")
	if got := cli.take(); !reflect.DeepEqual(got, []string{"AB", "AB 1", "XQ #AUTO"}) {
		t.Fatalf("got %q", got)
	}

	reply, err := c.SendCommandReply("MG _TPA")
	if err != nil || reply != "1234" {
		t.Fatalf("SendCommandReply got %q err=%v", reply, err)
	}
	if _, err := c.SendCommandReply("MG _BAD"); err == nil {
		t.Fatalf("expected reply error")
	}
}

// ---- request queue ----

func TestDo_RunsOnNextTick(t *testing.T) {
	c, cli, _ := enabledController(t, model.DMC4000, false)

	done := make(chan error, 1)
	go func() {
		done <- c.Do(context.Background(), func(c *Controller) error {
			return c.EnablePower()
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(c.requests) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("request never queued")
		}
		time.Sleep(time.Millisecond)
	}

	c.Tick(context.Background())

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Do err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Do did not return")
	}
	if got := cli.take(); !reflect.DeepEqual(got, []string{"SH AC"}) {
		t.Fatalf("got %q", got)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	c, _, _ := enabledController(t, model.DMC4000, false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := c.Do(ctx, func(*Controller) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDo_ExpiredRequestIsNotRun(t *testing.T) {
	c, cli, _ := enabledController(t, model.DMC4000, false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	ran := false
	err := c.Do(ctx, func(c *Controller) error {
		ran = true
		return c.AbortMotion()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if len(c.requests) != 1 {
		t.Fatalf("request should still be queued, got %d", len(c.requests))
	}

	c.Tick(context.Background())

	if ran {
		t.Fatalf("expired request ran on the cycle")
	}
	if got := cli.take(); len(got) != 0 {
		t.Fatalf("expired request reached the controller: %q", got)
	}
	if len(c.requests) != 0 {
		t.Fatalf("expired request not drained")
	}
}

// ---- startup ----

func TestStartup_AutoDetectAndQuery(t *testing.T) {
	cfg := twoAxisConfig(0)
	cfg.Analog = []AnalogGroup{{Name: "force", Channels: []AnalogChannel{{Channel: 1, Scale: 1}}}}

	cli := &fakeClient{
		doubles: map[string]float64{
			"MG _CN0": 1,
			"MG _CN1": 1,
			"MG _AQ1": 2,
		},
		replies: map[string]string{
			"\x12\x16": "DMC4143 Rev 1.3h",
			"LD ?,,?":  " 0, 1",
		},
	}
	c, ev := newTestController(t, cfg, cli)

	if err := c.Startup(); err != nil {
		t.Fatalf("Startup err=%v", err)
	}

	d, ok := c.Model()
	if !ok || d.ID != model.DMC4000 {
		t.Fatalf("model not detected: %+v ok=%v", d, ok)
	}
	want := []string{"SP 5000,,5000", "AC 51200,,51200", "DC 51200,,51200"}
	if got := cli.take(); !reflect.DeepEqual(got, want) {
		t.Fatalf("defaults sent %q want %q", got, want)
	}
	if c.limitActiveLow || !c.homeInverted {
		t.Fatalf("polarity: activeLow=%v inverted=%v", c.limitActiveLow, c.homeInverted)
	}
	if c.bits2volts[0][0] != 20.0/65535 {
		t.Fatalf("AQ 2 scale: %v", c.bits2volts[0][0])
	}
	if !cli.layoutSet || !cli.hasHeader {
		t.Fatalf("record layout not handed to transport")
	}
	if c.HomingStrategy() != homing.Native {
		t.Fatalf("LD-capable model must home natively")
	}
	if ev.has("warning: startup") {
		t.Fatalf("unexpected startup warning: %v", ev.messages)
	}
}

func TestStartup_UndetectedModelIsFatal(t *testing.T) {
	cli := &fakeClient{
		doubles: map[string]float64{"MG _CN0": -1, "MG _CN1": -1},
		replies: map[string]string{"\x12\x16": "unknown device"},
	}
	c, _ := newTestController(t, twoAxisConfig(0), cli)

	if err := c.Startup(); !errors.Is(err, ErrModelUndetected) {
		t.Fatalf("expected ErrModelUndetected, got %v", err)
	}

	rep := c.Tick(context.Background())
	if !errors.Is(rep.Err, ErrNoModel) || rep.State.State != status.StateFault {
		t.Fatalf("tick without model must fault, got %v", rep.Err)
	}
}

func TestStartup_WarnsAndContinues(t *testing.T) {
	cli := &fakeClient{
		doubles: map[string]float64{"MG _CN0": 7},
		replies: map[string]string{"\x12\x16": "DMC2103 Rev 1.0"},
	}
	c, ev := newTestController(t, twoAxisConfig(model.DMC4000), cli)

	if err := c.Startup(); err != nil {
		t.Fatalf("Startup err=%v", err)
	}
	if !ev.has("warning: controller model mismatch") {
		t.Fatalf("expected model mismatch warning, got %v", ev.messages)
	}
	if !ev.has("warning: startup") {
		t.Fatalf("expected aggregated startup warning, got %v", ev.messages)
	}
}

func TestStartup_DownloadsAndRunsProgram(t *testing.T) {
	cfg := twoAxisConfig(model.DMC4000)
	cfg.Program = "REM demo\r\n#AUTO\r\nSB 1\r\nEN\r\n"

	cli := &fakeClient{
		doubles: map[string]float64{"MG _CN0": -1, "MG _CN1": -1},
		replies: map[string]string{"\x12\x16": "DMC4143 Rev 1.3h", "LD ?,,?": "0, 0"},
	}
	c, ev := newTestController(t, cfg, cli)

	if err := c.Startup(); err != nil {
		t.Fatalf("Startup err=%v", err)
	}
	if want := []string{"#AUTO\rSB 1\rEN"}; !reflect.DeepEqual(cli.programs, want) {
		t.Fatalf("downloaded %q want %q", cli.programs, want)
	}
	got := cli.take()
	if len(got) < 2 || got[0] != "DL" || got[1] != "XQ" {
		t.Fatalf("expected DL then XQ before defaults, got %q", got)
	}
	if ev.has("warning: startup") {
		t.Fatalf("unexpected startup warning: %v", ev.messages)
	}
}

func TestStartup_ProgramDownloadFailureSkipsExecute(t *testing.T) {
	cfg := twoAxisConfig(model.DMC4000)
	cfg.Program = "#AUTO\nEN\n"

	cli := &fakeClient{
		downloadErr: errors.New("dl rejected"),
		doubles:     map[string]float64{"MG _CN0": -1, "MG _CN1": -1},
		replies:     map[string]string{"\x12\x16": "DMC4143 Rev 1.3h", "LD ?,,?": "0, 0"},
	}
	c, ev := newTestController(t, cfg, cli)

	if err := c.Startup(); err != nil {
		t.Fatalf("Startup err=%v", err)
	}
	for _, cmd := range cli.take() {
		if cmd == "XQ" {
			t.Fatalf("XQ sent after failed download")
		}
	}
	if !ev.has("warning: startup: error downloading program") {
		t.Fatalf("expected download warning, got %v", ev.messages)
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	cfg := twoAxisConfig(model.DMC4000)
	cfg.Axes[1].Channel = 0
	if _, err := New(cfg, &fakeClient{}, nil); err == nil {
		t.Fatalf("expected duplicate channel error")
	}

	cfg = twoAxisConfig(1234)
	if _, err := New(cfg, &fakeClient{}, nil); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}

	cfg = twoAxisConfig(model.DMC4000)
	cfg.Axes[0].HomePos = 20000
	if _, err := New(cfg, &fakeClient{}, nil); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange for home position, got %v", err)
	}
}
