// internal/command/command.go
package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tamzrod/dmc-bridge/internal/axismap"
)

// Verbs. Prefixes used with Axes/Values/Query carry their trailing space.
const (
	PowerOn          = "SH "
	PowerOff         = "MO "
	Stop             = "ST "
	WaitMotionDone   = "AM "
	Begin            = "BG "
	PositionAbsolute = "PA "
	PositionRelative = "PR "
	Jog              = "JG "
	Speed            = "SP "
	Accel            = "AC "
	Decel            = "DC "
	Home             = "HM "
	FindEdge         = "FE "
	FindIndex        = "FI "
	DefinePosition   = "DP "
	LimitDisable     = "LD "
	UserData         = "ZA "

	AbortProgram = "AB"
	AbortMotion  = "AB 1"
	Execute      = "XQ"
	Download     = "DL"

	// ProgramEnd terminates the program text sent after DL.
	ProgramEnd = `\`

	LimitPolarityQuery = "MG _CN0"
	HomePolarityQuery  = "MG _CN1"
	RevisionQuery      = "\x12\x16" // ^R^V
	DataRecordQuery    = "QR"
	EchoOff            = "EO 0"
)

// Axes renders a verb followed by channel letters, e.g. "BG ACD".
func Axes(verb, letters string) string {
	return verb + letters
}

// Values renders a verb followed by one comma-separated field per channel
// 0..maxExclusive-1. Absent channels get an empty field: "PA 10,,20,30".
// A missing or extra comma would shift every following value to the wrong channel.
func Values(verb string, values map[int]int32, maxExclusive int) string {
	var b strings.Builder
	b.WriteString(verb)

	for ch := 0; ch < maxExclusive; ch++ {
		if ch > 0 {
			b.WriteByte(',')
		}
		if v, ok := values[ch]; ok {
			b.WriteString(strconv.FormatInt(int64(v), 10))
		}
	}

	return b.String()
}

// Query renders a positional query, "?" on set channels: "LD ?,,?".
func Query(verb string, mask axismap.Mask, maxExclusive int) string {
	var b strings.Builder
	b.WriteString(verb)

	for ch := 0; ch < maxExclusive && ch < axismap.MaxChannels; ch++ {
		if ch > 0 {
			b.WriteByte(',')
		}
		if mask[ch] {
			b.WriteByte('?')
		}
	}

	return b.String()
}

// Assign renders a single-channel assignment: Assign("DP", 'A', 1200) = "DPA=1200".
func Assign(verb string, letter byte, value int32) string {
	return strings.TrimSpace(verb) + string(letter) + "=" + strconv.FormatInt(int64(value), 10)
}

// Single renders a verb addressing one channel: Single("AM ", 'B') = "AM B".
func Single(verb string, letter byte) string {
	return verb + string(letter)
}

// AnalogRangeQuery asks for the analog input range setting of one channel.
func AnalogRangeQuery(channel int) string {
	return "MG _AQ" + strconv.Itoa(channel)
}

// ParseValues parses a comma-separated numeric reply (" 0, 2, 1") into n values,
// in reply order. Empty fields parse as zero.
func ParseValues(reply string, n int) ([]int32, error) {
	fields := strings.Split(strings.TrimSpace(reply), ",")
	out := make([]int32, n)

	for i := 0; i < n && i < len(fields); i++ {
		f := strings.TrimSpace(fields[i])
		if f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = int32(v)
	}

	if len(fields) < n {
		return out, fmt.Errorf("command: reply has %d fields, want %d", len(fields), n)
	}
	return out, nil
}

// Program prepares DMC program source for download: CRLF or LF line
// endings become "\r", blank lines and REM lines are dropped.
func Program(src string) (string, error) {
	var lines []string
	for n, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || strings.HasPrefix(line, "REM") {
			continue
		}
		if strings.Contains(line, ProgramEnd) {
			return "", fmt.Errorf("command: program line %d contains %q", n+1, ProgramEnd)
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("command: program is empty")
	}
	return strings.Join(lines, "\r"), nil
}
