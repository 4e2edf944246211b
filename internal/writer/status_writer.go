// internal/writer/status_writer.go
package writer

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/tamzrod/dmc-bridge/internal/status"
)

// StatusWriter is the delivery-only contract for controller status.
// It receives a snapshot and writes it verbatim.
type StatusWriter interface {
	WriteStatus(s status.Snapshot, errorCode uint8, sample uint16) error
}

var _ StatusWriter = (*controllerStatusWriter)(nil)

// controllerStatusWriter writes the status block, then only changed slots.
type controllerStatusWriter struct {
	plan Plan
	cli  endpointClient

	needFull bool
	last     []uint16
	nameRegs []uint16
}

func newControllerStatusWriter(plan Plan, cli endpointClient) *controllerStatusWriter {
	return &controllerStatusWriter{
		plan:     plan,
		cli:      cli,
		needFull: true, // full re-assert on first write
		nameRegs: encodeNameRegs(plan.Controller),
	}
}

// WriteStatus delivers the live status slots.
// On any write failure, the next call re-asserts the full block.
func (sw *controllerStatusWriter) WriteStatus(s status.Snapshot, errorCode uint8, sample uint16) error {
	if sw.cli == nil {
		return fmt.Errorf("status writer: missing client for endpoint %s", sw.plan.Endpoint)
	}

	live := status.Encode(s, errorCode, sample)

	// ------------------------------------------------------------
	// Full block write (identity re-assert)
	// ------------------------------------------------------------
	if sw.needFull {
		if err := sw.cli.WriteRegisters(
			sw.plan.UnitID,
			sw.plan.StatusAddress,
			sw.fullBlockRegs(live),
		); err != nil {
			return fmt.Errorf("status writer: full block write failed: %w", err)
		}

		sw.needFull = false
		sw.last = live
		return nil
	}

	var errs error

	for slot := 0; slot < status.SlotReservedStart; slot++ {
		if sw.last[slot] == live[slot] {
			continue
		}
		if err := sw.cli.WriteRegisters(
			sw.plan.UnitID,
			sw.plan.StatusAddress+uint16(slot),
			[]uint16{live[slot]},
		); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("slot%d write failed: %w", slot, err))
			continue
		}
		sw.last[slot] = live[slot]
	}

	if errs != nil {
		// Any partial failure introduces doubt: re-assert on next call.
		sw.needFull = true
		return fmt.Errorf("status writer: %w", errs)
	}

	return nil
}

func (sw *controllerStatusWriter) fullBlockRegs(live []uint16) []uint16 {
	regs := make([]uint16, status.SlotsPerController)
	copy(regs, live)

	// Reserved slots are left as zero.
	// The name always lives at the end of the block.
	for i := 0; i < status.SlotNameSlots && i < len(sw.nameRegs); i++ {
		regs[status.SlotNameStart+i] = sw.nameRegs[i]
	}

	return regs
}

// encodeNameRegs packs up to 16 ASCII characters into 8 uint16 registers.
// Each register stores two ASCII bytes in big-endian order.
func encodeNameRegs(name string) []uint16 {
	out := make([]uint16, status.SlotNameSlots)

	b := []byte(name)
	if len(b) > status.NameMaxChars {
		b = b[:status.NameMaxChars]
	}

	// sanitize to printable ASCII
	for i := 0; i < len(b); i++ {
		if b[i] < 0x20 || b[i] > 0x7E {
			b[i] = '?'
		}
	}

	for i := 0; i < status.NameMaxChars; i += 2 {
		var hi, lo byte
		if i < len(b) {
			hi = b[i]
		}
		if i+1 < len(b) {
			lo = b[i+1]
		}
		out[i/2] = uint16(hi)<<8 | uint16(lo)
	}

	return out
}
