// internal/writer/writer.go
package writer

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/tamzrod/dmc-bridge/internal/status"
)

// endpointClient is the exact contract the writers use.
// IMPORTANT: There must be NO other version of this interface anywhere.
type endpointClient interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

type writerImpl struct {
	plan   Plan
	cli    endpointClient
	status *controllerStatusWriter
}

// New builds a writer publishing axis blocks every tick and the status
// block on change.
func New(plan Plan, cli endpointClient) Writer {
	return &writerImpl{
		plan:   plan,
		cli:    cli,
		status: newControllerStatusWriter(plan, cli),
	}
}

func (w *writerImpl) Write(rep status.Report) error {
	var errs error

	// ------------------------------------------------------------
	// AXIS BLOCKS (every successful tick)
	// ------------------------------------------------------------

	// A failed tick leaves the last published axis values in place.
	if rep.Err == nil && len(rep.Axes) > 0 {
		if err := w.cli.WriteRegisters(
			w.plan.UnitID,
			w.plan.AxisAddress,
			status.EncodeAxes(rep.Axes),
		); err != nil {
			errs = multierr.Append(errs, fmt.Errorf(
				"writer: axis blocks ep=%s unit=%d addr=%d: %w",
				w.plan.Endpoint, w.plan.UnitID, w.plan.AxisAddress, err,
			))
		}
	}

	// ------------------------------------------------------------
	// STATUS BLOCK (edge-triggered)
	// ------------------------------------------------------------

	errs = multierr.Append(errs, w.status.WriteStatus(rep.State, rep.ErrorCode, rep.SampleNumber))

	return errs
}
