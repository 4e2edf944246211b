// internal/writer/types.go
package writer

import (
	"time"

	"github.com/tamzrod/dmc-bridge/internal/status"
)

// Plan is the fully-built publication plan for one controller.
type Plan struct {
	Controller string

	Endpoint string
	UnitID   uint8
	Timeout  time.Duration

	// StatusAddress is the first register of the status block.
	StatusAddress uint16

	// AxisAddress is the first register of the axis blocks.
	AxisAddress uint16
}

// Writer publishes control cycle reports into register memory.
type Writer interface {
	Write(rep status.Report) error
}
