// internal/writer/events.go
package writer

import (
	"github.com/tamzrod/dmc-bridge/internal/controller"
	"github.com/tamzrod/dmc-bridge/internal/status"
)

// Fanout delivers controller events to every sink in order.
type Fanout []controller.Events

func (f Fanout) Message(level controller.Level, text string) {
	for _, e := range f {
		e.Message(level, text)
	}
}

func (f Fanout) OperatingState(s status.Snapshot) {
	for _, e := range f {
		e.OperatingState(s)
	}
}
