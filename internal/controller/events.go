// internal/controller/events.go
package controller

import (
	"log"

	"github.com/tamzrod/dmc-bridge/internal/status"
)

// Level of an operator message.
type Level int

const (
	LevelStatus Level = iota
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "status"
	}
}

// Events receives everything the controller announces.
// Called from the cycle goroutine; implementations must not block.
type Events interface {
	Message(level Level, text string)
	OperatingState(s status.Snapshot)
}

// LogEvents writes events to the standard logger.
type LogEvents struct {
	Name string
}

func (e LogEvents) Message(level Level, text string) {
	log.Printf("%s (controller=%s): %s", level, e.Name, text)
}

func (e LogEvents) OperatingState(s status.Snapshot) {
	log.Printf("operating state %s busy=%t homed=%t estop=%t (controller=%s)",
		s.State, s.Busy, s.Homed, s.EStop, e.Name)
}
