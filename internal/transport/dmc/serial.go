// internal/transport/dmc/serial.go
package dmc

import (
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/tamzrod/dmc-bridge/internal/command"
)

// SerialConfig describes an RS-232 connection.
type SerialConfig struct {
	Device     string
	BaudRate   int
	Timeout    time.Duration
	RecordSize int
}

// OpenSerial opens a command connection on a serial port and turns echo off.
func OpenSerial(cfg SerialConfig) (*Conn, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("dmc: open %s: %w", cfg.Device, err)
	}

	if cfg.Timeout > 0 {
		if err := port.SetReadTimeout(cfg.Timeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("dmc: set read timeout: %w", err)
		}
	}

	// Drop anything left over from a previous session.
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("dmc: flush input: %w", err)
	}

	conn := NewConn(timeoutPort{port}, Options{
		Timeout:    cfg.Timeout,
		HasHeader:  true,
		RecordSize: cfg.RecordSize,
	})

	if err := conn.Command(command.EchoOff); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// timeoutPort reports a read that returned nothing as ErrTimeout.
// serial.Port returns (0, nil) when its read timeout expires.
type timeoutPort struct {
	serial.Port
}

func (p timeoutPort) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	if n == 0 && err == nil {
		return 0, ErrTimeout
	}
	return n, err
}
