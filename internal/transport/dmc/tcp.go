// internal/transport/dmc/tcp.go
package dmc

import (
	"fmt"
	"net"
	"time"
)

// DefaultPort is the controller's telnet command port.
const DefaultPort = "23"

// TCPConfig describes an Ethernet connection.
type TCPConfig struct {
	Endpoint   string // host or host:port
	Timeout    time.Duration
	RecordSize int
}

// DialTCP opens a command connection over TCP.
// Records are assumed to carry a header until SetRecordLayout says otherwise.
func DialTCP(cfg TCPConfig) (*Conn, error) {
	addr := cfg.Endpoint
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, DefaultPort)
	}

	nc, err := net.DialTimeout("tcp", addr, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("dmc: dial %s: %w", addr, err)
	}

	return NewConn(nc, Options{
		Timeout:    cfg.Timeout,
		HasHeader:  true,
		RecordSize: cfg.RecordSize,
	}), nil
}
