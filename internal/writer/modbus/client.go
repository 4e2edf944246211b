// internal/writer/modbus/client.go
package modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// maxRegistersPerWrite is the FC 16 quantity limit.
const maxRegistersPerWrite = 123

// ErrAddressRange means a block would run past register 0xFFFF.
var ErrAddressRange = errors.New("writer modbus: block exceeds register address space")

// RegisterClient publishes holding-register blocks to one Modbus TCP server.
// Writes and Close are serialized; the unit ID is set per write.
type RegisterClient struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// Dial connects to the endpoint once. A connection dropped later is
// re-dialed by the handler on the next write.
func Dial(cfg Config) (*RegisterClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("writer modbus: endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout
	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("writer modbus: connect %s: %w", cfg.Endpoint, err)
	}

	return &RegisterClient{
		handler: h,
		client:  modbus.NewClient(h),
	}, nil
}

func (c *RegisterClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

// WriteRegisters writes one block starting at addr, split into FC 16
// requests. The first failing request aborts the rest.
func (c *RegisterClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	spans, err := split(addr, len(regs))
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler.SlaveId = unitID
	for _, s := range spans {
		payload := encode(regs[s.offset : s.offset+s.count])
		if _, err := c.client.WriteMultipleRegisters(s.addr, uint16(s.count), payload); err != nil {
			return fmt.Errorf("writer modbus: write %d@%d: %w", s.count, s.addr, err)
		}
	}
	return nil
}

// ---- helpers ----

type span struct {
	addr   uint16
	offset int
	count  int
}

// split plans the FC 16 requests for n registers at addr.
func split(addr uint16, n int) ([]span, error) {
	if int(addr)+n > 0x10000 {
		return nil, fmt.Errorf("%w: %d registers at %d", ErrAddressRange, n, addr)
	}

	var out []span
	for off := 0; off < n; off += maxRegistersPerWrite {
		count := n - off
		if count > maxRegistersPerWrite {
			count = maxRegistersPerWrite
		}
		out = append(out, span{addr: addr + uint16(off), offset: off, count: count})
	}
	return out, nil
}

// encode packs registers big-endian, as they go on the wire.
func encode(regs []uint16) []byte {
	out := make([]byte, 2*len(regs))
	for i, r := range regs {
		binary.BigEndian.PutUint16(out[2*i:], r)
	}
	return out
}
