// internal/transport/dmc/conn.go
package dmc

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tamzrod/dmc-bridge/internal/command"
)

// Reply terminators.
const (
	replyOK       byte = ':'
	replyRejected byte = '?'
)

// recordHeaderSize is the header carrying the record length in bytes 2-3.
const recordHeaderSize = 4

// Options configures a Conn.
type Options struct {
	Timeout time.Duration

	// HasHeader selects how the record length is found.
	// Without a header, RecordSize must be set.
	HasHeader  bool
	RecordSize int
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Conn speaks the DMC ASCII protocol over any byte stream.
// Requests are serialized: one command, one reply.
type Conn struct {
	mu     sync.Mutex
	rwc    io.ReadWriteCloser
	r      *bufio.Reader
	closed bool

	timeout    time.Duration
	hasHeader  bool
	recordSize int
}

// NewConn wraps an open stream.
func NewConn(rwc io.ReadWriteCloser, opts Options) *Conn {
	return &Conn{
		rwc:        rwc,
		r:          bufio.NewReader(rwc),
		timeout:    opts.Timeout,
		hasHeader:  opts.HasHeader,
		recordSize: opts.RecordSize,
	}
}

// SetRecordLayout tells the connection whether records carry a header.
func (c *Conn) SetRecordLayout(hasHeader bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hasHeader = hasHeader
}

// Close closes the stream. Later calls fail with ErrClosed.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.rwc.Close()
}

// ---- controller.Client ----

// Command sends one command and waits for ':'.
func (c *Conn) Command(cmd string) error {
	_, err := c.roundTrip(cmd)
	return err
}

// CommandReply sends one command and returns the text before ':'.
func (c *Conn) CommandReply(cmd string) (string, error) {
	reply, err := c.roundTrip(cmd)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// QueryDouble sends a query such as "MG _CN0" and parses a number.
func (c *Conn) QueryDouble(cmd string) (float64, error) {
	reply, err := c.CommandReply(cmd)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return 0, &CommandError{Cmd: cmd, Err: fmt.Errorf("parse %q: %w", reply, err)}
	}
	return v, nil
}

// QueryInt is QueryDouble truncated to an int.
func (c *Conn) QueryInt(cmd string) (int, error) {
	v, err := c.QueryDouble(cmd)
	return int(v), err
}

// Frame fetches one binary data record with QR.
func (c *Conn) Frame() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmd := command.DataRecordQuery
	if err := c.begin(cmd); err != nil {
		return nil, err
	}

	rec, err := c.readRecord()
	if err != nil {
		c.resync()
		return nil, &CommandError{Cmd: cmd, Err: err}
	}
	return rec, nil
}

// Download sends a prepared program with DL. The program text follows the
// DL line and ends with the terminator; the controller answers once.
func (c *Conn) Download(program string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmd := command.Download
	if err := c.begin(cmd); err != nil {
		return err
	}
	if _, err := io.WriteString(c.rwc, program+"\r"+command.ProgramEnd); err != nil {
		c.resync()
		return &CommandError{Cmd: cmd, Err: err}
	}

	if _, err := c.readReply(); err != nil {
		if err != ErrRejected {
			c.resync()
		}
		return &CommandError{Cmd: cmd, Err: err}
	}
	return nil
}

// ---- internals ----

func (c *Conn) roundTrip(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.begin(cmd); err != nil {
		return "", err
	}

	reply, err := c.readReply()
	if err != nil {
		if err != ErrRejected {
			c.resync()
		}
		return "", &CommandError{Cmd: cmd, Err: err}
	}
	return reply, nil
}

// begin arms the deadline and writes the command line. Caller holds mu.
func (c *Conn) begin(cmd string) error {
	if c.closed {
		return &CommandError{Cmd: cmd, Err: ErrClosed}
	}

	if d, ok := c.rwc.(deadliner); ok && c.timeout > 0 {
		_ = d.SetDeadline(time.Now().Add(c.timeout))
	}

	if _, err := io.WriteString(c.rwc, cmd+"\r"); err != nil {
		return &CommandError{Cmd: cmd, Err: err}
	}
	return nil
}

func (c *Conn) readReply() (string, error) {
	var b strings.Builder
	for {
		ch, err := c.r.ReadByte()
		if err != nil {
			return "", err
		}
		switch ch {
		case replyOK:
			return b.String(), nil
		case replyRejected:
			return "", ErrRejected
		}
		b.WriteByte(ch)
	}
}

func (c *Conn) readRecord() ([]byte, error) {
	var rec []byte

	if c.hasHeader {
		hdr := make([]byte, recordHeaderSize)
		if _, err := io.ReadFull(c.r, hdr); err != nil {
			return nil, err
		}
		size := int(binary.LittleEndian.Uint16(hdr[2:4]))
		if size < recordHeaderSize {
			return nil, fmt.Errorf("%w: header size %d", ErrBadRecord, size)
		}
		rec = make([]byte, size)
		copy(rec, hdr)
		if _, err := io.ReadFull(c.r, rec[recordHeaderSize:]); err != nil {
			return nil, err
		}
	} else {
		if c.recordSize <= 0 {
			return nil, fmt.Errorf("%w: record size unknown for headerless model", ErrBadRecord)
		}
		rec = make([]byte, c.recordSize)
		if _, err := io.ReadFull(c.r, rec); err != nil {
			return nil, err
		}
	}

	term, err := c.r.ReadByte()
	if err != nil {
		return nil, err
	}
	if term != replyOK {
		return nil, fmt.Errorf("%w: terminator 0x%02x", ErrBadRecord, term)
	}
	return rec, nil
}

// resync drops buffered bytes after a failed exchange.
func (c *Conn) resync() {
	c.r.Reset(c.rwc)
}
