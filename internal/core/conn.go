package core

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/utils"
)

// Conn is one client session bound to one transport.
//
// All writes to the transport happen on a single writer goroutine that drains the
// outbound queue, so concurrent senders never interleave partial lines on the wire.
type Conn struct {
	ID     string
	Remote string

	rwc          net.Conn
	log          zerolog.Logger
	writeTimeout time.Duration

	// identity and channel are guarded by Hub.mu.
	identity string
	channel  string

	alive     atomic.Bool
	out       chan proto.Outbound
	done      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

func newConn(rwc net.Conn, queueSize int, writeTimeout time.Duration, logger *zerolog.Logger) *Conn {
	c := &Conn{
		ID:           utils.NewID(),
		Remote:       addrString(rwc.RemoteAddr()),
		rwc:          rwc,
		writeTimeout: writeTimeout,
		out:          make(chan proto.Outbound, queueSize),
		done:         make(chan struct{}),
		closed:       make(chan struct{}),
	}
	c.alive.Store(true)
	c.log = logger.With().Str("conn_id", c.ID).Str("remote", c.Remote).Logger()

	go c.writeLoop()
	return c
}

// Alive reports whether the connection has neither failed nor been closed.
func (c *Conn) Alive() bool {
	return c.alive.Load()
}

// Send queues msg without blocking. When the queue is full the peer is not keeping up:
// the connection is closed and Send reports false. Other connections are unaffected.
func (c *Conn) Send(msg proto.Outbound) bool {
	if !c.alive.Load() {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.out <- msg:
		return true
	default:
		c.log.Warn().Msg("send queue full, closing slow connection")
		c.Close()
		return false
	}
}

// Close marks the connection dead. The writer flushes what is already queued and then
// releases the transport, which also ends a pending read. Safe to call many times.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.alive.Store(false)
		close(c.done)
	})
}

// Closed is closed after the transport has been released.
func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}

func (c *Conn) writeLoop() {
	defer close(c.closed)
	defer c.rwc.Close()

	for {
		select {
		case msg := <-c.out:
			if err := c.write(msg, c.deadline()); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			return
		}
	}
}

// flush writes what is still queued, bounded by a single write deadline.
func (c *Conn) flush() {
	deadline := c.deadline()
	for {
		select {
		case msg := <-c.out:
			if err := c.write(msg, deadline); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(msg proto.Outbound, deadline time.Time) error {
	line, err := proto.Encode(msg)
	if err != nil {
		c.log.Error().Err(err).Msg("encode outbound")
		return nil
	}
	if err := c.rwc.SetWriteDeadline(deadline); err != nil {
		return err
	}
	_, err = c.rwc.Write(line)
	return err
}

func (c *Conn) deadline() time.Time {
	if c.writeTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.writeTimeout)
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
