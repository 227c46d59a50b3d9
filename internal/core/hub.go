package core

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/emoji"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

const (
	defaultSendQueueSize = 64
	defaultMaxLineBytes  = 64 * 1024

	// AdminPrefix marks notices issued by an operator.
	AdminPrefix = "[ADMIN] "
)

// CredentialStore checks a username and password. The error is reserved for
// lookup failures; a mismatch is reported as false.
type CredentialStore interface {
	Authenticate(ctx context.Context, username, password string) (bool, error)
}

// TokenIssuer mints and verifies session tokens that can replace a password.
type TokenIssuer interface {
	IssueToken(username string) (string, error)
	VerifyToken(token string) (string, error)
}

// Admin is the operator surface of the hub.
type Admin interface {
	// Announce sends an operator notice to every live connection and returns
	// how many connections it was queued for.
	Announce(text string) int
	// Inspect reports channels with their members and the live connection count.
	Inspect() Snapshot
	// Shutdown notifies and closes every connection and stops accepting new ones.
	Shutdown()
}

// Snapshot is the result of Inspect.
type Snapshot struct {
	Channels    []ChannelInfo `json:"channels"`
	Connections int           `json:"connections"`
}

// Options configures a Hub. Zero values fall back to defaults.
type Options struct {
	Credentials    CredentialStore
	Tokens         TokenIssuer
	SendQueueSize  int
	MaxLineBytes   int
	MaxConnections int
	WriteTimeout   time.Duration
	Logger         *zerolog.Logger
}

// Hub owns the live connection set and the channel registry.
type Hub struct {
	opts Options
	log  *zerolog.Logger

	// fanout orders deliveries so that members see broadcasts in the order their
	// recipients were snapshotted. Always acquired before mu.
	fanout sync.Mutex

	mu       sync.Mutex
	conns    map[*Conn]struct{}
	channels map[string]*Channel
	closing  bool

	done         chan struct{}
	shutdownOnce sync.Once
}

var _ Admin = (*Hub)(nil)

// NewHub creates a hub ready to serve connections.
func NewHub(opts Options) *Hub {
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = defaultSendQueueSize
	}
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = defaultMaxLineBytes
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}

	return &Hub{
		opts:     opts,
		log:      opts.Logger,
		conns:    make(map[*Conn]struct{}),
		channels: make(map[string]*Channel),
		done:     make(chan struct{}),
	}
}

// Done is closed once Shutdown has run.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Serve runs the session for one accepted transport and blocks until the
// connection is torn down and its transport released. Cancelling ctx closes the
// connection.
func (h *Hub) Serve(ctx context.Context, rwc net.Conn) {
	c := newConn(rwc, h.opts.SendQueueSize, h.opts.WriteTimeout, h.log)

	if err := h.register(c); err != nil {
		var ce *CoreError
		if errors.As(err, &ce) {
			c.Send(proto.System{Text: ce.Message, Code: ce.Code})
		}
		c.Close()
		<-c.Closed()
		c.log.Info().Err(err).Msg("connection rejected")
		return
	}
	c.log.Info().Msg("client connected")

	// Cancelling ctx ends the session: the writer releases the transport, which
	// unblocks the read.
	stop := context.AfterFunc(ctx, c.Close)
	defer stop()

	err := h.readLoop(ctx, c)
	h.disconnect(c)
	<-c.Closed()

	c.log.Info().AnErr("reason", err).Msg("client disconnected")
}

func (h *Hub) readLoop(ctx context.Context, c *Conn) error {
	scanner := bufio.NewScanner(c.rwc)
	scanner.Buffer(make([]byte, 0, min(4096, h.opts.MaxLineBytes)), h.opts.MaxLineBytes)

	for scanner.Scan() {
		if !c.Alive() {
			return nil
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		in, err := proto.Decode(line)
		if err != nil {
			c.log.Debug().Err(err).Msg("dropping malformed line")
			continue
		}
		if quit := h.dispatch(ctx, c, in); quit {
			return nil
		}
	}
	return scanner.Err()
}

func (h *Hub) register(c *Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closing {
		return ErrHubClosed
	}
	if h.opts.MaxConnections > 0 && len(h.conns) >= h.opts.MaxConnections {
		return ErrServerFull
	}
	h.conns[c] = struct{}{}
	return nil
}

// disconnect removes c from its channel and the live set, announces the departure
// and closes the connection. Calling it for an already removed connection only closes it.
func (h *Hub) disconnect(c *Conn) {
	h.fanout.Lock()

	h.mu.Lock()
	delete(h.conns, c)
	prev := c.channel
	identity := c.identity
	var peers []*Conn
	if prev != "" {
		peers = h.removeLocked(c)
	}
	h.mu.Unlock()

	if prev != "" && identity != "" {
		deliver(peers, departureNotice(prev, identity))
	}
	h.fanout.Unlock()

	c.Close()
}

// setIdentity records a successful login. It fails if c already has an identity.
func (h *Hub) setIdentity(c *Conn, identity string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.identity != "" {
		return c.identity, false
	}
	c.identity = identity
	return identity, true
}

// state returns c's identity and current channel.
func (h *Hub) state(c *Conn) (identity, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return c.identity, c.channel
}

// Announce implements Admin.
func (h *Hub) Announce(text string) int {
	n := h.BroadcastAll(proto.System{Text: AdminPrefix + emoji.Apply(text), Code: CodeAnnouncement})
	h.log.Info().Str("text", text).Int("recipients", n).Msg("announcement sent")
	return n
}

// Inspect implements Admin.
func (h *Hub) Inspect() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	return Snapshot{
		Channels:    h.listChannelsLocked(),
		Connections: len(h.conns),
	}
}

// Shutdown implements Admin. Every live connection receives a notice that is flushed
// before its transport closes; the live set and registry end empty and Done is closed.
// Only the first call has an effect.
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		h.fanout.Lock()

		h.mu.Lock()
		h.closing = true
		conns := make([]*Conn, 0, len(h.conns))
		for c := range h.conns {
			c.channel = ""
			conns = append(conns, c)
		}
		h.conns = make(map[*Conn]struct{})
		h.channels = make(map[string]*Channel)
		h.mu.Unlock()

		notice := proto.System{Text: AdminPrefix + emoji.Apply(ErrHubClosed.Message), Code: ErrCodeShutdown}
		for _, c := range conns {
			c.Send(notice)
			c.Close()
		}
		h.fanout.Unlock()

		close(h.done)
		h.log.Info().Int("connections", len(conns)).Msg("hub shut down")
	})
}
