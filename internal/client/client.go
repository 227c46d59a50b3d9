// Package client speaks the relay protocol from the user side, over TCP or the
// WebSocket gateway.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

var (
	// ErrClosed is returned once the connection to the server is gone.
	ErrClosed = errors.New("connection closed")
	// ErrNoChannel is returned by Say before a channel was joined.
	ErrNoChannel = errors.New("not in a channel")
	// ErrLoginPending is returned when a second login starts before the first one finished.
	ErrLoginPending = errors.New("login already in progress")
)

// ServerError is a rejection reported by the server in a system message.
type ServerError struct {
	Code string
	Text string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Text)
}

// isLoginReply reports whether ev answers an auth line. bad_request and
// internal_error are shared with other requests, so those match on the text too.
func isLoginReply(ev proto.Event) bool {
	switch ev.Code {
	case core.CodeAuthOK, core.ErrCodeInvalidCredentials, core.ErrCodeAlreadyAuth:
		return true
	case core.ErrCodeBadRequest:
		return ev.Text == core.ErrCredentialsMissing.Message
	case core.ErrCodeInternal:
		return ev.Text == core.ErrAuthUnavailable.Message
	}
	return false
}

// Client is one session with the relay. Events delivers everything the server sends
// except replies consumed by Login.
type Client struct {
	conn net.Conn
	log  *zerolog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  chan proto.Event
	channel  string
	identity string

	events chan proto.Event
	done   chan struct{}
}

// Dial connects to addr. A ws:// or wss:// URL goes through the WebSocket gateway,
// anything else is a TCP host:port.
func Dial(ctx context.Context, addr string, logger *zerolog.Logger) (*Client, error) {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		ws, _, err := websocket.Dial(ctx, addr, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		return New(websocket.NetConn(context.Background(), ws, websocket.MessageText), logger), nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn, logger), nil
}

// New wraps an established connection and starts reading from it.
func New(conn net.Conn, logger *zerolog.Logger) *Client {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	c := &Client{
		conn:   conn,
		log:    logger,
		events: make(chan proto.Event, 256),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Events is closed when the connection ends.
func (c *Client) Events() <-chan proto.Event {
	return c.events
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Channel returns the channel the server last confirmed.
func (c *Client) Channel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// Identity returns the name the server authenticated this session as.
func (c *Client) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Login authenticates with a password and returns the session token, which is
// empty when the server does not issue tokens.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	return c.login(ctx, proto.Request{Type: proto.TypeAuth, Username: username, Password: password})
}

// LoginToken authenticates with a token from an earlier Login.
func (c *Client) LoginToken(ctx context.Context, token string) (string, error) {
	return c.login(ctx, proto.Request{Type: proto.TypeAuth, Token: token})
}

func (c *Client) login(ctx context.Context, req proto.Request) (string, error) {
	reply := make(chan proto.Event, 1)

	c.mu.Lock()
	if c.pending != nil {
		c.mu.Unlock()
		return "", ErrLoginPending
	}
	c.pending = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.pending = nil
		c.mu.Unlock()
	}()

	if err := c.write(req); err != nil {
		return "", err
	}

	select {
	case ev := <-reply:
		if ev.Code != core.CodeAuthOK {
			return "", &ServerError{Code: ev.Code, Text: ev.Text}
		}
		c.mu.Lock()
		c.identity = strings.TrimPrefix(ev.Text, "authenticated as ")
		c.mu.Unlock()
		return ev.Token, nil
	case <-c.done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Join asks to switch to channel. The confirmation arrives on Events.
func (c *Client) Join(channel string) error {
	return c.write(proto.Request{Type: proto.TypeJoin, Channel: channel})
}

// Leave asks to leave the current channel.
func (c *Client) Leave() error {
	return c.write(proto.Request{Type: proto.TypeLeave})
}

// Say sends text to the current channel.
func (c *Client) Say(text string) error {
	channel := c.Channel()
	if channel == "" {
		return ErrNoChannel
	}
	return c.write(proto.Request{Type: proto.TypeMsg, Channel: channel, Text: text})
}

// Quit asks the server to end the session. The server answers and closes.
func (c *Client) Quit() error {
	return c.write(proto.Request{Type: proto.TypeQuit})
}

// Close drops the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) write(req proto.Request) error {
	line, err := proto.EncodeRequest(req)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if _, err := c.conn.Write(line); err != nil {
		return fmt.Errorf("send %s: %w", req.Type, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.events)
	defer close(c.done)

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		ev, err := proto.DecodeEvent(scanner.Bytes())
		if err != nil {
			c.log.Debug().Err(err).Msg("dropping malformed server line")
			continue
		}
		if c.route(ev) {
			continue
		}
		c.events <- ev
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.log.Debug().Err(err).Msg("read from server")
	}
}

// route updates local state from ev and reports whether ev was consumed by a
// pending login.
func (c *Client) route(ev proto.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ev.Type != proto.TypeSystem {
		return false
	}
	switch ev.Code {
	case core.CodeJoined:
		c.channel = strings.TrimPrefix(ev.Text, "joined channel ")
	case core.CodeLeft, core.ErrCodeShutdown:
		c.channel = ""
	}

	if c.pending != nil && isLoginReply(ev) {
		c.pending <- ev
		c.pending = nil
		return true
	}
	return false
}
