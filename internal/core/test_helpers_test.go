package core

import (
	"bufio"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

const waitTimeout = 2 * time.Second

type fakeCredentials map[string]string

func (f fakeCredentials) Authenticate(_ context.Context, username, password string) (bool, error) {
	pw, ok := f[username]
	return ok && pw == password, nil
}

type brokenCredentials struct{}

func (brokenCredentials) Authenticate(context.Context, string, string) (bool, error) {
	return false, errors.New("database is locked")
}

// fakeTokens accepts tokens of the form "token-<name>".
type fakeTokens struct{}

func (fakeTokens) IssueToken(username string) (string, error) {
	return "token-" + username, nil
}

func (fakeTokens) VerifyToken(token string) (string, error) {
	if len(token) > len("token-") && token[:len("token-")] == "token-" {
		return token[len("token-"):], nil
	}
	return "", errors.New("bad token")
}

func testCredentials() fakeCredentials {
	return fakeCredentials{
		"alice": "1234",
		"bob":   "4567",
		"carol": "7890",
	}
}

func newTestHub(t *testing.T, opts Options) *Hub {
	t.Helper()

	if opts.Credentials == nil {
		opts.Credentials = testCredentials()
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = time.Second
	}
	h := NewHub(opts)
	t.Cleanup(h.Shutdown)
	return h
}

// peer is the client end of a piped connection served by a Hub.
type peer struct {
	t      *testing.T
	conn   net.Conn
	events chan proto.Event
	eof    chan struct{}
	served chan struct{}
}

func dial(t *testing.T, h *Hub) *peer {
	t.Helper()

	serverSide, clientSide := net.Pipe()
	p := &peer{
		t:      t,
		conn:   clientSide,
		events: make(chan proto.Event, 256),
		eof:    make(chan struct{}),
		served: make(chan struct{}),
	}

	go func() {
		defer close(p.served)
		h.Serve(context.Background(), serverSide)
	}()
	go func() {
		defer close(p.eof)
		scanner := bufio.NewScanner(clientSide)
		for scanner.Scan() {
			ev, err := proto.DecodeEvent(scanner.Bytes())
			if err != nil {
				continue
			}
			p.events <- ev
		}
	}()

	t.Cleanup(func() {
		_ = clientSide.Close()
		select {
		case <-p.served:
		case <-time.After(waitTimeout):
			t.Errorf("session did not terminate")
		}
	})
	return p
}

func (p *peer) sendRaw(line string) {
	p.t.Helper()

	_ = p.conn.SetWriteDeadline(time.Now().Add(waitTimeout))
	if _, err := p.conn.Write([]byte(line)); err != nil {
		p.t.Fatalf("write %q: %v", line, err)
	}
}

func (p *peer) send(req proto.Request) {
	p.t.Helper()

	line, err := proto.EncodeRequest(req)
	if err != nil {
		p.t.Fatalf("encode request: %v", err)
	}
	p.sendRaw(string(line))
}

func (p *peer) next() proto.Event {
	p.t.Helper()

	select {
	case ev := <-p.events:
		return ev
	case <-time.After(waitTimeout):
		p.t.Fatalf("no event received")
		return proto.Event{}
	}
}

func (p *peer) expect(code string) proto.Event {
	p.t.Helper()

	ev := p.next()
	if ev.Type != proto.TypeSystem || ev.Code != code {
		p.t.Fatalf("expected system %q, got %+v", code, ev)
	}
	return ev
}

func (p *peer) expectRelay(channel, from, text string) {
	p.t.Helper()

	ev := p.next()
	if ev.Type != proto.TypeMsg || ev.Channel != channel || ev.From != from || ev.Text != text {
		p.t.Fatalf("expected msg %s/%s/%q, got %+v", channel, from, text, ev)
	}
}

func (p *peer) expectSilence(d time.Duration) {
	p.t.Helper()

	select {
	case ev := <-p.events:
		p.t.Fatalf("expected no event, got %+v", ev)
	case <-time.After(d):
	}
}

func (p *peer) waitEOF() {
	p.t.Helper()

	select {
	case <-p.eof:
	case <-time.After(waitTimeout):
		p.t.Fatalf("connection was not closed")
	}
}

func (p *peer) login(user, password string) {
	p.t.Helper()

	p.send(proto.Request{Type: proto.TypeAuth, Username: user, Password: password})
	p.expect(CodeAuthOK)
}

func (p *peer) join(channel string) {
	p.t.Helper()

	p.send(proto.Request{Type: proto.TypeJoin, Channel: channel})
	p.expect(CodeJoined)
}

func (p *peer) say(channel, text string) {
	p.t.Helper()

	p.send(proto.Request{Type: proto.TypeMsg, Channel: channel, Text: text})
}

// member is a connection registered directly with the hub, bypassing the read loop.
type member struct {
	conn   *Conn
	client net.Conn
	events chan proto.Event
}

func newMember(t *testing.T, h *Hub, identity string) *member {
	t.Helper()

	serverSide, clientSide := net.Pipe()
	m := &member{
		conn:   newConn(serverSide, h.opts.SendQueueSize, h.opts.WriteTimeout, h.log),
		client: clientSide,
		events: make(chan proto.Event, 1024),
	}
	if err := h.register(m.conn); err != nil {
		t.Fatalf("register: %v", err)
	}
	if identity != "" {
		h.setIdentity(m.conn, identity)
	}

	go func() {
		scanner := bufio.NewScanner(clientSide)
		for scanner.Scan() {
			if ev, err := proto.DecodeEvent(scanner.Bytes()); err == nil {
				m.events <- ev
			}
		}
	}()

	t.Cleanup(func() {
		m.conn.Close()
		_ = clientSide.Close()
	})
	return m
}

func (m *member) next(t *testing.T) proto.Event {
	t.Helper()

	select {
	case ev := <-m.events:
		return ev
	case <-time.After(waitTimeout):
		t.Fatalf("no event received")
		return proto.Event{}
	}
}

func (m *member) drain() []proto.Event {
	var out []proto.Event
	for {
		select {
		case ev := <-m.events:
			out = append(out, ev)
		case <-time.After(100 * time.Millisecond):
			return out
		}
	}
}

// checkInvariants verifies that membership and conn.channel agree in both
// directions, that no connection is in two channels and that no channel is empty.
func checkInvariants(t *testing.T, h *Hub) {
	t.Helper()

	h.mu.Lock()
	defer h.mu.Unlock()

	seen := make(map[*Conn]string)
	for name, ch := range h.channels {
		if ch.Name != name {
			t.Fatalf("channel %q registered under %q", ch.Name, name)
		}
		if ch.empty() {
			t.Fatalf("empty channel %q kept in registry", name)
		}
		for c := range ch.members {
			if prev, dup := seen[c]; dup {
				t.Fatalf("connection %s in both %q and %q", c.ID, prev, name)
			}
			seen[c] = name
			if c.channel != name {
				t.Fatalf("member of %q has channel %q", name, c.channel)
			}
			if _, live := h.conns[c]; !live {
				t.Fatalf("member of %q is not live", name)
			}
		}
	}
	for c := range h.conns {
		if c.channel != "" && seen[c] != c.channel {
			t.Fatalf("connection with channel %q is not a member of it", c.channel)
		}
	}
}
