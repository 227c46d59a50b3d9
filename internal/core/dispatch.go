package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/wirechat-relay/internal/emoji"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

// dispatch drives c's state machine with one decoded message.
// It reports true when the session must end.
func (h *Hub) dispatch(ctx context.Context, c *Conn, in proto.Inbound) bool {
	switch m := in.(type) {
	case proto.Auth:
		h.handleAuth(ctx, c, m)
	case proto.Join:
		if err := h.JoinChannel(c, m.Channel); err != nil {
			h.replyError(c, err)
		}
	case proto.Leave:
		h.handleLeave(c)
	case proto.Msg:
		h.handleMsg(c, m)
	case proto.Quit:
		c.Send(proto.System{Text: "bye", Code: CodeBye})
		return true
	case proto.Unknown:
		h.replyError(c, unknownType(m.Type))
	default:
		h.replyError(c, unknownType(fmt.Sprintf("%T", in)))
	}
	return false
}

func (h *Hub) handleAuth(ctx context.Context, c *Conn, m proto.Auth) {
	if identity, _ := h.state(c); identity != "" {
		h.replyError(c, coreError(ErrCodeAlreadyAuth, "already authenticated as "+identity))
		return
	}

	var identity string
	switch {
	case m.Token != "":
		if h.opts.Tokens == nil {
			h.replyError(c, ErrInvalidCredentials)
			return
		}
		name, err := h.opts.Tokens.VerifyToken(m.Token)
		if err != nil {
			c.log.Info().Err(err).Msg("token authentication failed")
			h.replyError(c, ErrInvalidCredentials)
			return
		}
		identity = name
	case m.Username == "" || m.Password == "":
		h.replyError(c, ErrCredentialsMissing)
		return
	default:
		if h.opts.Credentials == nil {
			h.replyError(c, ErrAuthUnavailable)
			return
		}
		ok, err := h.opts.Credentials.Authenticate(ctx, m.Username, m.Password)
		if err != nil {
			c.log.Error().Err(err).Str("user", m.Username).Msg("credential lookup failed")
			h.replyError(c, ErrAuthUnavailable)
			return
		}
		if !ok {
			c.log.Info().Str("user", m.Username).Msg("authentication failed")
			h.replyError(c, ErrInvalidCredentials)
			return
		}
		identity = m.Username
	}

	if current, ok := h.setIdentity(c, identity); !ok {
		h.replyError(c, coreError(ErrCodeAlreadyAuth, "already authenticated as "+current))
		return
	}

	reply := proto.System{Text: "authenticated as " + identity, Code: CodeAuthOK}
	if h.opts.Tokens != nil {
		token, err := h.opts.Tokens.IssueToken(identity)
		if err != nil {
			c.log.Warn().Err(err).Msg("issue session token")
		} else {
			reply.Token = token
		}
	}
	c.Send(reply)
	c.log.Info().Str("user", identity).Msg("authenticated")
}

func (h *Hub) handleLeave(c *Conn) {
	if identity, _ := h.state(c); identity == "" {
		h.replyError(c, ErrUnauthenticated)
		return
	}
	name, err := h.LeaveChannel(c)
	if err != nil {
		h.replyError(c, err)
		return
	}
	c.Send(proto.System{Text: "left channel " + name, Code: CodeLeft})
}

func (h *Hub) handleMsg(c *Conn, m proto.Msg) {
	identity, channel := h.state(c)
	switch {
	case identity == "":
		h.replyError(c, ErrUnauthenticated)
		return
	case channel == "":
		h.replyError(c, ErrNotInChannel)
		return
	case m.Channel == "":
		h.replyError(c, ErrChannelRequired)
		return
	case m.Channel != channel:
		h.replyError(c, coreError(ErrCodeNotInChannel, "you are not in channel "+m.Channel))
		return
	case strings.TrimSpace(m.Text) == "":
		h.replyError(c, ErrTextRequired)
		return
	}

	h.Broadcast(channel, proto.Relay{
		Channel: channel,
		From:    identity,
		Text:    emoji.Apply(m.Text),
	}, c)
}

func (h *Hub) replyError(c *Conn, err error) {
	if errors.Is(err, ErrConnClosed) {
		return
	}
	var ce *CoreError
	if !errors.As(err, &ce) {
		c.log.Error().Err(err).Msg("unexpected dispatch error")
		ce = coreError(ErrCodeInternal, "internal error")
	}
	c.Send(proto.System{Text: ce.Message, Code: ce.Code})
}

func unknownType(t string) *CoreError {
	return coreError(ErrCodeUnknownType, fmt.Sprintf("unknown message type %q", t))
}
