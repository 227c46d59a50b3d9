package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned by Decode for lines that are not a JSON object.
var ErrMalformed = errors.New("malformed message")

const (
	TypeAuth   = "auth"
	TypeJoin   = "join"
	TypeLeave  = "leave"
	TypeMsg    = "msg"
	TypeQuit   = "quit"
	TypeSystem = "system"
)

// wire is the flat JSON shape shared by every line in both directions.
// Fields that do not belong to a message type are ignored.
type wire struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
	Channel  string `json:"channel,omitempty"`
	From     string `json:"from,omitempty"`
	Text     string `json:"text,omitempty"`
	Code     string `json:"code,omitempty"`
}

// Inbound is a decoded client-to-server message. The concrete types are
// Auth, Join, Leave, Msg, Quit and Unknown.
type Inbound interface {
	inbound()
}

// Auth authenticates the connection with a password or a session token.
type Auth struct {
	Username string
	Password string
	Token    string
}

// Join switches the connection into a channel.
type Join struct {
	Channel string
}

// Leave exits the current channel.
type Leave struct{}

// Msg sends text to the current channel.
type Msg struct {
	Channel string
	Text    string
}

// Quit ends the session.
type Quit struct{}

// Unknown carries any type the server does not understand, including an empty one.
type Unknown struct {
	Type string
}

func (Auth) inbound()    {}
func (Join) inbound()    {}
func (Leave) inbound()   {}
func (Msg) inbound()     {}
func (Quit) inbound()    {}
func (Unknown) inbound() {}

// Decode parses one protocol line.
func Decode(line []byte) (Inbound, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return nil, ErrMalformed
	}

	var w wire
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch w.Type {
	case TypeAuth:
		return Auth{Username: w.Username, Password: w.Password, Token: w.Token}, nil
	case TypeJoin:
		return Join{Channel: w.Channel}, nil
	case TypeLeave:
		return Leave{}, nil
	case TypeMsg:
		return Msg{Channel: w.Channel, Text: w.Text}, nil
	case TypeQuit:
		return Quit{}, nil
	default:
		return Unknown{Type: w.Type}, nil
	}
}

// Outbound is a server-to-client message: System or Relay.
type Outbound interface {
	toWire() wire
}

// System is an informational, error or status notice. Code is a machine readable
// classification; Token is only set on a successful login when tokens are enabled.
type System struct {
	Text  string
	Code  string
	Token string
}

// Relay is a channel message forwarded from another member.
type Relay struct {
	Channel string
	From    string
	Text    string
}

func (m System) toWire() wire {
	return wire{Type: TypeSystem, Text: m.Text, Code: m.Code, Token: m.Token}
}

func (m Relay) toWire() wire {
	return wire{Type: TypeMsg, Channel: m.Channel, From: m.From, Text: m.Text}
}

// Encode renders an outbound message as a single newline-terminated line.
func Encode(msg Outbound) ([]byte, error) {
	return encodeWire(msg.toWire())
}

// Request is a client-side message builder used by tools that speak the protocol.
type Request struct {
	Type     string
	Username string
	Password string
	Token    string
	Channel  string
	Text     string
}

// EncodeRequest renders a client-to-server message as a newline-terminated line.
func EncodeRequest(req Request) ([]byte, error) {
	return encodeWire(wire{
		Type:     req.Type,
		Username: req.Username,
		Password: req.Password,
		Token:    req.Token,
		Channel:  req.Channel,
		Text:     req.Text,
	})
}

// Event is a server-to-client line as seen by a client.
type Event struct {
	Type    string
	Channel string
	From    string
	Text    string
	Code    string
	Token   string
}

// DecodeEvent parses a server line on the client side.
func DecodeEvent(line []byte) (Event, error) {
	var w wire
	if err := json.Unmarshal(bytes.TrimSpace(line), &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Event{
		Type:    w.Type,
		Channel: w.Channel,
		From:    w.From,
		Text:    w.Text,
		Code:    w.Code,
		Token:   w.Token,
	}, nil
}

func encodeWire(w wire) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(w); err != nil {
		return nil, fmt.Errorf("encode %s: %w", w.Type, err)
	}
	return buf.Bytes(), nil
}
