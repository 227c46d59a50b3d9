package http

import (
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

// WSHandler upgrades HTTP connections and hands them to the hub as a byte stream.
// Every text frame from the client carries newline-terminated protocol lines; every
// line the hub writes goes out as one text frame.
type WSHandler struct {
	hub Hub
	log *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub Hub, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}

	ctx := r.Context()
	h.log.Debug().Str("remote", r.RemoteAddr).Msg("ws upgraded")

	// The hub owns the connection from here and closes it when the session ends.
	h.hub.Serve(ctx, websocket.NetConn(ctx, conn, websocket.MessageText))
}
