package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/core"
)

const defaultAcceptTimeout = time.Second

// Hub is the part of core.Hub the listener needs.
type Hub interface {
	Serve(ctx context.Context, rwc net.Conn)
	Done() <-chan struct{}
}

// Server accepts TCP connections and hands each one to the hub.
type Server struct {
	hub           Hub
	addr          string
	acceptTimeout time.Duration
	log           *zerolog.Logger

	mu sync.Mutex
	ln *net.TCPListener

	wg sync.WaitGroup
}

var _ Hub = (*core.Hub)(nil)

// New builds a listener for addr. acceptTimeout bounds how long Serve waits in a
// single Accept before it checks for shutdown again.
func New(hub Hub, addr string, acceptTimeout time.Duration, logger *zerolog.Logger) *Server {
	if acceptTimeout <= 0 {
		acceptTimeout = defaultAcceptTimeout
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Server{
		hub:           hub,
		addr:          addr,
		acceptTimeout: acceptTimeout,
		log:           logger,
	}
}

// Listen binds the address. Serve calls it when it has not been called yet.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		return fmt.Errorf("listen %s: not a tcp listener", s.addr)
	}
	s.ln = tcpLn
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections until ctx is cancelled or the hub shuts down, then
// closes the listener and waits for every session it started to finish.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("tcp listener started")
	defer func() {
		_ = ln.Close()
		s.wg.Wait()
		s.log.Info().Msg("tcp listener stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.hub.Done():
			return nil
		default:
		}

		if err := ln.SetDeadline(time.Now().Add(s.acceptTimeout)); err != nil {
			return fmt.Errorf("set accept deadline: %w", err)
		}
		conn, err := ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn().Err(err).Msg("accept failed")
			time.Sleep(50 * time.Millisecond)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.hub.Serve(ctx, conn)
		}()
	}
}
