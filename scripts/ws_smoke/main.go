package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/client"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

// ws_smoke logs two accounts in, joins both to a channel and checks that a message
// from the first reaches the second. Works against TCP and the WebSocket gateway.
func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket URL or TCP host:port")
	sender := flag.String("sender", "alice:1234", "sender credentials as user:password")
	receiver := flag.String("receiver", "bob:4567", "receiver credentials as user:password")
	channel := flag.String("channel", "general", "channel name")
	text := flag.String("text", "hello from smoke test :)", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	from, err := connect(ctx, *addr, *sender, *channel)
	if err != nil {
		return fmt.Errorf("sender: %w", err)
	}
	defer from.Close()

	to, err := connect(ctx, *addr, *receiver, *channel)
	if err != nil {
		return fmt.Errorf("receiver: %w", err)
	}
	defer to.Close()

	if err := from.Say(*text); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	for {
		select {
		case ev, ok := <-to.Events():
			if !ok {
				return fmt.Errorf("receiver disconnected")
			}
			if ev.Type == proto.TypeMsg {
				log.Printf("received [%s] %s: %s", ev.Channel, ev.From, ev.Text)
				_ = from.Quit()
				_ = to.Quit()
				return nil
			}
		case <-ctx.Done():
			return fmt.Errorf("no message received: %w", ctx.Err())
		}
	}
}

func connect(ctx context.Context, addr, credentials, channel string) (*client.Client, error) {
	user, password, ok := strings.Cut(credentials, ":")
	if !ok {
		return nil, fmt.Errorf("credentials must be user:password, got %q", credentials)
	}

	c, err := client.Dial(ctx, addr, nil)
	if err != nil {
		return nil, err
	}
	if _, err := c.Login(ctx, user, password); err != nil {
		_ = c.Close()
		return nil, err
	}
	if err := c.Join(channel); err != nil {
		_ = c.Close()
		return nil, err
	}

	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				return nil, fmt.Errorf("disconnected before joining")
			}
			if ev.Code == core.CodeJoined {
				return c, nil
			}
		case <-ctx.Done():
			_ = c.Close()
			return nil, ctx.Err()
		}
	}
}
