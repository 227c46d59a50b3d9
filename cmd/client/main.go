package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/client"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	applog "github.com/vovakirdan/wirechat-relay/internal/log"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/utils"
)

const maxLoginAttempts = 3

func main() {
	if err := run(); err != nil {
		log.Printf("client: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "localhost:12345", "server address: host:port for TCP or a ws:// URL")
	user := flag.String("user", "", "username (prompted when omitted)")
	password := flag.String("password", "", "password (prompted when omitted)")
	token := flag.String("token", "", "session token from an earlier login")
	channel := flag.String("channel", "general", "channel to join after login, empty to skip")
	level := flag.String("log-level", "warn", "log level")
	flag.Parse()

	logger := applog.NewWithWriter(os.Stderr, *level)

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	dialCtx, cancelDial := context.WithTimeout(ctx, 10*time.Second)
	c, err := client.Dial(dialCtx, *addr, logger)
	cancelDial()
	if err != nil {
		return err
	}
	defer c.Close()

	lines := bufio.NewReader(os.Stdin)
	if err := login(ctx, c, lines, *user, *password, *token); err != nil {
		return err
	}
	fmt.Printf("Connected to %s as %s\n", *addr, c.Identity())

	if *channel != "" {
		if err := c.Join(*channel); err != nil {
			return err
		}
	}
	fmt.Println("Type messages and press Enter to send. /join <channel>, /leave, /quit.")

	go func() {
		defer cancel()
		printEvents(c)
	}()

	return inputLoop(ctx, c, lines)
}

func login(ctx context.Context, c *client.Client, lines *bufio.Reader, user, password, token string) error {
	if token != "" {
		_, err := c.LoginToken(ctx, token)
		return err
	}

	for attempt := 1; ; attempt++ {
		name := user
		if name == "" {
			fmt.Fprint(os.Stderr, "Username: ")
			line, err := lines.ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read username: %w", err)
			}
			name = strings.TrimSpace(line)
		}
		pw := password
		if pw == "" {
			var err error
			if pw, err = utils.PromptPassword("Password: ", os.Stdin, lines, os.Stderr); err != nil {
				return err
			}
		}

		issued, err := c.Login(ctx, name, pw)
		if err == nil {
			if issued != "" {
				fmt.Fprintf(os.Stderr, "session token: %s\n", issued)
			}
			return nil
		}

		var serverErr *client.ServerError
		if !errors.As(err, &serverErr) || attempt >= maxLoginAttempts {
			return fmt.Errorf("login: %w", err)
		}
		fmt.Fprintf(os.Stderr, "login failed: %s\n", serverErr.Text)
		// Only retry what can change.
		if user != "" && password != "" {
			return fmt.Errorf("login: %w", err)
		}
		password = ""
	}
}

func printEvents(c *client.Client) {
	for ev := range c.Events() {
		switch ev.Type {
		case proto.TypeMsg:
			fmt.Printf("[%s] %s: %s\n", ev.Channel, ev.From, ev.Text)
		case proto.TypeSystem:
			fmt.Printf("* %s\n", ev.Text)
			if ev.Code == core.ErrCodeShutdown {
				return
			}
		default:
			fmt.Printf("event=%s text=%s\n", ev.Type, ev.Text)
		}
	}
	fmt.Println("* disconnected")
}

func inputLoop(ctx context.Context, c *client.Client, lines *bufio.Reader) error {
	input := make(chan string)
	go func() {
		defer close(input)
		for {
			line, err := lines.ReadString('\n')
			if line != "" {
				input <- line
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					log.Printf("read stdin: %v", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-input:
			if !ok {
				return quit(c)
			}
			if done, err := handleLine(c, strings.TrimSpace(line)); done || err != nil {
				return err
			}
		}
	}
}

// handleLine runs one input line and reports whether the session is over.
func handleLine(c *client.Client, line string) (bool, error) {
	switch {
	case line == "":
		return false, nil
	case line == "/quit":
		return true, quit(c)
	case line == "/leave":
		return false, c.Leave()
	case strings.HasPrefix(line, "/join"):
		name := strings.TrimSpace(strings.TrimPrefix(line, "/join"))
		if name == "" {
			fmt.Println("usage: /join <channel>")
			return false, nil
		}
		return false, c.Join(name)
	}

	if err := c.Say(line); err != nil {
		if errors.Is(err, client.ErrNoChannel) {
			fmt.Println("join a channel first: /join <channel>")
			return false, nil
		}
		return true, err
	}
	return false, nil
}

func quit(c *client.Client) error {
	if err := c.Quit(); err != nil && !errors.Is(err, client.ErrClosed) {
		return err
	}
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
	}
	return nil
}
