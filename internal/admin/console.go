// Package admin implements the operator console read from the server's stdin.
package admin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/core"
)

const (
	cmdAnnounce = "sys:"
	cmdList     = "list"
	cmdShutdown = "shutdown"
	cmdHelp     = "help"
)

const helpText = `commands:
  sys:<text>  announce <text> to every connection
  list        show channels and their members
  shutdown    notify everyone and stop the server
  help        show this help
`

// Console reads operator commands line by line and applies them to the hub.
type Console struct {
	admin core.Admin
	in    io.Reader
	out   io.Writer
	log   *zerolog.Logger
}

// NewConsole builds a console reading from in and reporting to out.
func NewConsole(admin core.Admin, in io.Reader, out io.Writer, logger *zerolog.Logger) *Console {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Console{admin: admin, in: in, out: out, log: logger}
}

// Run processes commands until the input ends, ctx is cancelled or a shutdown
// command is executed. A blocked read on in is not interrupted by ctx; Run returns
// as soon as the next line arrives.
func (c *Console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("read console: %w", err)
			}
			return nil
		case line := <-lines:
			if stop := c.Execute(line); stop {
				return nil
			}
		}
	}
}

// Execute runs a single command line and reports whether the console should stop.
func (c *Console) Execute(line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false
	case strings.HasPrefix(line, cmdAnnounce):
		text := strings.TrimSpace(strings.TrimPrefix(line, cmdAnnounce))
		if text == "" {
			c.printf("usage: sys:<text>\n")
			return false
		}
		n := c.admin.Announce(text)
		c.printf("announced to %d connection(s)\n", n)
	case line == cmdList:
		c.printSnapshot(c.admin.Inspect())
	case line == cmdShutdown:
		c.log.Info().Msg("shutdown requested from console")
		c.printf("shutting down\n")
		c.admin.Shutdown()
		return true
	case line == cmdHelp:
		c.printf("%s", helpText)
	default:
		c.printf("unknown command %q, type help\n", line)
	}
	return false
}

func (c *Console) printSnapshot(snap core.Snapshot) {
	c.printf("%d connection(s)\n", snap.Connections)
	if len(snap.Channels) == 0 {
		c.printf("no active channels\n")
		return
	}
	for _, ch := range snap.Channels {
		c.printf("#%s (%d): %s\n", ch.Name, len(ch.Members), strings.Join(ch.Members, ", "))
	}
}

func (c *Console) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(c.out, format, args...); err != nil {
		c.log.Debug().Err(err).Msg("console write failed")
	}
}
