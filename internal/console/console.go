// Package console is the host-local control channel: a line-oriented command
// loop on stdin for the operator at the terminal. No identity check applies;
// whoever owns the process owns the console.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	logx "heraldbot/pkg/logx"
)

// Hooks connect console commands to the host.
type Hooks struct {
	// Status returns a plain-text runtime summary.
	Status func() string
	// Stop asks the host to shut down; restart selects the exit intent.
	Stop func(restart bool)
}

type Listener struct {
	in    io.Reader
	out   io.Writer
	hooks Hooks
	log   logx.Logger
}

func New(in io.Reader, out io.Writer, hooks Hooks, log logx.Logger) *Listener {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Listener{in: in, out: out, hooks: hooks, log: log}
}

// Run reads commands until EOF or ctx cancellation. The read loop runs on its
// own goroutine since stdin reads cannot be interrupted portably; on ctx
// cancellation the loop is abandoned, not unblocked.
func (l *Listener) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(l.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := l.handle(line); done {
				return nil
			}
		}
	}
}

func (l *Listener) handle(line string) (done bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return false
	case "status":
		if l.hooks.Status != nil {
			l.printf("%s\n", l.hooks.Status())
		}
	case "restart":
		l.printf("restarting...\n")
		if l.hooks.Stop != nil {
			l.hooks.Stop(true)
		}
		return true
	case "stop":
		l.printf("stopping...\n")
		if l.hooks.Stop != nil {
			l.hooks.Stop(false)
		}
		return true
	case "help":
		l.printf("commands: restart | stop | status | help\n")
	default:
		l.printf("unknown command (try: help)\n")
	}
	return false
}

func (l *Listener) printf(format string, args ...any) {
	if l.out == nil {
		return
	}
	fmt.Fprintf(l.out, format, args...)
}
