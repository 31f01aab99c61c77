package console

import (
	"context"
	"strings"
	"testing"
	"time"

	logx "heraldbot/pkg/logx"
)

func run(t *testing.T, input string, hooks Hooks) string {
	t.Helper()
	var out strings.Builder
	l := New(strings.NewReader(input), &out, hooks, logx.Nop())

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("console loop did not finish")
	}
	return out.String()
}

func TestStatusAndHelp(t *testing.T) {
	t.Parallel()

	out := run(t, "status\nhelp\n", Hooks{
		Status: func() string { return "online, 3 recipients" },
	})
	if !strings.Contains(out, "online, 3 recipients") {
		t.Fatalf("output %q lacks status", out)
	}
	if !strings.Contains(out, "restart | stop | status | help") {
		t.Fatalf("output %q lacks help", out)
	}
}

func TestStopCommands(t *testing.T) {
	t.Parallel()

	cases := []struct {
		line        string
		wantRestart bool
	}{
		{"restart", true},
		{"stop", false},
		{"  STOP  ", false},
	}
	for _, tc := range cases {
		var gotRestart bool
		called := false
		run(t, tc.line+"\n", Hooks{
			Stop: func(restart bool) { called, gotRestart = true, restart },
		})
		if !called {
			t.Fatalf("%q: stop hook not called", tc.line)
		}
		if gotRestart != tc.wantRestart {
			t.Fatalf("%q: restart = %v, want %v", tc.line, gotRestart, tc.wantRestart)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	t.Parallel()

	out := run(t, "frobnicate\n", Hooks{})
	if !strings.Contains(out, "unknown command") {
		t.Fatalf("output %q lacks unknown-command notice", out)
	}
}

func TestEOFEndsLoop(t *testing.T) {
	t.Parallel()

	out := run(t, "", Hooks{})
	if out != "" {
		t.Fatalf("output = %q, want empty", out)
	}
}
