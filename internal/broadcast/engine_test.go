package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"heraldbot/internal/transport"
	logx "heraldbot/pkg/logx"
)

type fakeSender struct {
	mu          sync.Mutex
	sent        []transport.Outgoing
	targets     []int64
	unreachable map[int64]bool
	failWith    error
}

func (f *fakeSender) SendMessage(ctx context.Context, to transport.ChatTarget, out transport.Outgoing) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, out)
	f.targets = append(f.targets, to.ChatID)
	if f.unreachable[to.ChatID] {
		return transport.MessageRef{}, errors.Join(transport.ErrRecipientUnreachable, errors.New("blocked"))
	}
	if f.failWith != nil {
		return transport.MessageRef{}, f.failWith
	}
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

type recordingSink struct {
	mu       sync.Mutex
	progress []Progress
	final    []Stats
	finalPct []float64
	pushErr  error
}

func (r *recordingSink) Progress(p Progress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
	return r.pushErr
}

func (r *recordingSink) Final(st Stats, pct float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.final = append(r.final, st)
	r.finalPct = append(r.finalPct, pct)
	return r.pushErr
}

func recipients(n int) []Recipient {
	out := make([]Recipient, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, Recipient{ID: int64(i), Name: fmt.Sprintf("user%d", i)})
	}
	return out
}

func fastEngine(sender Sender, stats *Cell) *Engine {
	e := NewEngine(sender, Composer{Brand: "Team News", InviteLink: "https://t.me/+abc"}, stats, logx.Nop())
	e.SetPace(time.Millisecond)
	return e
}

func TestDeliverAllSucceed(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	var cell Cell
	e := fastEngine(sender, &cell)

	run := NewRun("r1", 100, Snapshot{Text: "Server update"}, recipients(3))
	if err := run.Confirm(100); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	sink := &recordingSink{}
	st, err := e.DeliverTo(context.Background(), run, sink)
	if err != nil {
		t.Fatalf("DeliverTo: %v", err)
	}
	if st.Succeeded != 3 || st.Failed != 0 || st.Total != 3 {
		t.Fatalf("stats = %+v, want {3 0 3}", st)
	}
	if got := run.State(); got != StateCompleted {
		t.Fatalf("state = %q, want %q", got, StateCompleted)
	}

	last, ok := cell.Last()
	if !ok {
		t.Fatal("stats cell not written")
	}
	if last.Succeeded != 3 || last.Total != 3 {
		t.Fatalf("cell = %+v, want succeeded 3 of 3", last)
	}
	if len(sink.finalPct) != 1 || sink.finalPct[0] != 100.0 {
		t.Fatalf("final pct = %v, want [100.0]", sink.finalPct)
	}

	// Resolver order is delivery order.
	want := []int64{1, 2, 3}
	for i, id := range want {
		if sender.targets[i] != id {
			t.Fatalf("targets = %v, want %v", sender.targets, want)
		}
	}
}

func TestDeliverUnreachableStillCompletes(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{unreachable: map[int64]bool{2: true, 4: true}}
	var cell Cell
	e := fastEngine(sender, &cell)

	run := NewRun("r1", 100, Snapshot{Text: "hi"}, recipients(4))
	if err := run.Confirm(100); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	st, err := e.DeliverTo(context.Background(), run, &recordingSink{})
	if err != nil {
		t.Fatalf("DeliverTo: %v", err)
	}
	if st.Succeeded != 2 || st.Failed != 2 || st.Total != 4 {
		t.Fatalf("stats = %+v, want {2 2 4}", st)
	}
	if len(sender.sent) != 4 {
		t.Fatalf("sends = %d, want 4 (failures must not abort)", len(sender.sent))
	}
	if got := run.State(); got != StateCompleted {
		t.Fatalf("state = %q, want %q", got, StateCompleted)
	}
}

func TestProgressPushIndices(t *testing.T) {
	t.Parallel()

	for _, n := range []int{3, 5, 7, 12} {
		sender := &fakeSender{}
		var cell Cell
		e := fastEngine(sender, &cell)

		run := NewRun("r1", 100, Snapshot{Text: "x"}, recipients(n))
		if err := run.Confirm(100); err != nil {
			t.Fatalf("Confirm: %v", err)
		}

		sink := &recordingSink{}
		if _, err := e.DeliverTo(context.Background(), run, sink); err != nil {
			t.Fatalf("DeliverTo(n=%d): %v", n, err)
		}

		var want []int
		for i := 5; i < n; i += 5 {
			want = append(want, i)
		}
		want = append(want, n)

		if len(sink.progress) != len(want) {
			t.Fatalf("n=%d: %d pushes, want %d (%v)", n, len(sink.progress), len(want), want)
		}
		for i, p := range sink.progress {
			if p.Sent != want[i] {
				t.Fatalf("n=%d: push %d at sent=%d, want %d", n, i, p.Sent, want[i])
			}
			if p.Succeeded+p.Failed != p.Sent {
				t.Fatalf("n=%d: invariant broken at push %d: %+v", n, i, p)
			}
		}
		if len(sink.final) != 1 {
			t.Fatalf("n=%d: %d final pushes, want 1", n, len(sink.final))
		}
	}
}

func TestSinkErrorsAreSwallowed(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	var cell Cell
	e := fastEngine(sender, &cell)

	run := NewRun("r1", 100, Snapshot{Text: "x"}, recipients(6))
	if err := run.Confirm(100); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	sink := &recordingSink{pushErr: errors.New("surface gone")}
	st, err := e.DeliverTo(context.Background(), run, sink)
	if err != nil {
		t.Fatalf("DeliverTo: %v", err)
	}
	if st.Succeeded != 6 {
		t.Fatalf("stats = %+v, want 6 succeeded", st)
	}
}

func TestCancelledContextStopsDelivery(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	var cell Cell
	e := fastEngine(sender, &cell)
	e.SetPace(50 * time.Millisecond)

	run := NewRun("r1", 100, Snapshot{Text: "x"}, recipients(20))
	if err := run.Confirm(100); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(75 * time.Millisecond)
		cancel()
	}()

	if _, err := e.DeliverTo(ctx, run, &recordingSink{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if _, ok := cell.Last(); ok {
		t.Fatal("interrupted run must not record final statistics")
	}
	if len(sender.sent) >= 20 {
		t.Fatalf("sends = %d, want fewer than 20", len(sender.sent))
	}
}

func TestComposeBrandedPanelRoundTrip(t *testing.T) {
	t.Parallel()

	c := Composer{Brand: "Team News", InviteLink: "https://t.me/+abc"}
	snap := Snapshot{
		Text:        "Maintenance at noon",
		Attachments: []transport.File{{Name: "plan.pdf", Data: []byte{1, 2, 3}}},
	}

	out := c.Compose(snap)
	if !strings.Contains(out.Text, "Team News") {
		t.Fatalf("no brand in composed text: %q", out.Text)
	}
	if !strings.Contains(out.Text, "Maintenance at noon") {
		t.Fatalf("no source text in composed text: %q", out.Text)
	}
	if !strings.Contains(out.Text, "https://t.me/+abc") {
		t.Fatalf("no invite suffix in composed text: %q", out.Text)
	}
	if len(out.Files) != 1 || out.Files[0].Name != "plan.pdf" {
		t.Fatalf("files = %+v, want the one attachment", out.Files)
	}
	if out.ParseMode != "HTML" {
		t.Fatalf("parse mode = %q, want HTML", out.ParseMode)
	}
}

func TestComposeReplaysPanelsVerbatim(t *testing.T) {
	t.Parallel()

	c := Composer{Brand: "Team News", InviteLink: "https://t.me/+abc"}
	snap := Snapshot{
		Text:   "heads up",
		Panels: []Panel{{HTML: "<b>release</b> v2"}},
	}

	out := c.Compose(snap)
	if !strings.Contains(out.Text, "<b>release</b> v2") {
		t.Fatalf("panel not replayed verbatim: %q", out.Text)
	}
	if strings.Contains(out.Text, "Team News") {
		t.Fatalf("branded panel synthesized despite source panels: %q", out.Text)
	}
	if strings.Contains(out.Text, "heads up") {
		t.Fatalf("plain text emitted alongside its panel rendering: %q", out.Text)
	}
	if !strings.Contains(out.Text, "https://t.me/+abc") {
		t.Fatalf("no invite suffix: %q", out.Text)
	}
}

func TestComposePanelDoesNotDuplicateBody(t *testing.T) {
	t.Parallel()

	// The panel is the formatted rendering of the same body the text holds;
	// the recipient must see it exactly once.
	c := Composer{Brand: "Team News", InviteLink: "https://t.me/+abc"}
	snap := Snapshot{
		Text:   "Server update at noon",
		Panels: []Panel{{HTML: "<b>Server update</b> at noon"}},
	}

	out := c.Compose(snap)
	if n := strings.Count(out.Text, "Server update"); n != 1 {
		t.Fatalf("body appears %d times in %q, want 1", n, out.Text)
	}
	if !strings.Contains(out.Text, "<b>Server update</b>") {
		t.Fatalf("formatted rendering missing: %q", out.Text)
	}
	if !strings.Contains(out.Text, "https://t.me/+abc") {
		t.Fatalf("no invite suffix: %q", out.Text)
	}
}

func TestFreshAttachmentSlicePerSend(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	var cell Cell
	e := fastEngine(sender, &cell)

	snap := Snapshot{
		Text:        "x",
		Attachments: []transport.File{{Name: "a.bin", Data: []byte{9}}},
	}
	run := NewRun("r1", 100, snap, recipients(2))
	if err := run.Confirm(100); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if _, err := e.DeliverTo(context.Background(), run, nil); err != nil {
		t.Fatalf("DeliverTo: %v", err)
	}

	if len(sender.sent) != 2 {
		t.Fatalf("sends = %d, want 2", len(sender.sent))
	}
	if &sender.sent[0].Files[0] == &sender.sent[1].Files[0] {
		t.Fatal("attachment slices shared between sends")
	}
}
