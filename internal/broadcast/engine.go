package broadcast

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"heraldbot/internal/transport"
	logx "heraldbot/pkg/logx"
)

// Sender is the delivery side of the transport adapter.
type Sender interface {
	SendMessage(ctx context.Context, to transport.ChatTarget, out transport.Outgoing) (transport.MessageRef, error)
}

// ProgressSink receives live updates during delivery. Both calls are
// best-effort: the engine discards their errors on purpose (the confirmation
// surface may be gone), so implementations should not rely on being heard.
type ProgressSink interface {
	Progress(p Progress) error
	Final(st Stats, successPct float64) error
}

const (
	DefaultPace          = 1500 * time.Millisecond
	DefaultProgressEvery = 5
)

// Engine performs the paced fan-out. Delivery is strictly sequential: the
// constraint is the platform's outbound rate limit, not local compute, and
// sequential sends keep progress accounting deterministic.
type Engine struct {
	sender   Sender
	composer Composer
	stats    *Cell
	log      logx.Logger

	pace  time.Duration
	every int
}

func NewEngine(sender Sender, composer Composer, stats *Cell, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		sender:   sender,
		composer: composer,
		stats:    stats,
		log:      log,
		pace:     DefaultPace,
		every:    DefaultProgressEvery,
	}
}

// SetPace overrides the inter-send pacing interval.
func (e *Engine) SetPace(d time.Duration) {
	if d > 0 {
		e.pace = d
	}
}

// SetProgressEvery overrides how many sends separate progress pushes.
func (e *Engine) SetProgressEvery(n int) {
	if n > 0 {
		e.every = n
	}
}

// Deliver fans the run's snapshot out to every recipient in resolver order.
// Per-recipient failures are recorded and skipped, never retried and never
// fatal. Progress is pushed after every Nth recipient and after the last.
// On completion the stats cell is overwritten and the run becomes Completed.
//
// Only host shutdown (ctx cancellation) interrupts delivery; in that case no
// final statistics are recorded for the run.
func (e *Engine) Deliver(ctx context.Context, run *Run) (Stats, error) {
	return e.DeliverTo(ctx, run, nil)
}

func (e *Engine) DeliverTo(ctx context.Context, run *Run, sink ProgressSink) (Stats, error) {
	total := len(run.Recipient)
	limiter := rate.NewLimiter(rate.Every(e.pace), 1)
	out := e.composer.Compose(run.Snapshot)

	e.log.Info("delivery started",
		logx.String("run", run.ID),
		logx.Int("recipients", total),
		logx.Duration("pace", e.pace))

	for _, rcpt := range run.Recipient {
		if err := limiter.Wait(ctx); err != nil {
			return Stats{}, err
		}

		// Fresh attachment slice per send; adapter opens a fresh reader over
		// each file's immutable bytes.
		msg := out
		if len(out.Files) > 0 {
			msg.Files = make([]transport.File, len(out.Files))
			copy(msg.Files, out.Files)
		}

		_, err := e.sender.SendMessage(ctx, transport.DMTarget(rcpt.ID), msg)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return Stats{}, err
		case errors.Is(err, transport.ErrRecipientUnreachable):
			e.log.Debug("recipient unreachable",
				logx.String("run", run.ID), logx.Int64("recipient", rcpt.ID))
		default:
			e.log.Warn("delivery failed",
				logx.String("run", run.ID), logx.Int64("recipient", rcpt.ID), logx.Err(err))
		}

		p := run.Record(err == nil)
		if p.Sent%e.every == 0 || p.Sent == total {
			e.push(sink, p)
		}
	}

	p := run.Progress()
	st := Stats{
		Succeeded:   p.Succeeded,
		Failed:      p.Failed,
		Total:       total,
		CompletedAt: time.Now(),
	}
	if e.stats != nil {
		e.stats.Set(st)
	}
	run.Complete()

	var pct float64
	if st.Total > 0 {
		pct = SuccessPercent(st.Succeeded, st.Total)
	}
	if sink != nil {
		// Best-effort: the confirmation surface may already be gone.
		_ = sink.Final(st, pct)
	}

	e.log.Info("delivery completed",
		logx.String("run", run.ID),
		logx.Int("succeeded", st.Succeeded),
		logx.Int("failed", st.Failed),
		logx.Int("total", st.Total),
		logx.Float64("success_pct", pct))
	return st, nil
}

func (e *Engine) push(sink ProgressSink, p Progress) {
	if sink == nil {
		return
	}
	// Best-effort by contract.
	_ = sink.Progress(p)
}
