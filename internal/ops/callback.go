package ops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"heraldbot/internal/broadcast"
	kit "heraldbot/internal/transport"
	logx "heraldbot/pkg/logx"
	"heraldbot/pkg/tgui"
)

func (s *Service) handleCallback(ctx context.Context, cb *kit.Callback) {
	scope, action, runID, ok := tgui.SplitData(cb.Data)
	if !ok || scope != "bc" {
		return
	}

	s.mu.Lock()
	pr := s.runs[runID]
	s.mu.Unlock()
	if pr == nil {
		_ = s.adapter.AnswerCallback(ctx, cb.ID, "This broadcast is no longer pending.")
		return
	}

	var err error
	switch action {
	case "confirm":
		err = pr.run.Confirm(cb.FromID)
	case "edit":
		err = pr.run.Edit(cb.FromID)
	case "cancel":
		err = pr.run.Cancel(cb.FromID)
	default:
		return
	}

	switch {
	case errors.Is(err, broadcast.ErrNotInitiator):
		// Ephemeral rejection; controls stay live for the initiator.
		_ = s.adapter.AnswerCallback(ctx, cb.ID, "Only the initiator can decide this broadcast.")
		return
	case errors.Is(err, broadcast.ErrAlreadyDecided):
		_ = s.adapter.AnswerCallback(ctx, cb.ID, "Already decided.")
		return
	case err != nil:
		s.log.Warn("callback transition failed", logx.String("run", runID), logx.Err(err))
		return
	}

	// The decision is recorded; the run is no longer pending.
	s.mu.Lock()
	delete(s.runs, runID)
	s.mu.Unlock()
	if pr.timer != nil {
		pr.timer.Stop()
	}

	switch action {
	case "confirm":
		s.beginDelivery(ctx, cb, pr)
	case "edit":
		_ = s.adapter.AnswerCallback(ctx, cb.ID, "Broadcast dismissed.")
		s.disableControls(ctx, pr.surface, infoPanel("Edit requested",
			"Amend the source message, then run /broadcast again with its ID."))
		s.log.Info("broadcast sent to editing", logx.String("run", runID))
	case "cancel":
		_ = s.adapter.AnswerCallback(ctx, cb.ID, "Broadcast cancelled.")
		s.disableControls(ctx, pr.surface, infoPanel("Broadcast cancelled", "Nothing was sent."))
		s.log.Info("broadcast cancelled", logx.String("run", runID))
	}
}

// beginDelivery disables the controls synchronously, before any delivery
// traffic, then hands the run to the engine on a supervised goroutine.
func (s *Service) beginDelivery(ctx context.Context, cb *kit.Callback, pr *pendingRun) {
	_ = s.adapter.AnswerCallback(ctx, cb.ID, "Broadcast starting.")
	s.disableControls(ctx, pr.surface, infoPanel("Broadcast running",
		fmt.Sprintf("Delivering to %d recipients…", len(pr.run.Recipient))))

	st := s.currentSettings()
	engine := broadcast.NewEngine(s.adapter, broadcast.Composer{
		Brand:      st.Brand,
		InviteLink: st.InviteLink,
	}, s.stats, s.log.With(logx.String("component", "engine")))
	engine.SetPace(st.Pace)
	engine.SetProgressEvery(st.ProgressEvery)

	run := pr.run
	surface := pr.surface
	s.Go("broadcast.deliver", func(ctx context.Context) {
		sink := &surfaceSink{adapter: s.adapter, surface: surface, total: len(run.Recipient)}
		if _, err := engine.DeliverTo(ctx, run, sink); err != nil {
			s.log.Warn("delivery interrupted", logx.String("run", run.ID), logx.Err(err))
		}
	})
}

// disableControls replaces the confirmation surface, dropping its keyboard.
// Best-effort: the message may have been deleted.
func (s *Service) disableControls(ctx context.Context, surface kit.MessageRef, html string) {
	err := s.adapter.EditText(ctx, surface, html, &kit.SendOptions{ParseMode: "HTML"})
	if err != nil {
		s.log.Debug("control disable failed", logx.Err(err))
	}
}

// surfaceSink streams delivery progress back onto the confirmation message.
type surfaceSink struct {
	adapter kit.Adapter
	surface kit.MessageRef
	total   int
}

func (ss *surfaceSink) Progress(p broadcast.Progress) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	text := infoPanel("Broadcast running",
		fmt.Sprintf("Sent %d/%d — %d delivered, %d failed.", p.Sent, ss.total, p.Succeeded, p.Failed))
	return ss.adapter.EditText(ctx, ss.surface, text, &kit.SendOptions{ParseMode: "HTML"})
}

func (ss *surfaceSink) Final(st broadcast.Stats, pct float64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kind := tgui.KindSuccess
	if st.Succeeded == 0 {
		kind = tgui.KindError
	} else if st.Failed > 0 {
		kind = tgui.KindWarning
	}
	text := tgui.Panel(kind, "Broadcast finished",
		fmt.Sprintf("Delivered %d of %d (%.1f%%).", st.Succeeded, st.Total, pct),
		fmt.Sprintf("Failed: %d.", st.Failed))
	return ss.adapter.EditText(ctx, ss.surface, text, &kit.SendOptions{ParseMode: "HTML"})
}
