package ops

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"heraldbot/internal/archive"
	"heraldbot/internal/broadcast"
	"heraldbot/internal/roster"
	kit "heraldbot/internal/transport"
	logx "heraldbot/pkg/logx"
	"heraldbot/pkg/tgui"
)

const previewRunes = 200

// handleBroadcast resolves the snapshot and recipient set, then puts up the
// confirmation surface. Resolution failures abort here; no run is created.
func (s *Service) handleBroadcast(ctx context.Context, m *kit.Message, args []string) {
	if !s.isAdmin(m.FromID) {
		s.reply(ctx, m, errorPanel("Not allowed", "This command is for community admins."))
		return
	}
	if len(args) != 1 {
		s.reply(ctx, m, warnPanel("Usage", "/broadcast <message_id>"))
		return
	}
	msgID, err := strconv.Atoi(args[0])
	if err != nil {
		s.reply(ctx, m, warnPanel("Usage", "/broadcast <message_id>"))
		return
	}

	st := s.currentSettings()
	sourceChat := st.CommunityID
	if sourceChat == 0 && m.IsGroup {
		sourceChat = m.ChatID
	}

	src, err := s.archive.Get(sourceChat, msgID)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			s.reply(ctx, m, errorPanel("Message not found",
				fmt.Sprintf("No recent message with ID %d.", msgID),
				"Only messages seen since the bot joined can be rebroadcast."))
			return
		}
		s.reply(ctx, m, errorPanel("Message lookup failed", err.Error()))
		return
	}

	members, err := s.roster.Resolve(ctx, sourceChat)
	if err != nil {
		if errors.Is(err, roster.ErrCommunityUnknown) {
			s.reply(ctx, m, errorPanel("Community unknown",
				"The bot has not seen this community yet."))
			return
		}
		s.reply(ctx, m, errorPanel("Recipient lookup failed", err.Error()))
		return
	}
	if len(members) == 0 {
		s.reply(ctx, m, errorPanel("No recipients",
			"Nobody in this community can receive private messages yet."))
		return
	}

	snap := s.snapshotOf(ctx, src)
	recipients := make([]broadcast.Recipient, 0, len(members))
	for _, mem := range members {
		name := mem.Name
		if name == "" {
			name = mem.Username
		}
		recipients = append(recipients, broadcast.Recipient{ID: mem.UserID, Name: name})
	}

	s.mu.Lock()
	s.runSeq++
	runID := strconv.Itoa(s.runSeq)
	s.mu.Unlock()

	run := broadcast.NewRun(runID, m.FromID, snap, recipients)

	surface, err := s.sendConfirmation(ctx, m, run)
	if err != nil {
		s.log.Warn("confirmation send failed", logx.Err(err))
		return
	}

	pr := &pendingRun{run: run, surface: surface}
	pr.timer = time.AfterFunc(st.ConfirmTimeout, func() { s.expire(runID) })

	s.mu.Lock()
	s.runs[runID] = pr
	s.mu.Unlock()

	s.log.Info("broadcast pending",
		logx.String("run", runID),
		logx.Int64("initiator", m.FromID),
		logx.Int("recipients", len(recipients)))
}

// snapshotOf captures an immutable snapshot of an archived message.
// Attachment downloads are best-effort: a failed download drops that
// attachment, never the whole snapshot.
func (s *Service) snapshotOf(ctx context.Context, src *kit.Message) broadcast.Snapshot {
	snap := broadcast.Snapshot{Text: src.Text}
	if src.HTML != "" {
		snap.Panels = []broadcast.Panel{{HTML: src.HTML}}
	}
	for _, ref := range src.Attachments {
		data, err := s.adapter.Download(ctx, ref)
		if err != nil {
			s.log.Warn("attachment skipped",
				logx.String("file", ref.Name), logx.Err(err))
			continue
		}
		snap.Attachments = append(snap.Attachments, kit.File{Name: ref.Name, Data: data})
	}
	return snap
}

func (s *Service) sendConfirmation(ctx context.Context, m *kit.Message, run *broadcast.Run) (kit.MessageRef, error) {
	preview := tgui.TruncRunes(run.Snapshot.Text, previewRunes)
	if preview == "" {
		preview = "(no text)"
	}

	body := tgui.JoinH("\n",
		tgui.H("Preview: ")+tgui.I(preview),
		tgui.H("Recipients: ")+tgui.Esc(strconv.Itoa(len(run.Recipient))),
		tgui.H("Attachments: ")+tgui.Esc(strconv.Itoa(len(run.Snapshot.Attachments))),
		tgui.H("Formatted blocks: ")+tgui.Esc(strconv.Itoa(len(run.Snapshot.Panels))),
	)
	text := tgui.PanelRaw(tgui.KindWarning, "Confirm broadcast", body)

	kb := tgui.ConfirmRows(
		tgui.Btn("✅ Send now", tgui.Data("bc", "confirm", run.ID)),
		tgui.Btn("✏️ Edit", tgui.Data("bc", "edit", run.ID)),
		tgui.Btn("🚫 Cancel", tgui.Data("bc", "cancel", run.ID)),
	)

	to := kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
	return s.adapter.SendText(ctx, to, text, &kit.SendOptions{
		ParseMode:          "HTML",
		DisablePreview:     true,
		ReplyMarkupAdapter: kb.Markup(),
	})
}

// expire fires when the operator sat on the confirmation too long. Losing the
// race against a decision is fine; the notice edit is best-effort.
func (s *Service) expire(runID string) {
	s.mu.Lock()
	pr := s.runs[runID]
	delete(s.runs, runID)
	s.mu.Unlock()

	if pr == nil || !pr.run.Timeout() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.adapter.EditText(ctx, pr.surface,
		warnPanel("Broadcast expired", "No action taken; controls disabled."),
		&kit.SendOptions{ParseMode: "HTML"})
	if err != nil {
		s.log.Debug("timeout notice failed", logx.String("run", runID), logx.Err(err))
	}
	s.log.Info("broadcast timed out", logx.String("run", runID))
}
