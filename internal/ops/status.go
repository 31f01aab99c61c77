package ops

import (
	"context"
	"fmt"
	"time"

	"heraldbot/internal/broadcast"
	kit "heraldbot/internal/transport"
	logx "heraldbot/pkg/logx"
)

// handleStatus reports runtime state to the requesting admin privately. The
// private channel is the whole point of this query, so a DM failure is
// surfaced back in the originating chat instead of being swallowed.
func (s *Service) handleStatus(ctx context.Context, m *kit.Message) {
	if !s.isAdmin(m.FromID) {
		s.reply(ctx, m, errorPanel("Not allowed", "This command is for community admins."))
		return
	}

	st := s.currentSettings()
	uptime := time.Since(s.startedAt).Round(time.Second)

	recipientLine := "Recipients: unknown"
	if st.CommunityID != 0 {
		if n, err := s.roster.MemberCount(ctx, st.CommunityID); err == nil {
			recipientLine = fmt.Sprintf("Recipients: %d", n)
		}
	}

	lastLine := "Last broadcast: none yet"
	if last, ok := s.stats.Last(); ok {
		pct := 0.0
		if last.Total > 0 {
			pct = broadcast.SuccessPercent(last.Succeeded, last.Total)
		}
		lastLine = fmt.Sprintf("Last broadcast: %d/%d delivered (%.1f%%) at %s",
			last.Succeeded, last.Total, pct, last.CompletedAt.Format("15:04:05"))
	}

	text := infoPanel("Status",
		"Online",
		fmt.Sprintf("Uptime: %s", uptime),
		recipientLine,
		lastLine,
	)

	_, err := s.adapter.SendText(ctx, kit.DMTarget(m.FromID), text,
		&kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	if err != nil {
		s.reply(ctx, m, errorPanel("Private channel unavailable",
			"Could not reach you in a private chat. Open one with the bot and try again."))
		return
	}
	if m.IsGroup {
		s.reply(ctx, m, successPanel("Status sent", "Check your private messages."))
	}
}

// handleRestart notifies every admin, then asks the host to exit with a
// restart intent.
func (s *Service) handleRestart(ctx context.Context, m *kit.Message) {
	if !s.isAdmin(m.FromID) {
		s.reply(ctx, m, errorPanel("Not allowed", "This command is for community admins."))
		return
	}

	s.log.Info("restart requested", logx.Int64("by", m.FromID))
	s.NotifyAdmins(ctx, warnPanel("Restarting", "The bot is going down for a restart."))
	if s.stop != nil {
		s.stop(true)
	}
}

func (s *Service) handleHelp(ctx context.Context, m *kit.Message) {
	s.reply(ctx, m, infoPanel("Commands",
		"/broadcast <message_id> — send a group message to every member privately",
		"/status — uptime, recipient count and last broadcast outcome",
		"/restart — restart the bot (admins only)",
		"/help — this help",
	))
}

// NotifyAdmins delivers a private notice to every configured admin.
// Best-effort by contract: individual failures are logged and dropped.
func (s *Service) NotifyAdmins(ctx context.Context, html string) {
	for _, id := range s.currentSettings().AdminUserIDs {
		_, err := s.adapter.SendText(ctx, kit.DMTarget(id), html,
			&kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
		if err != nil {
			s.log.Debug("admin notice failed", logx.Int64("admin", id), logx.Err(err))
		}
	}
}
