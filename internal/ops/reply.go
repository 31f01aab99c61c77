package ops

import (
	"context"

	kit "heraldbot/internal/transport"
	"heraldbot/pkg/logx"
	"heraldbot/pkg/tgui"
)

func infoPanel(title string, lines ...string) string {
	return tgui.Panel(tgui.KindInfo, title, lines...)
}

func successPanel(title string, lines ...string) string {
	return tgui.Panel(tgui.KindSuccess, title, lines...)
}

func warnPanel(title string, lines ...string) string {
	return tgui.Panel(tgui.KindWarning, title, lines...)
}

func errorPanel(title string, lines ...string) string {
	return tgui.Panel(tgui.KindError, title, lines...)
}

// reply answers in the chat the message came from. Failures are logged, not
// surfaced; command replies are not load-bearing.
func (s *Service) reply(ctx context.Context, m *kit.Message, html string) {
	to := kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
	_, err := s.adapter.SendText(ctx, to, html, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	if err != nil {
		s.log.Warn("reply failed", logx.Int64("chat", m.ChatID), logx.Err(err))
	}
}
