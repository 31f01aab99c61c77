package tgui

import "strings"

// Kind selects the visual category of a notice panel.
type Kind int

const (
	KindInfo Kind = iota
	KindSuccess
	KindWarning
	KindError
)

func (k Kind) emoji() string {
	switch k {
	case KindSuccess:
		return "✅"
	case KindWarning:
		return "⚠️"
	case KindError:
		return "❌"
	default:
		return "ℹ️"
	}
}

// Panel renders a titled, color-coded notice as Telegram HTML.
// Body lines are escaped; use PanelRaw when the body is already safe HTML.
func Panel(k Kind, title string, lines ...string) string {
	parts := make([]H, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, Esc(l))
	}
	return PanelRaw(k, title, JoinH("\n", parts...))
}

// PanelRaw is Panel with an already-safe HTML body.
func PanelRaw(k Kind, title string, body H) string {
	var b strings.Builder
	b.WriteString(k.emoji())
	b.WriteString(" ")
	b.WriteString(B(title).String())
	if strings.TrimSpace(body.String()) != "" {
		b.WriteString("\n\n")
		b.WriteString(body.String())
	}
	return b.String()
}
