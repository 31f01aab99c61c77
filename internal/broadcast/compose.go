package broadcast

import (
	"strings"

	"heraldbot/internal/transport"
	"heraldbot/pkg/tgui"
)

// Composer turns a snapshot into the outgoing message each recipient gets.
type Composer struct {
	// Brand titles the synthesized panel used when the snapshot has no rich
	// panels of its own.
	Brand string

	// InviteLink, when set, is appended to the message text so recipients can
	// find their way back to the community.
	InviteLink string
}

// Compose builds the per-recipient message. When the snapshot carries rich
// panels they are replayed verbatim; otherwise the text is wrapped in a
// single branded panel. Either way the invite suffix rides along and the
// attachment list is a fresh slice (the underlying bytes are shared and
// immutable).
func (c Composer) Compose(s Snapshot) transport.Outgoing {
	var body tgui.H
	if len(s.Panels) > 0 {
		// A panel is the rendered form of the message body. Emitting the
		// plain text alongside would deliver the same content twice, so the
		// panels replace the text part entirely.
		parts := make([]tgui.H, 0, len(s.Panels))
		for _, p := range s.Panels {
			parts = append(parts, tgui.Raw(p.HTML))
		}
		body = c.withSuffix(tgui.JoinH("\n\n", parts...))
	} else {
		brand := c.Brand
		if brand == "" {
			brand = "Announcement"
		}
		body = tgui.Raw(tgui.PanelRaw(tgui.KindInfo, brand, c.withSuffix(tgui.Esc(s.Text))))
	}

	var files []transport.File
	if len(s.Attachments) > 0 {
		files = make([]transport.File, len(s.Attachments))
		copy(files, s.Attachments)
	}

	return transport.Outgoing{
		Text:           body.String(),
		ParseMode:      "HTML",
		DisablePreview: true,
		Files:          files,
	}
}

func (c Composer) withSuffix(text tgui.H) tgui.H {
	link := strings.TrimSpace(c.InviteLink)
	if link == "" {
		return text
	}
	suffix := tgui.Esc(link)
	if strings.TrimSpace(text.String()) == "" {
		return suffix
	}
	return tgui.H(text.String() + "\n\n" + suffix.String())
}
