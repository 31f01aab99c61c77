package adapter

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"unicode/utf16"

	tele "gopkg.in/telebot.v4"
)

// entitiesHTML renders a message's formatting entities as Telegram HTML so a
// formatted source message can be replayed verbatim. Returns "" when the
// message has no renderable formatting.
//
// Entity offsets are in UTF-16 code units (Telegram Bot API contract), so the
// text is converted before slicing. Overlapping entities are not expected
// from the API; only top-level, non-overlapping spans are rendered.
func entitiesHTML(text string, ents []tele.MessageEntity) string {
	if text == "" || len(ents) == 0 {
		return ""
	}

	spans := make([]tele.MessageEntity, 0, len(ents))
	for _, e := range ents {
		if tagsFor(e) != nil {
			spans = append(spans, e)
		}
	}
	if len(spans) == 0 {
		return ""
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Offset < spans[j].Offset })

	u := utf16.Encode([]rune(text))
	var b strings.Builder
	cur := 0
	for _, e := range spans {
		if e.Offset < cur || e.Offset+e.Length > len(u) {
			continue // overlapping or out of range; skip rather than corrupt
		}
		b.WriteString(html.EscapeString(decode(u[cur:e.Offset])))
		open, clos := tagsFor(e)[0], tagsFor(e)[1]
		b.WriteString(open)
		b.WriteString(html.EscapeString(decode(u[e.Offset : e.Offset+e.Length])))
		b.WriteString(clos)
		cur = e.Offset + e.Length
	}
	b.WriteString(html.EscapeString(decode(u[cur:])))
	return b.String()
}

func decode(u []uint16) string { return string(utf16.Decode(u)) }

func tagsFor(e tele.MessageEntity) []string {
	switch e.Type {
	case tele.EntityBold:
		return []string{"<b>", "</b>"}
	case tele.EntityItalic:
		return []string{"<i>", "</i>"}
	case tele.EntityUnderline:
		return []string{"<u>", "</u>"}
	case tele.EntityStrikethrough:
		return []string{"<s>", "</s>"}
	case tele.EntityCode:
		return []string{"<code>", "</code>"}
	case tele.EntityCodeBlock:
		return []string{"<pre>", "</pre>"}
	case tele.EntityTextLink:
		return []string{fmt.Sprintf(`<a href="%s">`, html.EscapeString(e.URL)), "</a>"}
	default:
		return nil
	}
}
