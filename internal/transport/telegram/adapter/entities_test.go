package adapter

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestEntitiesHTMLBasic(t *testing.T) {
	t.Parallel()

	// "release v2 now"
	//  ^bold:0-7    ^italic:11-3
	got := entitiesHTML("release v2 now", []tele.MessageEntity{
		{Type: tele.EntityBold, Offset: 0, Length: 7},
		{Type: tele.EntityItalic, Offset: 11, Length: 3},
	})
	want := "<b>release</b> v2 <i>now</i>"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEntitiesHTMLEscapesText(t *testing.T) {
	t.Parallel()

	got := entitiesHTML("a <b> & c", []tele.MessageEntity{
		{Type: tele.EntityCode, Offset: 2, Length: 3},
	})
	want := "a <code>&lt;b&gt;</code> &amp; c"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEntitiesHTMLUTF16Offsets(t *testing.T) {
	t.Parallel()

	// The emoji occupies two UTF-16 code units; Telegram offsets count them.
	got := entitiesHTML("🎉 party time", []tele.MessageEntity{
		{Type: tele.EntityBold, Offset: 3, Length: 5},
	})
	want := "🎉 <b>party</b> time"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEntitiesHTMLTextLink(t *testing.T) {
	t.Parallel()

	got := entitiesHTML("see docs", []tele.MessageEntity{
		{Type: tele.EntityTextLink, Offset: 4, Length: 4, URL: "https://example.com/?a=1&b=2"},
	})
	want := `see <a href="https://example.com/?a=1&amp;b=2">docs</a>`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEntitiesHTMLNoRenderableSpans(t *testing.T) {
	t.Parallel()

	got := entitiesHTML("plain @mention", []tele.MessageEntity{
		{Type: tele.EntityMention, Offset: 6, Length: 8},
	})
	if got != "" {
		t.Fatalf("got %q, want empty (no renderable formatting)", got)
	}
}

func TestEntitiesHTMLSkipsOutOfRange(t *testing.T) {
	t.Parallel()

	got := entitiesHTML("short", []tele.MessageEntity{
		{Type: tele.EntityBold, Offset: 3, Length: 50},
	})
	if got != "short" {
		t.Fatalf("got %q, want untouched text", got)
	}
}
