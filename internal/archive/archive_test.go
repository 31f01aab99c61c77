package archive

import (
	"errors"
	"fmt"
	"testing"

	"heraldbot/internal/transport"
)

func msg(chatID int64, id int, text string) *transport.Message {
	return &transport.Message{ID: id, ChatID: chatID, Text: text}
}

func TestPutGet(t *testing.T) {
	t.Parallel()

	a := New(8)
	a.Put(msg(-100, 1, "hello"))

	got, err := a.Get(-100, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Text != "hello" {
		t.Fatalf("text = %q, want %q", got.Text, "hello")
	}
}

func TestGetUnknown(t *testing.T) {
	t.Parallel()

	a := New(8)
	if _, err := a.Get(-100, 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestKeyIncludesChat(t *testing.T) {
	t.Parallel()

	a := New(8)
	a.Put(msg(-100, 7, "group A"))
	a.Put(msg(-200, 7, "group B"))

	got, err := a.Get(-200, 7)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Text != "group B" {
		t.Fatalf("text = %q, want %q", got.Text, "group B")
	}
}

func TestEvictsOldest(t *testing.T) {
	t.Parallel()

	a := New(3)
	for i := 1; i <= 4; i++ {
		a.Put(msg(-100, i, fmt.Sprintf("m%d", i)))
	}

	if _, err := a.Get(-100, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("oldest entry should be evicted, err = %v", err)
	}
	for i := 2; i <= 4; i++ {
		if _, err := a.Get(-100, i); err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
	}
	if n := a.Len(); n != 3 {
		t.Fatalf("Len = %d, want 3", n)
	}
}

func TestReplaceKeepsOrder(t *testing.T) {
	t.Parallel()

	a := New(2)
	a.Put(msg(-100, 1, "one"))
	a.Put(msg(-100, 2, "two"))
	a.Put(msg(-100, 1, "one v2")) // replace, not re-append

	got, err := a.Get(-100, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Text != "one v2" {
		t.Fatalf("text = %q, want %q", got.Text, "one v2")
	}

	// 1 is still the oldest: a new insert evicts it.
	a.Put(msg(-100, 3, "three"))
	if _, err := a.Get(-100, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("replaced entry should keep eviction order, err = %v", err)
	}
}
