// Package archive keeps a bounded in-memory cache of recently observed chat
// messages so they can be looked up later by ID. The Telegram Bot API offers
// no way to fetch an arbitrary message after the fact, so anything the bot
// wants to rebroadcast must have passed through its update stream.
package archive

import (
	"errors"
	"sync"

	"heraldbot/internal/transport"
)

// ErrNotFound is returned when the requested message was never observed or
// has been evicted by newer traffic.
var ErrNotFound = errors.New("message not found in archive")

const DefaultCapacity = 512

// Archive is a fixed-capacity FIFO cache keyed by (chat, message) ID.
// Safe for concurrent use.
type Archive struct {
	mu    sync.Mutex
	cap   int
	byKey map[key]*transport.Message
	order []key // insertion order, oldest first
}

type key struct {
	chatID    int64
	messageID int
}

func New(capacity int) *Archive {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Archive{
		cap:   capacity,
		byKey: make(map[key]*transport.Message, capacity),
		order: make([]key, 0, capacity),
	}
}

// Put records a message, evicting the oldest entry when full. Re-putting an
// existing key replaces its content without changing its eviction order.
func (a *Archive) Put(m *transport.Message) {
	if m == nil {
		return
	}
	k := key{chatID: m.ChatID, messageID: m.ID}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.byKey[k]; ok {
		a.byKey[k] = m
		return
	}
	if len(a.order) >= a.cap {
		oldest := a.order[0]
		a.order = a.order[1:]
		delete(a.byKey, oldest)
	}
	a.byKey[k] = m
	a.order = append(a.order, k)
}

// Get returns the archived message, or ErrNotFound.
func (a *Archive) Get(chatID int64, messageID int) (*transport.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.byKey[key{chatID: chatID, messageID: messageID}]
	if !ok {
		return nil, ErrNotFound
	}
	return m, nil
}

// Len reports the number of cached messages.
func (a *Archive) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.order)
}
