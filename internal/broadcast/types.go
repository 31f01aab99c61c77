// Package broadcast implements the confirmation state machine and the paced
// delivery engine behind mass notifications: an operator picks a source
// message, reviews a preview, and on explicit confirmation the snapshot is
// replayed privately to every addressable community member.
package broadcast

import (
	"math"
	"time"

	"heraldbot/internal/transport"
)

// Panel is an opaque, already-rendered rich block (Telegram HTML). Panels are
// captured from the source message's formatting and replayed verbatim; the
// engine never reconstructs them.
type Panel struct {
	HTML string
}

// Snapshot is the immutable captured content of the source message. It is
// taken once at broadcast initiation and owned by the pending run.
type Snapshot struct {
	Text        string
	Panels      []Panel
	Attachments []transport.File
}

// Recipient is one delivery target, addressable by private chat.
type Recipient struct {
	ID   int64
	Name string
}

// Progress is the running delivery tally. Succeeded+Failed == Sent holds
// after every recorded outcome.
type Progress struct {
	Sent      int
	Succeeded int
	Failed    int
}

// Stats is the final outcome of a completed run.
type Stats struct {
	Succeeded   int
	Failed      int
	Total       int
	CompletedAt time.Time
}

// SuccessPercent computes succeeded/total as a percentage rounded to one
// decimal. Call only with total > 0.
func SuccessPercent(succeeded, total int) float64 {
	pct := float64(succeeded) / float64(total) * 100
	return math.Round(pct*10) / 10
}
