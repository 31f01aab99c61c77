package broadcast

import (
	"errors"
	"sync"
	"time"
)

// State of a run's confirmation lifecycle.
type State string

const (
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateCancelled State = "cancelled"
	StateEditing   State = "editing"
	StateTimedOut  State = "timed_out"
	StateCompleted State = "completed"
)

// Terminal reports whether the state ends the confirmation cycle.
func (s State) Terminal() bool {
	switch s {
	case StateCancelled, StateEditing, StateTimedOut, StateCompleted:
		return true
	}
	return false
}

var (
	// ErrNotInitiator marks a transition attempted by anyone other than the
	// operator who started the run. No state change occurs.
	ErrNotInitiator = errors.New("only the initiating operator may act on this run")

	// ErrAlreadyDecided marks a transition attempted after the run has left
	// Pending. The first decision wins; later ones are no-ops.
	ErrAlreadyDecided = errors.New("run already decided")
)

// Run is one confirmation cycle: a captured snapshot, a resolved recipient
// set, and a state driven exclusively by the initiating operator. All
// transitions are exactly-once: the first valid decision out of Pending wins
// and every subsequent attempt fails with ErrAlreadyDecided.
type Run struct {
	ID        string
	Initiator int64
	Snapshot  Snapshot
	Recipient []Recipient
	StartedAt time.Time

	mu       sync.Mutex
	state    State
	progress Progress
}

func NewRun(id string, initiator int64, snap Snapshot, recipients []Recipient) *Run {
	return &Run{
		ID:        id,
		Initiator: initiator,
		Snapshot:  snap,
		Recipient: recipients,
		StartedAt: time.Now(),
		state:     StatePending,
	}
}

func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Confirm moves Pending -> Confirmed. Only the initiator may confirm, and
// only once.
func (r *Run) Confirm(actor int64) error { return r.decide(actor, StateConfirmed) }

// Cancel moves Pending -> Cancelled (terminal).
func (r *Run) Cancel(actor int64) error { return r.decide(actor, StateCancelled) }

// Edit moves Pending -> Editing (terminal): the operator is told to amend the
// source message and start over; nothing carries forward.
func (r *Run) Edit(actor int64) error { return r.decide(actor, StateEditing) }

func (r *Run) decide(actor int64, next State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if actor != r.Initiator {
		return ErrNotInitiator
	}
	if r.state != StatePending {
		return ErrAlreadyDecided
	}
	r.state = next
	return nil
}

// Timeout moves Pending -> TimedOut. Reports false when the run was already
// decided (the timer lost the race), which callers treat as a no-op.
func (r *Run) Timeout() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StatePending {
		return false
	}
	r.state = StateTimedOut
	return true
}

// Record adds one delivery outcome and returns the updated tally.
func (r *Run) Record(succeeded bool) Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Sent++
	if succeeded {
		r.progress.Succeeded++
	} else {
		r.progress.Failed++
	}
	return r.progress
}

func (r *Run) Progress() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// Complete moves Confirmed -> Completed once delivery has finished.
func (r *Run) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateConfirmed {
		r.state = StateCompleted
	}
}
