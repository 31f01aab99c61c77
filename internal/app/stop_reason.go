package app

import "sync/atomic"

// StopReason distinguishes a plain shutdown from one that should be followed
// by a restart. The process exit code carries the intent to the service
// manager: 0 means restart (unit configured with Restart=on-success), any
// other code means stay down.
type StopReason int32

const (
	StopUnknown StopReason = iota
	StopPlain
	StopRestart
)

// reasonCell is a set-once cell: the first recorded reason wins.
type reasonCell struct {
	v atomic.Int32
}

func (c *reasonCell) Set(r StopReason) {
	c.v.CompareAndSwap(int32(StopUnknown), int32(r))
}

func (c *reasonCell) Get() StopReason {
	return StopReason(c.v.Load())
}

// ExitCode maps the recorded reason to the process exit status.
func (r StopReason) ExitCode() int {
	if r == StopRestart {
		return 0
	}
	return 1
}
