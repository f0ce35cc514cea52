package domain

import (
	"fmt"
	"time"
)

type CallState int

const (
	CallIdle CallState = iota
	CallOutboundRinging
	CallInboundRinging
	CallActive
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallOutboundRinging:
		return "outbound_ringing"
	case CallInboundRinging:
		return "inbound_ringing"
	case CallActive:
		return "active"
	default:
		return "unknown"
	}
}

func (s CallState) Ringing() bool {
	return s == CallOutboundRinging || s == CallInboundRinging
}

type Direction int

const (
	Outbound Direction = iota + 1
	Inbound
)

func (d Direction) String() string {
	switch d {
	case Outbound:
		return "outbound"
	case Inbound:
		return "inbound"
	default:
		return "none"
	}
}

// CallSession is an immutable view of the current call. The zero value is
// the idle session.
type CallSession struct {
	Partner        User
	Direction      Direction
	State          CallState
	StartedAt      *time.Time
	ElapsedSeconds int
	Muted          bool
	Recording      bool
}

func (s CallSession) Idle() bool { return s.State == CallIdle }

// FormatDuration renders seconds as m:ss.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
