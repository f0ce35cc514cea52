package relay

import "github.com/dkeye/LiveCall/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickChannel
)

type Policy interface {
	OnBackPressure(ch domain.ChannelID) BackpressureAction
}

// SimplePolicy disconnects a channel that cannot keep up. Its client
// reconnects and announces again.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.ChannelID) BackpressureAction {
	return KickChannel
}
