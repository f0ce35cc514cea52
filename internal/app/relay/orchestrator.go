// Package relay is the signaling relay: it assigns channels, keeps the
// online roster and forwards addressed events between channels.
package relay

import (
	"context"
	"errors"

	"github.com/dkeye/LiveCall/internal/core"
	"github.com/dkeye/LiveCall/internal/domain"
	"github.com/dkeye/LiveCall/internal/metrics"
	"github.com/dkeye/LiveCall/internal/signal"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

type Orchestrator struct {
	Registry *Registry
	Policy   Policy
	Metrics  *metrics.Relay
}

func NewOrchestrator(reg *Registry, policy Policy, m *metrics.Relay) *Orchestrator {
	if reg == nil {
		reg = NewRegistry()
	}
	if m == nil {
		m = metrics.NewRelay(nil)
	}
	return &Orchestrator{Registry: reg, Policy: policy, Metrics: m}
}

// Connect binds a fresh channel and tells the client its address and the
// current roster.
func (o *Orchestrator) Connect(ch domain.ChannelID, conn core.SignalConnection, cancel context.CancelFunc) {
	o.Registry.Bind(ch, conn, cancel)
	o.Metrics.Channels.Set(float64(o.Registry.Len()))
	o.send(ch, conn, signal.Connected{ChannelID: ch})
	o.send(ch, conn, signal.OnlineUsers(o.Registry.Online()))
}

// Disconnect forgets ch. Peers learn about it through the next roster.
func (o *Orchestrator) Disconnect(ch domain.ChannelID) {
	_, wasOnline := o.Registry.UserOf(ch)
	if !o.Registry.Unbind(ch) {
		return
	}
	o.Metrics.Channels.Set(float64(o.Registry.Len()))
	if wasOnline {
		o.broadcastRoster()
	}
}

// OnFrame handles one frame read from ch.
func (o *Orchestrator) OnFrame(ch domain.ChannelID, frame core.Frame) {
	ev := signal.Event(gjson.GetBytes(frame, "event").String())
	switch {
	case ev == signal.EventUserOnline:
		o.announce(ch, frame)
	case ev.Routed():
		o.route(ch, ev, frame)
	default:
		log.Warn().Str("module", "app.relay").Str("channel", string(ch)).Str("event", string(ev)).Msg("unknown event")
		o.reject(ch, "unknown event")
	}
}

func (o *Orchestrator) announce(ch domain.ChannelID, frame core.Frame) {
	in, err := signal.Decode(frame)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Str("channel", string(ch)).Msg("bad announce")
		o.reject(ch, "bad_payload")
		return
	}
	u := domain.User(in.Msg.(signal.UserOnline))
	if _, err := domain.NewUser(u.UserID, u.Name); err != nil {
		o.reject(ch, err.Error())
		return
	}
	if o.Registry.Announce(ch, u) {
		o.broadcastRoster()
	}
}

func (o *Orchestrator) route(ch domain.ChannelID, ev signal.Event, frame core.Frame) {
	to := domain.ChannelID(gjson.GetBytes(frame, "data.to").String())
	if to == "" {
		o.reject(ch, "missing recipient")
		return
	}
	conn, ok := o.Registry.Conn(to)
	if !ok {
		o.Metrics.Dropped.WithLabelValues("no_recipient").Inc()
		log.Info().Str("module", "app.relay").Str("channel", string(ch)).Str("to", string(to)).Str("event", string(ev)).Msg("recipient offline")
		o.reject(ch, "recipient offline")
		return
	}

	out, err := sjson.SetBytes(frame, "from", string(ch))
	if err == nil {
		out, err = sjson.DeleteBytes(out, "data.to")
	}
	if err == nil && ev.CarriesCaller() {
		sender, ok := o.Registry.UserOf(ch)
		if !ok {
			o.reject(ch, "announce first")
			return
		}
		out, err = sjson.SetBytes(out, "data.caller", sender)
	}
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Str("event", string(ev)).Msg("rewrite frame")
		o.reject(ch, "bad_payload")
		return
	}
	o.deliver(to, conn, out, ev)
}

func (o *Orchestrator) deliver(to domain.ChannelID, conn core.SignalConnection, frame core.Frame, ev signal.Event) {
	err := conn.TrySend(frame)
	if err == nil {
		o.Metrics.Routed.WithLabelValues(string(ev)).Inc()
		return
	}
	if !errors.Is(err, core.ErrBackpressure) {
		o.Metrics.Dropped.WithLabelValues("closed").Inc()
		return
	}
	o.Metrics.Dropped.WithLabelValues("backpressure").Inc()
	if o.Policy == nil {
		return
	}
	switch o.Policy.OnBackPressure(to) {
	case KickChannel:
		o.Kick(to)
	case DropFrame, NoAction:
	}
}

// Kick closes ch and forgets it.
func (o *Orchestrator) Kick(ch domain.ChannelID) {
	conn, ok := o.Registry.Conn(ch)
	if !ok {
		return
	}
	log.Warn().Str("module", "app.relay").Str("channel", string(ch)).Msg("kicking slow channel")
	o.Metrics.Kicked.Inc()
	o.Registry.Cancel(ch)
	conn.Close()
	o.Disconnect(ch)
}

func (o *Orchestrator) broadcastRoster() {
	online := o.Registry.Online()
	o.Metrics.Online.Set(float64(len(online)))
	frame, err := signal.Encode(signal.OnlineUsers(online))
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("encode roster")
		return
	}
	for _, snap := range o.Registry.All() {
		o.deliver(snap.Channel, snap.Conn, frame, signal.EventOnlineUsers)
	}
}

func (o *Orchestrator) reject(ch domain.ChannelID, reason string) {
	if conn, ok := o.Registry.Conn(ch); ok {
		o.send(ch, conn, signal.Error{Message: reason})
	}
}

func (o *Orchestrator) send(ch domain.ChannelID, conn core.SignalConnection, msg signal.Message) {
	frame, err := signal.Encode(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("encode")
		return
	}
	o.deliver(ch, conn, frame, msg.Event())
}
