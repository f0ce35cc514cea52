// Package signal defines the events exchanged over the signaling channel.
package signal

import (
	"github.com/dkeye/LiveCall/internal/domain"
	"github.com/pion/webrtc/v4"
)

type Event string

const (
	EventConnected    Event = "connected"
	EventUserOnline   Event = "user-online"
	EventOnlineUsers  Event = "online-users"
	EventCallRequest  Event = "call-request"
	EventCallAccepted Event = "call-accepted"
	EventCallRejected Event = "call-rejected"
	EventOffer        Event = "webrtc-offer"
	EventAnswer       Event = "webrtc-answer"
	EventCandidate    Event = "webrtc-ice-candidate"
	EventCallEnded    Event = "call-ended"
	EventError        Event = "error"
)

// Routed reports whether the relay forwards the event to the channel named
// in its "to" field.
func (e Event) Routed() bool {
	switch e {
	case EventCallRequest, EventCallAccepted, EventCallRejected,
		EventOffer, EventAnswer, EventCandidate, EventCallEnded:
		return true
	}
	return false
}

// CarriesCaller reports whether the relay attaches the sender's identity.
func (e Event) CarriesCaller() bool {
	return e == EventCallRequest || e == EventCallAccepted || e == EventOffer
}

// RejectBusy is the reason attached to automatic rejections.
const RejectBusy = "busy"

// Message is one of the payload types below.
type Message interface {
	Event() Event
}

// Connected is the first frame the relay sends on a new channel.
type Connected struct {
	ChannelID domain.ChannelID `json:"channelId"`
}

type UserOnline domain.User

type OnlineUsers []domain.User

type CallRequest struct {
	To     domain.ChannelID `json:"to,omitempty"`
	Caller *domain.User     `json:"caller,omitempty"`
}

type CallAccepted struct {
	To     domain.ChannelID `json:"to,omitempty"`
	Caller *domain.User     `json:"caller,omitempty"`
}

type CallRejected struct {
	To     domain.ChannelID `json:"to,omitempty"`
	Reason string           `json:"reason,omitempty"`
}

type Offer struct {
	Offer  webrtc.SessionDescription `json:"offer"`
	To     domain.ChannelID          `json:"to,omitempty"`
	Caller *domain.User              `json:"caller,omitempty"`
}

type Answer struct {
	Answer webrtc.SessionDescription `json:"answer"`
	To     domain.ChannelID          `json:"to,omitempty"`
}

type Candidate struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
	To        domain.ChannelID        `json:"to,omitempty"`
}

type CallEnded struct {
	To domain.ChannelID `json:"to,omitempty"`
}

// Error is sent by the relay when it cannot act on a frame.
type Error struct {
	Message string `json:"error"`
}

func (Connected) Event() Event    { return EventConnected }
func (UserOnline) Event() Event   { return EventUserOnline }
func (OnlineUsers) Event() Event  { return EventOnlineUsers }
func (CallRequest) Event() Event  { return EventCallRequest }
func (CallAccepted) Event() Event { return EventCallAccepted }
func (CallRejected) Event() Event { return EventCallRejected }
func (Offer) Event() Event        { return EventOffer }
func (Answer) Event() Event       { return EventAnswer }
func (Candidate) Event() Event    { return EventCandidate }
func (CallEnded) Event() Event    { return EventCallEnded }
func (Error) Event() Event        { return EventError }
