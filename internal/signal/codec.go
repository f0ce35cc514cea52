package signal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/dkeye/LiveCall/internal/domain"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrMalformed    = errors.New("malformed frame")
)

// Envelope is the frame layout on the wire. From is stamped by the relay.
type Envelope struct {
	Event Event            `json:"event"`
	From  domain.ChannelID `json:"from,omitempty"`
	Data  json.RawMessage  `json:"data,omitempty"`
}

// Inbound is a decoded frame together with its sender channel.
type Inbound struct {
	From domain.ChannelID
	Msg  Message
}

func Encode(msg Message) ([]byte, error) {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Event(), err)
	}
	return sonic.Marshal(Envelope{Event: msg.Event(), Data: data})
}

func Decode(frame []byte) (Inbound, error) {
	var env Envelope
	if err := sonic.Unmarshal(frame, &env); err != nil {
		return Inbound{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	msg, err := decodeData(env.Event, env.Data)
	if err != nil {
		return Inbound{}, err
	}
	return Inbound{From: env.From, Msg: msg}, nil
}

func decodeData(ev Event, data []byte) (Message, error) {
	switch ev {
	case EventConnected:
		return into[Connected](ev, data)
	case EventUserOnline:
		return into[UserOnline](ev, data)
	case EventOnlineUsers:
		return into[OnlineUsers](ev, data)
	case EventCallRequest:
		return into[CallRequest](ev, data)
	case EventCallAccepted:
		return into[CallAccepted](ev, data)
	case EventCallRejected:
		return into[CallRejected](ev, data)
	case EventOffer:
		return into[Offer](ev, data)
	case EventAnswer:
		return into[Answer](ev, data)
	case EventCandidate:
		return into[Candidate](ev, data)
	case EventCallEnded:
		return into[CallEnded](ev, data)
	case EventError:
		return into[Error](ev, data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, ev)
	}
}

func into[T Message](ev Event, data []byte) (Message, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := sonic.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, ev, err)
	}
	return v, nil
}
