package core

import "errors"

var (
	// ErrMediaUnavailable means local audio could not be acquired.
	ErrMediaUnavailable = errors.New("media unavailable")
	// ErrNegotiationFailure is any rejection of a description or candidate.
	ErrNegotiationFailure = errors.New("negotiation failure")
	// ErrTransportDisconnected means the signaling channel is gone.
	ErrTransportDisconnected = errors.New("transport disconnected")
	// ErrBusy is the outcome of calling a user who is already in a call.
	ErrBusy = errors.New("busy")
	// ErrNoLocalStream is returned when recording starts without capture.
	ErrNoLocalStream = errors.New("no local stream")

	ErrAlreadyRecording = errors.New("already recording")
	ErrEngineClosed     = errors.New("engine closed")
	ErrInvalidState     = errors.New("invalid state")
	ErrNotIdle          = errors.New("call already in progress")
	ErrUnknownUser      = errors.New("user not online")
	ErrBackpressure     = errors.New("backpressure")
	ErrStopped          = errors.New("stopped")
)
