package call

import (
	"github.com/dkeye/LiveCall/internal/app/recording"
	"github.com/dkeye/LiveCall/internal/domain"
)

type NoticeKind int

const (
	NoticeIncomingCall NoticeKind = iota + 1
	NoticeActive
	NoticeRejected
	NoticeBusyRejected
	NoticeEnded
	NoticeTimedOut
	NoticeFailed
	NoticeRecordingReady
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeIncomingCall:
		return "incoming_call"
	case NoticeActive:
		return "active"
	case NoticeRejected:
		return "rejected"
	case NoticeBusyRejected:
		return "busy_rejected"
	case NoticeEnded:
		return "ended"
	case NoticeTimedOut:
		return "timed_out"
	case NoticeFailed:
		return "failed"
	case NoticeRecordingReady:
		return "recording_ready"
	default:
		return "unknown"
	}
}

// Reasons attached to NoticeEnded.
const (
	ReasonLocal    = "local"
	ReasonRemote   = "remote"
	ReasonDeclined = "declined"
	ReasonCanceled = "canceled"
	ReasonAborted  = "aborted"
	ReasonShutdown = "shutdown"
)

// Notice is what the presentation layer learns about a call.
type Notice struct {
	Kind     NoticeKind
	Partner  domain.User
	Reason   string
	Err      error
	Artifact *recording.Artifact
}
