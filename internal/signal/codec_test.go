package signal

import (
	"testing"

	"github.com/dkeye/LiveCall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestEncodeEnvelopeLayout(t *testing.T) {
	b, err := Encode(CallRequest{To: "ch-b"})
	require.NoError(t, err)

	assert.Equal(t, "call-request", gjson.GetBytes(b, "event").String())
	assert.Equal(t, "ch-b", gjson.GetBytes(b, "data.to").String())
	assert.False(t, gjson.GetBytes(b, "data.caller").Exists())
	assert.False(t, gjson.GetBytes(b, "from").Exists())
}

func TestDecodeInboundCallRequest(t *testing.T) {
	frame := []byte(`{"event":"call-request","from":"ch-a","data":{"caller":{"userId":"u-a","name":"alice","channelId":"ch-a"}}}`)

	in, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelID("ch-a"), in.From)

	req, ok := in.Msg.(CallRequest)
	require.True(t, ok)
	require.NotNil(t, req.Caller)
	assert.Equal(t, domain.UserID("u-a"), req.Caller.UserID)
	assert.Equal(t, "alice", req.Caller.Name)
}

func TestOfferRoundTrip(t *testing.T) {
	sdp := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"}
	b, err := Encode(Offer{Offer: sdp, To: "ch-b"})
	require.NoError(t, err)
	assert.Equal(t, "offer", gjson.GetBytes(b, "data.offer.type").String())

	in, err := Decode(b)
	require.NoError(t, err)
	got, ok := in.Msg.(Offer)
	require.True(t, ok)
	assert.Equal(t, sdp, got.Offer)
}

func TestCandidateRoundTrip(t *testing.T) {
	mid := "0"
	idx := uint16(0)
	c := webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2130706431 10.0.0.1 5000 typ host", SDPMid: &mid, SDPMLineIndex: &idx}

	b, err := Encode(Candidate{Candidate: c, To: "ch-b"})
	require.NoError(t, err)
	in, err := Decode(b)
	require.NoError(t, err)

	got, ok := in.Msg.(Candidate)
	require.True(t, ok)
	assert.Equal(t, c.Candidate, got.Candidate.Candidate)
	require.NotNil(t, got.Candidate.SDPMid)
	assert.Equal(t, "0", *got.Candidate.SDPMid)
}

func TestDecodeOnlineUsers(t *testing.T) {
	frame := []byte(`{"event":"online-users","data":[{"userId":"u1","name":"a","channelId":"c1"},{"name":"nobody"}]}`)
	in, err := Decode(frame)
	require.NoError(t, err)
	users, ok := in.Msg.(OnlineUsers)
	require.True(t, ok)
	assert.Len(t, users, 2)
}

func TestDecodeEmptyPayload(t *testing.T) {
	in, err := Decode([]byte(`{"event":"call-ended","from":"ch-a"}`))
	require.NoError(t, err)
	assert.Equal(t, CallEnded{}, in.Msg)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte(`{"event":"dance","data":{}}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte(`{"event":"webrtc-answer","data":"oops"}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEventClassification(t *testing.T) {
	assert.True(t, EventCandidate.Routed())
	assert.False(t, EventUserOnline.Routed())
	assert.True(t, EventOffer.CarriesCaller())
	assert.False(t, EventAnswer.CarriesCaller())
}
