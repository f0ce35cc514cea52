package recording

import (
	"errors"
	"testing"
	"time"

	"github.com/dkeye/LiveCall/internal/core"
	"github.com/dkeye/LiveCall/internal/core/coretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopWithoutChunksReturnsNothing(t *testing.T) {
	stream := coretest.NewStream()
	c := New(nil)
	require.NoError(t, c.Start(stream))

	art, err := c.Stop()
	require.NoError(t, err)
	assert.Nil(t, art)
	assert.Equal(t, 0, stream.Taps())
	assert.False(t, c.Recording())
}

func TestStopKeepsCaptureOrder(t *testing.T) {
	stream := coretest.NewStream()
	c := New(nil)
	c.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }
	require.NoError(t, c.Start(stream))

	stream.Emit([]byte("a"), 20*time.Millisecond)
	stream.Emit([]byte("b"), 20*time.Millisecond)
	stream.Emit([]byte("c"), 20*time.Millisecond)

	art, err := c.Stop()
	require.NoError(t, err)
	require.NotNil(t, art)
	assert.Equal(t, []byte("abc"), art.Data)
	assert.Len(t, art.Chunks, 3)
	assert.Equal(t, MimeType, art.MimeType)
	assert.Equal(t, "call-recording-2024-03-01T10-00-00Z.webm", art.Name)

	// chunks after stop are not captured
	stream.Emit([]byte("d"), 20*time.Millisecond)
	again, err := c.Stop()
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestStartContract(t *testing.T) {
	c := New(nil)
	assert.ErrorIs(t, c.Start(nil), core.ErrNoLocalStream)

	stream := coretest.NewStream()
	require.NoError(t, c.Start(stream))
	assert.ErrorIs(t, c.Start(stream), core.ErrAlreadyRecording)
}

func TestMuxError(t *testing.T) {
	boom := errors.New("boom")
	c := New(MuxFunc(func([]Chunk) ([]byte, error) { return nil, boom }))
	stream := coretest.NewStream()
	require.NoError(t, c.Start(stream))
	stream.Emit([]byte("x"), time.Millisecond)

	art, err := c.Stop()
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, art)
	assert.False(t, c.Recording())
}
