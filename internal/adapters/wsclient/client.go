// Package wsclient is the softphone side of the signaling transport.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/LiveCall/internal/core"
	"github.com/dkeye/LiveCall/internal/signal"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 32
)

// Handler receives everything the relay sends. Calls come from the read
// goroutine, in arrival order.
type Handler interface {
	OnMessage(signal.Inbound)
	OnDisconnected(error)
}

type Client struct {
	url    string
	delay  time.Duration
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *conn
}

// New creates a client for url. delay is the pause between reconnects.
func New(url string, delay time.Duration) *Client {
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &Client{
		url:    url,
		delay:  delay,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Send queues msg on the live connection.
func (c *Client) Send(msg signal.Message) error {
	frame, err := signal.Encode(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	cn := c.conn
	c.mu.Unlock()
	if cn == nil {
		return core.ErrTransportDisconnected
	}
	return cn.TrySend(frame)
}

// Run keeps a connection to the relay until ctx is done, redialing after
// every loss.
func (c *Client) Run(ctx context.Context, h Handler) error {
	for {
		err := c.session(ctx, h)
		if ctx.Err() != nil {
			return nil
		}
		log.Warn().Err(err).Str("module", "wsclient").Dur("retry_in", c.delay).Msg("signaling connection lost")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.delay):
		}
	}
}

// session serves one connection. It reports the loss to h only when the
// dial succeeded.
func (c *Client) session(ctx context.Context, h Handler) error {
	ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	log.Info().Str("module", "wsclient").Str("url", c.url).Msg("connected to relay")

	cn := &conn{ws: ws, send: make(chan core.Frame, sendBuffer)}
	c.mu.Lock()
	c.conn = cn
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		cn.writePump(ctx)
	}()
	go func() {
		<-ctx.Done()
		<-flushed
		cn.Close()
	}()

	err = c.readLoop(cn, h)

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	cn.Close()
	h.OnDisconnected(fmt.Errorf("%w: %w", core.ErrTransportDisconnected, err))
	return err
}

func (c *Client) readLoop(cn *conn, h Handler) error {
	for {
		_, data, err := cn.ws.ReadMessage()
		if err != nil {
			return err
		}
		in, err := signal.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "wsclient").Msg("dropping frame")
			continue
		}
		h.OnMessage(in)
	}
}

var errClosed = errors.New("connection closed")

type conn struct {
	ws   *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *conn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errClosed
	}
	select {
	case c.send <- f:
		return nil
	default:
		return core.ErrBackpressure
	}
}

func (c *conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
}

// writePump sends queued frames. On shutdown it flushes what is already
// queued, so a farewell sent just before cancel still goes out.
func (c *conn) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.flush()
			return
		case data, ok := <-c.send:
			if !ok || !c.write(data) {
				return
			}
		}
	}
}

func (c *conn) flush() {
	for {
		select {
		case data, ok := <-c.send:
			if !ok || !c.write(data) {
				return
			}
		default:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

func (c *conn) write(data core.Frame) bool {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Error().Err(err).Str("module", "wsclient").Msg("write error")
		return false
	}
	return true
}
