// Package mute toggles transmission of the local audio tracks.
package mute

import (
	"sync"

	"github.com/dkeye/LiveCall/internal/core"
)

// Controller holds the mute flag for the current call. Muting never
// renegotiates and is never signaled to the partner.
type Controller struct {
	mu    sync.Mutex
	muted bool
}

func New() *Controller { return &Controller{} }

// Toggle flips the flag and applies it to every track of stream. Without a
// stream it is a no-op and reports the unchanged state.
func (c *Controller) Toggle(stream core.LocalStream) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stream == nil {
		return c.muted
	}
	c.muted = !c.muted
	for _, tr := range stream.AudioTracks() {
		tr.SetEnabled(!c.muted)
	}
	return c.muted
}

func (c *Controller) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// Reset clears the flag after teardown; the stream is already released.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.muted = false
	c.mu.Unlock()
}
