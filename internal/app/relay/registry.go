package relay

import (
	"context"
	"sort"
	"sync"

	"github.com/dkeye/LiveCall/internal/core"
	"github.com/dkeye/LiveCall/internal/domain"
	"github.com/rs/zerolog/log"
)

type channelEntry struct {
	User   *domain.User
	Conn   core.SignalConnection
	Cancel context.CancelFunc
}

// Registry maps live channels to their connection and announced user.
type Registry struct {
	mu       sync.RWMutex
	channels map[domain.ChannelID]*channelEntry
}

func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[domain.ChannelID]*channelEntry),
	}
}

func (r *Registry) Bind(ch domain.ChannelID, conn core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch] = &channelEntry{Conn: conn, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("channel", string(ch)).Msg("bound channel")
}

// Announce records the user behind ch. A user announcing from a new
// channel replaces any older channel of the same user in the roster.
func (r *Registry) Announce(ch domain.ChannelID, u domain.User) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.channels[ch]
	if !ok {
		return false
	}
	u = u.WithChannel(ch)
	for other, oe := range r.channels {
		if other != ch && oe.User != nil && oe.User.UserID == u.UserID {
			oe.User = nil
			log.Info().Str("module", "app.registry").Str("channel", string(other)).Msg("superseded announcement")
		}
	}
	e.User = &u
	log.Info().Str("module", "app.registry").Str("channel", string(ch)).Str("user", string(u.UserID)).Msg("announced user")
	return true
}

func (r *Registry) Conn(ch domain.ChannelID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.channels[ch]; ok {
		return e.Conn, true
	}
	return nil, false
}

func (r *Registry) UserOf(ch domain.ChannelID) (domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.channels[ch]
	if !ok || e.User == nil {
		return domain.User{}, false
	}
	return *e.User, true
}

func (r *Registry) Unbind(ch domain.ChannelID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[ch]; !ok {
		return false
	}
	delete(r.channels, ch)
	log.Info().Str("module", "app.registry").Str("channel", string(ch)).Msg("unbind channel")
	return true
}

// Online lists announced users ordered by name.
func (r *Registry) Online() []domain.User {
	r.mu.RLock()
	out := make([]domain.User, 0, len(r.channels))
	for _, e := range r.channels {
		if e.User != nil {
			out = append(out, *e.User)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ChannelID < out[j].ChannelID
	})
	return out
}

type regSnap struct {
	Channel domain.ChannelID
	Conn    core.SignalConnection
}

func (r *Registry) All() []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, len(r.channels))
	for ch, e := range r.channels {
		out = append(out, regSnap{Channel: ch, Conn: e.Conn})
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

func (r *Registry) Cancel(ch domain.ChannelID) bool {
	r.mu.RLock()
	e, ok := r.channels[ch]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("channel", string(ch)).Msg("canceled channel")
	return true
}
