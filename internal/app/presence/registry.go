// Package presence tracks the local announcement and the online roster.
package presence

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dkeye/LiveCall/internal/core"
	"github.com/dkeye/LiveCall/internal/domain"
	"github.com/dkeye/LiveCall/internal/signal"
	"github.com/rs/zerolog/log"
)

type Registry struct {
	self domain.User
	tr   core.Transport

	mu     sync.RWMutex
	roster map[domain.UserID]domain.User
}

func New(self domain.User, tr core.Transport) *Registry {
	return &Registry{
		self:   self,
		tr:     tr,
		roster: make(map[domain.UserID]domain.User),
	}
}

func (r *Registry) Self() domain.User { return r.self }

// Announce sends user-online for the channel just established. It is sent
// again after every reconnect.
func (r *Registry) Announce(ch domain.ChannelID) error {
	if err := r.tr.Send(signal.UserOnline(r.self.WithChannel(ch))); err != nil {
		return fmt.Errorf("announce: %w", err)
	}
	log.Info().Str("module", "app.presence").Str("user", string(r.self.UserID)).Str("channel", string(ch)).Msg("announced")
	return nil
}

// OnRosterUpdate replaces the roster with users minus the local user.
// It returns the number of malformed entries dropped.
func (r *Registry) OnRosterUpdate(users []domain.User) int {
	next := make(map[domain.UserID]domain.User, len(users))
	dropped := 0
	for _, u := range users {
		if !u.Valid() {
			dropped++
			continue
		}
		if u.UserID == r.self.UserID {
			continue
		}
		next[u.UserID] = u
	}
	if dropped > 0 {
		log.Warn().Str("module", "app.presence").Int("dropped", dropped).Msg("roster entries without user id")
	}

	r.mu.Lock()
	r.roster = next
	r.mu.Unlock()
	log.Debug().Str("module", "app.presence").Int("online", len(next)).Msg("roster replaced")
	return dropped
}

func (r *Registry) Lookup(id domain.UserID) (domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.roster[id]
	return u, ok
}

// Snapshot returns the roster ordered by name, then id.
func (r *Registry) Snapshot() []domain.User {
	r.mu.RLock()
	out := make([]domain.User, 0, len(r.roster))
	for _, u := range r.roster {
		out = append(out, u)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// Reset empties the roster. Channel ids die with the connection.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.roster = make(map[domain.UserID]domain.User)
	r.mu.Unlock()
}
