package app

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ringline/ringline/internal/core"
	"github.com/ringline/ringline/internal/domain"
)

// Presence maps durable user identities to their live connections.
// The reverse map lets a disconnect resolve its owner without scanning
// every user.
type Presence struct {
	mu    sync.RWMutex
	users map[domain.UserID]map[core.ConnID]core.SignalConnection
	owner map[core.ConnID]domain.UserID
}

func NewPresence() *Presence {
	return &Presence{
		users: make(map[domain.UserID]map[core.ConnID]core.SignalConnection),
		owner: make(map[core.ConnID]domain.UserID),
	}
}

// Register binds conn to uid. Re-registering the same pair is a no-op.
// A connection belongs to exactly one user; rebinding to a different
// user fails.
func (p *Presence) Register(uid domain.UserID, conn core.SignalConnection) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cid := conn.ID()
	if bound, ok := p.owner[cid]; ok {
		if bound == uid {
			return nil
		}
		return ErrAlreadyRegistered
	}

	set, ok := p.users[uid]
	if !ok {
		set = make(map[core.ConnID]core.SignalConnection)
		p.users[uid] = set
	}
	set[cid] = conn
	p.owner[cid] = uid
	log.Info().Str("module", "app.presence").Str("user", uid.String()).Str("conn", cid.String()).Msg("registered")
	return nil
}

// Unregister drops the connection and reports the owning user and how
// many of their connections remain. No-op when the connection was never
// registered.
func (p *Presence) Unregister(cid core.ConnID) (domain.UserID, int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	uid, ok := p.owner[cid]
	if !ok {
		return "", 0, false
	}
	delete(p.owner, cid)

	set := p.users[uid]
	delete(set, cid)
	remaining := len(set)
	if remaining == 0 {
		delete(p.users, uid)
	}
	log.Info().Str("module", "app.presence").Str("user", uid.String()).Str("conn", cid.String()).Int("remaining", remaining).Msg("unregistered")
	return uid, remaining, true
}

// Owner resolves a connection to its user, if bound.
func (p *Presence) Owner(cid core.ConnID) (domain.UserID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	uid, ok := p.owner[cid]
	return uid, ok
}

func (p *Presence) Online(uid domain.UserID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.users[uid]) > 0
}

// Notify fans v out to every live connection of uid. Offline users are a
// silent no-op: signaling is best-effort, at most once, never queued.
func (p *Presence) Notify(uid domain.UserID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.presence").Msg("notify marshal")
		return
	}

	p.mu.RLock()
	conns := make([]core.SignalConnection, 0, len(p.users[uid]))
	for _, c := range p.users[uid] {
		conns = append(conns, c)
	}
	p.mu.RUnlock()

	for _, c := range conns {
		if err := c.TrySend(core.Frame(b)); err != nil {
			log.Warn().Err(err).Str("module", "app.presence").Str("user", uid.String()).Str("conn", c.ID().String()).Msg("notify dropped")
		}
	}
}
