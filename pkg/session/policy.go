// Package session decides whether a session may call a method of a given threat level.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/remote-connectors/pkg/bootstrap"
	"github.com/morezero/remote-connectors/pkg/db"
	"github.com/morezero/remote-connectors/pkg/methods"
)

const logPrefix = "session:policy"

// Policy authorizes a session for a method. A session is authorized when it is known, not
// expired, and its granted level is at least the method's level.
type Policy interface {
	Authorize(ctx context.Context, sessionID, method string, level methods.ThreatLevel) bool
}

// DenyAll rejects every session.
type DenyAll struct{}

// Authorize implements Policy.
func (DenyAll) Authorize(context.Context, string, string, methods.ThreatLevel) bool { return false }

// Grant is a session's maximum threat level and optional expiry.
type Grant struct {
	Level     methods.ThreatLevel
	ExpiresAt time.Time
}

func (g Grant) allows(level methods.ThreatLevel, now time.Time) bool {
	if !g.ExpiresAt.IsZero() && !now.Before(g.ExpiresAt) {
		return false
	}
	return level <= g.Level
}

// StaticPolicy keeps grants in memory.
type StaticPolicy struct {
	mu     sync.RWMutex
	grants map[string]Grant
	now    func() time.Time
}

// NewStaticPolicy creates an empty policy.
func NewStaticPolicy() *StaticPolicy {
	return &StaticPolicy{grants: make(map[string]Grant), now: time.Now}
}

// FromServicesConfig builds a policy from the sessions of a services file. Entries with an
// unknown level are skipped.
func FromServicesConfig(cfg *bootstrap.ServicesConfig) *StaticPolicy {
	p := NewStaticPolicy()
	if cfg == nil {
		return p
	}
	for id, g := range cfg.Sessions {
		level, err := methods.ParseThreatLevel(g.ThreatLevel)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - session %s: %v", logPrefix, id, err))
			continue
		}
		p.Grant(id, level, 0)
	}
	return p
}

// Grant allows sessionID up to level. A zero ttl never expires.
func (p *StaticPolicy) Grant(sessionID string, level methods.ThreatLevel, ttl time.Duration) {
	g := Grant{Level: level}
	if ttl > 0 {
		g.ExpiresAt = p.now().Add(ttl)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.grants[sessionID] = g
}

// Revoke removes sessionID.
func (p *StaticPolicy) Revoke(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.grants, sessionID)
}

// Authorize implements Policy.
func (p *StaticPolicy) Authorize(_ context.Context, sessionID, method string, level methods.ThreatLevel) bool {
	p.mu.RLock()
	g, ok := p.grants[sessionID]
	p.mu.RUnlock()
	if !ok {
		slog.Debug(fmt.Sprintf("%s - unknown session for %s", logPrefix, method))
		return false
	}
	return g.allows(level, p.now())
}

// SessionStore is the slice of db.Repository the DB policy needs.
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (*db.Session, error)
}

// DBPolicy reads grants from the sessions table.
type DBPolicy struct {
	store SessionStore
	now   func() time.Time
}

// NewDBPolicy creates a policy over store.
func NewDBPolicy(store SessionStore) *DBPolicy {
	return &DBPolicy{store: store, now: time.Now}
}

// Authorize implements Policy. Lookup errors deny.
func (p *DBPolicy) Authorize(ctx context.Context, sessionID, method string, level methods.ThreatLevel) bool {
	s, err := p.store.GetSession(ctx, sessionID)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - session lookup for %s failed: %v", logPrefix, method, err))
		return false
	}
	if s == nil {
		return false
	}
	g := Grant{Level: methods.ThreatLevel(s.ThreatLevel)}
	if s.ExpiresAt != nil {
		g.ExpiresAt = *s.ExpiresAt
	}
	return g.allows(level, p.now())
}

// Any authorizes when one of its policies does.
type Any []Policy

// Authorize implements Policy.
func (a Any) Authorize(ctx context.Context, sessionID, method string, level methods.ThreatLevel) bool {
	for _, p := range a {
		if p.Authorize(ctx, sessionID, method, level) {
			return true
		}
	}
	return false
}
