package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/morezero/remote-connectors/pkg/bootstrap"
	"github.com/morezero/remote-connectors/pkg/db"
	"github.com/morezero/remote-connectors/pkg/methods"
)

func TestStaticPolicy(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewStaticPolicy()
	p.now = func() time.Time { return now }

	p.Grant("medium", methods.ThreatMedium, 0)
	p.Grant("short", methods.ThreatFull, time.Minute)

	ctx := context.Background()
	assert.True(t, p.Authorize(ctx, "medium", "Get", methods.ThreatLow))
	assert.True(t, p.Authorize(ctx, "medium", "Get", methods.ThreatMedium))
	assert.False(t, p.Authorize(ctx, "medium", "Store", methods.ThreatHigh))
	assert.False(t, p.Authorize(ctx, "unknown", "Get", methods.ThreatNone))
	assert.True(t, p.Authorize(ctx, "short", "Store", methods.ThreatFull))

	now = now.Add(time.Minute)
	assert.False(t, p.Authorize(ctx, "short", "Store", methods.ThreatFull), "expired")

	p.Revoke("medium")
	assert.False(t, p.Authorize(ctx, "medium", "Get", methods.ThreatLow))
}

func TestFromServicesConfig(t *testing.T) {
	p := FromServicesConfig(&bootstrap.ServicesConfig{Sessions: map[string]bootstrap.SessionGrant{
		"ok":  {ThreatLevel: "high"},
		"bad": {ThreatLevel: "extreme"},
	}})
	ctx := context.Background()
	assert.True(t, p.Authorize(ctx, "ok", "X", methods.ThreatHigh))
	assert.False(t, p.Authorize(ctx, "bad", "X", methods.ThreatNone))

	assert.NotNil(t, FromServicesConfig(nil))
}

type stubStore struct {
	sessions map[string]*db.Session
	err      error
}

func (s *stubStore) GetSession(_ context.Context, id string) (*db.Session, error) {
	return s.sessions[id], s.err
}

func TestDBPolicy(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	store := &stubStore{sessions: map[string]*db.Session{
		"low":     {SessionID: "low", ThreatLevel: int(methods.ThreatLow)},
		"expired": {SessionID: "expired", ThreatLevel: int(methods.ThreatFull), ExpiresAt: &past},
	}}
	p := NewDBPolicy(store)
	p.now = func() time.Time { return now }

	ctx := context.Background()
	assert.True(t, p.Authorize(ctx, "low", "Get", methods.ThreatLow))
	assert.False(t, p.Authorize(ctx, "low", "Get", methods.ThreatMedium))
	assert.False(t, p.Authorize(ctx, "expired", "Get", methods.ThreatNone))
	assert.False(t, p.Authorize(ctx, "missing", "Get", methods.ThreatNone))

	store.err = errors.New("db down")
	assert.False(t, p.Authorize(ctx, "low", "Get", methods.ThreatLow))
}

func TestAnyAndDenyAll(t *testing.T) {
	ctx := context.Background()
	static := NewStaticPolicy()
	static.Grant("s", methods.ThreatLow, 0)

	assert.False(t, DenyAll{}.Authorize(ctx, "s", "X", methods.ThreatNone))
	assert.True(t, Any{DenyAll{}, static}.Authorize(ctx, "s", "X", methods.ThreatLow))
	assert.False(t, Any{DenyAll{}, static}.Authorize(ctx, "s", "X", methods.ThreatHigh))
	assert.False(t, Any{}.Authorize(ctx, "s", "X", methods.ThreatNone))
}
