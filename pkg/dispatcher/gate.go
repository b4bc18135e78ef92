package dispatcher

import (
	"context"
	"fmt"

	"github.com/morezero/remote-connectors/pkg/methods"
	"github.com/morezero/remote-connectors/pkg/session"
	"github.com/morezero/remote-connectors/pkg/wire"
)

// SecurityGate checks a resolved call before it runs: threat level first, then the shared
// secret of methods that require one.
type SecurityGate struct {
	policy session.Policy
}

// NewSecurityGate creates a gate. A nil policy denies every session.
func NewSecurityGate(policy session.Policy) *SecurityGate {
	if policy == nil {
		policy = session.DenyAll{}
	}
	return &SecurityGate{policy: policy}
}

// Check returns a SECURITY_REJECTED error when the call may not run. Without a session only
// ThreatNone methods pass the level check.
func (g *SecurityGate) Check(ctx context.Context, sessionID string, entry *methods.Entry, env *wire.Envelope) error {
	d := entry.Descriptor
	level := d.ThreatLevel()

	if sessionID == "" {
		if level != methods.ThreatNone {
			return wire.NewError(wire.CodeSecurityRejected, fmt.Sprintf("%s requires a session (threat level %s)", d, level))
		}
	} else if !g.policy.Authorize(ctx, sessionID, d.WireName(), level) {
		return wire.NewError(wire.CodeSecurityRejected, fmt.Sprintf("session not authorized for %s (threat level %s)", d, level))
	}

	if d.UsePassword() {
		pw, ok := env.Password()
		if !ok || !entry.Provider.CheckPassword(pw) {
			return wire.NewError(wire.CodeSecurityRejected, fmt.Sprintf("%s: password check failed", d))
		}
	}
	return nil
}
