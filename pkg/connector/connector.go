package connector

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/remote-connectors/pkg/methods"
)

const connectorLogPrefix = "connector:connector"

// Mode decides where a connector's calls run.
type Mode int

const (
	// LocalOnly runs calls in-process and refuses non-forced remote calls.
	LocalOnly Mode = iota
	// RemoteAllowed runs locally when an implementation exists and remotely otherwise.
	RemoteAllowed
	// RemoteOnly sends every call to a remote endpoint.
	RemoteOnly
)

func (m Mode) String() string {
	switch m {
	case LocalOnly:
		return "LocalOnly"
	case RemoteAllowed:
		return "RemoteAllowed"
	case RemoteOnly:
		return "RemoteOnly"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Connector is a named group of methods with a shared secret. Concrete connectors embed or
// wrap one and register their descriptors at construction time.
type Connector struct {
	name     string
	password string

	mu      sync.RWMutex
	rt      *Runtime
	enabled bool
	mode    Mode
	descs   []*methods.Descriptor
}

// New creates an unregistered connector.
func New(name, password string) *Connector {
	return &Connector{name: name, password: password}
}

// Name implements methods.Provider.
func (c *Connector) Name() string { return c.name }

// Register adds descriptors. Call before Init.
func (c *Connector) Register(descs ...*methods.Descriptor) *Connector {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.descs = append(c.descs, descs...)
	return c
}

// Descriptors implements methods.Provider.
func (c *Connector) Descriptors() []*methods.Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*methods.Descriptor, len(c.descs))
	copy(out, c.descs)
	return out
}

// Descriptor returns the first descriptor with the given Go-side name.
func (c *Connector) Descriptor(name string) (*methods.Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.descs {
		if d.Name() == name {
			return d, true
		}
	}
	return nil, false
}

// CheckPassword implements methods.Provider with a constant-time comparison.
func (c *Connector) CheckPassword(password string) bool {
	return subtle.ConstantTimeCompare([]byte(c.password), []byte(password)) == 1
}

// Init attaches the connector to rt and enables it. Process-wide remote calls switch the
// connector to RemoteOnly. A second Init is a no-op.
func (c *Connector) Init(rt *Runtime) {
	c.mu.Lock()
	if c.rt != nil {
		c.mu.Unlock()
		return
	}
	c.rt = rt
	c.enabled = true
	if rt.Settings().RemoteCalls {
		c.mode = RemoteOnly
	}
	mode := c.mode
	c.mu.Unlock()

	rt.add(c)
	slog.Debug(fmt.Sprintf("%s - %s initialized in %s mode", connectorLogPrefix, c.name, mode))
}

// Initialized reports whether Init has run.
func (c *Connector) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rt != nil
}

// Runtime returns the runtime the connector was initialized with, or nil.
func (c *Connector) Runtime() *Runtime {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rt
}

// Enabled reports whether the connector accepts non-forced calls.
func (c *Connector) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// SetEnabled toggles the enable switch.
func (c *Connector) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

// Mode returns the current mode.
func (c *Connector) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// SetMode sets the mode.
func (c *Connector) SetMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
}

// SetRemoteCalls turns remote calls on (RemoteOnly) or off (LocalOnly).
func (c *Connector) SetRemoteCalls(on bool) {
	if on {
		c.SetMode(RemoteOnly)
		return
	}
	c.SetMode(LocalOnly)
}

// RemoteCalls reports whether non-forced remote calls are permitted.
func (c *Connector) RemoteCalls() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled && c.mode != LocalOnly
}
