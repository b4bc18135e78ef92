package connector

import (
	"fmt"
	"net"
	"net/url"
	"sync"
)

// EndpointLocks serializes outbound requests per remote host:port. Entries are created on
// first use and never removed, so the table only grows for the life of the process.
type EndpointLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEndpointLocks creates an empty lock table.
func NewEndpointLocks() *EndpointLocks {
	return &EndpointLocks{locks: make(map[string]*sync.Mutex)}
}

// For returns the mutex for key, creating it if needed. The table lock is held only for
// the lookup; callers hold the returned mutex for the whole exchange.
func (l *EndpointLocks) For(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}

// Len is the number of endpoints seen so far.
func (l *EndpointLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// EndpointKey derives the host:port key of a target URL. A missing port is filled in from
// the scheme.
func EndpointKey(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https":
			port = "443"
		case "http", "":
			port = "80"
		default:
			return "", fmt.Errorf("url %q has no port and unknown scheme %q", rawURL, u.Scheme)
		}
	}
	return net.JoinHostPort(host, port), nil
}
