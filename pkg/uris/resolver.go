// Package uris resolves the ordered candidate endpoints of a call.
package uris

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/remote-connectors/pkg/bootstrap"
	"github.com/morezero/remote-connectors/pkg/db"
	"github.com/morezero/remote-connectors/pkg/semver"
)

const logPrefix = "uris:resolver"

// Resolver returns candidate URIs: the subject's own entries first, then the entries of the
// fallback service key, without duplicates.
type Resolver interface {
	ResolveCandidates(ctx context.Context, subjectID, fallbackKey string) ([]string, error)
}

// order filters and sorts each group and concatenates them, dropping repeated URIs.
func order(constraint *semver.Constraint, groups ...[]semver.Candidate) []string {
	seen := make(map[string]bool)
	var out []string
	for _, g := range groups {
		g = semver.Filter(g, constraint)
		semver.SortByPriority(g)
		for _, c := range g {
			if c.URI == "" || seen[c.URI] {
				continue
			}
			seen[c.URI] = true
			out = append(out, c.URI)
		}
	}
	return out
}

// StaticResolver serves candidates from a services file.
type StaticResolver struct {
	mu         sync.RWMutex
	cfg        *bootstrap.ServicesConfig
	constraint *semver.Constraint
}

// NewStaticResolver creates a resolver over cfg. constraint may be empty.
func NewStaticResolver(cfg *bootstrap.ServicesConfig, constraint string) (*StaticResolver, error) {
	c, err := semver.ParseConstraint(constraint)
	if err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}
	if cfg == nil {
		cfg = bootstrap.GetDefaultServicesConfig()
	}
	return &StaticResolver{cfg: cfg, constraint: c}, nil
}

// Replace swaps the services config, e.g. after a reload.
func (r *StaticResolver) Replace(cfg *bootstrap.ServicesConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
}

// ResolveCandidates implements Resolver.
func (r *StaticResolver) ResolveCandidates(_ context.Context, subjectID, fallbackKey string) ([]string, error) {
	r.mu.RLock()
	cfg := r.cfg
	r.mu.RUnlock()

	out := order(r.constraint,
		fromEndpoints(cfg.SubjectEndpoints(subjectID, fallbackKey)),
		fromEndpoints(cfg.Endpoints(fallbackKey)))
	slog.Debug(fmt.Sprintf("%s - %d candidates for subject=%q key=%s", logPrefix, len(out), subjectID, fallbackKey))
	return out, nil
}

func fromEndpoints(eps []bootstrap.Endpoint) []semver.Candidate {
	out := make([]semver.Candidate, len(eps))
	for i, e := range eps {
		out[i] = semver.Candidate{URI: e.URI, Priority: e.Priority, Version: e.Version}
	}
	return out
}

// ServiceURIStore is the slice of db.Repository the DB resolver needs.
type ServiceURIStore interface {
	ListServiceURIs(ctx context.Context, subjectID, serviceKey string) ([]db.ServiceURI, error)
}

// DBResolver serves candidates from the service_uris table.
type DBResolver struct {
	store      ServiceURIStore
	constraint *semver.Constraint
}

// NewDBResolver creates a resolver over store. constraint may be empty.
func NewDBResolver(store ServiceURIStore, constraint string) (*DBResolver, error) {
	c, err := semver.ParseConstraint(constraint)
	if err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}
	return &DBResolver{store: store, constraint: c}, nil
}

// ResolveCandidates implements Resolver.
func (r *DBResolver) ResolveCandidates(ctx context.Context, subjectID, fallbackKey string) ([]string, error) {
	var own []semver.Candidate
	if subjectID != "" {
		rows, err := r.store.ListServiceURIs(ctx, subjectID, fallbackKey)
		if err != nil {
			return nil, err
		}
		own = fromRows(rows)
	}
	rows, err := r.store.ListServiceURIs(ctx, "", fallbackKey)
	if err != nil {
		return nil, err
	}
	return order(r.constraint, own, fromRows(rows)), nil
}

func fromRows(rows []db.ServiceURI) []semver.Candidate {
	out := make([]semver.Candidate, len(rows))
	for i, s := range rows {
		out[i] = semver.Candidate{URI: s.URI, Priority: s.Priority, Version: s.Version}
	}
	return out
}

// Chain asks each resolver in turn and returns the first non-empty answer. Errors are
// logged and the next resolver is tried.
type Chain []Resolver

// ResolveCandidates implements Resolver.
func (c Chain) ResolveCandidates(ctx context.Context, subjectID, fallbackKey string) ([]string, error) {
	var lastErr error
	for _, r := range c {
		out, err := r.ResolveCandidates(ctx, subjectID, fallbackKey)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - resolver failed for %s: %v", logPrefix, fallbackKey, err))
			lastErr = err
			continue
		}
		if len(out) > 0 {
			return out, nil
		}
	}
	return nil, lastErr
}
