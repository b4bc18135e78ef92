package methods

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/morezero/remote-connectors/pkg/wire"
)

const registryLogPrefix = "methods:registry"

// Provider is a named owner of descriptors; connectors implement it.
type Provider interface {
	Name() string
	Descriptors() []*Descriptor
	CheckPassword(password string) bool
}

// Entry binds a descriptor to the provider that registered it.
type Entry struct {
	Descriptor *Descriptor
	Provider   Provider
}

// Registry indexes descriptors by wire name. Several overloads may share a name as long as
// the argument counts they accept do not overlap. A built Registry is never mutated and is
// safe for concurrent readers without locking.
type Registry struct {
	methods   map[string][]*Entry
	providers []string
	count     int
}

// Build indexes the descriptors of providers in order. A provider whose name was already
// indexed is skipped, so the first registration of a name wins. Descriptors without an
// implementation cannot be served and are not indexed.
func Build(providers ...Provider) (*Registry, error) {
	r := &Registry{methods: make(map[string][]*Entry)}
	seen := make(map[string]bool)

	for _, p := range providers {
		if p == nil {
			continue
		}
		if seen[p.Name()] {
			slog.Debug(fmt.Sprintf("%s - skipping duplicate provider %s", registryLogPrefix, p.Name()))
			continue
		}
		seen[p.Name()] = true
		r.providers = append(r.providers, p.Name())

		for _, d := range p.Descriptors() {
			if d == nil || !d.HasImpl() {
				continue
			}
			name := d.WireName()
			for _, existing := range r.methods[name] {
				if overlaps(existing.Descriptor, d) {
					err := wire.NewError(wire.CodeRegistrationConflict,
						fmt.Sprintf("%s (%s) conflicts with %s (%s)", d, p.Name(), existing.Descriptor, existing.Provider.Name()))
					err.Details = map[string]interface{}{
						"method":    name,
						"providers": []string{existing.Provider.Name(), p.Name()},
					}
					return nil, err
				}
			}
			r.methods[name] = append(r.methods[name], &Entry{Descriptor: d, Provider: p})
			r.count++
		}
	}

	slog.Info(fmt.Sprintf("%s - indexed %d methods from %d providers", registryLogPrefix, r.count, len(r.providers)))
	return r, nil
}

func overlaps(a, b *Descriptor) bool {
	return a.Required() <= b.Arity() && b.Required() <= a.Arity()
}

// Lookup finds the unique overload of name that accepts argCount arguments.
func (r *Registry) Lookup(name string, argCount int) (*Entry, error) {
	var found *Entry
	for _, e := range r.methods[name] {
		if e.Descriptor.Accepts(argCount) {
			if found != nil {
				// Unreachable for a registry produced by Build.
				return nil, wire.NewError(wire.CodeMethodNotFound, fmt.Sprintf("%s/%d is ambiguous", name, argCount))
			}
			found = e
		}
	}
	if found == nil {
		return nil, wire.NewError(wire.CodeMethodNotFound, fmt.Sprintf("%s/%d", name, argCount))
	}
	return found, nil
}

// Overloads returns every entry registered under name.
func (r *Registry) Overloads(name string) []*Entry {
	out := make([]*Entry, len(r.methods[name]))
	copy(out, r.methods[name])
	return out
}

// Names returns the sorted wire names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Providers returns the indexed provider names in registration order.
func (r *Registry) Providers() []string {
	return append([]string(nil), r.providers...)
}

// Len is the number of indexed descriptors.
func (r *Registry) Len() int {
	return r.count
}
