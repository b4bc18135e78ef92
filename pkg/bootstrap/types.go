// Package bootstrap loads the services file: the candidate endpoints of each service key,
// per-subject overrides and static session grants.
package bootstrap

// Endpoint is one candidate URI. Lower Priority is tried first.
type Endpoint struct {
	URI      string `json:"uri"`
	Priority int    `json:"priority"`
	Version  string `json:"version,omitempty"`
}

// SessionGrant is a session allowed to call methods up to ThreatLevel.
type SessionGrant struct {
	ThreatLevel string `json:"threatLevel"`
	UserID      string `json:"userId,omitempty"`
}

// ServicesConfig is the root of the services file.
type ServicesConfig struct {
	Name        string                           `json:"name"`
	Version     string                           `json:"version"`
	Description string                           `json:"description,omitempty"`
	Services    map[string][]Endpoint            `json:"services"`
	Subjects    map[string]map[string][]Endpoint `json:"subjects,omitempty"`
	Aliases     map[string]string                `json:"aliases,omitempty"`
	Sessions    map[string]SessionGrant          `json:"sessions,omitempty"`
}

// ResolveAlias maps an alias onto its service key; unknown names are returned unchanged.
func (c *ServicesConfig) ResolveAlias(key string) string {
	if target, ok := c.Aliases[key]; ok {
		return target
	}
	return key
}

// Endpoints returns the shared endpoints of key (after alias resolution).
func (c *ServicesConfig) Endpoints(key string) []Endpoint {
	return c.Services[c.ResolveAlias(key)]
}

// SubjectEndpoints returns subjectID's own endpoints for key.
func (c *ServicesConfig) SubjectEndpoints(subjectID, key string) []Endpoint {
	if subjectID == "" {
		return nil
	}
	return c.Subjects[subjectID][c.ResolveAlias(key)]
}
