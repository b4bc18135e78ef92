package semver

import (
	"sort"

	masterminds "github.com/Masterminds/semver/v3"
)

// Candidate is an endpoint with its priority and advertised protocol version.
type Candidate struct {
	URI      string
	Priority int
	Version  string
}

// Filter keeps the candidates whose version satisfies c, preserving order.
func Filter(candidates []Candidate, c *Constraint) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if c.Allows(cand.Version) {
			out = append(out, cand)
		}
	}
	return out
}

// SortByPriority orders candidates by ascending priority; ties go to the higher version,
// and remaining ties keep their input order.
func SortByPriority(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return versionGreater(a.Version, b.Version)
	})
}

func versionGreater(a, b string) bool {
	va, errA := masterminds.NewVersion(a)
	vb, errB := masterminds.NewVersion(b)
	switch {
	case errA != nil && errB != nil:
		return false
	case errB != nil:
		return true
	case errA != nil:
		return false
	}
	return va.GreaterThan(vb)
}
