package auth

import (
	"slices"
	"strings"
	"time"
)

// RolePrefix is carried by every normalized capability.
const RolePrefix = "ROLE_"

// State is the authenticated identity attached to one session. It is never
// mutated after construction; accessors hand out copies.
type State struct {
	principal    string
	capabilities []string
	issuedAt     time.Time
}

// NewState builds a State for principal with roles normalized by NormalizeRole.
// Blank roles are dropped and duplicates collapse.
func NewState(principal string, roles []string, issuedAt time.Time) *State {
	caps := make([]string, 0, len(roles))
	for _, role := range roles {
		if normalized := NormalizeRole(role); normalized != "" {
			caps = append(caps, normalized)
		}
	}
	slices.Sort(caps)
	caps = slices.Compact(caps)

	return &State{
		principal:    principal,
		capabilities: caps,
		issuedAt:     issuedAt,
	}
}

// NormalizeRole returns role carrying RolePrefix exactly once.
// NormalizeRole(NormalizeRole(r)) == NormalizeRole(r).
func NormalizeRole(role string) string {
	role = strings.TrimSpace(role)
	if role == "" {
		return ""
	}
	if strings.HasPrefix(role, RolePrefix) {
		return role
	}
	return RolePrefix + role
}

// Principal returns the verified principal.
func (s *State) Principal() string {
	return s.principal
}

// Capabilities returns a sorted copy of the granted capabilities.
func (s *State) Capabilities() []string {
	return slices.Clone(s.capabilities)
}

// HasCapability reports whether the capability (prefixed or not) was granted.
func (s *State) HasCapability(capability string) bool {
	_, found := slices.BinarySearch(s.capabilities, NormalizeRole(capability))
	return found
}

// IssuedAt returns when the underlying credential was issued.
func (s *State) IssuedAt() time.Time {
	return s.issuedAt
}
