package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRoleIdempotent(t *testing.T) {
	for _, role := range []string{"admin", "ROLE_admin", " user ", "ROLE_ROLE_x"} {
		once := NormalizeRole(role)
		assert.Equal(t, once, NormalizeRole(once), "role %q", role)
	}
	assert.Equal(t, "ROLE_admin", NormalizeRole("admin"))
	assert.Equal(t, "ROLE_admin", NormalizeRole("ROLE_admin"))
	assert.Equal(t, "", NormalizeRole("   "))
}

func TestNewStateNormalizesAndDedupes(t *testing.T) {
	issued := time.Unix(1700000000, 0)
	s := NewState("alice", []string{"admin", "ROLE_admin", "", "user"}, issued)

	assert.Equal(t, "alice", s.Principal())
	assert.Equal(t, []string{"ROLE_admin", "ROLE_user"}, s.Capabilities())
	assert.True(t, s.HasCapability("admin"))
	assert.True(t, s.HasCapability("ROLE_user"))
	assert.False(t, s.HasCapability("moderator"))
	assert.Equal(t, issued, s.IssuedAt())
}

func TestStateCapabilitiesAreCopies(t *testing.T) {
	s := NewState("alice", []string{"user"}, time.Now())
	caps := s.Capabilities()
	caps[0] = "ROLE_root"
	assert.Equal(t, []string{"ROLE_user"}, s.Capabilities())
}
