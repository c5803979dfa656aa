package sessionkit

import (
	"errors"
	"testing"
)

func TestParseRoleAcceptsClosedSet(t *testing.T) {
	cases := map[string]Role{
		"user":      RoleUser,
		"moderator": RoleModerator,
		"admin":     RoleAdmin,
		" Admin ":   RoleAdmin,
		"USER":      RoleUser,
	}
	for input, expected := range cases {
		parsed, err := ParseRole(input)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", input, err)
		}
		if parsed != expected {
			t.Fatalf("expected %s for %q, got %s", expected, input, parsed)
		}
	}
}

func TestParseRoleRejectsUnknownValues(t *testing.T) {
	for _, input := range []string{"", "superuser", "administrator", "root"} {
		if _, err := ParseRole(input); !errors.Is(err, ErrUnknownRole) {
			t.Fatalf("expected ErrUnknownRole for %q, got %v", input, err)
		}
	}
}

func TestHasCapability(t *testing.T) {
	if !HasCapability(RoleAdmin, []Role{RoleAdmin}) {
		t.Fatalf("admin should satisfy admin requirement")
	}
	if HasCapability(RoleUser, []Role{RoleAdmin, RoleModerator}) {
		t.Fatalf("user should not satisfy admin/moderator requirement")
	}
	if !HasCapability(RoleModerator, []Role{RoleAdmin, RoleModerator}) {
		t.Fatalf("moderator should satisfy admin/moderator requirement")
	}
	if !HasCapability(RoleUser, nil) {
		t.Fatalf("empty requirement should admit any valid role")
	}
	if HasCapability(Role("superuser"), nil) {
		t.Fatalf("invalid role should never be granted")
	}
}
