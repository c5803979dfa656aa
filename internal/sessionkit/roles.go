package sessionkit

import (
	"errors"
	"fmt"
	"strings"
)

// Role is the closed set of principal roles embedded in access tokens.
type Role string

const (
	// RoleUser is the default role for authenticated principals.
	RoleUser Role = "user"
	// RoleModerator grants content-moderation capabilities.
	RoleModerator Role = "moderator"
	// RoleAdmin grants administrative capabilities.
	RoleAdmin Role = "admin"
)

// ErrUnknownRole indicates a role string outside the closed set.
var ErrUnknownRole = errors.New("session.role.unknown")

// ParseRole maps a stored role string onto the closed set.
func ParseRole(value string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleUser:
		return RoleUser, nil
	case RoleModerator:
		return RoleModerator, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("session.role.parse.%q: %w", value, ErrUnknownRole)
	}
}

// Valid reports whether the role belongs to the closed set.
func (role Role) Valid() bool {
	_, err := ParseRole(string(role))
	return err == nil
}

// HasCapability reports whether the role satisfies any of the required roles.
// An empty requirement list admits every valid role.
func HasCapability(role Role, required []Role) bool {
	if !role.Valid() {
		return false
	}
	if len(required) == 0 {
		return true
	}
	for _, candidate := range required {
		if role == candidate {
			return true
		}
	}
	return false
}
