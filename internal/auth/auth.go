package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sort"
	"strings"
)

const (
	// RoleAsker may ask questions and read the schema.
	RoleAsker = "asker"
	// RoleMemoryAdmin may read and clear conversation memory.
	RoleMemoryAdmin = "memory_admin"
)

var knownRoles = map[string]struct{}{
	RoleAsker:       {},
	RoleMemoryAdmin: {},
}

type Identity struct {
	Principal string
	Roles     []string
}

func (i Identity) HasRole(role string) bool {
	for _, candidate := range i.Roles {
		if candidate == role {
			return true
		}
	}
	return false
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type staticKey struct {
	key      string
	identity Identity
}

// StaticAPIKeyValidator checks keys from a "key:principal:role|role,..." list.
type StaticAPIKeyValidator struct {
	keys []staticKey
}

func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	seen := map[string]struct{}{}
	for _, entry := range strings.Split(spec, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:principal:role|role", entry)
		}
		key := strings.TrimSpace(parts[0])
		principal := strings.TrimSpace(parts[1])
		if key == "" || principal == "" {
			return nil, fmt.Errorf("invalid static key entry %q: empty key/principal", entry)
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate static key for principal %q", principal)
		}
		seen[key] = struct{}{}

		roles := make([]string, 0, 2)
		for _, role := range strings.Split(strings.TrimSpace(parts[2]), "|") {
			role = strings.TrimSpace(role)
			if role == "" {
				continue
			}
			if _, ok := knownRoles[role]; !ok {
				return nil, fmt.Errorf("invalid static key entry for %q: unknown role %q", principal, role)
			}
			roles = append(roles, role)
		}
		if len(roles) == 0 {
			return nil, fmt.Errorf("invalid static key entry for %q: at least one role is required", principal)
		}
		sort.Strings(roles)
		validator.keys = append(validator.keys, staticKey{key: key, identity: Identity{Principal: principal, Roles: roles}})
	}
	return validator, nil
}

// Validate compares in constant time against every configured key.
func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	var (
		match Identity
		found bool
	)
	for _, candidate := range v.keys {
		if subtle.ConstantTimeCompare([]byte(candidate.key), []byte(apiKey)) == 1 {
			match = candidate.identity
			found = true
		}
	}
	return match, found
}
