package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
)

// Identity is the caller a valid API key resolves to.
type Identity struct {
	ClientID string
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type StaticAPIKeyValidator struct {
	keys []staticKey
}

type staticKey struct {
	key      string
	identity Identity
}

// NewStaticAPIKeyValidator parses a comma separated list of key:client
// entries. An empty spec yields a validator that accepts nothing.
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	seen := map[string]struct{}{}
	for _, entry := range strings.Split(spec, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:client", entry)
		}
		key := strings.TrimSpace(parts[0])
		client := strings.TrimSpace(parts[1])
		if key == "" || client == "" {
			return nil, fmt.Errorf("invalid static key entry %q: empty key/client", entry)
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("invalid static key entry %q: duplicate key", entry)
		}
		seen[key] = struct{}{}
		validator.keys = append(validator.keys, staticKey{key: key, identity: Identity{ClientID: client}})
	}

	return validator, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	if apiKey == "" {
		return Identity{}, false
	}
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

// Len reports how many keys are configured.
func (v *StaticAPIKeyValidator) Len() int {
	return len(v.keys)
}
