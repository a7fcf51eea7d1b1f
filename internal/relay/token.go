package relay

import (
	"context"
	"fmt"
	"os"
)

// EnvTokenProvider reads a bearer token from an environment variable on
// every call — the simplest TokenProvider, suited to a long-lived token
// issued out of band. Anything with refresh/rotation semantics should
// implement TokenProvider itself rather than extend this type.
type EnvTokenProvider struct {
	envName string
}

// NewEnvTokenProvider builds a TokenProvider backed by envName.
func NewEnvTokenProvider(envName string) EnvTokenProvider {
	return EnvTokenProvider{envName: envName}
}

func (p EnvTokenProvider) Token(ctx context.Context) (string, error) {
	v := os.Getenv(p.envName)
	if v == "" {
		return "", fmt.Errorf("relay: env var %s is not set", p.envName)
	}
	return v, nil
}
