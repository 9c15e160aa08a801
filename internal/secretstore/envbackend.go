package secretstore

import (
	"context"
	"os"

	"github.com/turphai/boomwatch/internal/apperrors"
)

// EnvBackend reads secrets from environment variables; used for dev and for
// any deployment where secrets are injected by the orchestrator rather than
// a dedicated vault.
type EnvBackend struct{}

func (EnvBackend) Fetch(_ context.Context, key string) (string, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", apperrors.New(apperrors.KindAuthConfig, "secretstore", "missing secret "+key)
	}
	return v, nil
}
