package auth

import (
	"crypto/subtle"
	"log/slog"

	"github.com/dskvich/kalypso-relay/pkg/domain"
)

type accessGate struct {
	secret []byte
}

// NewAccessGate guards the site with a single shared code. An empty secret
// locks everyone out.
func NewAccessGate(secret string) *accessGate {
	if secret == "" {
		slog.Warn("Access code is not configured, unlock requests will be rejected")
	}

	return &accessGate{
		secret: []byte(secret),
	}
}

func (a *accessGate) Configured() bool {
	return len(a.secret) > 0
}

func (a *accessGate) Check(code string) error {
	if !a.Configured() {
		return domain.ErrAccessNotConfigured
	}
	if subtle.ConstantTimeCompare([]byte(code), a.secret) != 1 {
		return domain.ErrAccessDenied
	}
	return nil
}
