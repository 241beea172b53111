package gateway

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/soyeahso/parley/internal/config"
)

// ResolvedAuth holds the resolved auth configuration for the gateway.
// An empty token disables auth entirely.
type ResolvedAuth struct {
	Token string
}

// Enabled reports whether requests must carry credentials.
func (a ResolvedAuth) Enabled() bool { return a.Token != "" }

// ResolveAuth resolves the gateway token from config and environment.
// Precedence: config value, then PARLEY_GATEWAY_TOKEN.
func ResolveAuth(cfg config.GatewayAuth) ResolvedAuth {
	token := cfg.Token
	if token == "" {
		token = os.Getenv("PARLEY_GATEWAY_TOKEN")
	}
	return ResolvedAuth{Token: token}
}

// Authorize checks the Authorization header of a request against the
// resolved auth. Always true when auth is disabled.
func (a ResolvedAuth) Authorize(r *http.Request) bool {
	if !a.Enabled() {
		return true
	}
	header := r.Header.Get("Authorization")
	provided, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return safeEqual(provided, a.Token)
}

// safeEqual performs a constant-time string comparison to prevent
// timing attacks.
func safeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
