package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/kalambet/optilead/internal/subscription"
)

// Route prefixes classified by the subscription gate.
var (
	publicAPIRoutes = []string{
		"/api/auth",
		"/api/stripe",
		"/api/default-prompt",
	}
	protectedAPIRoutes = []string{
		"/api/call-prospect",
		"/api/lead-scoring",
		"/api/email-personalization",
		"/api/drip-campaigns",
		"/api/analytics",
	}
)

// classifyRoutes marks responses from subscription-gated routes with
// X-Requires-Subscription. Enforcement is left to requireSubscription.
func classifyRoutes(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requiresSubscription(r.URL.Path) {
			w.Header().Set("X-Requires-Subscription", "true")
		}
		next.ServeHTTP(w, r)
	})
}

func requiresSubscription(path string) bool {
	if !strings.HasPrefix(path, "/api/") {
		return false
	}
	for _, p := range publicAPIRoutes {
		if strings.HasPrefix(path, p) {
			return false
		}
	}
	for _, p := range protectedAPIRoutes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// requireSubscription rejects callers without an active subscription. A nil
// verifier lets every request through.
func requireSubscription(v *subscription.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if v == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := v.Verify(r)
			if !res.Success {
				code := res.StatusCode
				if code == 0 {
					code = http.StatusPaymentRequired
				}
				writeJSON(w, code, res.ErrorBody())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// apiKeyAuth requires X-API-Key to equal key. An empty key disables the check.
func apiKeyAuth(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				httpError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
