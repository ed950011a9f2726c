package middleware

import (
	"net/http"
	"strings"

	"github.com/menezmethod/cartografia/internal/apierror"
	"github.com/menezmethod/cartografia/internal/auth"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

// Auth returns middleware that resolves the caller's API key. The key is
// read from a Bearer token or, for map clients that cannot set headers,
// from the KEY query parameter. Requests without a key continue
// anonymously; requests with an unknown key receive a 401.
func Auth(ks *auth.KeyStore) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, present, ok := extractKey(r)
			if !present {
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				apierror.Write(w, apierror.Unauthorized("Malformed credentials. Expected: Authorization: Bearer <api_key> or KEY=<api_key>"))
				return
			}

			if err := ks.Validate(key); err != nil {
				apierror.Write(w, apierror.Unauthorized("Invalid API key."))
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithKey(r.Context(), key)))
		})
	}
}

// extractKey returns the key sent with r. present is false when the client
// sent no credentials at all; ok is false when they were malformed.
func extractKey(r *http.Request) (key string, present, ok bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		const prefix = "Bearer "
		if !strings.HasPrefix(h, prefix) {
			return "", true, false
		}
		token := strings.TrimSpace(h[len(prefix):])
		return token, true, token != ""
	}

	for name, values := range r.URL.Query() {
		if strings.EqualFold(name, "key") && len(values) > 0 {
			token := strings.TrimSpace(values[0])
			return token, true, token != ""
		}
	}
	return "", false, false
}
