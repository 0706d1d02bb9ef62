package middleware

import (
	"net/http"
	"strings"

	"github.com/utafrali/EcommerceGo/webclient/pkg/httputil"
	"github.com/utafrali/EcommerceGo/webclient/pkg/logger"
)

// TokenValidator verifies a bearer token and returns its subject.
type TokenValidator func(token string) (subject string, err error)

// BearerAuth rejects requests without a valid bearer token with a 401 and
// stores the token subject in the request context.
func BearerAuth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, "missing authorization header")
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
				writeAuthError(w, "invalid authorization header format")
				return
			}

			sub, err := validate(token)
			if err != nil {
				writeAuthError(w, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(logger.WithSubject(r.Context(), sub)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, message string) {
	httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "UNAUTHORIZED", Message: message},
	})
}
