package auth

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HTTPMiddleware authenticates every request and injects the caller into its context.
func HTTPMiddleware(authn *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			return nil
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, err := authn.Authenticate(r.Header.Get("Authorization"))
			if err != nil {
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), authCtx)))
		})
	}
}

// StatusCode maps an auth failure to an HTTP status.
func StatusCode(err error) int {
	switch {
	case IsUnauthorized(err):
		return http.StatusUnauthorized
	case IsForbidden(err):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes a standardized JSON body for auth failures.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusCode(err)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": err.Error()})
}

// GinAuthenticate is the gin flavour of HTTPMiddleware.
func GinAuthenticate(authn *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authCtx, err := authn.Authenticate(c.GetHeader("Authorization"))
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.Request = c.Request.WithContext(WithContext(c.Request.Context(), authCtx))
		c.Next()
	}
}

// GinRequirePermission guards a route with a permission scope.
// It must be chained after GinAuthenticate.
func GinRequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authCtx, _ := FromContext(c.Request.Context())
		if _, err := RequirePermission(authCtx, permission); err != nil {
			abortWithError(c, err)
			return
		}

		c.Next()
	}
}

func abortWithError(c *gin.Context, err error) {
	status := StatusCode(err)
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
