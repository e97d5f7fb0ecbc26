// Package auth authenticates callers by API key and enforces permission scopes.
package auth

import (
	"context"
	"strings"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/Laisky/weather-mcp-gateway/internal/mcp/ctxkeys"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/keys"
	"github.com/Laisky/weather-mcp-gateway/library/log"
)

const bearerPrefix = "Bearer "

var (
	// ErrUnauthorized is the kind of every authentication failure.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is the kind of every permission failure.
	ErrForbidden = errors.New("forbidden")
)

// Error is an authentication or authorization failure with a caller-safe message.
type Error struct {
	kind    error
	message string
}

// Error returns the caller-safe message.
func (e *Error) Error() string {
	return e.message
}

// Unwrap exposes ErrUnauthorized or ErrForbidden.
func (e *Error) Unwrap() error {
	return e.kind
}

func unauthorized(message string) error {
	return &Error{kind: ErrUnauthorized, message: message}
}

func forbidden(message string) error {
	return &Error{kind: ErrForbidden, message: message}
}

// Context is the authenticated caller of a single request. It is immutable.
type Context struct {
	key         string
	clientName  string
	permissions []string
}

// NewContext builds a caller context. It is mostly useful in tests.
func NewContext(key, clientName string, permissions ...string) *Context {
	return &Context{
		key:         key,
		clientName:  clientName,
		permissions: append([]string(nil), permissions...),
	}
}

// Key returns the raw API key.
func (c *Context) Key() string {
	if c == nil {
		return ""
	}
	return c.key
}

// ClientName returns the client identity bound to the key.
func (c *Context) ClientName() string {
	if c == nil {
		return ""
	}
	return c.clientName
}

// Permissions returns a copy of the granted scopes.
func (c *Context) Permissions() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.permissions...)
}

// HasPermission reports whether the scope is granted.
func (c *Context) HasPermission(permission string) bool {
	if c == nil {
		return false
	}
	for _, p := range c.permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// MaskedKey returns a non-sensitive key suffix suitable for logs.
func (c *Context) MaskedKey() string {
	if c == nil || c.key == "" {
		return ""
	}
	return keys.MaskKey(c.key)
}

// Authenticator resolves credentials against a key registry.
type Authenticator struct {
	registry *keys.Registry
	logger   logSDK.Logger
}

// NewAuthenticator constructs an Authenticator bound to registry.
func NewAuthenticator(registry *keys.Registry, logger logSDK.Logger) (*Authenticator, error) {
	if registry == nil {
		return nil, errors.New("key registry is required")
	}
	if logger == nil {
		logger = log.Logger.Named("auth")
	}

	return &Authenticator{registry: registry, logger: logger}, nil
}

// Authenticate resolves the raw Authorization header value into a caller context.
// Both "Bearer <key>" and a bare "<key>" are accepted.
func (a *Authenticator) Authenticate(header string) (*Context, error) {
	if strings.TrimSpace(header) == "" {
		return nil, unauthorized("missing credential")
	}

	apiKey := ExtractAPIKey(header)
	rec, ok := a.registry.Lookup(apiKey)
	if !ok {
		a.logger.Warn("invalid api key attempted", zap.String("key", keys.MaskKey(apiKey)))
		return nil, unauthorized("invalid key")
	}

	a.logger.Debug("authenticated client", zap.String("client", rec.ClientName))
	return &Context{
		key:         rec.Key,
		clientName:  rec.ClientName,
		permissions: rec.Permissions,
	}, nil
}

// ExtractAPIKey strips a literal "Bearer " prefix, otherwise returns header unchanged.
func ExtractAPIKey(header string) string {
	if strings.HasPrefix(header, bearerPrefix) {
		return header[len(bearerPrefix):]
	}

	return header
}

// RequirePermission checks that an authenticated caller holds permission.
// Call it at every site that needs the scope; the decision is never cached.
func RequirePermission(ctx *Context, permission string) (*Context, error) {
	if ctx == nil {
		return nil, unauthorized("missing credential")
	}
	if !ctx.HasPermission(permission) {
		return nil, forbidden("Permission '" + permission + "' required")
	}

	return ctx, nil
}

// IsUnauthorized reports whether err is an authentication failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsForbidden reports whether err is a permission failure.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// WithContext stores the caller on a request context.
func WithContext(ctx context.Context, auth *Context) context.Context {
	if ctx == nil || auth == nil {
		return ctx
	}

	return context.WithValue(ctx, ctxkeys.AuthContext, auth)
}

// FromContext retrieves the caller from a request context.
func FromContext(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return nil, false
	}

	auth, ok := ctx.Value(ctxkeys.AuthContext).(*Context)
	if !ok || auth == nil {
		return nil, false
	}

	return auth, true
}
