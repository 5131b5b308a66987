// Package guard provides fiber middleware that authenticates requests with
// access tokens and resolves the bearer to a stored user record.
package guard

import (
	"strings"

	"github.com/beyondbound/api/auth"
	"github.com/beyondbound/api/users"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

var (
	defaultTokenLookup = "header:" + fiber.HeaderAuthorization
	// ErrMissingToken is returned by extractors when no credential is present
	ErrMissingToken = goerrors.New("missing or malformed access token", goerrors.CategoryAuth).
			WithTextCode(auth.TextCodeInvalidToken).
			WithCode(goerrors.CodeUnauthorized)
)

// ErrorHandler decides how an authentication failure is rendered. The default
// passes the error to the application error handler; the admin panel swaps in
// a redirect to its login page.
type ErrorHandler func(c *fiber.Ctx, err error) error

type Config struct {
	// Filter skips the guard entirely when it returns true
	Filter func(c *fiber.Ctx) bool
	// Tokens verifies access tokens. Required.
	Tokens auth.TokenService
	// Store resolves the token subject to a live user record. Required.
	Store auth.UserStore
	// ContextKey is the locals key the resolved user is stored under
	ContextKey string
	// TokenLookup is a comma separated list of "<source>:<name>" entries,
	// e.g. "header:Authorization,cookie:access_token"
	TokenLookup string
	// AuthScheme is the expected prefix for header extraction
	AuthScheme   string
	ErrorHandler ErrorHandler
	Logger       auth.Logger
}

func configDefault(config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Tokens == nil {
		panic("guard: Config.Tokens is required")
	}
	if cfg.Store == nil {
		panic("guard: Config.Store is required")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}
	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}
	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c *fiber.Ctx, err error) error {
			return err
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = auth.DefaultLogger()
	}

	return cfg
}

// DefaultContextKey is where the guard stores the resolved user in locals.
const DefaultContextKey = "current_user"

// New returns middleware that verifies the access token on every request and
// stores the resolved user in locals. Every verification failure is reported
// as the same opaque unauthorized error.
func New(config ...Config) fiber.Handler {
	cfg := configDefault(config...)
	extractors := tokenExtractors(cfg.TokenLookup, cfg.AuthScheme)

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		raw, err := extractToken(c, extractors)
		if err != nil {
			return cfg.ErrorHandler(c, auth.ErrInvalidToken)
		}

		claims, err := cfg.Tokens.Verify(raw, auth.TokenKindAccess)
		if err != nil {
			cfg.Logger.Debug("access token rejected: %v", err)
			return cfg.ErrorHandler(c, auth.ErrInvalidToken)
		}

		id, err := claims.UserID()
		if err != nil {
			cfg.Logger.Debug("access token subject %q is not a user id", claims.Subject())
			return cfg.ErrorHandler(c, auth.ErrInvalidToken)
		}

		user, err := cfg.Store.GetByID(c.UserContext(), id)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return cfg.ErrorHandler(c, auth.ErrUserNotFound)
			}
			cfg.Logger.Error("guard user lookup failed: %v", err)
			return cfg.ErrorHandler(c, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve authenticated user"))
		}

		c.Locals(cfg.ContextKey, user)

		return c.Next()
	}
}

// RequireActive rejects requests whose authenticated user is deactivated.
// Mount after New.
func RequireActive(config ...Config) fiber.Handler {
	cfg := requirementConfig(config...)

	return func(c *fiber.Ctx) error {
		user := userFromLocals(c, cfg.ContextKey)
		if user == nil {
			return cfg.ErrorHandler(c, auth.ErrInvalidToken)
		}
		if !user.IsActive {
			return cfg.ErrorHandler(c, auth.ErrInactiveUser)
		}
		return c.Next()
	}
}

// RequireRole rejects authenticated users whose role is not in the allowed
// set. Mount after New.
func RequireRole(allowed []users.Role, config ...Config) fiber.Handler {
	cfg := requirementConfig(config...)

	return func(c *fiber.Ctx) error {
		user := userFromLocals(c, cfg.ContextKey)
		if user == nil {
			return cfg.ErrorHandler(c, auth.ErrInvalidToken)
		}
		for _, role := range allowed {
			if user.Role == role {
				return c.Next()
			}
		}
		return cfg.ErrorHandler(c, goerrors.New("insufficient privileges", goerrors.CategoryAuthz).
			WithTextCode("FORBIDDEN").
			WithCode(goerrors.CodeForbidden))
	}
}

// requirementConfig builds defaults for the post-auth checks, which never
// need the token or store wiring.
func requirementConfig(config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c *fiber.Ctx, err error) error {
			return err
		}
	}
	return cfg
}

// CurrentUser returns the user resolved by New, or nil when the request was
// not guarded.
func CurrentUser(c *fiber.Ctx) *users.User {
	return userFromLocals(c, DefaultContextKey)
}

func userFromLocals(c *fiber.Ctx, key string) *users.User {
	user, _ := c.Locals(key).(*users.User)
	return user
}

type extractor func(c *fiber.Ctx) (string, error)

func extractToken(c *fiber.Ctx, extractors []extractor) (string, error) {
	var raw string
	var err error

	for _, extract := range extractors {
		raw, err = extract(c)
		if raw != "" && err == nil {
			return raw, nil
		}
	}

	if err == nil {
		err = ErrMissingToken
	}

	return "", err
}

// tokenExtractors parses a lookup string such as
// "header:Authorization,cookie:access_token" into extractor funcs.
func tokenExtractors(tokenLookup, authScheme string) []extractor {
	extractors := make([]extractor, 0)

	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.Split(strings.TrimSpace(rootPart), ":")
		if len(parts) != 2 {
			continue
		}

		name := strings.TrimSpace(parts[1])

		switch strings.TrimSpace(parts[0]) {
		case "header":
			extractors = append(extractors, tokenFromHeader(name, authScheme))
		case "cookie":
			extractors = append(extractors, tokenFromCookie(name))
		case "query":
			extractors = append(extractors, tokenFromQuery(name))
		}
	}

	return extractors
}

func tokenFromHeader(header, authScheme string) extractor {
	return func(c *fiber.Ctx) (string, error) {
		a := c.Get(header)
		l := len(authScheme)
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", ErrMissingToken
	}
}

func tokenFromCookie(name string) extractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrMissingToken
		}
		return token, nil
	}
}

func tokenFromQuery(param string) extractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Query(param)
		if token == "" {
			return "", ErrMissingToken
		}
		return token, nil
	}
}
