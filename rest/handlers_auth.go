package rest

import (
	"time"

	"github.com/beyondbound/api/auth"
	"github.com/beyondbound/api/middleware/guard"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

// RefreshCookieName is the cookie the login handler stores the refresh
// token under.
const RefreshCookieName = "refresh_token"

// AuthHandler serves the register/login/refresh/logout/me endpoints.
type AuthHandler struct {
	auther     *auth.Auther
	refreshTTL time.Duration
	logger     auth.Logger
}

func NewAuthHandler(auther *auth.Auther, refreshTTL time.Duration, logger auth.Logger) *AuthHandler {
	if logger == nil {
		logger = auth.DefaultLogger()
	}
	return &AuthHandler{
		auther:     auther,
		refreshTTL: refreshTTL,
		logger:     logger,
	}
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.Name, validation.Required),
	)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Register creates an account with the default role and no session; clients
// log in afterwards.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var payload RegisterRequest
	if err := parseBody(c, &payload); err != nil {
		return err
	}
	if err := payload.Validate(); err != nil {
		return err
	}

	user, err := h.auther.Register(c.UserContext(), payload.Email, payload.Password, payload.Name)
	if err != nil {
		return err
	}

	return respond(c, fiber.StatusCreated, user, "User registered successfully")
}

// Login exchanges credentials for a token pair. The refresh token is also
// set as an HTTP-only cookie so browser clients never have to store it.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var payload LoginRequest
	if err := parseBody(c, &payload); err != nil {
		return err
	}
	if err := payload.Validate(); err != nil {
		return err
	}

	pair, err := h.auther.Login(c.UserContext(), payload.Email, payload.Password)
	if err != nil {
		return err
	}

	h.setRefreshCookie(c, pair.RefreshToken)

	return respond(c, fiber.StatusOK, pair, "Login successful")
}

// Refresh trades a refresh token for a fresh pair. The token comes from the
// request body, falling back to the login cookie.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var payload RefreshRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &payload); err != nil {
			return err
		}
	}
	if payload.RefreshToken == "" {
		payload.RefreshToken = c.Cookies(RefreshCookieName)
	}
	if payload.RefreshToken == "" {
		return auth.ErrInvalidRefreshToken
	}

	pair, err := h.auther.Refresh(c.UserContext(), payload.RefreshToken)
	if err != nil {
		return err
	}

	return respond(c, fiber.StatusOK, pair, "Token refreshed successfully")
}

// Me returns the authenticated user resolved by the guard.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := guard.CurrentUser(c)
	if user == nil {
		return auth.ErrInvalidToken
	}
	return respond(c, fiber.StatusOK, user, "User retrieved successfully")
}

// Logout clears the refresh cookie. There is no token store, so a logout
// with no session is still a success.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.clearRefreshCookie(c)
	return respond(c, fiber.StatusOK, nil, "Logout successful")
}

func (h *AuthHandler) setRefreshCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		MaxAge:   int(h.refreshTTL.Seconds()),
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// parseBody decodes a JSON payload, reporting malformed bodies as 400s.
func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body").
			WithTextCode(textCodeValidation).
			WithCode(goerrors.CodeBadRequest)
	}
	return nil
}
