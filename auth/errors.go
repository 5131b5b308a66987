package auth

import (
	goerrors "github.com/goliatone/go-errors"
)

// Text codes surfaced to API clients in error envelopes.
const (
	TextCodeEmailExists         = "EMAIL_EXISTS"
	TextCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	TextCodeInactiveUser        = "INACTIVE_USER"
	TextCodeInvalidToken        = "INVALID_TOKEN"
	TextCodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	TextCodeInvalidUser         = "INVALID_USER"
	TextCodeUserNotFound        = "USER_NOT_FOUND"
	TextCodeEmptyPassword       = "EMPTY_PASSWORD"
)

// ErrEmailExists is returned when registering with an email that is taken
var ErrEmailExists = goerrors.New("email already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailExists).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidCredentials covers both unknown email and wrong password so the
// two cases are indistinguishable to clients
var ErrInvalidCredentials = goerrors.New("incorrect email or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrInactiveUser is returned when a deactivated account authenticates
var ErrInactiveUser = goerrors.New("user account is inactive", goerrors.CategoryAuthz).
	WithTextCode(TextCodeInactiveUser).
	WithCode(goerrors.CodeForbidden)

// ErrInvalidToken is the single opaque outcome for every access-token verify
// failure; which one occurred is for diagnostics only, never the client
var ErrInvalidToken = goerrors.New("could not validate credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidRefreshToken is the refresh equivalent of ErrInvalidToken
var ErrInvalidRefreshToken = goerrors.New("invalid refresh token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidRefreshToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidUser is returned when a refresh token resolves to a missing or
// inactive account
var ErrInvalidUser = goerrors.New("user not found or inactive", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidUser).
	WithCode(goerrors.CodeUnauthorized)

// ErrUserNotFound is returned when a verified access token points at a user
// record that no longer exists
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrNoEmptyString rejects empty passwords before hashing
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword is the internal bcrypt mismatch; callers map
// it to ErrInvalidCredentials before it reaches a client
var ErrMismatchedHashAndPassword = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials)

// Internal token-verify diagnostics. The codec returns these so logs can say
// what actually failed; the protocol and guard collapse them into
// ErrInvalidToken / ErrInvalidRefreshToken at the boundary.
var (
	ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
			WithTextCode("TOKEN_EXPIRED")
	ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
				WithTextCode("TOKEN_MALFORMED")
	ErrInvalidSignature = goerrors.New("token signature is invalid", goerrors.CategoryAuth).
				WithTextCode("TOKEN_BAD_SIGNATURE")
	ErrWrongTokenKind = goerrors.New("token kind mismatch", goerrors.CategoryAuth).
				WithTextCode("TOKEN_WRONG_KIND")
)
