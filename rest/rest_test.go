package rest_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/beyondbound/api/auth"
	"github.com/beyondbound/api/rest"
	"github.com/beyondbound/api/users"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type testAPI struct {
	app    *fiber.App
	repo   users.Repository
	tokens *auth.TokenServiceImpl
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })
	require.NoError(t, users.InitSchema(context.Background(), db))

	repo := users.NewRepository(db)
	tokens := auth.NewTokenService([]byte("rest-test-key"), 15*time.Minute, 7*24*time.Hour, nil)
	auther := auth.NewAuthenticator(repo, tokens)

	app := fiber.New(fiber.Config{
		ErrorHandler: rest.NewErrorHandler(nil),
	})
	rest.Register(app, rest.Config{
		Auther:     auther,
		Tokens:     tokens,
		Users:      repo,
		RefreshTTL: tokens.RefreshTTL(),
	})

	return &testAPI{app: app, repo: repo, tokens: tokens}
}

func (a *testAPI) seed(t *testing.T, email, password string, role users.Role, active bool) *users.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	user, err := a.repo.Create(context.Background(), &users.User{
		Email:          email,
		HashedPassword: hash,
		Name:           strings.Split(email, "@")[0],
		Role:           role,
		IsActive:       active,
	})
	require.NoError(t, err)
	return user
}

func (a *testAPI) request(t *testing.T, method, path string, body any, decorate ...func(*http.Request)) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for _, d := range decorate {
		d(req)
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}

	return resp, decoded
}

func (a *testAPI) bearerFor(t *testing.T, id int64) func(*http.Request) {
	t.Helper()
	token, err := a.tokens.Issue(auth.TokenKindAccess, strconvID(id))
	require.NoError(t, err)
	return func(req *http.Request) {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
}

func strconvID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func errorCode(body map[string]any) string {
	errObj, _ := body["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func dataField(body map[string]any) map[string]any {
	data, _ := body["data"].(map[string]any)
	return data
}

func refreshCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == rest.RefreshCookieName {
			return c
		}
	}
	return nil
}

func TestRegisterEndpoint(t *testing.T) {
	api := newTestAPI(t)

	t.Run("Creates user with defaults", func(t *testing.T) {
		resp, body := api.request(t, http.MethodPost, "/api/v1/auth/register", fiber.Map{
			"email":    "alice@example.com",
			"password": "pw123",
			"name":     "Alice",
		})

		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "User registered successfully", body["message"])

		data := dataField(body)
		assert.Equal(t, "alice@example.com", data["email"])
		assert.Equal(t, "user", data["role"])
		assert.Equal(t, true, data["is_active"])
		assert.NotContains(t, data, "hashed_password")
	})

	t.Run("Duplicate email", func(t *testing.T) {
		resp, body := api.request(t, http.MethodPost, "/api/v1/auth/register", fiber.Map{
			"email":    "alice@example.com",
			"password": "pw123",
			"name":     "Alice Again",
		})

		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "EMAIL_EXISTS", errorCode(body))
	})

	t.Run("Invalid payload", func(t *testing.T) {
		resp, body := api.request(t, http.MethodPost, "/api/v1/auth/register", fiber.Map{
			"email": "not-an-email",
		})

		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(body))

		errObj := body["error"].(map[string]any)
		details := errObj["details"].([]any)
		assert.NotEmpty(t, details)
	})
}

func TestLoginEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t, "alice@example.com", "pw123", users.RoleUser, true)
	api.seed(t, "ghost@example.com", "pw123", users.RoleUser, false)

	t.Run("Valid credentials", func(t *testing.T) {
		resp, body := api.request(t, http.MethodPost, "/api/v1/auth/login", fiber.Map{
			"email":    "alice@example.com",
			"password": "pw123",
		})

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		data := dataField(body)
		assert.NotEmpty(t, data["access_token"])
		assert.NotEmpty(t, data["refresh_token"])

		cookie := refreshCookie(resp)
		require.NotNil(t, cookie)
		assert.Equal(t, data["refresh_token"], cookie.Value)
		assert.True(t, cookie.HttpOnly)
		assert.True(t, cookie.Secure)
		assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
		assert.Equal(t, int((7 * 24 * time.Hour).Seconds()), cookie.MaxAge)
	})

	t.Run("Wrong password", func(t *testing.T) {
		resp, body := api.request(t, http.MethodPost, "/api/v1/auth/login", fiber.Map{
			"email":    "alice@example.com",
			"password": "wrong",
		})

		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "INVALID_CREDENTIALS", errorCode(body))
	})

	t.Run("Unknown email", func(t *testing.T) {
		resp, body := api.request(t, http.MethodPost, "/api/v1/auth/login", fiber.Map{
			"email":    "nobody@example.com",
			"password": "pw123",
		})

		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "INVALID_CREDENTIALS", errorCode(body))
	})

	t.Run("Inactive account", func(t *testing.T) {
		resp, body := api.request(t, http.MethodPost, "/api/v1/auth/login", fiber.Map{
			"email":    "ghost@example.com",
			"password": "pw123",
		})

		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "INACTIVE_USER", errorCode(body))
	})
}

func TestRefreshEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t, "alice@example.com", "pw123", users.RoleUser, true)

	login := func(t *testing.T) (map[string]any, *http.Cookie) {
		t.Helper()
		resp, body := api.request(t, http.MethodPost, "/api/v1/auth/login", fiber.Map{
			"email":    "alice@example.com",
			"password": "pw123",
		})
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		return dataField(body), refreshCookie(resp)
	}

	t.Run("Token in body", func(t *testing.T) {
		tokensData, _ := login(t)

		resp, body := api.request(t, http.MethodPost, "/api/v1/auth/refresh", fiber.Map{
			"refresh_token": tokensData["refresh_token"],
		})

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "Token refreshed successfully", body["message"])

		data := dataField(body)
		assert.NotEmpty(t, data["access_token"])
		assert.NotEmpty(t, data["refresh_token"])
	})

	t.Run("Token in cookie", func(t *testing.T) {
		_, cookie := login(t)
		require.NotNil(t, cookie)

		resp, body := api.request(t, http.MethodPost, "/api/v1/auth/refresh", nil, func(req *http.Request) {
			req.AddCookie(&http.Cookie{Name: rest.RefreshCookieName, Value: cookie.Value})
		})

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, dataField(body)["access_token"])
	})

	t.Run("Access token rejected", func(t *testing.T) {
		tokensData, _ := login(t)

		resp, body := api.request(t, http.MethodPost, "/api/v1/auth/refresh", fiber.Map{
			"refresh_token": tokensData["access_token"],
		})

		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "INVALID_REFRESH_TOKEN", errorCode(body))
	})

	t.Run("Missing token", func(t *testing.T) {
		resp, body := api.request(t, http.MethodPost, "/api/v1/auth/refresh", nil)

		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "INVALID_REFRESH_TOKEN", errorCode(body))
	})
}

func TestMeEndpoint(t *testing.T) {
	api := newTestAPI(t)
	user := api.seed(t, "alice@example.com", "pw123", users.RoleUser, true)

	t.Run("Authenticated", func(t *testing.T) {
		resp, body := api.request(t, http.MethodGet, "/api/v1/auth/me", nil, api.bearerFor(t, user.ID))

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		data := dataField(body)
		assert.Equal(t, "alice@example.com", data["email"])
		assert.NotContains(t, data, "hashed_password")
	})

	t.Run("No token", func(t *testing.T) {
		resp, body := api.request(t, http.MethodGet, "/api/v1/auth/me", nil)

		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "INVALID_TOKEN", errorCode(body))
	})

	t.Run("Deleted subject", func(t *testing.T) {
		doomed := api.seed(t, "gone@example.com", "pw123", users.RoleUser, true)
		header := api.bearerFor(t, doomed.ID)
		require.NoError(t, api.repo.Delete(context.Background(), doomed.ID))

		resp, body := api.request(t, http.MethodGet, "/api/v1/auth/me", nil, header)

		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "USER_NOT_FOUND", errorCode(body))
	})
}

func TestLogoutEndpoint(t *testing.T) {
	api := newTestAPI(t)

	// logging out without a session is still a success, as many times over
	for i := 0; i < 3; i++ {
		resp, body := api.request(t, http.MethodPost, "/api/v1/auth/logout", nil)

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "Logout successful", body["message"])

		cookie := refreshCookie(resp)
		require.NotNil(t, cookie)
		assert.Empty(t, cookie.Value)
		assert.True(t, cookie.Expires.Before(time.Now()))
	}
}

func TestAccountLifecycle(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.request(t, http.MethodPost, "/api/v1/auth/register", fiber.Map{
		"email":    "alice@example.com",
		"password": "pw123",
		"name":     "Alice",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "user", dataField(body)["role"])
	assert.Equal(t, true, dataField(body)["is_active"])

	resp, body = api.request(t, http.MethodPost, "/api/v1/auth/login", fiber.Map{
		"email":    "alice@example.com",
		"password": "pw123",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	tokens := dataField(body)
	access, _ := tokens["access_token"].(string)
	refresh, _ := tokens["refresh_token"].(string)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	assert.NotEqual(t, access, refresh)

	resp, body = api.request(t, http.MethodGet, "/api/v1/auth/me", nil, func(req *http.Request) {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+access)
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Alice", dataField(body)["name"])
	assert.NotContains(t, dataField(body), "hashed_password")

	// deactivate directly through the repository, then the account can no
	// longer sign in
	id := int64(dataField(body)["id"].(float64))
	inactive := false
	_, err := api.repo.Update(context.Background(), id, users.Changes{IsActive: &inactive})
	require.NoError(t, err)

	resp, body = api.request(t, http.MethodPost, "/api/v1/auth/login", fiber.Map{
		"email":    "alice@example.com",
		"password": "pw123",
	})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "INACTIVE_USER", errorCode(body))
}

func TestUsersEndpoints(t *testing.T) {
	api := newTestAPI(t)
	admin := api.seed(t, "admin@example.com", "pw123", users.RoleAdmin, true)
	member := api.seed(t, "member@example.com", "pw123", users.RoleUser, true)

	t.Run("List requires auth", func(t *testing.T) {
		resp, _ := api.request(t, http.MethodGet, "/api/v1/users", nil)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("List with pagination meta", func(t *testing.T) {
		resp, body := api.request(t, http.MethodGet, "/api/v1/users?skip=0&limit=1", nil, api.bearerFor(t, member.ID))

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		records := body["data"].([]any)
		assert.Len(t, records, 1)

		meta := body["meta"].(map[string]any)
		assert.Equal(t, float64(2), meta["total"])
	})

	t.Run("List past the end is an empty array", func(t *testing.T) {
		resp, body := api.request(t, http.MethodGet, "/api/v1/users?skip=100", nil, api.bearerFor(t, member.ID))

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		records, ok := body["data"].([]any)
		require.True(t, ok, "data should be an array, got %T", body["data"])
		assert.Empty(t, records)
	})

	t.Run("Get by id", func(t *testing.T) {
		resp, body := api.request(t, http.MethodGet, "/api/v1/users/"+strconvID(admin.ID), nil, api.bearerFor(t, member.ID))

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "admin@example.com", dataField(body)["email"])
	})

	t.Run("Get unknown id", func(t *testing.T) {
		resp, body := api.request(t, http.MethodGet, "/api/v1/users/999", nil, api.bearerFor(t, member.ID))

		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "USER_NOT_FOUND", errorCode(body))
	})

	t.Run("Write requires operator role", func(t *testing.T) {
		resp, _ := api.request(t, http.MethodPost, "/api/v1/users", fiber.Map{
			"email":    "new@example.com",
			"password": "pw123",
			"name":     "New",
		}, api.bearerFor(t, member.ID))

		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})

	t.Run("Admin creates user with role", func(t *testing.T) {
		resp, body := api.request(t, http.MethodPost, "/api/v1/users", fiber.Map{
			"email":    "manager@example.com",
			"password": "pw123",
			"name":     "Manager",
			"role":     "manager",
		}, api.bearerFor(t, admin.ID))

		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
		assert.Equal(t, "manager", dataField(body)["role"])
	})

	t.Run("Unknown role rejected", func(t *testing.T) {
		resp, _ := api.request(t, http.MethodPost, "/api/v1/users", fiber.Map{
			"email":    "odd@example.com",
			"password": "pw123",
			"name":     "Odd",
			"role":     "superuser",
		}, api.bearerFor(t, admin.ID))

		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Patch updates only provided fields", func(t *testing.T) {
		resp, body := api.request(t, http.MethodPatch, "/api/v1/users/"+strconvID(member.ID), fiber.Map{
			"name": "Renamed Member",
		}, api.bearerFor(t, admin.ID))

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		data := dataField(body)
		assert.Equal(t, "Renamed Member", data["name"])
		assert.Equal(t, "member@example.com", data["email"])
	})

	t.Run("Delete then gone", func(t *testing.T) {
		doomed := api.seed(t, "doomed@example.com", "pw123", users.RoleUser, true)

		resp, body := api.request(t, http.MethodDelete, "/api/v1/users/"+strconvID(doomed.ID), nil, api.bearerFor(t, admin.ID))
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "User deleted successfully", body["message"])

		resp, _ = api.request(t, http.MethodDelete, "/api/v1/users/"+strconvID(doomed.ID), nil, api.bearerFor(t, admin.ID))
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})
}

func TestServiceDescriptorRoutes(t *testing.T) {
	api := newTestAPI(t)

	t.Run("Health", func(t *testing.T) {
		resp, body := api.request(t, http.MethodGet, "/health", nil)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("Root descriptor", func(t *testing.T) {
		resp, body := api.request(t, http.MethodGet, "/", nil)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, body["name"])
		assert.Equal(t, "/admin", body["admin"])
	})
}
