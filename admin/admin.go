// Package admin serves the server-rendered administration panel: login,
// user list with search and sorting, and create, edit and delete forms.
package admin

import (
	"embed"
	"io/fs"
	"net/http"
	"time"

	"github.com/beyondbound/api/auth"
	"github.com/beyondbound/api/middleware/guard"
	"github.com/beyondbound/api/users"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	goerrors "github.com/goliatone/go-errors"
)

//go:embed views/*.html
var viewsFS embed.FS

// SessionCookieName holds the panel's access token between requests.
const SessionCookieName = "admin_token"

const pageSize = 20

// Engine builds the view engine for the embedded panel templates. Pass it to
// fiber.Config.Views on the app the panel is registered on.
func Engine() *django.Engine {
	sub, err := fs.Sub(viewsFS, "views")
	if err != nil {
		panic("admin: embedded views missing: " + err.Error())
	}
	return django.NewFileSystem(http.FS(sub), ".html")
}

// Config wires the panel to its collaborators.
type Config struct {
	Auther *auth.Auther
	Tokens auth.TokenService
	Users  users.Repository
	// SessionTTL sizes the panel session cookie; use the access token TTL
	SessionTTL time.Duration
	Logger     auth.Logger
}

type Panel struct {
	auther     *auth.Auther
	tokens     auth.TokenService
	users      users.Repository
	sessionTTL time.Duration
	logger     auth.Logger
}

// Register mounts the panel under /admin.
func Register(app *fiber.App, cfg Config) *Panel {
	logger := cfg.Logger
	if logger == nil {
		logger = auth.DefaultLogger()
	}

	p := &Panel{
		auther:     cfg.Auther,
		tokens:     cfg.Tokens,
		users:      cfg.Users,
		sessionTTL: cfg.SessionTTL,
		logger:     logger,
	}

	app.Get("/admin/login", p.loginForm)
	app.Post("/admin/login", p.login)
	app.Post("/admin/logout", p.logout)

	guardCfg := guard.Config{
		Tokens:       cfg.Tokens,
		Store:        cfg.Users,
		TokenLookup:  "cookie:" + SessionCookieName,
		ErrorHandler: redirectToLogin,
		Logger:       logger,
	}

	panel := app.Group("/admin",
		guard.New(guardCfg),
		guard.RequireActive(guard.Config{ErrorHandler: redirectToLogin}),
		guard.RequireRole([]users.Role{users.RoleAdmin}, guard.Config{ErrorHandler: redirectToLogin}),
	)

	panel.Get("/", p.listUsers)
	panel.Get("/users/new", p.newUserForm)
	panel.Post("/users", p.createUser)
	panel.Get("/users/:id", p.userDetail)
	panel.Post("/users/:id", p.updateUser)
	panel.Post("/users/:id/delete", p.deleteUser)

	return p
}

// redirectToLogin replaces the JSON error rendering for browser sessions.
func redirectToLogin(c *fiber.Ctx, _ error) error {
	status := fiber.StatusSeeOther
	if c.Method() == fiber.MethodGet {
		status = fiber.StatusFound
	}
	return c.Redirect("/admin/login", status)
}

func (p *Panel) loginForm(c *fiber.Ctx) error {
	return c.Render("login", fiber.Map{
		"title": "Admin Login",
	})
}

type credentialsForm struct {
	Email    string `form:"email"`
	Password string `form:"password"`
}

func (p *Panel) login(c *fiber.Ctx) error {
	var form credentialsForm
	if err := c.BodyParser(&form); err != nil {
		return p.loginFailed(c, "Invalid form submission")
	}

	pair, err := p.auther.Login(c.UserContext(), form.Email, form.Password)
	if err != nil {
		p.logger.Debug("admin login rejected: %v", err)
		return p.loginFailed(c, "Incorrect email or password")
	}

	claims, err := p.tokens.Verify(pair.AccessToken, auth.TokenKindAccess)
	if err != nil {
		return err
	}
	id, err := claims.UserID()
	if err != nil {
		return err
	}

	user, err := p.users.GetByID(c.UserContext(), id)
	if err != nil {
		return err
	}
	if user.Role != users.RoleAdmin {
		p.logger.Info("admin login denied for non-admin account %q", form.Email)
		return p.loginFailed(c, "Incorrect email or password")
	}

	c.Cookie(&fiber.Cookie{
		Name:     SessionCookieName,
		Value:    pair.AccessToken,
		MaxAge:   int(p.sessionTTL.Seconds()),
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	return c.Redirect("/admin/", fiber.StatusSeeOther)
}

func (p *Panel) loginFailed(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).Render("login", fiber.Map{
		"title": "Admin Login",
		"error": message,
	})
}

func (p *Panel) logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.Redirect("/admin/login", fiber.StatusSeeOther)
}

func (p *Panel) listUsers(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	search := c.Query("q")
	sort := c.Query("sort")
	desc := c.QueryBool("desc", false)
	if sort == "" {
		sort = "created_at"
		desc = true
	}

	records, err := p.users.List(c.UserContext(), users.ListOptions{
		Skip:   (page - 1) * pageSize,
		Limit:  pageSize,
		Search: search,
		Sort:   sort,
		Desc:   desc,
	})
	if err != nil {
		return err
	}

	total, err := p.users.Count(c.UserContext())
	if err != nil {
		return err
	}

	return c.Render("users_list", fiber.Map{
		"title":        "Users",
		"current_user": guard.CurrentUser(c),
		"users":        records,
		"search":       search,
		"sort":         sort,
		"desc":         desc,
		"page":         page,
		"has_prev":     page > 1,
		"has_next":     page*pageSize < total,
		"prev_page":    page - 1,
		"next_page":    page + 1,
		"total":        total,
	})
}

func (p *Panel) userDetail(c *fiber.Ctx) error {
	user, err := p.resolveUser(c)
	if err != nil {
		return err
	}

	return c.Render("user_detail", fiber.Map{
		"title":        user.Email,
		"current_user": guard.CurrentUser(c),
		"user":         user,
		"roles":        users.AllRoles(),
	})
}

type createForm struct {
	Email    string `form:"email"`
	Name     string `form:"name"`
	Password string `form:"password"`
	Role     string `form:"role"`
	IsActive string `form:"is_active"`
}

func (p *Panel) newUserForm(c *fiber.Ctx) error {
	return c.Render("user_new", fiber.Map{
		"title":        "New User",
		"current_user": guard.CurrentUser(c),
		"roles":        users.AllRoles(),
		"form":         createForm{Role: string(users.RoleUser), IsActive: "1"},
	})
}

func (p *Panel) createUser(c *fiber.Ctx) error {
	var form createForm
	if err := c.BodyParser(&form); err != nil {
		return p.createFailed(c, form, "Invalid form submission")
	}

	if form.Email == "" || form.Password == "" {
		return p.createFailed(c, form, "Email and password are required")
	}

	role, ok := users.ParseRole(form.Role)
	if !ok {
		return p.createFailed(c, form, "Unknown role")
	}

	hash, err := auth.HashPassword(form.Password)
	if err != nil {
		return err
	}

	_, err = p.users.Create(c.UserContext(), &users.User{
		Email:          form.Email,
		HashedPassword: hash,
		Name:           form.Name,
		Role:           role,
		IsActive:       form.IsActive != "",
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryConflict {
			return p.createFailed(c, form, "Email is already in use")
		}
		return err
	}

	return c.Redirect("/admin/", fiber.StatusSeeOther)
}

func (p *Panel) createFailed(c *fiber.Ctx, form createForm, message string) error {
	return c.Status(fiber.StatusBadRequest).Render("user_new", fiber.Map{
		"title":        "New User",
		"current_user": guard.CurrentUser(c),
		"roles":        users.AllRoles(),
		"form":         form,
		"error":        message,
	})
}

type userForm struct {
	Email    string `form:"email"`
	Name     string `form:"name"`
	Role     string `form:"role"`
	IsActive string `form:"is_active"`
}

func (p *Panel) updateUser(c *fiber.Ctx) error {
	user, err := p.resolveUser(c)
	if err != nil {
		return err
	}

	var form userForm
	if err := c.BodyParser(&form); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid form submission").
			WithCode(goerrors.CodeBadRequest)
	}

	role, ok := users.ParseRole(form.Role)
	if !ok {
		return goerrors.New("unknown role", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	// checkboxes submit nothing when unchecked
	active := form.IsActive != ""

	_, err = p.users.Update(c.UserContext(), user.ID, users.Changes{
		Email:    &form.Email,
		Name:     &form.Name,
		Role:     &role,
		IsActive: &active,
	})
	if err != nil {
		return err
	}

	return c.Redirect("/admin/", fiber.StatusSeeOther)
}

func (p *Panel) deleteUser(c *fiber.Ctx) error {
	user, err := p.resolveUser(c)
	if err != nil {
		return err
	}

	if err := p.users.Delete(c.UserContext(), user.ID); err != nil {
		return err
	}

	return c.Redirect("/admin/", fiber.StatusSeeOther)
}

func (p *Panel) resolveUser(c *fiber.Ctx) (*users.User, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return nil, fiber.ErrNotFound
	}

	user, err := p.users.GetByID(c.UserContext(), int64(id))
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, fiber.ErrNotFound
		}
		return nil, err
	}

	return user, nil
}
