package rest

import (
	"time"

	"github.com/beyondbound/api/auth"
	"github.com/beyondbound/api/middleware/guard"
	"github.com/beyondbound/api/users"
	"github.com/gofiber/fiber/v2"
)

// Config wires the API routes to their collaborators.
type Config struct {
	Auther *auth.Auther
	Tokens auth.TokenService
	Users  users.Repository
	// RefreshTTL sizes the refresh cookie lifetime
	RefreshTTL time.Duration
	Logger     auth.Logger
}

// Register mounts the service descriptor, health check, and the /api/v1
// auth and users routes on the app.
func Register(app *fiber.App, cfg Config) {
	authHandler := NewAuthHandler(cfg.Auther, cfg.RefreshTTL, cfg.Logger)
	usersHandler := NewUsersHandler(cfg.Users, cfg.Logger)

	authenticated := guard.New(guard.Config{
		Tokens: cfg.Tokens,
		Store:  cfg.Users,
		Logger: cfg.Logger,
	})
	active := guard.RequireActive()
	operators := guard.RequireRole([]users.Role{users.RoleAdmin, users.RoleManager})

	app.Get("/", describeService)
	app.Get("/health", healthCheck)

	v1 := app.Group("/api/v1")

	authGroup := v1.Group("/auth")
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/login", authHandler.Login)
	authGroup.Post("/refresh", authHandler.Refresh)
	authGroup.Post("/logout", authHandler.Logout)
	authGroup.Get("/me", authenticated, active, authHandler.Me)

	usersGroup := v1.Group("/users", authenticated, active)
	usersGroup.Get("/", usersHandler.List)
	usersGroup.Get("/:id", usersHandler.Get)
	usersGroup.Post("/", operators, usersHandler.Create)
	usersGroup.Patch("/:id", operators, usersHandler.Update)
	usersGroup.Delete("/:id", operators, usersHandler.Delete)
}

func describeService(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"name":    "Beyond Boundaries API",
		"tagline": "Architecting the Infinite",
		"admin":   "/admin",
		"health":  "/health",
	})
}

func healthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy"})
}
