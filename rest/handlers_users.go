package rest

import (
	"github.com/beyondbound/api/auth"
	"github.com/beyondbound/api/users"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

// UsersHandler serves the /users resource.
type UsersHandler struct {
	repo   users.Repository
	logger auth.Logger
}

func NewUsersHandler(repo users.Repository, logger auth.Logger) *UsersHandler {
	if logger == nil {
		logger = auth.DefaultLogger()
	}
	return &UsersHandler{repo: repo, logger: logger}
}

type CreateUserRequest struct {
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Name     string     `json:"name"`
	Role     users.Role `json:"role"`
}

func (r CreateUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.Name, validation.Required),
	)
}

type UpdateUserRequest struct {
	Email    *string     `json:"email"`
	Name     *string     `json:"name"`
	Role     *users.Role `json:"role"`
	IsActive *bool       `json:"is_active"`
}

func (r UpdateUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, is.Email),
	)
}

// List returns a page of users. Pagination is offset based: ?skip and
// ?limit, capped by the repository default.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	opts := users.ListOptions{
		Skip:  c.QueryInt("skip", 0),
		Limit: c.QueryInt("limit", 0),
	}

	records, err := h.repo.List(c.UserContext(), opts)
	if err != nil {
		return err
	}

	total, err := h.repo.Count(c.UserContext())
	if err != nil {
		return err
	}

	return respondList(c, records, "Users retrieved successfully", total)
}

func (h *UsersHandler) Get(c *fiber.Ctx) error {
	id, err := userID(c)
	if err != nil {
		return err
	}

	user, err := h.repo.GetByID(c.UserContext(), id)
	if err != nil {
		return userError(err)
	}

	return respond(c, fiber.StatusOK, user, "User retrieved successfully")
}

// Create adds an account on behalf of an operator; unlike Register it
// honors the role field.
func (h *UsersHandler) Create(c *fiber.Ctx) error {
	var payload CreateUserRequest
	if err := parseBody(c, &payload); err != nil {
		return err
	}
	if err := payload.Validate(); err != nil {
		return err
	}

	hash, err := auth.HashPassword(payload.Password)
	if err != nil {
		return err
	}

	user, err := h.repo.Create(c.UserContext(), &users.User{
		Email:          payload.Email,
		HashedPassword: hash,
		Name:           payload.Name,
		Role:           payload.Role,
		IsActive:       true,
	})
	if err != nil {
		return userError(err)
	}

	return respond(c, fiber.StatusCreated, user, "User created successfully")
}

func (h *UsersHandler) Update(c *fiber.Ctx) error {
	id, err := userID(c)
	if err != nil {
		return err
	}

	var payload UpdateUserRequest
	if err := parseBody(c, &payload); err != nil {
		return err
	}
	if err := payload.Validate(); err != nil {
		return err
	}

	user, err := h.repo.Update(c.UserContext(), id, users.Changes{
		Email:    payload.Email,
		Name:     payload.Name,
		Role:     payload.Role,
		IsActive: payload.IsActive,
	})
	if err != nil {
		return userError(err)
	}

	return respond(c, fiber.StatusOK, user, "User updated successfully")
}

func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	id, err := userID(c)
	if err != nil {
		return err
	}

	if err := h.repo.Delete(c.UserContext(), id); err != nil {
		return userError(err)
	}

	return respond(c, fiber.StatusOK, nil, "User deleted successfully")
}

func userID(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, goerrors.New("user id must be a positive integer", goerrors.CategoryBadInput).
			WithTextCode(textCodeValidation).
			WithCode(goerrors.CodeBadRequest)
	}
	return int64(id), nil
}

// userError normalizes repository failures into the API taxonomy: missing
// rows map to USER_NOT_FOUND, unique violations to EMAIL_EXISTS.
func userError(err error) error {
	if goerrors.IsNotFound(err) {
		return auth.ErrUserNotFound
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryConflict {
		return auth.ErrEmailExists
	}

	return err
}
