package users

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// Role is the user's role
type Role string

const (
	// RoleAdmin has full access including the admin panel
	RoleAdmin Role = "admin"
	// RoleManager can manage user records
	RoleManager Role = "manager"
	// RoleUser is the default role for registered accounts
	RoleUser Role = "user"
	// RoleGuest is a read-only role
	RoleGuest Role = "guest"
)

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleUser, RoleGuest:
		return true
	default:
		return false
	}
}

// UnmarshalText rejects unknown role values at the deserialization boundary.
func (r *Role) UnmarshalText(b []byte) error {
	role := Role(b)
	if !role.IsValid() {
		return fmt.Errorf("invalid role: %q", string(b))
	}
	*r = role
	return nil
}

// ParseRole safely parses a string into a Role type
func ParseRole(s string) (Role, bool) {
	role := Role(s)
	return role, role.IsValid()
}

// AllRoles returns all predefined roles
func AllRoles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleUser, RoleGuest}
}

// User is the user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID             int64     `bun:"id,pk,autoincrement" json:"id"`
	Email          string    `bun:"email,notnull,unique" json:"email"`
	HashedPassword string    `bun:"hashed_password,notnull" json:"-"`
	Name           string    `bun:"name,notnull" json:"name"`
	Role           Role      `bun:"role,notnull" json:"role"`
	IsActive       bool      `bun:"is_active,notnull" json:"is_active"`
	CreatedAt      time.Time `bun:"created_at,notnull,nullzero" json:"created_at"`
	UpdatedAt      time.Time `bun:"updated_at,notnull,nullzero" json:"updated_at"`
}

// Changes is a partial update; nil fields are left untouched.
type Changes struct {
	Email    *string `json:"email,omitempty"`
	Name     *string `json:"name,omitempty"`
	Role     *Role   `json:"role,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

func (c Changes) apply(u *User) {
	if c.Email != nil {
		u.Email = *c.Email
	}
	if c.Name != nil {
		u.Name = *c.Name
	}
	if c.Role != nil {
		u.Role = *c.Role
	}
	if c.IsActive != nil {
		u.IsActive = *c.IsActive
	}
}
