package users

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// Repository is the persistence contract for user records. The auth core
// consumes a subset of it; the REST and admin layers use all of it.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, record *User) (*User, error)
	Update(ctx context.Context, id int64, changes Changes) (*User, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, opts ListOptions) ([]*User, error)
	Count(ctx context.Context) (int, error)
}

// ListOptions controls pagination and the admin panel's search/sort.
type ListOptions struct {
	Skip   int
	Limit  int
	Search string
	Sort   string
	Desc   bool
}

const defaultListLimit = 100

// columns the admin list view may sort on
var sortableColumns = map[string]bool{
	"id":         true,
	"email":      true,
	"name":       true,
	"created_at": true,
}

type repo struct {
	db *bun.DB
}

var _ Repository = (*repo)(nil)

// NewRepository returns a bun-backed Repository.
func NewRepository(db *bun.DB) Repository {
	return &repo{db: db}
}

// InitSchema creates the users table if it does not exist.
func InitSchema(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*User)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize users schema")
	}
	return nil
}

func (r *repo) GetByID(ctx context.Context, id int64) (*User, error) {
	record := &User{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, wrapSelectError(err, map[string]any{"id": id})
	}
	return record, nil
}

// GetByEmail matches the email exactly as given; no case normalization.
func (r *repo) GetByEmail(ctx context.Context, email string) (*User, error) {
	record := &User{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, wrapSelectError(err, map[string]any{"email": email})
	}
	return record, nil
}

func (r *repo) Create(ctx context.Context, record *User) (*User, error) {
	prepareDefaults(record)

	if _, err := r.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "email already in use").
				WithCode(goerrors.CodeConflict)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create user")
	}

	return record, nil
}

func (r *repo) Update(ctx context.Context, id int64, changes Changes) (*User, error) {
	record, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	changes.apply(record)
	record.UpdatedAt = time.Now().UTC()

	_, err = r.db.NewUpdate().
		Model(record).
		WherePK().
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "email already in use").
				WithCode(goerrors.CodeConflict)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user")
	}

	return record, nil
}

func (r *repo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.NewDelete().
		Model((*User)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete user")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete user")
	}

	if affected == 0 {
		return notFound(map[string]any{"id": id})
	}

	return nil
}

func (r *repo) List(ctx context.Context, opts ListOptions) ([]*User, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultListLimit
	}

	// non-nil so an empty page serializes as [], not null
	records := make([]*User, 0)
	q := r.db.NewSelect().Model(&records)

	if opts.Search != "" {
		like := "%" + opts.Search + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.email LIKE ?", like).
				WhereOr("?TableAlias.name LIKE ?", like)
		})
	}

	order := "id ASC"
	if sortableColumns[opts.Sort] {
		order = opts.Sort + " ASC"
		if opts.Desc {
			order = opts.Sort + " DESC"
		}
	}

	err := q.
		OrderExpr(order).
		Offset(opts.Skip).
		Limit(opts.Limit).
		Scan(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list users")
	}

	return records, nil
}

func (r *repo) Count(ctx context.Context) (int, error) {
	count, err := r.db.NewSelect().Model((*User)(nil)).Count(ctx)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to count users")
	}
	return count, nil
}

func prepareDefaults(record *User) {
	if record.Role == "" {
		record.Role = RoleUser
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}
}

func notFound(metadata map[string]any) *goerrors.Error {
	return goerrors.New("user not found", goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(metadata)
}

func wrapSelectError(err error, metadata map[string]any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(metadata)
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to query user")
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// sqlite reports "UNIQUE constraint failed: users.email"; postgres drivers
	// report "duplicate key value violates unique constraint".
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
