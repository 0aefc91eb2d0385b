package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/tokengate/internal/auth/domain"
	"github.com/aussiebroadwan/tokengate/internal/auth/store"
)

const userColumns = `id, name, email, username, password_hash, created_at, updated_at`

type usersRepo struct {
	db DBTX
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u     domain.User
		email sql.NullString
	)
	err := row.Scan(&u.ID, &u.Name, &email, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	u.Email = email.String
	return u, err
}

// nullString stores "" as NULL so optional unique columns don't collide.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Name, nullString(u.Email), u.Username, u.PasswordHash, u.CreatedAt, u.UpdatedAt,
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdateUser(ctx context.Context, u domain.User) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = $1, username = $2, updated_at = now() WHERE id = $3`,
		u.Name, u.Username, u.ID,
	)
	if err != nil {
		return mapConstraint(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListUsers counts with a window function so the page and total come back
// in one round trip.
func (r *usersRepo) ListUsers(ctx context.Context, query string, limit, offset int) ([]domain.User, int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+`, COUNT(*) OVER () AS total FROM users
		 WHERE username ILIKE $1 OR name ILIKE $1
		 ORDER BY created_at, id
		 LIMIT $2 OFFSET $3`,
		store.ContainsPattern(query), limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		users = make([]domain.User, 0, limit)
		total int
	)
	for rows.Next() {
		var (
			u     domain.User
			email sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.Name, &email, &u.Username, &u.PasswordHash,
			&u.CreatedAt, &u.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		u.Email = email.String
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// An offset past the end yields no rows and so no window count.
	if len(users) == 0 && offset > 0 {
		if err := r.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM users WHERE username ILIKE $1 OR name ILIKE $1`,
			store.ContainsPattern(query),
		).Scan(&total); err != nil {
			return nil, 0, err
		}
	}
	return users, total, nil
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users)`).Scan(&exists); err != nil {
		return false, err
	}
	return !exists, nil
}
