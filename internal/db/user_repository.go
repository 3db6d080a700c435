package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fiveserver/fiveserver/internal/model"
)

// UserRepository manages registered accounts.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, username, serial, hash, reset_nonce`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Username, &u.Serial, &u.Hash, &u.Nonce); err != nil {
		return nil, err
	}
	return &u, nil
}

// Get returns the user with the given id.
// Returns nil, nil if no such user exists.
func (r *UserRepository) Get(ctx context.Context, id int32) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE NOT deleted AND id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying user %d: %w", id, err)
	}
	return u, nil
}

// FindByUsername returns the user with the given username, or nil, nil.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE NOT deleted AND username = $1`, username))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by username %q: %w", username, err)
	}
	return u, nil
}

// FindByHash returns the user with the given key hash, or nil, nil.
// The hash is the stored form, not what the client posted.
func (r *UserRepository) FindByHash(ctx context.Context, hash string) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE NOT deleted AND hash = $1`, hash))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by hash: %w", err)
	}
	return u, nil
}

// FindByNonce returns the user locked with the given one-time nonce,
// or nil, nil.
func (r *UserRepository) FindByNonce(ctx context.Context, nonce string) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE NOT deleted AND reset_nonce = $1`, nonce))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by nonce: %w", err)
	}
	return u, nil
}

// Browse returns one page of users ordered by username, together with
// the total number of non-deleted users.
func (r *UserRepository) Browse(ctx context.Context, offset, limit int) (int, []*model.User, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT count(id) FROM users WHERE NOT deleted`).Scan(&total)
	if err != nil {
		return 0, nil, fmt.Errorf("counting users: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE NOT deleted
		 ORDER BY username LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return 0, nil, fmt.Errorf("browsing users: %w", err)
	}
	defer rows.Close()

	users := make([]*model.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return 0, nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("iterating user rows: %w", err)
	}
	return total, users, nil
}

// Store inserts or updates a user. A user without an id is inserted
// and its id filled in; inserting over a soft-deleted row with the
// same username revives that row.
func (r *UserRepository) Store(ctx context.Context, u *model.User) error {
	if u.ID <= 0 {
		err := r.pool.QueryRow(ctx,
			`INSERT INTO users (username, serial, hash, reset_nonce)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (username) DO UPDATE SET
			   deleted = FALSE, serial = EXCLUDED.serial,
			   hash = EXCLUDED.hash, reset_nonce = EXCLUDED.reset_nonce,
			   updated_on = now()
			 RETURNING id`,
			u.Username, u.Serial, u.Hash, u.Nonce).Scan(&u.ID)
		if err != nil {
			return fmt.Errorf("inserting user %q: %w", u.Username, err)
		}
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET
		   deleted = FALSE, username = $2, serial = $3, hash = $4,
		   reset_nonce = $5, updated_on = now()
		 WHERE id = $1`,
		u.ID, u.Username, u.Serial, u.Hash, u.Nonce)
	if err != nil {
		return fmt.Errorf("updating user %d: %w", u.ID, err)
	}
	return nil
}

// Delete marks a user deleted. The row is kept so match history and
// unique names survive.
func (r *UserRepository) Delete(ctx context.Context, id int32) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET deleted = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting user %d: %w", id, err)
	}
	return nil
}
