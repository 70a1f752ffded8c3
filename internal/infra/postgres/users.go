package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// UserDirectory picks matchmaking opponents from the users table.
type UserDirectory struct {
	pool *pgxpool.Pool
}

func NewUserDirectory(pool *pgxpool.Pool) *UserDirectory {
	return &UserDirectory{pool: pool}
}

func (d *UserDirectory) FindRandomEligibleOpponent(ctx context.Context, excluding string) (string, bool, error) {
	var id string
	err := d.pool.QueryRow(ctx, `
SELECT id FROM users
WHERE active AND id <> $1
ORDER BY random()
LIMIT 1`, excluding).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find opponent: %w", err)
	}
	return id, true, nil
}
