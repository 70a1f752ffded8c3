package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 2026101602_create_challenges.sql
var createChallengesSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createChallengesSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
DROP TABLE IF EXISTS user_badges;
DROP TABLE IF EXISTS points_ledger;
DROP TABLE IF EXISTS challenge_answers;
DROP TABLE IF EXISTS challenge_attempts;
DROP TABLE IF EXISTS challenges`)
			return err
		},
	)
}
