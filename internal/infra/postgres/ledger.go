package postgres

import (
	"context"
	"fmt"

	"challenge-service/internal/domain"
	"github.com/uptrace/bun"
)

// Ledger stores awarded points and badges. Re-delivered awards for the same
// challenge and reason are ignored.
type Ledger struct {
	db *bun.DB
}

func NewLedger(db *bun.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) Award(ctx context.Context, userID string, points int, reason domain.AwardReason, challengeID string) error {
	_, err := l.db.NewInsert().Model(&pointsModel{
		UserID:      userID,
		ChallengeID: challengeID,
		Reason:      string(reason),
		Points:      points,
	}).On("CONFLICT (user_id, challenge_id, reason) DO NOTHING").Exec(ctx)
	if err != nil {
		return fmt.Errorf("award points: %w", err)
	}
	return nil
}

func (l *Ledger) CheckAndAward(ctx context.Context, userID string, kind domain.BadgeKind) error {
	_, err := l.db.NewInsert().Model(&badgeModel{UserID: userID, Badge: string(kind)}).
		On("CONFLICT (user_id, badge) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("award badge: %w", err)
	}
	return nil
}

// Total sums the points held by a user.
func (l *Ledger) Total(ctx context.Context, userID string) (int, error) {
	var total int
	err := l.db.NewSelect().Model((*pointsModel)(nil)).
		ColumnExpr("COALESCE(SUM(p.points), 0)").
		Where("p.user_id = ?", userID).
		Scan(ctx, &total)
	if err != nil {
		return 0, fmt.Errorf("sum points: %w", err)
	}
	return total, nil
}
