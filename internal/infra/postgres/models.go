package postgres

import (
	"time"

	"challenge-service/internal/domain"
	"github.com/uptrace/bun"
)

type challengeModel struct {
	bun.BaseModel `bun:"table:challenges,alias:c"`

	ID               string                 `bun:"id,pk"`
	ChallengerID     string                 `bun:"challenger_id,notnull"`
	OpponentID       string                 `bun:"opponent_id,nullzero"`
	Type             string                 `bun:"type,notnull"`
	Status           string                 `bun:"status,notnull"`
	Config           domain.ChallengeConfig `bun:"config,type:jsonb"`
	QuestionIDs      []string               `bun:"question_ids,array"`
	WinnerID         string                 `bun:"winner_id,nullzero"`
	ChallengerPoints *int                   `bun:"challenger_points"`
	OpponentPoints   *int                   `bun:"opponent_points"`
	CreatedAt        time.Time              `bun:"created_at,notnull"`
	AcceptedAt       *time.Time             `bun:"accepted_at"`
	StartedAt        *time.Time             `bun:"started_at"`
	CompletedAt      *time.Time             `bun:"completed_at"`
}

type attemptModel struct {
	bun.BaseModel `bun:"table:challenge_attempts,alias:a"`

	ChallengeID string     `bun:"challenge_id,pk"`
	UserID      string     `bun:"user_id,pk"`
	Score       int        `bun:"score,notnull"`
	Answered    int        `bun:"answered,notnull"`
	IsReady     bool       `bun:"is_ready,notnull"`
	StartTime   *time.Time `bun:"start_time"`
	EndTime     *time.Time `bun:"end_time"`
}

type answerModel struct {
	bun.BaseModel `bun:"table:challenge_answers,alias:ans"`

	ChallengeID string    `bun:"challenge_id,pk"`
	UserID      string    `bun:"user_id,pk"`
	QuestionID  string    `bun:"question_id,pk"`
	Choice      string    `bun:"choice,notnull"`
	Correct     bool      `bun:"correct,notnull"`
	AnsweredAt  time.Time `bun:"answered_at,notnull"`
}

type pointsModel struct {
	bun.BaseModel `bun:"table:points_ledger,alias:p"`

	ID          int64     `bun:"id,pk,autoincrement"`
	UserID      string    `bun:"user_id,notnull"`
	ChallengeID string    `bun:"challenge_id,notnull"`
	Reason      string    `bun:"reason,notnull"`
	Points      int       `bun:"points,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type badgeModel struct {
	bun.BaseModel `bun:"table:user_badges,alias:b"`

	UserID    string    `bun:"user_id,pk"`
	Badge     string    `bun:"badge,pk"`
	AwardedAt time.Time `bun:"awarded_at,nullzero,notnull,default:current_timestamp"`
}

func challengeFromDomain(ch domain.Challenge) *challengeModel {
	return &challengeModel{
		ID:               ch.ID,
		ChallengerID:     ch.ChallengerID,
		OpponentID:       ch.OpponentID,
		Type:             ch.Type,
		Status:           string(ch.Status),
		Config:           ch.Config,
		QuestionIDs:      ch.QuestionIDs,
		WinnerID:         ch.WinnerID,
		ChallengerPoints: ch.ChallengerPoints,
		OpponentPoints:   ch.OpponentPoints,
		CreatedAt:        ch.CreatedAt,
		AcceptedAt:       ch.AcceptedAt,
		StartedAt:        ch.StartedAt,
		CompletedAt:      ch.CompletedAt,
	}
}

func (m *challengeModel) toDomain() domain.Challenge {
	return domain.Challenge{
		ID:               m.ID,
		ChallengerID:     m.ChallengerID,
		OpponentID:       m.OpponentID,
		Type:             m.Type,
		Status:           domain.Status(m.Status),
		Config:           m.Config,
		QuestionIDs:      m.QuestionIDs,
		WinnerID:         m.WinnerID,
		ChallengerPoints: m.ChallengerPoints,
		OpponentPoints:   m.OpponentPoints,
		CreatedAt:        m.CreatedAt.UTC(),
		AcceptedAt:       utc(m.AcceptedAt),
		StartedAt:        utc(m.StartedAt),
		CompletedAt:      utc(m.CompletedAt),
	}
}

func (m *attemptModel) toDomain() domain.Attempt {
	return domain.Attempt{
		ChallengeID: m.ChallengeID,
		UserID:      m.UserID,
		Score:       m.Score,
		Answered:    m.Answered,
		IsReady:     m.IsReady,
		StartTime:   utc(m.StartTime),
		EndTime:     utc(m.EndTime),
	}
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	out := t.UTC()
	return &out
}
