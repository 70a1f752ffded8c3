package domain

import "time"

// Status is the lifecycle state of a challenge.
type Status string

const (
	StatusPendingInvite      Status = "pending_invite"
	StatusPendingMatchmaking Status = "pending_matchmaking"
	StatusAccepted           Status = "accepted"
	StatusOngoing            Status = "ongoing"
	StatusCompleted          Status = "completed"
	StatusDeclined           Status = "declined"
	StatusCancelled          Status = "cancelled"
	StatusExpired            Status = "expired"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusDeclined, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Pending reports whether the challenge is still waiting for an opponent decision.
func (s Status) Pending() bool {
	return s == StatusPendingInvite || s == StatusPendingMatchmaking
}

// ChallengeConfig is the resolved configuration frozen into a challenge at creation.
type ChallengeConfig struct {
	NumQuestions int           `json:"numQuestions" yaml:"num_questions" validate:"gt=0"`
	TimeLimit    time.Duration `json:"timeLimit" yaml:"-"`
	Topics       []string      `json:"topics,omitempty" yaml:"topics"`
	Sections     []string      `json:"sections,omitempty" yaml:"sections"`
	Hints        bool          `json:"hints" yaml:"hints"`
}

// QuestionFilter narrows the active question pool.
type QuestionFilter struct {
	Topics   []string
	Sections []string
}

// Filter returns the question filter described by the config.
func (c ChallengeConfig) Filter() QuestionFilter {
	return QuestionFilter{Topics: c.Topics, Sections: c.Sections}
}

// Challenge is one head-to-head contest between a challenger and an opponent.
type Challenge struct {
	ID               string          `json:"id"`
	ChallengerID     string          `json:"challengerId"`
	OpponentID       string          `json:"opponentId,omitempty"`
	Type             string          `json:"type"`
	Status           Status          `json:"status"`
	Config           ChallengeConfig `json:"config"`
	QuestionIDs      []string        `json:"questionIds"`
	WinnerID         string          `json:"winnerId,omitempty"`
	ChallengerPoints *int            `json:"challengerPoints,omitempty"`
	OpponentPoints   *int            `json:"opponentPoints,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	AcceptedAt       *time.Time      `json:"acceptedAt,omitempty"`
	StartedAt        *time.Time      `json:"startedAt,omitempty"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
}

// IsParticipant reports whether userID is the challenger or the opponent.
func (c Challenge) IsParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	return userID == c.ChallengerID || userID == c.OpponentID
}

// OtherParticipant returns the participant that is not userID.
func (c Challenge) OtherParticipant(userID string) string {
	if userID == c.ChallengerID {
		return c.OpponentID
	}
	return c.ChallengerID
}

// ExpectedParticipants is 2 once an opponent exists, 1 otherwise.
func (c Challenge) ExpectedParticipants() int {
	if c.OpponentID == "" {
		return 1
	}
	return 2
}

// HasQuestion reports whether questionID belongs to the frozen question set.
func (c Challenge) HasQuestion(questionID string) bool {
	for _, id := range c.QuestionIDs {
		if id == questionID {
			return true
		}
	}
	return false
}

// Attempt is one participant's progress within a challenge.
type Attempt struct {
	ChallengeID string     `json:"challengeId"`
	UserID      string     `json:"userId"`
	Score       int        `json:"score"`
	Answered    int        `json:"answered"`
	IsReady     bool       `json:"isReady"`
	StartTime   *time.Time `json:"startTime,omitempty"`
	EndTime     *time.Time `json:"endTime,omitempty"`
}

// Finished reports whether the participant has answered every question.
func (a Attempt) Finished() bool {
	return a.EndTime != nil
}

// Answer is a write-once record of a participant's choice for one question.
type Answer struct {
	ChallengeID string    `json:"challengeId"`
	UserID      string    `json:"userId"`
	QuestionID  string    `json:"questionId"`
	Choice      string    `json:"choice"`
	Correct     bool      `json:"correct"`
	AnsweredAt  time.Time `json:"answeredAt"`
}

// ChallengeView is a challenge together with its attempts.
type ChallengeView struct {
	Challenge Challenge `json:"challenge"`
	Attempts  []Attempt `json:"attempts"`
}

// PointsPolicy configures the points granted at finalization.
type PointsPolicy struct {
	Participation int `yaml:"participation" validate:"gte=0"`
	WinBonus      int `yaml:"win_bonus" validate:"gte=0"`
}

// AwardReason explains why points were granted.
type AwardReason string

const (
	ReasonParticipation AwardReason = "PARTICIPATION"
	ReasonWin           AwardReason = "WIN"
)

// BadgeKind names a badge checked after a decisive finish.
type BadgeKind string

const BadgeChallengeWinner BadgeKind = "challenge_winner"
