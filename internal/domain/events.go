package domain

import "time"

// Broadcast event types.
const (
	EventChallengeUpdate   = "challenge.update"
	EventChallengeStart    = "challenge.start"
	EventParticipantUpdate = "participant.update"
	EventAnswerResult      = "answer.result"
	EventChallengeEnd      = "challenge.end"
	EventError             = "error"
)

// ChallengeGroup is the broadcast group shared by both participants of a challenge.
func ChallengeGroup(challengeID string) string {
	return "challenge:" + challengeID
}

// UserGroup is a user's personal notification stream.
func UserGroup(userID string) string {
	return "user:" + userID + ":challenges"
}

// Envelope is what subscribers of a broadcast group receive.
type Envelope struct {
	Group   string    `json:"group"`
	Type    string    `json:"type"`
	Payload any       `json:"payload"`
	SentAt  time.Time `json:"sentAt"`
}

// StartPayload is carried by challenge.start.
type StartPayload struct {
	ChallengeID string    `json:"challengeId"`
	QuestionIDs []string  `json:"questionIds"`
	TimeLimit   string    `json:"timeLimit,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
}

// ParticipantPayload is carried by participant.update.
type ParticipantPayload struct {
	ChallengeID string `json:"challengeId"`
	UserID      string `json:"userId"`
	IsReady     bool   `json:"isReady"`
	Score       int    `json:"score"`
	Answered    int    `json:"answered"`
	Finished    bool   `json:"finished"`
}

// AnswerPayload is carried by answer.result.
type AnswerPayload struct {
	ChallengeID string `json:"challengeId"`
	UserID      string `json:"userId"`
	QuestionID  string `json:"questionId"`
	Correct     bool   `json:"correct"`
	Score       int    `json:"score"`
}

// ResultEntry is one participant's line in the final results.
type ResultEntry struct {
	UserID string `json:"userId"`
	Score  int    `json:"score"`
	Points int    `json:"points"`
}

// EndPayload is carried by challenge.end.
type EndPayload struct {
	ChallengeID string        `json:"challengeId"`
	WinnerID    string        `json:"winnerId,omitempty"`
	Tie         bool          `json:"tie"`
	Results     []ResultEntry `json:"results"`
	CompletedAt time.Time     `json:"completedAt"`
}

// ErrorPayload is carried by error events.
type ErrorPayload struct {
	Detail string `json:"detail"`
}
