package domain

import (
	"fmt"
	"time"
)

// Event is an input to the challenge state machine.
type Event interface {
	eventName() string
}

// Accept is sent by the invited opponent.
type Accept struct{ Actor string }

// Decline is sent by the invited opponent.
type Decline struct{ Actor string }

// Cancel is sent by the challenger while the challenge is still pending.
type Cancel struct{ Actor string }

// Expire is sent by the scheduled sweep for stale pending challenges.
type Expire struct{}

// ParticipantReadied is sent after a participant's ready flag was stored.
// Attempts must reflect the state after the flag was written.
type ParticipantReadied struct {
	UserID   string
	Attempts []Attempt
}

// AttemptsFinished is sent under the challenge lock once a participant has
// answered every question.
type AttemptsFinished struct {
	Attempts []Attempt
	Points   PointsPolicy
}

func (Accept) eventName() string             { return "accept" }
func (Decline) eventName() string            { return "decline" }
func (Cancel) eventName() string             { return "cancel" }
func (Expire) eventName() string             { return "expire" }
func (ParticipantReadied) eventName() string { return "ready" }
func (AttemptsFinished) eventName() string   { return "finish" }

// Effect is a side effect the caller performs after persisting a transition.
type Effect interface {
	effect()
}

// Broadcast publishes an event to a group.
type Broadcast struct {
	Group   string
	Type    string
	Payload any
}

// EnsureAttempt creates the attempt for a participant that just became known.
type EnsureAttempt struct{ UserID string }

// Award grants points through the scoring callback.
type Award struct {
	UserID string
	Points int
	Reason AwardReason
}

// CheckBadge asks the badge callback to evaluate a badge for the winner.
type CheckBadge struct {
	UserID string
	Kind   BadgeKind
}

func (Broadcast) effect()     {}
func (EnsureAttempt) effect() {}
func (Award) effect()         {}
func (CheckBadge) effect()    {}

// Transition applies ev to ch and returns the next state plus the effects to
// perform once that state is stored. When ev causes no change the returned
// challenge equals ch and no effects are produced.
func Transition(ch Challenge, ev Event, now time.Time) (Challenge, []Effect, error) {
	if ch.Status.Terminal() {
		return ch, nil, fmt.Errorf("%w: %s on %s challenge", ErrInvalidTransition, ev.eventName(), ch.Status)
	}

	switch e := ev.(type) {
	case Accept:
		return answerInvite(ch, e.Actor, StatusAccepted, now)
	case Decline:
		return answerInvite(ch, e.Actor, StatusDeclined, now)
	case Cancel:
		if e.Actor != ch.ChallengerID {
			return ch, nil, ErrNotOwner
		}
		if !ch.Status.Pending() {
			return ch, nil, fmt.Errorf("%w: cancel on %s challenge", ErrInvalidTransition, ch.Status)
		}
		next := ch
		next.Status = StatusCancelled
		effects := []Effect{Broadcast{Group: ChallengeGroup(ch.ID), Type: EventChallengeUpdate, Payload: next}}
		if ch.OpponentID != "" {
			effects = append(effects, Broadcast{Group: UserGroup(ch.OpponentID), Type: EventChallengeUpdate, Payload: next})
		}
		return next, effects, nil
	case Expire:
		if !ch.Status.Pending() {
			return ch, nil, fmt.Errorf("%w: expire on %s challenge", ErrInvalidTransition, ch.Status)
		}
		next := ch
		next.Status = StatusExpired
		effects := []Effect{Broadcast{Group: UserGroup(ch.ChallengerID), Type: EventChallengeUpdate, Payload: next}}
		if ch.OpponentID != "" {
			effects = append(effects, Broadcast{Group: UserGroup(ch.OpponentID), Type: EventChallengeUpdate, Payload: next})
		}
		return next, effects, nil
	case ParticipantReadied:
		return readied(ch, e, now)
	case AttemptsFinished:
		return finish(ch, e, now)
	}
	return ch, nil, fmt.Errorf("%w: unsupported event %T", ErrInvalidTransition, ev)
}

func answerInvite(ch Challenge, actor string, to Status, now time.Time) (Challenge, []Effect, error) {
	if ch.OpponentID == "" || actor != ch.OpponentID {
		return ch, nil, ErrNotInvitedOpponent
	}
	if ch.Status != StatusPendingInvite {
		return ch, nil, fmt.Errorf("%w: %s on %s challenge", ErrInvalidTransition, to, ch.Status)
	}

	next := ch
	next.Status = to
	var effects []Effect
	if to == StatusAccepted {
		accepted := now
		next.AcceptedAt = &accepted
		effects = append(effects, EnsureAttempt{UserID: ch.OpponentID})
	}
	effects = append(effects,
		Broadcast{Group: UserGroup(ch.ChallengerID), Type: EventChallengeUpdate, Payload: next},
		Broadcast{Group: ChallengeGroup(ch.ID), Type: EventChallengeUpdate, Payload: next},
	)
	return next, effects, nil
}

func readied(ch Challenge, e ParticipantReadied, now time.Time) (Challenge, []Effect, error) {
	if !ch.IsParticipant(e.UserID) {
		return ch, nil, ErrNotParticipant
	}
	if ch.Status != StatusAccepted && ch.Status != StatusOngoing {
		return ch, nil, fmt.Errorf("%w: ready on %s challenge", ErrInvalidTransition, ch.Status)
	}
	if ch.OpponentID == "" {
		return ch, nil, fmt.Errorf("%w: ready without an opponent", ErrInvalidTransition)
	}
	if ch.Status == StatusOngoing {
		return ch, nil, nil
	}

	ready := 0
	for _, a := range e.Attempts {
		if a.IsReady && ch.IsParticipant(a.UserID) {
			ready++
		}
	}
	if ready < ch.ExpectedParticipants() {
		return ch, nil, nil
	}

	next := ch
	started := now
	next.Status = StatusOngoing
	next.StartedAt = &started
	payload := StartPayload{
		ChallengeID: ch.ID,
		QuestionIDs: append([]string(nil), ch.QuestionIDs...),
		StartedAt:   started,
	}
	if ch.Config.TimeLimit > 0 {
		payload.TimeLimit = ch.Config.TimeLimit.String()
	}
	return next, []Effect{Broadcast{Group: ChallengeGroup(ch.ID), Type: EventChallengeStart, Payload: payload}}, nil
}

func finish(ch Challenge, e AttemptsFinished, now time.Time) (Challenge, []Effect, error) {
	if ch.Status != StatusOngoing {
		return ch, nil, ErrNotOngoing
	}
	if !Complete(ch, e.Attempts) {
		return ch, nil, nil
	}

	winner := Winner(e.Attempts)
	next := ch
	completed := now
	next.Status = StatusCompleted
	next.CompletedAt = &completed
	next.WinnerID = winner

	end := EndPayload{ChallengeID: ch.ID, WinnerID: winner, Tie: winner == "", CompletedAt: completed}
	var effects []Effect
	for _, a := range e.Attempts {
		points := e.Points.Participation
		reason := ReasonParticipation
		if a.UserID == winner {
			points += e.Points.WinBonus
			reason = ReasonWin
		}
		p := points
		if a.UserID == ch.ChallengerID {
			next.ChallengerPoints = &p
		} else {
			next.OpponentPoints = &p
		}
		effects = append(effects, Award{UserID: a.UserID, Points: points, Reason: reason})
		end.Results = append(end.Results, ResultEntry{UserID: a.UserID, Score: a.Score, Points: points})
	}
	if winner != "" {
		effects = append(effects, CheckBadge{UserID: winner, Kind: BadgeChallengeWinner})
	}
	effects = append(effects, Broadcast{Group: ChallengeGroup(ch.ID), Type: EventChallengeEnd, Payload: end})
	return next, effects, nil
}

// Complete reports whether every expected participant has an attempt with an end time.
func Complete(ch Challenge, attempts []Attempt) bool {
	if len(attempts) != ch.ExpectedParticipants() {
		return false
	}
	for _, a := range attempts {
		if !ch.IsParticipant(a.UserID) || !a.Finished() {
			return false
		}
	}
	return true
}

// Winner returns the user with the strictly highest score, or "" on a tie.
func Winner(attempts []Attempt) string {
	winner, best, tied := "", -1, false
	for _, a := range attempts {
		switch {
		case a.Score > best:
			winner, best, tied = a.UserID, a.Score, false
		case a.Score == best:
			tied = true
		}
	}
	if tied {
		return ""
	}
	return winner
}
