package domain

import "errors"

var (
	// ErrChallengeNotFound is returned when a challenge id is unknown.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrInvalidTransition is returned when a lifecycle guard rejects an action.
	ErrInvalidTransition = errors.New("invalid challenge transition")
	// ErrNotParticipant is returned when the actor is neither challenger nor opponent.
	ErrNotParticipant = errors.New("user is not a participant")
	// ErrNotInvitedOpponent is returned when someone other than the invited opponent answers an invite.
	ErrNotInvitedOpponent = errors.New("user is not the invited opponent")
	// ErrNotOwner is returned when someone other than the challenger tries to cancel.
	ErrNotOwner = errors.New("user is not the challenger")
	// ErrNotOngoing is returned when answering outside of an ongoing challenge.
	ErrNotOngoing = errors.New("challenge is not ongoing")
	// ErrNotCompleted is returned when a rematch is requested for an unfinished challenge.
	ErrNotCompleted = errors.New("challenge is not completed")
	// ErrUnknownQuestion is returned when a question is not part of the challenge.
	ErrUnknownQuestion = errors.New("question is not part of this challenge")
	// ErrDuplicateAnswer is returned when a question was already answered by the user.
	ErrDuplicateAnswer = errors.New("question already answered")
	// ErrNoQuestionsAvailable is returned when the filtered question pool is empty.
	ErrNoQuestionsAvailable = errors.New("no questions available")
	// ErrMissingOpponent is returned when a rematch has nobody to play against.
	ErrMissingOpponent = errors.New("challenge has no opponent")
	// ErrQuestionNotFound indicates the question bank has no such question.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrUnknownType indicates the requested challenge type is not configured.
	ErrUnknownType = errors.New("unknown challenge type")
	// ErrSelfChallenge is returned when a user invites themselves.
	ErrSelfChallenge = errors.New("cannot challenge yourself")
)

// Kind groups errors by how callers should report them.
type Kind int

const (
	KindInternal Kind = iota
	KindTransition
	KindPermission
	KindPrecondition
	KindInput
	KindUnavailable
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindTransition:
		return "invalid_transition"
	case KindPermission:
		return "permission"
	case KindPrecondition:
		return "precondition"
	case KindInput:
		return "input"
	case KindUnavailable:
		return "unavailable"
	case KindNotFound:
		return "not_found"
	}
	return "internal"
}

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrInvalidTransition):
		return KindTransition
	case errors.Is(err, ErrNotParticipant), errors.Is(err, ErrNotInvitedOpponent), errors.Is(err, ErrNotOwner):
		return KindPermission
	case errors.Is(err, ErrNotOngoing), errors.Is(err, ErrNotCompleted):
		return KindPrecondition
	case errors.Is(err, ErrUnknownQuestion), errors.Is(err, ErrDuplicateAnswer),
		errors.Is(err, ErrUnknownType), errors.Is(err, ErrSelfChallenge):
		return KindInput
	case errors.Is(err, ErrNoQuestionsAvailable), errors.Is(err, ErrMissingOpponent):
		return KindUnavailable
	case errors.Is(err, ErrChallengeNotFound), errors.Is(err, ErrQuestionNotFound):
		return KindNotFound
	}
	return KindInternal
}

// IsUserFacing reports whether err is a local rejection that must not be retried.
func IsUserFacing(err error) bool {
	return KindOf(err) != KindInternal
}
