package services

import "errors"

// Ошибки движка жеребьёвки и сетки. Сопоставляются с HTTP-статусами в handlers.
var (
	// Не найдено
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrRoundNotFound      = errors.New("round not found")
	ErrTeamNotFound       = errors.New("team not found")

	// Валидация
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidResult    = errors.New("invalid result")
	ErrNoTeams          = errors.New("tournament has no teams")

	// Конфликты состояния
	ErrTournamentClosed      = errors.New("tournament is closed")
	ErrTournamentStarted     = errors.New("tournament has already started")
	ErrRosterLocked          = errors.New("roster is locked once the first round exists")
	ErrRoundNotPaired        = errors.New("round has not been paired")
	ErrRoundAlreadyClosed    = errors.New("round is already closed")
	ErrPreviousRoundOpen     = errors.New("previous round is still open")
	ErrRoundOutOfSequence    = errors.New("round numbers must be contiguous")
	ErrNotPreliminaryRound   = errors.New("round number is not a preliminary round")
	ErrIncompleteResults     = errors.New("results are missing for one or more participations")
	ErrInvalidQualifierCount = errors.New("knockout qualifiers must be a positive multiple of four")
	ErrUnbalancedBracket     = errors.New("knockout winners are not a multiple of four")
	ErrNoWinnerFound         = errors.New("no winner found in the closed knockout round")

	ErrPublishingDisabled = errors.New("standings publishing is not configured")
)

// Причины отклонения результатов, используются как метка метрики.
const (
	ReasonUnknownRoom    = "unknown_room"
	ReasonDuplicateRoom  = "duplicate_room"
	ReasonTeamMismatch   = "team_mismatch"
	ReasonRankOutOfRange = "rank_out_of_range"
	ReasonRankSet        = "rank_set"
	ReasonSpeakerRange   = "speaker_out_of_range"
	ReasonEmpty          = "empty_submission"
)

// ResultValidationError describes why a room's submitted results were rejected.
type ResultValidationError struct {
	Room   string
	Reason string
	Detail string
}

func (e *ResultValidationError) Error() string {
	if e.Room == "" {
		return ErrInvalidResult.Error() + ": " + e.Detail
	}
	return ErrInvalidResult.Error() + ": " + e.Room + ": " + e.Detail
}

func (e *ResultValidationError) Unwrap() error {
	return ErrInvalidResult
}
