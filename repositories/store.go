package repositories

import (
	"database/sql"
	"errors"
)

var (
	ErrTournamentNotFound    = errors.New("tournament not found")
	ErrTeamNotFound          = errors.New("team not found")
	ErrTeamSeqConflict       = errors.New("team sequence number already taken in this tournament")
	ErrRoundNotFound         = errors.New("round not found")
	ErrRoundNumberConflict   = errors.New("round number already exists in this tournament")
	ErrRoomNotFound          = errors.New("room not found")
	ErrRoomOrdinalConflict   = errors.New("room ordinal already exists in this round")
	ErrPositionTaken         = errors.New("position already taken in this room")
	ErrTeamAlreadySeated     = errors.New("team already seated in this round")
	ErrParticipationNotFound = errors.New("participation not found")
)

// Store bundles every repository behind one transactor.
type Store struct {
	Tournaments TournamentRepository
	Teams       TeamRepository
	Rounds      RoundRepository
	Rooms       RoomRepository
	Results     ResultRepository
	Tx          Transactor
}

func NewPostgresStore(db *sql.DB) *Store {
	return &Store{
		Tournaments: NewPostgresTournamentRepository(db),
		Teams:       NewPostgresTeamRepository(db),
		Rounds:      NewPostgresRoundRepository(db),
		Rooms:       NewPostgresRoomRepository(db),
		Results:     NewPostgresResultRepository(db),
		Tx:          NewPostgresTransactor(db),
	}
}
