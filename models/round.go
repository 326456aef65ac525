package models

import "time"

// Position is one of the four BP benches.
type Position string

const (
	PositionOG Position = "OG"
	PositionOO Position = "OO"
	PositionCG Position = "CG"
	PositionCO Position = "CO"
)

// Positions lists the benches in their canonical order.
var Positions = [4]Position{PositionOG, PositionOO, PositionCG, PositionCO}

// Valid reports whether p is one of the four benches.
func (p Position) Valid() bool {
	return p.Index() >= 0
}

// Index returns the canonical index of p, or -1.
func (p Position) Index() int {
	for i, pos := range Positions {
		if pos == p {
			return i
		}
	}
	return -1
}

type Round struct {
	ID           int       `json:"id" db:"id"`
	TournamentID int       `json:"tournament_id" db:"tournament_id"`
	Number       int       `json:"number" db:"number"`
	Paired       bool      `json:"paired" db:"paired"`
	Closed       bool      `json:"closed" db:"closed"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type Room struct {
	ID      int    `json:"id" db:"id"`
	RoundID int    `json:"round_id" db:"round_id"`
	Ordinal int    `json:"ordinal" db:"ordinal"`
	Label   string `json:"label" db:"label"`

	Participations []*Participation `json:"participations" db:"-"`
}

// Participation places one team on one bench of one room.
type Participation struct {
	ID       int      `json:"id" db:"id"`
	RoomID   int      `json:"room_id" db:"room_id"`
	RoundID  int      `json:"round_id" db:"round_id"`
	TeamID   int      `json:"team_id" db:"team_id"`
	Position Position `json:"position" db:"position"`

	Team   *Team   `json:"team,omitempty" db:"-"`
	Result *Result `json:"result,omitempty" db:"-"`
}
