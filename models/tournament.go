package models

import "time"

// BracketState is the progression state of a tournament as reported by the engine.
type BracketState string

const (
	StatePrelimOpen      BracketState = "prelim_open"
	StatePrelimDone      BracketState = "prelim_done"
	StateKnockoutOpen    BracketState = "knockout_open"
	StateChampionDecided BracketState = "champion_decided"
)

// Tournament представляет турнир в формате British Parliamentary.
type Tournament struct {
	ID             int       `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	Organizer      string    `json:"organizer" db:"organizer"`
	TeamCount      int       `json:"team_count" db:"team_count"`
	PrelimRounds   int       `json:"prelim_rounds" db:"prelim_rounds"`
	Qualifiers     int       `json:"qualifiers" db:"qualifiers"`
	LocationName   *string   `json:"location_name,omitempty" db:"location_name"`
	LocationLat    *float64  `json:"location_lat,omitempty" db:"location_lat"`
	LocationLng    *float64  `json:"location_lng,omitempty" db:"location_lng"`
	Closed         bool      `json:"closed" db:"closed"`
	ChampionTeamID *int      `json:"champion_team_id,omitempty" db:"champion_team_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`

	Champion *Team `json:"champion,omitempty" db:"-"`
}

// IsKnockoutRound reports whether a round number lies beyond the preliminary rounds.
func (t *Tournament) IsKnockoutRound(number int) bool {
	return number > t.PrelimRounds
}
