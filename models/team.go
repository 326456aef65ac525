package models

import "time"

type Team struct {
	ID             int       `json:"id" db:"id"`
	TournamentID   int       `json:"tournament_id" db:"tournament_id"`
	Seq            int       `json:"seq" db:"seq"`
	Name           string    `json:"name" db:"name"`
	IsSwing        bool      `json:"is_swing" db:"is_swing"`
	Points         int       `json:"points" db:"points"`
	SpeakerTotal   int       `json:"speaker_total" db:"speaker_total"`
	SpeakerAverage float64   `json:"speaker_average" db:"speaker_average"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`

	Members []Member `json:"members,omitempty" db:"-"`
}

// Member is a single debater registered on a team.
type Member struct {
	ID     int    `json:"id" db:"id"`
	TeamID int    `json:"team_id" db:"team_id"`
	Name   string `json:"name" db:"name"`
}
