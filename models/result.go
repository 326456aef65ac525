package models

type Result struct {
	ID              int `json:"id" db:"id"`
	ParticipationID int `json:"participation_id" db:"participation_id"`
	Rank            int `json:"rank" db:"rank"`
	Points          int `json:"points" db:"points"`
	Speaker1        int `json:"speaker1" db:"speaker1"`
	Speaker2        int `json:"speaker2" db:"speaker2"`

	// Filled from the participation when listing results of a round.
	TeamID int `json:"team_id" db:"-"`
	RoomID int `json:"room_id" db:"-"`
}

// SpeakerSum is the combined score of both speakers.
func (r *Result) SpeakerSum() int {
	return r.Speaker1 + r.Speaker2
}
