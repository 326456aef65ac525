package models

// Standing is one row of the tab, in standings order.
type Standing struct {
	Rank           int     `json:"rank"`
	TeamID         int     `json:"team_id"`
	TeamName       string  `json:"team_name"`
	IsSwing        bool    `json:"is_swing"`
	Points         int     `json:"points"`
	SpeakerTotal   int     `json:"speaker_total"`
	SpeakerAverage float64 `json:"speaker_average"`
}
