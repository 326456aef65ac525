package brackets

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/Dosada05/debate-tab/models"
)

// ErrInvalidRank is returned for placements outside 1..4.
var ErrInvalidRank = errors.New("rank must be between 1 and 4")

// Очки команды за место в комнате.
var placementPoints = map[int]int{1: 3, 2: 2, 3: 1, 4: 0}

// PointsForPlacement maps a room placement to team points. Unknown ranks are rejected.
func PointsForPlacement(rank int) (int, error) {
	points, ok := placementPoints[rank]
	if !ok {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidRank, rank)
	}
	return points, nil
}

// SpeakerAverage is the per-speaker average over roomsPlayed debates, two speakers each.
func SpeakerAverage(speakerTotal, roomsPlayed int) float64 {
	return float64(speakerTotal) / float64(max(2*roomsPlayed, 1))
}

// CompareStandings orders a before b when a ranks higher on the tab.
func CompareStandings(a, b *models.Team) int {
	if c := cmp.Compare(b.Points, a.Points); c != 0 {
		return c
	}
	if c := cmp.Compare(b.SpeakerTotal, a.SpeakerTotal); c != 0 {
		return c
	}
	if c := cmp.Compare(b.SpeakerAverage, a.SpeakerAverage); c != 0 {
		return c
	}
	return cmp.Compare(a.Seq, b.Seq)
}

// StandingsOrder returns a sorted copy of teams: points, speaker total and speaker
// average descending, then Seq ascending so the order is total.
func StandingsOrder(teams []*models.Team) []*models.Team {
	ordered := slices.Clone(teams)
	slices.SortStableFunc(ordered, CompareStandings)
	return ordered
}

// Standings builds the numbered tab rows for already ordered teams.
func Standings(ordered []*models.Team) []models.Standing {
	rows := make([]models.Standing, 0, len(ordered))
	for i, t := range ordered {
		rows = append(rows, models.Standing{
			Rank:           i + 1,
			TeamID:         t.ID,
			TeamName:       t.Name,
			IsSwing:        t.IsSwing,
			Points:         t.Points,
			SpeakerTotal:   t.SpeakerTotal,
			SpeakerAverage: t.SpeakerAverage,
		})
	}
	return rows
}
