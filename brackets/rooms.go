package brackets

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dosada05/debate-tab/models"
)

var ErrGroupSizeNotMultipleOfFour = errors.New("number of teams must be a positive multiple of four")

// Seat is one team on one bench.
type Seat struct {
	TeamID   int
	Position models.Position
}

// RoomPlan is a room that has been drawn but not stored yet.
type RoomPlan struct {
	Ordinal int
	Label   string
	Seats   []Seat
	// Short is set when the room holds fewer than four teams.
	Short bool
}

// RotatedPositions returns the bench order for a preliminary round: the canonical
// order shifted left by (roundNumber-1) mod 4.
func RotatedPositions(roundNumber int) [4]models.Position {
	rot := ((roundNumber-1)%RoomSize + RoomSize) % RoomSize
	var out [4]models.Position
	for i := range out {
		out[i] = models.Positions[(i+rot)%RoomSize]
	}
	return out
}

// PhaseName labels an elimination phase by the number of teams it starts with.
func PhaseName(teamCount int) string {
	switch teamCount {
	case 32:
		return "Octofinal"
	case 16:
		return "Quarterfinal"
	case 8:
		return "Semifinal"
	case 4:
		return "Final"
	default:
		return "Elimination"
	}
}

func chunk(teams []*models.Team) [][]*models.Team {
	groups := make([][]*models.Team, 0, (len(teams)+RoomSize-1)/RoomSize)
	for i := 0; i < len(teams); i += RoomSize {
		end := min(i+RoomSize, len(teams))
		groups = append(groups, teams[i:end])
	}
	return groups
}

func seatGroup(group []*models.Team, positions [4]models.Position) []Seat {
	seats := make([]Seat, 0, len(group))
	for i, team := range group {
		seats = append(seats, Seat{TeamID: team.ID, Position: positions[i]})
	}
	return seats
}

// PowerPairingGenerator draws preliminary rounds: consecutive groups of four in
// standings order, benches rotated by round number.
type PowerPairingGenerator struct{}

func NewPowerPairingGenerator() RoomGenerator {
	return &PowerPairingGenerator{}
}

func (g *PowerPairingGenerator) GetName() string {
	return "PowerPairing"
}

func (g *PowerPairingGenerator) GenerateRooms(ctx context.Context, params GenerateRoomsParams) ([]*RoomPlan, error) {
	if params.Round == nil {
		return nil, errors.New("power pairing requires a round")
	}
	if len(params.Teams) == 0 {
		return nil, errors.New("cannot pair a round with zero teams")
	}

	positions := RotatedPositions(params.Round.Number)
	groups := chunk(params.Teams)
	plans := make([]*RoomPlan, 0, len(groups))
	for i, group := range groups {
		plans = append(plans, &RoomPlan{
			Ordinal: i + 1,
			Label:   fmt.Sprintf("Room %d", i+1),
			Seats:   seatGroup(group, positions),
			Short:   len(group) < RoomSize,
		})
	}
	return plans, nil
}

// KnockoutGenerator draws elimination rooms: groups of four in the given order,
// canonical benches, labels taken from the phase name.
type KnockoutGenerator struct{}

func NewKnockoutGenerator() RoomGenerator {
	return &KnockoutGenerator{}
}

func (g *KnockoutGenerator) GetName() string {
	return "Knockout"
}

func (g *KnockoutGenerator) GenerateRooms(ctx context.Context, params GenerateRoomsParams) ([]*RoomPlan, error) {
	n := len(params.Teams)
	if n < RoomSize || n%RoomSize != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrGroupSizeNotMultipleOfFour, n)
	}

	phase := PhaseName(n)
	groups := chunk(params.Teams)
	plans := make([]*RoomPlan, 0, len(groups))
	for i, group := range groups {
		plans = append(plans, &RoomPlan{
			Ordinal: i + 1,
			Label:   fmt.Sprintf("%s %d", phase, i+1),
			Seats:   seatGroup(group, models.Positions),
		})
	}
	return plans, nil
}
