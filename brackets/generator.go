package brackets

import (
	"context"

	"github.com/Dosada05/debate-tab/models"
)

type GenerateRoomsParams struct {
	Round *models.Round
	// Teams must already be in standings order.
	Teams []*models.Team
}

// RoomGenerator partitions a round's teams into rooms and benches.
type RoomGenerator interface {
	GenerateRooms(ctx context.Context, params GenerateRoomsParams) ([]*RoomPlan, error)

	GetName() string
}
