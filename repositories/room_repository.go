package repositories

import (
	"context"
	"database/sql"
	"slices"

	"github.com/Dosada05/debate-tab/models"
)

type RoomRepository interface {
	CreateRoom(ctx context.Context, exec SQLExecutor, room *models.Room) error
	CreateParticipation(ctx context.Context, exec SQLExecutor, participation *models.Participation) error
	// ListByRound returns the rooms of a round by ordinal, each with its participations
	// in bench order.
	ListByRound(ctx context.Context, exec SQLExecutor, roundID int) ([]*models.Room, error)
	CountByRound(ctx context.Context, exec SQLExecutor, roundID int) (int, error)
}

type postgresRoomRepository struct {
	db *sql.DB
}

func NewPostgresRoomRepository(db *sql.DB) RoomRepository {
	return &postgresRoomRepository{db: db}
}

func (r *postgresRoomRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresRoomRepository) CreateRoom(ctx context.Context, exec SQLExecutor, room *models.Room) error {
	executor := r.getExecutor(exec)
	err := executor.QueryRowContext(ctx,
		`INSERT INTO rooms (round_id, ordinal, label) VALUES ($1, $2, $3) RETURNING id`,
		room.RoundID, room.Ordinal, room.Label,
	).Scan(&room.ID)
	return r.handleRoomError(err)
}

func (r *postgresRoomRepository) CreateParticipation(ctx context.Context, exec SQLExecutor, p *models.Participation) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO participations (room_id, round_id, team_id, position)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	err := executor.QueryRowContext(ctx, query, p.RoomID, p.RoundID, p.TeamID, p.Position).Scan(&p.ID)
	return r.handleRoomError(err)
}

func (r *postgresRoomRepository) ListByRound(ctx context.Context, exec SQLExecutor, roundID int) ([]*models.Room, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT rm.id, rm.round_id, rm.ordinal, rm.label,
		       p.id, p.team_id, p.position
		FROM rooms rm
		LEFT JOIN participations p ON p.room_id = rm.id
		WHERE rm.round_id = $1
		ORDER BY rm.ordinal ASC, p.id ASC`

	rows, err := executor.QueryContext(ctx, query, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := make([]*models.Room, 0)
	byID := make(map[int]*models.Room)
	for rows.Next() {
		var (
			room     models.Room
			partID   sql.NullInt64
			teamID   sql.NullInt64
			position sql.NullString
		)
		if err := rows.Scan(&room.ID, &room.RoundID, &room.Ordinal, &room.Label, &partID, &teamID, &position); err != nil {
			return nil, err
		}
		current, ok := byID[room.ID]
		if !ok {
			current = &room
			current.Participations = make([]*models.Participation, 0, 4)
			byID[room.ID] = current
			rooms = append(rooms, current)
		}
		if partID.Valid {
			current.Participations = append(current.Participations, &models.Participation{
				ID:       int(partID.Int64),
				RoomID:   current.ID,
				RoundID:  current.RoundID,
				TeamID:   int(teamID.Int64),
				Position: models.Position(position.String),
			})
		}
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	for _, room := range rooms {
		sortByBench(room.Participations)
	}
	return rooms, nil
}

func (r *postgresRoomRepository) CountByRound(ctx context.Context, exec SQLExecutor, roundID int) (int, error) {
	executor := r.getExecutor(exec)
	var count int
	err := executor.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms WHERE round_id = $1`, roundID).Scan(&count)
	return count, err
}

func (r *postgresRoomRepository) handleRoomError(err error) error {
	if err == nil {
		return nil
	}
	if code, constraint, ok := constraintViolation(err); ok {
		switch code {
		case pqUniqueViolation:
			switch constraint {
			case "rooms_round_id_ordinal_key":
				return ErrRoomOrdinalConflict
			case "participations_room_id_position_key":
				return ErrPositionTaken
			case "participations_round_id_team_id_key":
				return ErrTeamAlreadySeated
			}
		case pqForeignKeyViolation:
			switch constraint {
			case "rooms_round_id_fkey", "participations_round_id_fkey":
				return ErrRoundNotFound
			case "participations_room_id_fkey":
				return ErrRoomNotFound
			case "participations_team_id_fkey":
				return ErrTeamNotFound
			}
		}
	}
	return err
}

func sortByBench(parts []*models.Participation) {
	slices.SortFunc(parts, func(a, b *models.Participation) int {
		return a.Position.Index() - b.Position.Index()
	})
}
