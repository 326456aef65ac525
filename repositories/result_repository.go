package repositories

import (
	"context"
	"database/sql"

	"github.com/Dosada05/debate-tab/models"
	"github.com/lib/pq"
)

type ResultRepository interface {
	// Upsert creates or replaces the result of a participation.
	Upsert(ctx context.Context, exec SQLExecutor, result *models.Result) error
	// ListByRound returns every stored result of a round with TeamID and RoomID filled.
	ListByRound(ctx context.Context, exec SQLExecutor, roundID int) ([]*models.Result, error)
	CountMissingByRound(ctx context.Context, exec SQLExecutor, roundID int) (int, error)
	// CountByTeams counts results per team across all rounds.
	CountByTeams(ctx context.Context, exec SQLExecutor, teamIDs []int) (map[int]int, error)
}

type postgresResultRepository struct {
	db *sql.DB
}

func NewPostgresResultRepository(db *sql.DB) ResultRepository {
	return &postgresResultRepository{db: db}
}

func (r *postgresResultRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresResultRepository) Upsert(ctx context.Context, exec SQLExecutor, res *models.Result) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO results (participation_id, rank, points, speaker1, speaker2)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (participation_id) DO UPDATE SET
			rank = EXCLUDED.rank,
			points = EXCLUDED.points,
			speaker1 = EXCLUDED.speaker1,
			speaker2 = EXCLUDED.speaker2
		RETURNING id`

	err := executor.QueryRowContext(ctx, query,
		res.ParticipationID, res.Rank, res.Points, res.Speaker1, res.Speaker2,
	).Scan(&res.ID)
	return r.handleResultError(err)
}

func (r *postgresResultRepository) ListByRound(ctx context.Context, exec SQLExecutor, roundID int) ([]*models.Result, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT res.id, res.participation_id, res.rank, res.points, res.speaker1, res.speaker2,
		       p.team_id, p.room_id
		FROM results res
		JOIN participations p ON p.id = res.participation_id
		WHERE p.round_id = $1
		ORDER BY p.room_id, res.rank`

	rows, err := executor.QueryContext(ctx, query, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]*models.Result, 0)
	for rows.Next() {
		res := &models.Result{}
		if err := rows.Scan(
			&res.ID, &res.ParticipationID, &res.Rank, &res.Points, &res.Speaker1, &res.Speaker2,
			&res.TeamID, &res.RoomID,
		); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *postgresResultRepository) CountMissingByRound(ctx context.Context, exec SQLExecutor, roundID int) (int, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT COUNT(*)
		FROM participations p
		LEFT JOIN results res ON res.participation_id = p.id
		WHERE p.round_id = $1 AND res.id IS NULL`

	var missing int
	err := executor.QueryRowContext(ctx, query, roundID).Scan(&missing)
	return missing, err
}

func (r *postgresResultRepository) CountByTeams(ctx context.Context, exec SQLExecutor, teamIDs []int) (map[int]int, error) {
	counts := make(map[int]int, len(teamIDs))
	if len(teamIDs) == 0 {
		return counts, nil
	}

	executor := r.getExecutor(exec)
	query := `
		SELECT p.team_id, COUNT(res.id)
		FROM participations p
		JOIN results res ON res.participation_id = p.id
		WHERE p.team_id = ANY($1)
		GROUP BY p.team_id`

	ids := make(pq.Int64Array, len(teamIDs))
	for i, id := range teamIDs {
		ids[i] = int64(id)
	}

	rows, err := executor.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var teamID, count int
		if err := rows.Scan(&teamID, &count); err != nil {
			return nil, err
		}
		counts[teamID] = count
	}
	return counts, rows.Err()
}

func (r *postgresResultRepository) handleResultError(err error) error {
	if err == nil {
		return nil
	}
	if code, constraint, ok := constraintViolation(err); ok && code == pqForeignKeyViolation && constraint == "results_participation_id_fkey" {
		return ErrParticipationNotFound
	}
	return err
}
