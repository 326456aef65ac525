package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Dosada05/debate-tab/models"
)

type RoundRepository interface {
	Create(ctx context.Context, exec SQLExecutor, round *models.Round) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Round, error)
	GetByNumber(ctx context.Context, exec SQLExecutor, tournamentID, number int) (*models.Round, error)
	// ListByTournament returns rounds ordered by number.
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Round, error)
	UpdateFlags(ctx context.Context, exec SQLExecutor, id int, paired, closed bool) error
}

type postgresRoundRepository struct {
	db *sql.DB
}

func NewPostgresRoundRepository(db *sql.DB) RoundRepository {
	return &postgresRoundRepository{db: db}
}

func (r *postgresRoundRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const roundColumns = `id, tournament_id, number, paired, closed, created_at`

func scanRound(row interface{ Scan(dest ...any) error }) (*models.Round, error) {
	rd := &models.Round{}
	if err := row.Scan(&rd.ID, &rd.TournamentID, &rd.Number, &rd.Paired, &rd.Closed, &rd.CreatedAt); err != nil {
		return nil, err
	}
	return rd, nil
}

func (r *postgresRoundRepository) Create(ctx context.Context, exec SQLExecutor, round *models.Round) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO rounds (tournament_id, number, paired, closed)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query, round.TournamentID, round.Number, round.Paired, round.Closed).
		Scan(&round.ID, &round.CreatedAt)
	return r.handleRoundError(err)
}

func (r *postgresRoundRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Round, error) {
	executor := r.getExecutor(exec)
	rd, err := scanRound(executor.QueryRowContext(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoundNotFound
		}
		return nil, err
	}
	return rd, nil
}

func (r *postgresRoundRepository) GetByNumber(ctx context.Context, exec SQLExecutor, tournamentID, number int) (*models.Round, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE tournament_id = $1 AND number = $2`
	rd, err := scanRound(executor.QueryRowContext(ctx, query, tournamentID, number))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoundNotFound
		}
		return nil, err
	}
	return rd, nil
}

func (r *postgresRoundRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Round, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE tournament_id = $1 ORDER BY number ASC`

	rows, err := executor.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rounds := make([]*models.Round, 0)
	for rows.Next() {
		rd, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, rd)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return rounds, nil
}

func (r *postgresRoundRepository) UpdateFlags(ctx context.Context, exec SQLExecutor, id int, paired, closed bool) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `UPDATE rounds SET paired = $1, closed = $2 WHERE id = $3`, paired, closed, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrRoundNotFound)
}

func (r *postgresRoundRepository) handleRoundError(err error) error {
	if err == nil {
		return nil
	}
	if code, constraint, ok := constraintViolation(err); ok {
		switch code {
		case pqUniqueViolation:
			if constraint == "rounds_tournament_id_number_key" {
				return ErrRoundNumberConflict
			}
		case pqForeignKeyViolation:
			if constraint == "rounds_tournament_id_fkey" {
				return ErrTournamentNotFound
			}
		}
	}
	return err
}
