package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Dosada05/debate-tab/models"
)

type TeamRepository interface {
	// Create assigns the next sequence number of the tournament to the team.
	Create(ctx context.Context, exec SQLExecutor, team *models.Team) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Team, error)
	// ListByTournament returns teams ordered by Seq.
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Team, error)
	DeleteNonSwing(ctx context.Context, exec SQLExecutor, tournamentID int) (int64, error)
	// ApplyRoundTotals adds deltas to the cumulative totals; it never overwrites them.
	ApplyRoundTotals(ctx context.Context, exec SQLExecutor, teamID, pointsDelta, speakerDelta int) error
	UpdateSpeakerAverage(ctx context.Context, exec SQLExecutor, teamID int, average float64) error

	CreateMember(ctx context.Context, exec SQLExecutor, member *models.Member) error
	// ListMembersByTournament groups members by team ID.
	ListMembersByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (map[int][]models.Member, error)
}

type postgresTeamRepository struct {
	db *sql.DB
}

func NewPostgresTeamRepository(db *sql.DB) TeamRepository {
	return &postgresTeamRepository{db: db}
}

func (r *postgresTeamRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const teamColumns = `id, tournament_id, seq, name, is_swing, points, speaker_total, speaker_average, created_at`

func scanTeam(row interface{ Scan(dest ...any) error }) (*models.Team, error) {
	t := &models.Team{}
	err := row.Scan(
		&t.ID, &t.TournamentID, &t.Seq, &t.Name, &t.IsSwing,
		&t.Points, &t.SpeakerTotal, &t.SpeakerAverage, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *postgresTeamRepository) Create(ctx context.Context, exec SQLExecutor, team *models.Team) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO teams (tournament_id, seq, name, is_swing)
		VALUES ($1, (SELECT COALESCE(MAX(seq), 0) + 1 FROM teams WHERE tournament_id = $1), $2, $3)
		RETURNING id, seq, points, speaker_total, speaker_average, created_at`

	err := executor.QueryRowContext(ctx, query, team.TournamentID, team.Name, team.IsSwing).
		Scan(&team.ID, &team.Seq, &team.Points, &team.SpeakerTotal, &team.SpeakerAverage, &team.CreatedAt)
	return r.handleTeamError(err)
}

func (r *postgresTeamRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Team, error) {
	executor := r.getExecutor(exec)
	t, err := scanTeam(executor.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *postgresTeamRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Team, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + teamColumns + ` FROM teams WHERE tournament_id = $1 ORDER BY seq ASC`

	rows, err := executor.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teams := make([]*models.Team, 0)
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return teams, nil
}

func (r *postgresTeamRepository) DeleteNonSwing(ctx context.Context, exec SQLExecutor, tournamentID int) (int64, error) {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `DELETE FROM teams WHERE tournament_id = $1 AND is_swing = FALSE`, tournamentID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *postgresTeamRepository) ApplyRoundTotals(ctx context.Context, exec SQLExecutor, teamID, pointsDelta, speakerDelta int) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE teams
		SET points = points + $1, speaker_total = speaker_total + $2
		WHERE id = $3`
	result, err := executor.ExecContext(ctx, query, pointsDelta, speakerDelta, teamID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTeamNotFound)
}

func (r *postgresTeamRepository) UpdateSpeakerAverage(ctx context.Context, exec SQLExecutor, teamID int, average float64) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `UPDATE teams SET speaker_average = $1 WHERE id = $2`, average, teamID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTeamNotFound)
}

func (r *postgresTeamRepository) CreateMember(ctx context.Context, exec SQLExecutor, member *models.Member) error {
	executor := r.getExecutor(exec)
	err := executor.QueryRowContext(ctx,
		`INSERT INTO members (team_id, name) VALUES ($1, $2) RETURNING id`,
		member.TeamID, member.Name,
	).Scan(&member.ID)
	return r.handleTeamError(err)
}

func (r *postgresTeamRepository) ListMembersByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (map[int][]models.Member, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT m.id, m.team_id, m.name
		FROM members m
		JOIN teams t ON t.id = m.team_id
		WHERE t.tournament_id = $1
		ORDER BY m.team_id, m.id`

	rows, err := executor.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make(map[int][]models.Member)
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.ID, &m.TeamID, &m.Name); err != nil {
			return nil, err
		}
		members[m.TeamID] = append(members[m.TeamID], m)
	}
	return members, rows.Err()
}

func (r *postgresTeamRepository) handleTeamError(err error) error {
	if err == nil {
		return nil
	}
	if code, constraint, ok := constraintViolation(err); ok {
		switch code {
		case pqUniqueViolation:
			if constraint == "teams_tournament_id_seq_key" {
				return ErrTeamSeqConflict
			}
		case pqForeignKeyViolation:
			switch constraint {
			case "teams_tournament_id_fkey":
				return ErrTournamentNotFound
			case "members_team_id_fkey":
				return ErrTeamNotFound
			}
		}
	}
	return err
}
