package repositories

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Dosada05/debate-tab/models"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewPostgresStore(db), mock
}

var lockQuery = regexp.QuoteMeta(`SELECT pg_advisory_xact_lock($1)`)

func TestPostgresTransactor_LocksAndCommits(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(lockQuery).WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE teams\s+SET points = points \+ \$1`).
		WithArgs(3, 150, 11).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Tx.WithinTournament(context.Background(), 7, func(ctx context.Context, exec SQLExecutor) error {
		return store.Teams.ApplyRoundTotals(ctx, exec, 11, 3, 150)
	})
	require.NoError(t, err)
}

func TestPostgresTransactor_WithinTxTakesNoLock(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	called := false
	err := store.Tx.WithinTx(context.Background(), func(ctx context.Context, exec SQLExecutor) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestPostgresTransactor_RollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(lockQuery).WithArgs(int64(3)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.Tx.WithinTournament(context.Background(), 3, func(ctx context.Context, exec SQLExecutor) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestPostgresTransactor_RollbackFailureIsReported(t *testing.T) {
	store, mock := newMockStore(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(errors.New("connection reset"))

	err := store.Tx.WithinTx(context.Background(), func(ctx context.Context, exec SQLExecutor) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "rollback failed: connection reset")
}

func TestPostgresTransactor_RollsBackOnPanic(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "unexpected", func() {
		_ = store.Tx.WithinTx(context.Background(), func(ctx context.Context, exec SQLExecutor) error {
			panic("unexpected")
		})
	})
}

func TestPostgresTransactor_LockFailureSkipsBody(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(lockQuery).WithArgs(int64(5)).WillReturnError(errors.New("canceling statement due to lock timeout"))
	mock.ExpectRollback()

	called := false
	err := store.Tx.WithinTournament(context.Background(), 5, func(ctx context.Context, exec SQLExecutor) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to lock tournament 5")
	assert.False(t, called)
}

func TestPostgresTransactor_CommitFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("could not serialize access"))

	err := store.Tx.WithinTx(context.Background(), func(ctx context.Context, exec SQLExecutor) error {
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to commit transaction")
}

func TestPostgresTransactor_BeginFailure(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	err := store.Tx.WithinTx(context.Background(), func(ctx context.Context, exec SQLExecutor) error {
		t.Fatal("body must not run")
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to begin transaction")
}

func violation(code, constraint string) error {
	return &pq.Error{Code: pq.ErrorCode(code), Constraint: constraint}
}

func TestPostgresRepositories_ConstraintErrors(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name  string
		query string
		err   error
		call  func(s *Store) error
		want  error
	}{
		{
			name:  "round number taken",
			query: `INSERT INTO rounds`,
			err:   violation(pqUniqueViolation, "rounds_tournament_id_number_key"),
			call: func(s *Store) error {
				return s.Rounds.Create(ctx, nil, &models.Round{TournamentID: 1, Number: 1})
			},
			want: ErrRoundNumberConflict,
		},
		{
			name:  "round of unknown tournament",
			query: `INSERT INTO rounds`,
			err:   violation(pqForeignKeyViolation, "rounds_tournament_id_fkey"),
			call: func(s *Store) error {
				return s.Rounds.Create(ctx, nil, &models.Round{TournamentID: 99, Number: 1})
			},
			want: ErrTournamentNotFound,
		},
		{
			name:  "room ordinal taken",
			query: `INSERT INTO rooms`,
			err:   violation(pqUniqueViolation, "rooms_round_id_ordinal_key"),
			call: func(s *Store) error {
				return s.Rooms.CreateRoom(ctx, nil, &models.Room{RoundID: 1, Ordinal: 1})
			},
			want: ErrRoomOrdinalConflict,
		},
		{
			name:  "position taken",
			query: `INSERT INTO participations`,
			err:   violation(pqUniqueViolation, "participations_room_id_position_key"),
			call: func(s *Store) error {
				return s.Rooms.CreateParticipation(ctx, nil, &models.Participation{RoomID: 1, RoundID: 1, TeamID: 2, Position: models.PositionOG})
			},
			want: ErrPositionTaken,
		},
		{
			name:  "team seated twice",
			query: `INSERT INTO participations`,
			err:   violation(pqUniqueViolation, "participations_round_id_team_id_key"),
			call: func(s *Store) error {
				return s.Rooms.CreateParticipation(ctx, nil, &models.Participation{RoomID: 1, RoundID: 1, TeamID: 2, Position: models.PositionOO})
			},
			want: ErrTeamAlreadySeated,
		},
		{
			name:  "participation of unknown team",
			query: `INSERT INTO participations`,
			err:   violation(pqForeignKeyViolation, "participations_team_id_fkey"),
			call: func(s *Store) error {
				return s.Rooms.CreateParticipation(ctx, nil, &models.Participation{RoomID: 1, RoundID: 1, TeamID: 404, Position: models.PositionCG})
			},
			want: ErrTeamNotFound,
		},
		{
			name:  "team seq taken",
			query: `INSERT INTO teams`,
			err:   violation(pqUniqueViolation, "teams_tournament_id_seq_key"),
			call: func(s *Store) error {
				return s.Teams.Create(ctx, nil, &models.Team{TournamentID: 1, Name: "A"})
			},
			want: ErrTeamSeqConflict,
		},
		{
			name:  "member of unknown team",
			query: `INSERT INTO members`,
			err:   violation(pqForeignKeyViolation, "members_team_id_fkey"),
			call: func(s *Store) error {
				return s.Teams.CreateMember(ctx, nil, &models.Member{TeamID: 404, Name: "Ann"})
			},
			want: ErrTeamNotFound,
		},
		{
			name:  "result of unknown participation",
			query: `INSERT INTO results`,
			err:   violation(pqForeignKeyViolation, "results_participation_id_fkey"),
			call: func(s *Store) error {
				return s.Results.Upsert(ctx, nil, &models.Result{ParticipationID: 404, Rank: 1, Points: 3})
			},
			want: ErrParticipationNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			mock.ExpectQuery(tc.query).WillReturnError(tc.err)
			assert.ErrorIs(t, tc.call(store), tc.want)
		})
	}
}

func TestPostgresRepositories_UnknownConstraintPassesThrough(t *testing.T) {
	store, mock := newMockStore(t)
	raw := violation(pqUniqueViolation, "some_other_key")
	mock.ExpectQuery(`INSERT INTO rounds`).WillReturnError(raw)

	err := store.Rounds.Create(context.Background(), nil, &models.Round{TournamentID: 1, Number: 1})
	var pqErr *pq.Error
	require.ErrorAs(t, err, &pqErr)
	assert.Equal(t, "some_other_key", pqErr.Constraint)
}

func TestPostgresTournamentRepository_SetChampion(t *testing.T) {
	query := regexp.QuoteMeta(`UPDATE tournaments SET champion_team_id = $1, closed = TRUE WHERE id = $2`)
	ctx := context.Background()

	t.Run("unknown team", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(query).WithArgs(404, 1).WillReturnError(violation(pqForeignKeyViolation, "fk_tournaments_champion"))
		assert.ErrorIs(t, store.Tournaments.SetChampion(ctx, nil, 1, 404), ErrTeamNotFound)
	})

	t.Run("unknown tournament", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(query).WithArgs(5, 99).WillReturnResult(sqlmock.NewResult(0, 0))
		assert.ErrorIs(t, store.Tournaments.SetChampion(ctx, nil, 99, 5), ErrTournamentNotFound)
	})

	t.Run("closes tournament", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(query).WithArgs(5, 1).WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, store.Tournaments.SetChampion(ctx, nil, 1, 5))
	})
}

func TestPostgresRoundRepository_GetByIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`FROM rounds WHERE id = \$1`).
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tournament_id", "number", "paired", "closed", "created_at"}))

	_, err := store.Rounds.GetByID(context.Background(), nil, 42)
	assert.ErrorIs(t, err, ErrRoundNotFound)
}

func TestPostgresResultRepository_Upsert(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`INSERT INTO results .+ ON CONFLICT \(participation_id\) DO UPDATE`).
		WithArgs(8, 1, 3, 80, 81).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(31))

	res := &models.Result{ParticipationID: 8, Rank: 1, Points: 3, Speaker1: 80, Speaker2: 81}
	require.NoError(t, store.Results.Upsert(context.Background(), nil, res))
	assert.Equal(t, 31, res.ID)
}

func TestPostgresResultRepository_CountByTeams(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`WHERE p.team_id = ANY\(\$1\)`).
		WithArgs(pq.Int64Array{1, 2}).
		WillReturnRows(sqlmock.NewRows([]string{"team_id", "count"}).AddRow(1, 3))

	counts, err := store.Results.CountByTeams(ctx, nil, []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 3, counts[1])
	assert.Zero(t, counts[2])

	// пустой список не ходит в базу
	counts, err = store.Results.CountByTeams(ctx, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, counts)
}
