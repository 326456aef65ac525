package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/Dosada05/debate-tab/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Проверки ниже гоняются и на памяти, и на настоящем Postgres.

type fixture struct {
	store      *Store
	tournament *models.Tournament
	teams      []*models.Team
	round      *models.Round
	room       *models.Room
}

func newFixture(t *testing.T) *fixture {
	return newFixtureOn(t, NewMemoryStore())
}

// newFixtureOn seeds a tournament with four teams and one paired round with an empty room.
func newFixtureOn(t *testing.T, store *Store) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: store}

	f.tournament = &models.Tournament{Name: "Open", TeamCount: 4, PrelimRounds: 2, Qualifiers: 4}
	require.NoError(t, f.store.Tournaments.Create(ctx, nil, f.tournament))

	for i := 0; i < 4; i++ {
		team := &models.Team{TournamentID: f.tournament.ID, Name: string(rune('A' + i))}
		require.NoError(t, f.store.Teams.Create(ctx, nil, team))
		f.teams = append(f.teams, team)
	}

	f.round = &models.Round{TournamentID: f.tournament.ID, Number: 1, Paired: true}
	require.NoError(t, f.store.Rounds.Create(ctx, nil, f.round))
	f.room = &models.Room{RoundID: f.round.ID, Ordinal: 1, Label: "Room 1"}
	require.NoError(t, f.store.Rooms.CreateRoom(ctx, nil, f.room))
	return f
}

func (f *fixture) seatAll(t *testing.T) []*models.Participation {
	t.Helper()
	parts := make([]*models.Participation, 0, len(f.teams))
	// в обратном порядке, чтобы проверить сортировку по позиции
	for i := len(f.teams) - 1; i >= 0; i-- {
		p := &models.Participation{RoomID: f.room.ID, RoundID: f.round.ID, TeamID: f.teams[i].ID, Position: models.Positions[i]}
		require.NoError(t, f.store.Rooms.CreateParticipation(context.Background(), nil, p))
		parts = append(parts, p)
	}
	return parts
}

func checkRollbackOnError(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	boom := errors.New("boom")

	err := f.store.Tx.WithinTournament(ctx, f.tournament.ID, func(ctx context.Context, exec SQLExecutor) error {
		if err := f.store.Teams.ApplyRoundTotals(ctx, exec, f.teams[0].ID, 3, 150); err != nil {
			return err
		}
		if err := f.store.Rounds.Create(ctx, exec, &models.Round{TournamentID: f.tournament.ID, Number: 2}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	team, err := f.store.Teams.GetByID(ctx, nil, f.teams[0].ID)
	require.NoError(t, err)
	assert.Zero(t, team.Points)
	assert.Zero(t, team.SpeakerTotal)

	_, err = f.store.Rounds.GetByNumber(ctx, nil, f.tournament.ID, 2)
	assert.ErrorIs(t, err, ErrRoundNotFound)
}

func checkRollbackOnPanic(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = f.store.Tx.WithinTx(ctx, func(ctx context.Context, exec SQLExecutor) error {
			_ = f.store.Teams.ApplyRoundTotals(ctx, exec, f.teams[1].ID, 2, 140)
			panic("unexpected")
		})
	})

	team, err := f.store.Teams.GetByID(ctx, nil, f.teams[1].ID)
	require.NoError(t, err)
	assert.Zero(t, team.Points)
}

func checkCommit(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()

	err := f.store.Tx.WithinTx(ctx, func(ctx context.Context, exec SQLExecutor) error {
		return f.store.Teams.ApplyRoundTotals(ctx, exec, f.teams[2].ID, 1, 120)
	})
	require.NoError(t, err)

	team, err := f.store.Teams.GetByID(ctx, nil, f.teams[2].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, team.Points)
	assert.Equal(t, 120, team.SpeakerTotal)
}

func checkConstraints(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()

	err := f.store.Rounds.Create(ctx, nil, &models.Round{TournamentID: f.tournament.ID, Number: 1})
	assert.ErrorIs(t, err, ErrRoundNumberConflict)

	err = f.store.Rooms.CreateRoom(ctx, nil, &models.Room{RoundID: f.round.ID, Ordinal: 1})
	assert.ErrorIs(t, err, ErrRoomOrdinalConflict)

	first := &models.Participation{RoomID: f.room.ID, RoundID: f.round.ID, TeamID: f.teams[0].ID, Position: models.PositionOG}
	require.NoError(t, f.store.Rooms.CreateParticipation(ctx, nil, first))

	err = f.store.Rooms.CreateParticipation(ctx, nil, &models.Participation{RoomID: f.room.ID, RoundID: f.round.ID, TeamID: f.teams[1].ID, Position: models.PositionOG})
	assert.ErrorIs(t, err, ErrPositionTaken)

	err = f.store.Rooms.CreateParticipation(ctx, nil, &models.Participation{RoomID: f.room.ID, RoundID: f.round.ID, TeamID: f.teams[0].ID, Position: models.PositionOO})
	assert.ErrorIs(t, err, ErrTeamAlreadySeated)

	err = f.store.Results.Upsert(ctx, nil, &models.Result{ParticipationID: 9999, Rank: 1})
	assert.ErrorIs(t, err, ErrParticipationNotFound)

	err = f.store.Tournaments.SetChampion(ctx, nil, f.tournament.ID, 9999)
	assert.ErrorIs(t, err, ErrTeamNotFound)
}

func checkBenchOrder(t *testing.T, f *fixture) {
	t.Helper()
	f.seatAll(t)

	rooms, err := f.store.Rooms.ListByRound(context.Background(), nil, f.round.ID)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	require.Len(t, rooms[0].Participations, 4)
	for i, p := range rooms[0].Participations {
		assert.Equal(t, models.Positions[i], p.Position)
		assert.Equal(t, f.teams[i].ID, p.TeamID)
	}

	count, err := f.store.Rooms.CountByRound(context.Background(), nil, f.round.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func checkResultUpsertAndCounts(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	parts := f.seatAll(t)

	missing, err := f.store.Results.CountMissingByRound(ctx, nil, f.round.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, missing)

	res := &models.Result{ParticipationID: parts[0].ID, Rank: 2, Points: 2, Speaker1: 70, Speaker2: 71}
	require.NoError(t, f.store.Results.Upsert(ctx, nil, res))
	firstID := res.ID

	replaced := &models.Result{ParticipationID: parts[0].ID, Rank: 1, Points: 3, Speaker1: 80, Speaker2: 81}
	require.NoError(t, f.store.Results.Upsert(ctx, nil, replaced))
	assert.Equal(t, firstID, replaced.ID)

	results, err := f.store.Results.ListByRound(ctx, nil, f.round.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, parts[0].TeamID, results[0].TeamID)
	assert.Equal(t, f.room.ID, results[0].RoomID)
	assert.Equal(t, 161, results[0].SpeakerSum())

	missing, err = f.store.Results.CountMissingByRound(ctx, nil, f.round.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, missing)

	counts, err := f.store.Results.CountByTeams(ctx, nil, []int{parts[0].TeamID, parts[1].TeamID})
	require.NoError(t, err)
	assert.Equal(t, 1, counts[parts[0].TeamID])
	assert.Zero(t, counts[parts[1].TeamID])
}

func checkDeleteCascades(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	parts := f.seatAll(t)
	require.NoError(t, f.store.Results.Upsert(ctx, nil, &models.Result{ParticipationID: parts[0].ID, Rank: 1, Points: 3}))
	require.NoError(t, f.store.Teams.CreateMember(ctx, nil, &models.Member{TeamID: f.teams[0].ID, Name: "Ann"}))

	require.NoError(t, f.store.Tournaments.Delete(ctx, nil, f.tournament.ID))

	_, err := f.store.Tournaments.GetByID(ctx, nil, f.tournament.ID)
	assert.ErrorIs(t, err, ErrTournamentNotFound)
	_, err = f.store.Rounds.GetByID(ctx, nil, f.round.ID)
	assert.ErrorIs(t, err, ErrRoundNotFound)
	_, err = f.store.Teams.GetByID(ctx, nil, f.teams[0].ID)
	assert.ErrorIs(t, err, ErrTeamNotFound)

	results, err := f.store.Results.ListByRound(ctx, nil, f.round.ID)
	require.NoError(t, err)
	assert.Empty(t, results)

	assert.ErrorIs(t, f.store.Tournaments.Delete(ctx, nil, f.tournament.ID), ErrTournamentNotFound)
}

func checkDeleteNonSwing(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	swing := &models.Team{TournamentID: f.tournament.ID, Name: "Swing 1", IsSwing: true}
	require.NoError(t, f.store.Teams.Create(ctx, nil, swing))

	deleted, err := f.store.Teams.DeleteNonSwing(ctx, nil, f.tournament.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 4, deleted)

	teams, err := f.store.Teams.ListByTournament(ctx, nil, f.tournament.ID)
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.True(t, teams[0].IsSwing)
}

func checkTeamSeq(t *testing.T, f *fixture) {
	t.Helper()
	for i, team := range f.teams {
		assert.Equal(t, i+1, team.Seq)
	}

	listed, err := f.store.Teams.ListByTournament(context.Background(), nil, f.tournament.ID)
	require.NoError(t, err)
	require.Len(t, listed, 4)
	assert.Equal(t, "A", listed[0].Name)
	assert.Equal(t, "D", listed[3].Name)
}
