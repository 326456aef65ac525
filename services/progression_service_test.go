package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Dosada05/debate-tab/brackets"
	"github.com/Dosada05/debate-tab/models"
	"github.com/Dosada05/debate-tab/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (env *testEnv) advance(t *testing.T, tournamentID int) *Progress {
	t.Helper()
	progress, err := env.progression.AdvanceTournament(context.Background(), tournamentID)
	require.NoError(t, err)
	return progress
}

func TestAdvanceTournament_FullBracket(t *testing.T) {
	env := newTestEnv(t, DefaultEngineConfig())
	tr := env.newTournament(t, 16, 2, 16)
	ctx := context.Background()

	for round := 1; round <= 2; round++ {
		p := env.advance(t, tr.ID)
		assert.Equal(t, models.StatePrelimOpen, p.State)
		assert.Equal(t, round, p.RoundNumber)
		require.NotNil(t, p.Round)
		require.Len(t, p.Round.Rooms, 4)
		env.submitAll(t, p.Round, byLowestSeq)
	}

	quarter := env.advance(t, tr.ID)
	assert.Equal(t, models.StateKnockoutOpen, quarter.State)
	assert.Equal(t, 3, quarter.RoundNumber)
	assert.Equal(t, "Quarterfinal", quarter.Round.Phase)
	require.Len(t, quarter.Round.Rooms, 4)
	assert.Equal(t, "Quarterfinal 1", quarter.Round.Rooms[0].Label)

	// посев по таблице: первая четвёрка в первой комнате, позиции без ротации
	standings, err := env.tournaments.GetStandings(ctx, tr.ID)
	require.NoError(t, err)
	for i, p := range quarter.Round.Rooms[0].Participations {
		assert.Equal(t, models.Positions[i], p.Position)
		assert.Equal(t, standings[i].TeamID, p.TeamID)
	}
	env.submitAll(t, quarter.Round, byBench)

	final := env.advance(t, tr.ID)
	assert.Equal(t, models.StateKnockoutOpen, final.State)
	assert.Equal(t, 4, final.RoundNumber)
	assert.Equal(t, "Final", final.Round.Phase)
	require.Len(t, final.Round.Rooms, 1)
	for i, p := range final.Round.Rooms[0].Participations {
		// победители четвертьфиналов сидели на OG
		assert.Equal(t, quarter.Round.Rooms[i].Participations[0].TeamID, p.TeamID)
	}
	env.submitAll(t, final.Round, byBench)

	// финал закрыт, чемпион известен без лишнего advance
	closed, err := env.store.Tournaments.GetByID(ctx, nil, tr.ID)
	require.NoError(t, err)
	assert.True(t, closed.Closed)
	require.NotNil(t, closed.ChampionTeamID)
	assert.Equal(t, final.Round.Rooms[0].Participations[0].TeamID, *closed.ChampionTeamID)
	assert.Equal(t, 1, env.notifier.count(brackets.EventChampionDecided))

	done := env.advance(t, tr.ID)
	assert.Equal(t, models.StateChampionDecided, done.State)
	require.NotNil(t, done.Champion)
	assert.Equal(t, final.Round.Rooms[0].Participations[0].TeamID, done.Champion.ID)

	tournament, err := env.tournaments.Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.True(t, tournament.Closed)
	require.NotNil(t, tournament.Champion)
	assert.Equal(t, done.Champion.ID, tournament.Champion.ID)

	// повторный вызов ничего не меняет
	again := env.advance(t, tr.ID)
	assert.Equal(t, models.StateChampionDecided, again.State)
	assert.Equal(t, done.Champion.ID, again.Champion.ID)
	assert.Equal(t, 4, again.RoundNumber)

	assert.Equal(t, 1, env.notifier.count(brackets.EventChampionDecided))
	assert.Equal(t, 2, env.notifier.count(brackets.EventKnockoutRoundCreated))
	assert.Equal(t, 2, env.notifier.count(brackets.EventRoundPaired))
	env.requireRoundsClosed(t, 2, 2)

	obj, ok := env.uploader.Object(storage.StandingsKey(tr.ID))
	require.True(t, ok, "final standings are published")
	var snapshot StandingsSnapshot
	require.NoError(t, json.Unmarshal(obj.Body, &snapshot))
	assert.True(t, snapshot.Closed)
	require.NotNil(t, snapshot.ChampionTeamID)
	assert.Equal(t, done.Champion.ID, *snapshot.ChampionTeamID)
	assert.Len(t, snapshot.Standings, 16)

	_, err = env.pairing.PairRound(ctx, tr.ID, 1)
	assert.ErrorIs(t, err, ErrTournamentClosed)
	_, err = env.results.SubmitResults(ctx, final.Round.Round.ID, ballotsBy(final.Round, byBench))
	assert.ErrorIs(t, err, ErrTournamentClosed)
}

func TestAdvanceTournament_OpenRoundIsReturnedAsIs(t *testing.T) {
	env := newTestEnv(t, DefaultEngineConfig())
	tr := env.newTournament(t, 4, 1, 4)

	first := env.advance(t, tr.ID)
	second := env.advance(t, tr.ID)
	assert.Equal(t, models.StatePrelimOpen, second.State)
	assert.Equal(t, first.Round.Round.ID, second.Round.Round.ID)
	assert.Equal(t, 1, env.notifier.count(brackets.EventRoundPaired))

	env.submitAll(t, first.Round, byBench)
	final := env.advance(t, tr.ID)
	assert.Equal(t, "Final", final.Round.Phase)

	still := env.advance(t, tr.ID)
	assert.Equal(t, models.StateKnockoutOpen, still.State)
	assert.Equal(t, final.Round.Round.ID, still.Round.Round.ID)
	assert.Equal(t, 1, env.notifier.count(brackets.EventKnockoutRoundCreated))
}

func TestAdvanceTournament_ClosesRoundWithCompleteResults(t *testing.T) {
	env := newTestEnv(t, DefaultEngineConfig())
	tr := env.newTournament(t, 4, 1, 4)
	ctx := context.Background()

	prelim := env.advance(t, tr.ID)
	env.storeResults(t, prelim.Round, byBench)

	p, err := env.progression.CurrentState(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePrelimOpen, p.State)
	assert.True(t, p.Pending)

	final := env.advance(t, tr.ID)
	assert.Equal(t, models.StateKnockoutOpen, final.State)
	assert.Equal(t, 2, final.RoundNumber)
	assert.Equal(t, "Final", final.Round.Phase)

	round, err := env.store.Rounds.GetByID(ctx, nil, prelim.Round.Round.ID)
	require.NoError(t, err)
	assert.True(t, round.Closed)
	for _, part := range prelim.Round.Rooms[0].Participations {
		if part.Position == models.PositionOG {
			assert.Equal(t, 3, env.team(t, part.TeamID).Points)
		}
	}
	assert.Equal(t, 1, env.notifier.count(brackets.EventRoundClosed))
	assert.Equal(t, 1, env.notifier.count(brackets.EventKnockoutRoundCreated))

	env.storeResults(t, final.Round, byBench)
	done := env.advance(t, tr.ID)
	assert.Equal(t, models.StateChampionDecided, done.State)
	assert.Equal(t, 2, done.RoundNumber)
	require.NotNil(t, done.Champion)
	assert.Equal(t, final.Round.Rooms[0].Participations[0].TeamID, done.Champion.ID)

	tournament, err := env.store.Tournaments.GetByID(ctx, nil, tr.ID)
	require.NoError(t, err)
	assert.True(t, tournament.Closed)
	assert.Equal(t, 2, env.notifier.count(brackets.EventRoundClosed))
	assert.Equal(t, 1, env.notifier.count(brackets.EventChampionDecided))
	_, ok := env.uploader.Object(storage.StandingsKey(tr.ID))
	assert.True(t, ok)
	env.requireRoundsClosed(t, 1, 1)

	rounds, err := env.store.Rounds.ListByTournament(ctx, nil, tr.ID)
	require.NoError(t, err)
	assert.Len(t, rounds, 2)
}

func TestAdvanceTournament_UnbalancedWinners(t *testing.T) {
	cases := []struct {
		name    string
		teams   int
		phase   string
		winners int
	}{
		{name: "two winners", teams: 8, phase: "Semifinal", winners: 2},
		{name: "three winners", teams: 12, phase: "Elimination", winners: 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, DefaultEngineConfig())
			tr := env.newTournament(t, tc.teams, 1, tc.teams)
			ctx := context.Background()

			prelim := env.advance(t, tr.ID)
			env.submitAll(t, prelim.Round, byBench)

			ko := env.advance(t, tr.ID)
			assert.Equal(t, tc.phase, ko.Round.Phase)
			require.Len(t, ko.Round.Rooms, tc.winners)
			env.submitAll(t, ko.Round, byBench)

			_, err := env.progression.AdvanceTournament(ctx, tr.ID)
			assert.ErrorIs(t, err, ErrUnbalancedBracket)

			rounds, err := env.store.Rounds.ListByTournament(ctx, nil, tr.ID)
			require.NoError(t, err)
			assert.Len(t, rounds, 2)
			tournament, err := env.store.Tournaments.GetByID(ctx, nil, tr.ID)
			require.NoError(t, err)
			assert.False(t, tournament.Closed)
			assert.Zero(t, env.notifier.count(brackets.EventChampionDecided))
		})
	}
}

func TestAdvanceTournament_QualifierChecks(t *testing.T) {
	cases := []struct {
		name       string
		teams      int
		qualifiers int
		wantErr    error
		wantPhase  string
	}{
		{name: "not a multiple of four", teams: 8, qualifiers: 6, wantErr: ErrInvalidQualifierCount},
		{name: "zero", teams: 8, qualifiers: 0, wantErr: ErrInvalidQualifierCount},
		{name: "capped by field size", teams: 4, qualifiers: 8, wantPhase: "Final"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, DefaultEngineConfig())
			tr := env.newTournament(t, tc.teams, 1, tc.qualifiers)
			prelim := env.advance(t, tr.ID)
			env.submitAll(t, prelim.Round, byBench)

			p, err := env.progression.AdvanceTournament(context.Background(), tr.ID)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantPhase, p.Round.Phase)
		})
	}
}

func TestAdvanceTournament_SwingEligibility(t *testing.T) {
	swingsWin := func(p *models.Participation) int {
		if p.Team.IsSwing {
			return 100
		}
		return -p.Team.Seq
	}

	cases := []struct {
		name          string
		swingsQualify bool
		want          []string
	}{
		{"swings qualify", true, []string{"Team 01", "Swing 1", "Team 02", "Swing 2"}},
		{"swings excluded", false, []string{"Team 01", "Team 02", "Team 03", "Team 05"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultEngineConfig()
			cfg.SwingsQualify = tc.swingsQualify
			env := newTestEnv(t, cfg)
			tr := env.newTournament(t, 6, 1, 4)

			prelim := env.advance(t, tr.ID)
			env.submitAll(t, prelim.Round, swingsWin)

			final := env.advance(t, tr.ID)
			require.Len(t, final.Round.Rooms, 1)
			names := make([]string, 0, 4)
			for _, p := range final.Round.Rooms[0].Participations {
				names = append(names, p.Team.Name)
			}
			assert.Equal(t, tc.want, names)
		})
	}
}

func TestCurrentState(t *testing.T) {
	env := newTestEnv(t, DefaultEngineConfig())
	tr := env.newTournament(t, 4, 1, 4)
	ctx := context.Background()

	state := func() *Progress {
		p, err := env.progression.CurrentState(ctx, tr.ID)
		require.NoError(t, err)
		return p
	}

	p := state()
	assert.Equal(t, models.StatePrelimOpen, p.State)
	assert.Equal(t, 1, p.RoundNumber)
	assert.True(t, p.Pending)
	assert.Nil(t, p.Round)

	prelim := env.advance(t, tr.ID)
	p = state()
	assert.Equal(t, models.StatePrelimOpen, p.State)
	assert.False(t, p.Pending)
	require.NotNil(t, p.Round)

	env.submitAll(t, prelim.Round, byBench)
	p = state()
	assert.Equal(t, models.StatePrelimDone, p.State)
	assert.True(t, p.Pending)

	final := env.advance(t, tr.ID)
	p = state()
	assert.Equal(t, models.StateKnockoutOpen, p.State)
	assert.Equal(t, 2, p.RoundNumber)
	assert.False(t, p.Pending)

	env.submitAll(t, final.Round, byBench)
	p = state()
	assert.Equal(t, models.StateChampionDecided, p.State)
	assert.Equal(t, 2, p.RoundNumber)
	assert.False(t, p.Pending)
	require.NotNil(t, p.Champion)
	assert.Equal(t, final.Round.Rooms[0].Participations[0].TeamID, p.Champion.ID)

	_, err := env.progression.CurrentState(ctx, 9999)
	assert.ErrorIs(t, err, ErrTournamentNotFound)
	_, err = env.progression.AdvanceTournament(ctx, 9999)
	assert.ErrorIs(t, err, ErrTournamentNotFound)
}
