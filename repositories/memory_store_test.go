package repositories

import (
	"context"
	"testing"

	"github.com/Dosada05/debate-tab/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_TeamSeqIsSequential(t *testing.T) {
	checkTeamSeq(t, newFixture(t))
}

func TestMemoryTransactor_RollsBackOnError(t *testing.T) {
	checkRollbackOnError(t, newFixture(t))
}

func TestMemoryTransactor_RollsBackOnPanic(t *testing.T) {
	checkRollbackOnPanic(t, newFixture(t))
}

func TestMemoryTransactor_CommitsOnSuccess(t *testing.T) {
	checkCommit(t, newFixture(t))
}

func TestMemoryTransactor_CancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.Tx.WithinTx(ctx, func(ctx context.Context, exec SQLExecutor) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestMemoryStore_Constraints(t *testing.T) {
	checkConstraints(t, newFixture(t))
}

func TestMemoryStore_RoomsListedInBenchOrder(t *testing.T) {
	checkBenchOrder(t, newFixture(t))
}

func TestMemoryStore_ResultUpsertAndCounts(t *testing.T) {
	checkResultUpsertAndCounts(t, newFixture(t))
}

func TestMemoryStore_DeleteCascades(t *testing.T) {
	checkDeleteCascades(t, newFixture(t))
}

func TestMemoryStore_DeleteNonSwingKeepsSwings(t *testing.T) {
	checkDeleteNonSwing(t, newFixture(t))
}

func TestMemoryStore_ListTournaments(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	var ids []int
	for i := 0; i < 3; i++ {
		tr := &models.Tournament{Name: "T", TeamCount: 4, PrelimRounds: 1}
		require.NoError(t, store.Tournaments.Create(ctx, nil, tr))
		ids = append(ids, tr.ID)
	}
	team := &models.Team{TournamentID: ids[0], Name: "A"}
	require.NoError(t, store.Teams.Create(ctx, nil, team))
	require.NoError(t, store.Tournaments.SetChampion(ctx, nil, ids[0], team.ID))

	closed := true
	list, err := store.Tournaments.List(ctx, nil, ListTournamentsFilter{Closed: &closed})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ids[0], list[0].ID)
	require.NotNil(t, list[0].ChampionTeamID)
	assert.Equal(t, team.ID, *list[0].ChampionTeamID)

	open := false
	list, err = store.Tournaments.List(ctx, nil, ListTournamentsFilter{Closed: &open, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = store.Tournaments.List(ctx, nil, ListTournamentsFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, list)
}
