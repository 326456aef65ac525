package services

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/Dosada05/debate-tab/brackets"
	"github.com/Dosada05/debate-tab/metrics"
	"github.com/Dosada05/debate-tab/models"
	"github.com/Dosada05/debate-tab/repositories"
	"github.com/Dosada05/debate-tab/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	Room string
	Type string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) BroadcastToRoom(roomID string, message interface{}) {
	msg, ok := message.(brackets.WebSocketMessage)
	if !ok {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{Room: roomID, Type: msg.Type})
}

func (n *recordingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, ev := range n.events {
		if ev.Type == kind {
			c++
		}
	}
	return c
}

type testEnv struct {
	store       *repositories.Store
	notifier    *recordingNotifier
	recorder    *metrics.Recorder
	uploader    *storage.MemoryUploader
	tournaments TournamentService
	pairing     PairingService
	results     ResultService
	progression ProgressionService
	publisher   PublishService
}

func newTestEnv(t *testing.T, cfg EngineConfig) *testEnv {
	t.Helper()
	return newTestEnvOn(t, cfg, repositories.NewMemoryStore())
}

func newTestEnvOn(t *testing.T, cfg EngineConfig, store *repositories.Store) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		store:    store,
		notifier: &recordingNotifier{},
		recorder: metrics.NewRecorder(prometheus.NewRegistry()),
		uploader: storage.NewMemoryUploader("https://cdn.example.org"),
	}
	deps := Deps{
		Store:    env.store,
		Config:   cfg,
		Logger:   logger,
		Notifier: env.notifier,
		Metrics:  env.recorder,
	}
	env.tournaments = NewTournamentService(deps)
	env.publisher = NewPublishService(env.tournaments, env.uploader, logger)
	deps.Publisher = env.publisher
	env.pairing = NewPairingService(deps)
	env.results = NewResultService(deps)
	env.progression = NewProgressionService(deps, nil)
	return env
}

func roster(n int) []TeamInput {
	teams := make([]TeamInput, 0, n)
	for i := 1; i <= n; i++ {
		teams = append(teams, TeamInput{
			Name:    fmt.Sprintf("Team %02d", i),
			Members: []string{fmt.Sprintf("Speaker %d-A", i), fmt.Sprintf("Speaker %d-B", i)},
		})
	}
	return teams
}

// newTournament creates a tournament and registers n teams.
func (env *testEnv) newTournament(t *testing.T, n, prelims, qualifiers int) *models.Tournament {
	t.Helper()
	ctx := context.Background()
	tr, err := env.tournaments.Create(ctx, CreateTournamentInput{
		Name:         "City Open",
		Organizer:    "Debate Union",
		TeamCount:    n,
		PrelimRounds: prelims,
		Qualifiers:   qualifiers,
	})
	require.NoError(t, err)
	_, err = env.tournaments.ReplaceRoster(ctx, tr.ID, roster(n))
	require.NoError(t, err)
	return tr
}

// ballotsBy ranks every room by score, highest first; ties go to the lower team ID.
func ballotsBy(view *RoundView, score func(p *models.Participation) int) []RoomResultInput {
	out := make([]RoomResultInput, 0, len(view.Rooms))
	for _, room := range view.Rooms {
		out = append(out, roomBallot(room, score))
	}
	return out
}

func roomBallot(room *models.Room, score func(p *models.Participation) int) RoomResultInput {
	parts := slices.Clone(room.Participations)
	slices.SortStableFunc(parts, func(a, b *models.Participation) int {
		if c := cmp.Compare(score(b), score(a)); c != 0 {
			return c
		}
		return cmp.Compare(a.TeamID, b.TeamID)
	})
	entry := RoomResultInput{RoomID: room.ID}
	for i, p := range parts {
		entry.Teams = append(entry.Teams, TeamResultInput{
			TeamID:   p.TeamID,
			Rank:     i + 1,
			Speaker1: 80 - 2*i,
			Speaker2: 79 - 2*i,
		})
	}
	return entry
}

// byBench gives rank 1 to OG, 2 to OO and so on.
func byBench(p *models.Participation) int {
	return -p.Position.Index()
}

// byLowestSeq favours teams registered earlier.
func byLowestSeq(p *models.Participation) int {
	return -p.Team.Seq
}

func (env *testEnv) submitAll(t *testing.T, view *RoundView, score func(p *models.Participation) int) *SubmitOutcome {
	t.Helper()
	outcome, err := env.results.SubmitResults(context.Background(), view.Round.ID, ballotsBy(view, score))
	require.NoError(t, err)
	require.True(t, outcome.Closed)
	return outcome
}

func (env *testEnv) team(t *testing.T, id int) *models.Team {
	t.Helper()
	team, err := env.store.Teams.GetByID(context.Background(), nil, id)
	require.NoError(t, err)
	return team
}

// storeResults writes a complete, valid set of results for the round without closing it.
func (env *testEnv) storeResults(t *testing.T, view *RoundView, score func(p *models.Participation) int) {
	t.Helper()
	ctx := context.Background()
	rooms, err := env.store.Rooms.ListByRound(ctx, nil, view.Round.ID)
	require.NoError(t, err)
	results, err := validateSubmission(rooms, ballotsBy(view, score), DefaultEngineConfig())
	require.NoError(t, err)
	for _, res := range results {
		require.NoError(t, env.store.Results.Upsert(ctx, nil, res))
	}
}

func (env *testEnv) requireRoundsClosed(t *testing.T, prelim, knockout int) {
	t.Helper()
	var b strings.Builder
	if prelim+knockout > 0 {
		b.WriteString("# HELP debate_tab_rounds_closed_total Rounds closed and aggregated into standings, by phase.\n")
		b.WriteString("# TYPE debate_tab_rounds_closed_total counter\n")
	}
	if knockout > 0 {
		fmt.Fprintf(&b, "debate_tab_rounds_closed_total{phase=\"knockout\"} %d\n", knockout)
	}
	if prelim > 0 {
		fmt.Fprintf(&b, "debate_tab_rounds_closed_total{phase=\"prelim\"} %d\n", prelim)
	}
	require.NoError(t, testutil.GatherAndCompare(env.recorder.Registry(), strings.NewReader(b.String()), "debate_tab_rounds_closed_total"))
}
