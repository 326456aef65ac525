package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/Dosada05/debate-tab/brackets"
	"github.com/Dosada05/debate-tab/metrics"
	"github.com/Dosada05/debate-tab/models"
	"github.com/Dosada05/debate-tab/repositories"
)

// EngineConfig holds the tabulation policy knobs.
type EngineConfig struct {
	SpeakerMin    int
	SpeakerMax    int
	SwingsQualify bool
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{SpeakerMin: 50, SpeakerMax: 100, SwingsQualify: true}
}

// Notifier receives events after a transaction commits. *brackets.Hub implements it.
type Notifier interface {
	BroadcastToRoom(roomID string, message interface{})
}

// Deps are the collaborators shared by the engine services. Notifier and Metrics may be nil.
type Deps struct {
	Store    *repositories.Store
	Config   EngineConfig
	Logger   *slog.Logger
	Notifier Notifier
	Metrics  *metrics.Recorder

	// Publisher uploads final standings when a champion is decided. Optional.
	Publisher PublishService
}

// PhasePreliminary labels power-paired rounds.
const PhasePreliminary = "Preliminary"

// RoundView is a round with its rooms, teams and any stored results.
type RoundView struct {
	Round *models.Round  `json:"round"`
	Phase string         `json:"phase"`
	Rooms []*models.Room `json:"rooms"`
}

type RoundEventPayload struct {
	TournamentID int    `json:"tournament_id"`
	RoundID      int    `json:"round_id"`
	RoundNumber  int    `json:"round_number"`
	Phase        string `json:"phase"`
}

type ChampionEventPayload struct {
	TournamentID int          `json:"tournament_id"`
	Champion     *models.Team `json:"champion"`
}

type event struct {
	kind    string
	payload interface{}
}

// engine holds the transactional building blocks used by the pairing, result and
// progression services. Every *Tx method expects to run inside WithinTournament.
type engine struct {
	store    *repositories.Store
	cfg      EngineConfig
	logger   *slog.Logger
	notifier Notifier
	metrics   *metrics.Recorder
	publisher PublishService
	prelim    brackets.RoomGenerator
	knockout  brackets.RoomGenerator
}

func newEngine(deps Deps) *engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &engine{
		store:     deps.Store,
		cfg:       deps.Config,
		logger:    logger,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		publisher: deps.Publisher,
		prelim:    brackets.NewPowerPairingGenerator(),
		knockout:  brackets.NewKnockoutGenerator(),
	}
}

// mapRepoError translates repository sentinels into service sentinels.
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrTournamentNotFound):
		return ErrTournamentNotFound
	case errors.Is(err, repositories.ErrRoundNotFound):
		return ErrRoundNotFound
	case errors.Is(err, repositories.ErrTeamNotFound):
		return ErrTeamNotFound
	default:
		return err
	}
}

func (e *engine) publish(tournamentID int, events []event) {
	if e.notifier == nil {
		return
	}
	room := brackets.TournamentRoom(tournamentID)
	for _, ev := range events {
		e.notifier.BroadcastToRoom(room, brackets.WebSocketMessage{
			Type:    ev.kind,
			Payload: ev.payload,
			RoomID:  room,
		})
	}
}

func roundEvent(kind string, view *RoundView) event {
	return event{kind: kind, payload: RoundEventPayload{
		TournamentID: view.Round.TournamentID,
		RoundID:      view.Round.ID,
		RoundNumber:  view.Round.Number,
		Phase:        view.Phase,
	}}
}

func (e *engine) getTournament(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	t, err := e.store.Tournaments.GetByID(ctx, exec, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return t, nil
}

func (e *engine) getOpenTournament(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	t, err := e.getTournament(ctx, exec, id)
	if err != nil {
		return nil, err
	}
	if t.Closed {
		return nil, fmt.Errorf("%w: tournament %d", ErrTournamentClosed, id)
	}
	return t, nil
}

// phaseOf labels a stored round. Knockout labels depend on how many teams entered it.
func phaseOf(t *models.Tournament, round *models.Round, rooms []*models.Room) string {
	if !t.IsKnockoutRound(round.Number) {
		return PhasePreliminary
	}
	seated := 0
	for _, room := range rooms {
		seated += len(room.Participations)
	}
	return brackets.PhaseName(seated)
}

// buildRoundView loads rooms with their teams and results attached.
func (e *engine) buildRoundView(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, round *models.Round) (*RoundView, error) {
	rooms, err := e.store.Rooms.ListByRound(ctx, exec, round.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rooms of round %d: %w", round.Number, err)
	}
	teams, err := e.store.Teams.ListByTournament(ctx, exec, t.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load teams: %w", err)
	}
	results, err := e.store.Results.ListByRound(ctx, exec, round.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load results of round %d: %w", round.Number, err)
	}

	teamsByID := make(map[int]*models.Team, len(teams))
	for _, team := range teams {
		teamsByID[team.ID] = team
	}
	resultsByPart := make(map[int]*models.Result, len(results))
	for _, res := range results {
		resultsByPart[res.ParticipationID] = res
	}
	for _, room := range rooms {
		for _, p := range room.Participations {
			p.Team = teamsByID[p.TeamID]
			p.Result = resultsByPart[p.ID]
		}
	}

	return &RoundView{Round: round, Phase: phaseOf(t, round, rooms), Rooms: rooms}, nil
}

// ensureMultipleOfFour tops the field up with swing teams. It returns the full team list.
func (e *engine) ensureMultipleOfFour(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, teams []*models.Team) ([]*models.Team, error) {
	needed := brackets.SwingsNeeded(len(teams))
	if needed == 0 {
		return teams, nil
	}

	existingSwings := 0
	for _, team := range teams {
		if team.IsSwing {
			existingSwings++
		}
	}

	for i := 0; i < needed; i++ {
		swing := &models.Team{
			TournamentID: tournamentID,
			Name:         brackets.SwingName(existingSwings + i + 1),
			IsSwing:      true,
		}
		if err := e.store.Teams.Create(ctx, exec, swing); err != nil {
			return nil, fmt.Errorf("failed to create swing team: %w", mapRepoError(err))
		}
		teams = append(teams, swing)
	}

	e.logger.InfoContext(ctx, "swing teams created",
		slog.Int("tournament_id", tournamentID),
		slog.Int("swings", needed),
	)
	return teams, nil
}

func (e *engine) persistRooms(ctx context.Context, exec repositories.SQLExecutor, round *models.Round, plans []*brackets.RoomPlan) error {
	for _, plan := range plans {
		room := &models.Room{RoundID: round.ID, Ordinal: plan.Ordinal, Label: plan.Label}
		if err := e.store.Rooms.CreateRoom(ctx, exec, room); err != nil {
			return fmt.Errorf("failed to create room %q: %w", plan.Label, err)
		}
		for _, seat := range plan.Seats {
			p := &models.Participation{
				RoomID:   room.ID,
				RoundID:  round.ID,
				TeamID:   seat.TeamID,
				Position: seat.Position,
			}
			if err := e.store.Rooms.CreateParticipation(ctx, exec, p); err != nil {
				return fmt.Errorf("failed to seat team %d in %q: %w", seat.TeamID, plan.Label, err)
			}
		}
		if plan.Short {
			e.logger.WarnContext(ctx, "room drawn with fewer than four teams",
				slog.Int("round_id", round.ID),
				slog.String("room", plan.Label),
				slog.Int("teams", len(plan.Seats)),
			)
		}
	}
	return nil
}

// pairRoundTx gets or creates a preliminary round and draws its rooms once.
// The returned flag reports whether rooms were drawn by this call.
func (e *engine) pairRoundTx(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, number int) (*RoundView, bool, error) {
	if t.Closed {
		return nil, false, fmt.Errorf("%w: tournament %d", ErrTournamentClosed, t.ID)
	}

	round, err := e.store.Rounds.GetByNumber(ctx, exec, t.ID, number)
	switch {
	case errors.Is(err, repositories.ErrRoundNotFound):
		round, err = e.createPrelimRound(ctx, exec, t, number)
		if err != nil {
			return nil, false, err
		}
	case err != nil:
		return nil, false, err
	}

	roomCount, err := e.store.Rooms.CountByRound(ctx, exec, round.ID)
	if err != nil {
		return nil, false, err
	}
	if roomCount > 0 {
		if !round.Paired {
			if err := e.store.Rounds.UpdateFlags(ctx, exec, round.ID, true, round.Closed); err != nil {
				return nil, false, err
			}
			round.Paired = true
		}
		view, err := e.buildRoundView(ctx, exec, t, round)
		return view, false, err
	}

	if t.IsKnockoutRound(number) {
		return nil, false, fmt.Errorf("%w: round %d has no rooms and is past the %d preliminary rounds", ErrNotPreliminaryRound, number, t.PrelimRounds)
	}

	teams, err := e.store.Teams.ListByTournament(ctx, exec, t.ID)
	if err != nil {
		return nil, false, err
	}
	if len(teams) == 0 {
		return nil, false, fmt.Errorf("%w: tournament %d", ErrNoTeams, t.ID)
	}
	if number == 1 {
		if teams, err = e.ensureMultipleOfFour(ctx, exec, t.ID, teams); err != nil {
			return nil, false, err
		}
	}

	plans, err := e.prelim.GenerateRooms(ctx, brackets.GenerateRoomsParams{
		Round: round,
		Teams: brackets.StandingsOrder(teams),
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to draw round %d: %w", number, err)
	}
	if err := e.persistRooms(ctx, exec, round, plans); err != nil {
		return nil, false, err
	}

	if err := e.store.Rounds.UpdateFlags(ctx, exec, round.ID, true, false); err != nil {
		return nil, false, err
	}
	round.Paired = true

	view, err := e.buildRoundView(ctx, exec, t, round)
	if err != nil {
		return nil, false, err
	}
	return view, true, nil
}

func (e *engine) createPrelimRound(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, number int) (*models.Round, error) {
	if number < 1 || number > t.PrelimRounds {
		return nil, fmt.Errorf("%w: round %d, tournament has %d preliminary rounds", ErrNotPreliminaryRound, number, t.PrelimRounds)
	}
	if number > 1 {
		prev, err := e.store.Rounds.GetByNumber(ctx, exec, t.ID, number-1)
		if errors.Is(err, repositories.ErrRoundNotFound) {
			return nil, fmt.Errorf("%w: round %d does not exist yet", ErrRoundOutOfSequence, number-1)
		}
		if err != nil {
			return nil, err
		}
		if !prev.Closed {
			return nil, fmt.Errorf("%w: round %d", ErrPreviousRoundOpen, prev.Number)
		}
	}

	round := &models.Round{TournamentID: t.ID, Number: number}
	if err := e.store.Rounds.Create(ctx, exec, round); err != nil {
		return nil, fmt.Errorf("failed to create round %d: %w", number, err)
	}
	return round, nil
}

// closeRoundTx folds a fully entered round into the cumulative standings.
func (e *engine) closeRoundTx(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, round *models.Round) error {
	if t.Closed {
		return fmt.Errorf("%w: tournament %d", ErrTournamentClosed, t.ID)
	}
	if !round.Paired {
		return fmt.Errorf("%w: round %d", ErrRoundNotPaired, round.Number)
	}
	if round.Closed {
		return fmt.Errorf("%w: round %d", ErrRoundAlreadyClosed, round.Number)
	}

	missing, err := e.store.Results.CountMissingByRound(ctx, exec, round.ID)
	if err != nil {
		return err
	}
	if missing > 0 {
		return fmt.Errorf("%w: round %d has %d participations without a result", ErrIncompleteResults, round.Number, missing)
	}

	teamIDs, err := e.applyRoundResults(ctx, exec, round, 1)
	if err != nil {
		return err
	}
	if err := e.recomputeSpeakerAverages(ctx, exec, teamIDs); err != nil {
		return err
	}

	if err := e.store.Rounds.UpdateFlags(ctx, exec, round.ID, true, true); err != nil {
		return err
	}
	round.Closed = true
	return nil
}

// settleRoundTx closes the round and, for a knockout round that leaves a single
// winner, crowns that team. The returned champion is nil otherwise.
func (e *engine) settleRoundTx(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, round *models.Round) (*models.Team, error) {
	if err := e.closeRoundTx(ctx, exec, t, round); err != nil {
		return nil, err
	}
	if !t.IsKnockoutRound(round.Number) {
		return nil, nil
	}
	winners, err := e.roomWinners(ctx, exec, t, round)
	if err != nil {
		return nil, err
	}
	if len(winners) != 1 {
		return nil, nil
	}
	if err := e.crownTx(ctx, exec, t, winners[0]); err != nil {
		return nil, err
	}
	return winners[0], nil
}

// closeIfCompleteTx settles a paired open round once every participation has a result.
// It reports whether the round is closed afterwards.
func (e *engine) closeIfCompleteTx(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, round *models.Round) (bool, *models.Team, error) {
	if round.Closed {
		return true, nil, nil
	}
	if !round.Paired {
		return false, nil, nil
	}
	missing, err := e.store.Results.CountMissingByRound(ctx, exec, round.ID)
	if err != nil {
		return false, nil, err
	}
	if missing > 0 {
		return false, nil, nil
	}
	champion, err := e.settleRoundTx(ctx, exec, t, round)
	if err != nil {
		return false, nil, err
	}
	return true, champion, nil
}

// roomWinners returns the rank-1 teams of a round in standings order.
func (e *engine) roomWinners(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, round *models.Round) ([]*models.Team, error) {
	results, err := e.store.Results.ListByRound(ctx, exec, round.ID)
	if err != nil {
		return nil, err
	}
	winnerIDs := make(map[int]bool)
	for _, res := range results {
		if res.Rank == 1 {
			winnerIDs[res.TeamID] = true
		}
	}

	teams, err := e.store.Teams.ListByTournament(ctx, exec, t.ID)
	if err != nil {
		return nil, err
	}
	winners := make([]*models.Team, 0, len(winnerIDs))
	for _, team := range brackets.StandingsOrder(teams) {
		if winnerIDs[team.ID] {
			winners = append(winners, team)
		}
	}
	return winners, nil
}

// crownTx records the champion and closes the tournament.
func (e *engine) crownTx(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, champion *models.Team) error {
	if err := e.store.Tournaments.SetChampion(ctx, exec, t.ID, champion.ID); err != nil {
		return mapRepoError(err)
	}
	championID := champion.ID
	t.ChampionTeamID = &championID
	t.Closed = true
	return nil
}

// championDecided runs after the crowning transaction has committed.
func (e *engine) championDecided(ctx context.Context, tournamentID int, champion *models.Team) {
	e.metrics.ChampionDecided()
	e.logger.InfoContext(ctx, "champion decided",
		slog.Int("tournament_id", tournamentID),
		slog.Int("team_id", champion.ID),
		slog.String("team", champion.Name),
	)
	e.publish(tournamentID, []event{{
		kind:    brackets.EventChampionDecided,
		payload: ChampionEventPayload{TournamentID: tournamentID, Champion: champion},
	}})

	if e.publisher == nil {
		return
	}
	if _, err := e.publisher.PublishStandings(ctx, tournamentID); err != nil {
		if !errors.Is(err, ErrPublishingDisabled) {
			e.metrics.PublishFailed()
			e.logger.ErrorContext(ctx, "failed to publish final standings", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		}
	}
}

// reopenRoundTx subtracts a closed round's contribution so its results can be replaced.
func (e *engine) reopenRoundTx(ctx context.Context, exec repositories.SQLExecutor, round *models.Round) error {
	if _, err := e.applyRoundResults(ctx, exec, round, -1); err != nil {
		return err
	}
	if err := e.store.Rounds.UpdateFlags(ctx, exec, round.ID, true, false); err != nil {
		return err
	}
	round.Closed = false
	return nil
}

// applyRoundResults adds (sign=1) or removes (sign=-1) a round's points and speaker
// scores. It returns the affected team IDs in ascending order.
func (e *engine) applyRoundResults(ctx context.Context, exec repositories.SQLExecutor, round *models.Round, sign int) ([]int, error) {
	results, err := e.store.Results.ListByRound(ctx, exec, round.ID)
	if err != nil {
		return nil, err
	}

	points := make(map[int]int)
	speakers := make(map[int]int)
	teamIDs := make([]int, 0, len(results))
	for _, res := range results {
		if _, seen := points[res.TeamID]; !seen {
			teamIDs = append(teamIDs, res.TeamID)
		}
		points[res.TeamID] += res.Points
		speakers[res.TeamID] += res.SpeakerSum()
	}
	slices.Sort(teamIDs)

	for _, id := range teamIDs {
		if err := e.store.Teams.ApplyRoundTotals(ctx, exec, id, sign*points[id], sign*speakers[id]); err != nil {
			return nil, fmt.Errorf("failed to update totals of team %d: %w", id, mapRepoError(err))
		}
	}
	return teamIDs, nil
}

func (e *engine) recomputeSpeakerAverages(ctx context.Context, exec repositories.SQLExecutor, teamIDs []int) error {
	counts, err := e.store.Results.CountByTeams(ctx, exec, teamIDs)
	if err != nil {
		return err
	}
	for _, id := range teamIDs {
		team, err := e.store.Teams.GetByID(ctx, exec, id)
		if err != nil {
			return mapRepoError(err)
		}
		avg := brackets.SpeakerAverage(team.SpeakerTotal, counts[id])
		if err := e.store.Teams.UpdateSpeakerAverage(ctx, exec, id, avg); err != nil {
			return mapRepoError(err)
		}
	}
	return nil
}
