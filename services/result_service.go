package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/debate-tab/brackets"
	"github.com/Dosada05/debate-tab/models"
	"github.com/Dosada05/debate-tab/repositories"
)

type TeamResultInput struct {
	TeamID   int `json:"team_id"`
	Rank     int `json:"rank"`
	Speaker1 int `json:"speaker1"`
	Speaker2 int `json:"speaker2"`
}

type RoomResultInput struct {
	RoomID int               `json:"room_id"`
	Teams  []TeamResultInput `json:"teams"`
}

// SubmitOutcome reports what a submission did. It is also returned alongside
// ErrIncompleteResults, in which case Stored results were kept and Closed is false.
type SubmitOutcome struct {
	RoundID   int        `json:"round_id"`
	Stored    int        `json:"stored"`
	Missing   int        `json:"missing"`
	Closed    bool       `json:"closed"`
	Corrected bool       `json:"corrected"`
	Round     *RoundView `json:"round,omitempty"`
}

type ResultService interface {
	// SubmitResults validates and stores results for some or all rooms of a round and
	// then tries to close it. A closed round that is still the latest one is corrected.
	SubmitResults(ctx context.Context, roundID int, entries []RoomResultInput) (*SubmitOutcome, error)
	CloseRound(ctx context.Context, roundID int) (*RoundView, error)
}

type resultService struct {
	*engine
}

func NewResultService(deps Deps) ResultService {
	return &resultService{engine: newEngine(deps)}
}

func (s *resultService) lookupRound(ctx context.Context, roundID int) (*models.Round, error) {
	round, err := s.store.Rounds.GetByID(ctx, nil, roundID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return round, nil
}

func (s *resultService) SubmitResults(ctx context.Context, roundID int, entries []RoomResultInput) (*SubmitOutcome, error) {
	round, err := s.lookupRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	tournamentID := round.TournamentID
	outcome := &SubmitOutcome{RoundID: roundID}

	var (
		t        *models.Tournament
		champion *models.Team
	)
	err = s.store.Tx.WithinTournament(ctx, tournamentID, func(ctx context.Context, exec repositories.SQLExecutor) error {
		if t, err = s.getOpenTournament(ctx, exec, tournamentID); err != nil {
			return err
		}
		// Перечитываем раунд под блокировкой турнира.
		if round, err = s.store.Rounds.GetByID(ctx, exec, roundID); err != nil {
			return mapRepoError(err)
		}
		if !round.Paired {
			return fmt.Errorf("%w: round %d", ErrRoundNotPaired, round.Number)
		}
		if round.Closed {
			if err := s.ensureLatestRound(ctx, exec, round); err != nil {
				return err
			}
			outcome.Corrected = true
		}

		rooms, err := s.store.Rooms.ListByRound(ctx, exec, round.ID)
		if err != nil {
			return err
		}
		results, err := validateSubmission(rooms, entries, s.cfg)
		if err != nil {
			return err
		}

		if outcome.Corrected {
			if err := s.reopenRoundTx(ctx, exec, round); err != nil {
				return fmt.Errorf("failed to reopen round %d: %w", round.Number, err)
			}
		}
		for _, res := range results {
			if err := s.store.Results.Upsert(ctx, exec, res); err != nil {
				return fmt.Errorf("failed to store result: %w", err)
			}
		}
		outcome.Stored = len(results)

		if outcome.Corrected {
			champion, err = s.settleRoundTx(ctx, exec, t, round)
			return err
		}
		return nil
	})
	if err != nil {
		var verr *ResultValidationError
		if errors.As(err, &verr) {
			s.metrics.ResultsRejected(verr.Reason)
			s.logger.WarnContext(ctx, "results rejected",
				slog.Int("round_id", roundID),
				slog.String("reason", verr.Reason),
				slog.String("detail", verr.Error()),
			)
		}
		return nil, err
	}

	events := []event{}
	if outcome.Corrected {
		outcome.Closed = true
		s.logger.InfoContext(ctx, "closed round corrected", slog.Int("tournament_id", tournamentID), slog.Int("round", round.Number))
	} else {
		closeErr := s.store.Tx.WithinTournament(ctx, tournamentID, func(ctx context.Context, exec repositories.SQLExecutor) error {
			if t, err = s.getOpenTournament(ctx, exec, tournamentID); err != nil {
				return err
			}
			if round, err = s.store.Rounds.GetByID(ctx, exec, roundID); err != nil {
				return mapRepoError(err)
			}
			champion, err = s.settleRoundTx(ctx, exec, t, round)
			if errors.Is(err, ErrIncompleteResults) {
				outcome.Missing, _ = s.store.Results.CountMissingByRound(ctx, exec, round.ID)
			}
			return err
		})
		if closeErr != nil {
			if errors.Is(closeErr, ErrIncompleteResults) {
				s.publish(tournamentID, []event{{kind: brackets.EventResultsSubmitted, payload: RoundEventPayload{
					TournamentID: tournamentID, RoundID: round.ID, RoundNumber: round.Number,
				}}})
			}
			return outcome, closeErr
		}
		outcome.Closed = true
	}
	s.metrics.RoundClosed(t.IsKnockoutRound(round.Number))

	view, err := s.buildRoundView(ctx, nil, t, round)
	if err != nil {
		return nil, err
	}
	outcome.Round = view
	events = append(events, roundEvent(brackets.EventResultsSubmitted, view), roundEvent(brackets.EventRoundClosed, view))
	s.publish(tournamentID, events)

	s.logger.InfoContext(ctx, "round results submitted",
		slog.Int("tournament_id", tournamentID),
		slog.Int("round", round.Number),
		slog.Int("stored", outcome.Stored),
		slog.Bool("corrected", outcome.Corrected),
	)
	if champion != nil {
		s.championDecided(ctx, tournamentID, champion)
	}
	return outcome, nil
}

// ensureLatestRound allows corrections only on the newest round of the tournament.
func (s *resultService) ensureLatestRound(ctx context.Context, exec repositories.SQLExecutor, round *models.Round) error {
	rounds, err := s.store.Rounds.ListByTournament(ctx, exec, round.TournamentID)
	if err != nil {
		return err
	}
	if len(rounds) > 0 && rounds[len(rounds)-1].ID != round.ID {
		return fmt.Errorf("%w: round %d was followed by round %d", ErrRoundAlreadyClosed, round.Number, rounds[len(rounds)-1].Number)
	}
	return nil
}

func (s *resultService) CloseRound(ctx context.Context, roundID int) (*RoundView, error) {
	round, err := s.lookupRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	tournamentID := round.TournamentID

	var (
		view     *RoundView
		knockout bool
		champion *models.Team
	)
	err = s.store.Tx.WithinTournament(ctx, tournamentID, func(ctx context.Context, exec repositories.SQLExecutor) error {
		t, err := s.getOpenTournament(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if round, err = s.store.Rounds.GetByID(ctx, exec, roundID); err != nil {
			return mapRepoError(err)
		}
		knockout = t.IsKnockoutRound(round.Number)
		if champion, err = s.settleRoundTx(ctx, exec, t, round); err != nil {
			return err
		}
		view, err = s.buildRoundView(ctx, exec, t, round)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RoundClosed(knockout)
	s.logger.InfoContext(ctx, "round closed", slog.Int("tournament_id", tournamentID), slog.Int("round", round.Number))
	s.publish(tournamentID, []event{roundEvent(brackets.EventRoundClosed, view)})
	if champion != nil {
		s.championDecided(ctx, tournamentID, champion)
	}
	return view, nil
}

// validateSubmission checks every submitted room against the drawn rooms and turns the
// entries into results. Nothing is returned unless every room is valid.
func validateSubmission(rooms []*models.Room, entries []RoomResultInput, cfg EngineConfig) ([]*models.Result, error) {
	if len(entries) == 0 {
		return nil, &ResultValidationError{Reason: ReasonEmpty, Detail: "no rooms submitted"}
	}

	roomsByID := make(map[int]*models.Room, len(rooms))
	for _, room := range rooms {
		roomsByID[room.ID] = room
	}

	seen := make(map[int]bool, len(entries))
	results := make([]*models.Result, 0, len(entries)*brackets.RoomSize)
	for _, entry := range entries {
		room, ok := roomsByID[entry.RoomID]
		if !ok {
			return nil, &ResultValidationError{
				Reason: ReasonUnknownRoom,
				Detail: fmt.Sprintf("room %d is not part of this round", entry.RoomID),
			}
		}
		if seen[room.ID] {
			return nil, &ResultValidationError{Room: room.Label, Reason: ReasonDuplicateRoom, Detail: "room submitted twice"}
		}
		seen[room.ID] = true

		roomResults, err := validateRoomEntry(room, entry, cfg)
		if err != nil {
			return nil, err
		}
		results = append(results, roomResults...)
	}
	return results, nil
}

// validateRoomEntry requires one line per seated team, ranks forming exactly 1..n and
// speaker scores inside the configured range.
func validateRoomEntry(room *models.Room, entry RoomResultInput, cfg EngineConfig) ([]*models.Result, error) {
	n := len(room.Participations)
	reject := func(reason, format string, args ...any) error {
		return &ResultValidationError{Room: room.Label, Reason: reason, Detail: fmt.Sprintf(format, args...)}
	}

	if len(entry.Teams) != n {
		return nil, reject(ReasonTeamMismatch, "expected %d teams, got %d", n, len(entry.Teams))
	}

	byTeam := make(map[int]*models.Participation, n)
	for _, p := range room.Participations {
		byTeam[p.TeamID] = p
	}

	usedTeams := make(map[int]bool, n)
	usedRanks := make(map[int]bool, n)
	results := make([]*models.Result, 0, n)
	for _, line := range entry.Teams {
		p, ok := byTeam[line.TeamID]
		if !ok {
			return nil, reject(ReasonTeamMismatch, "team %d is not seated in this room", line.TeamID)
		}
		if usedTeams[line.TeamID] {
			return nil, reject(ReasonTeamMismatch, "team %d listed twice", line.TeamID)
		}
		usedTeams[line.TeamID] = true

		if line.Rank < 1 || line.Rank > n {
			return nil, reject(ReasonRankOutOfRange, "rank %d out of range 1..%d", line.Rank, n)
		}
		if usedRanks[line.Rank] {
			return nil, reject(ReasonRankSet, "rank %d given to more than one team", line.Rank)
		}
		usedRanks[line.Rank] = true

		for _, score := range [2]int{line.Speaker1, line.Speaker2} {
			if score < cfg.SpeakerMin || score > cfg.SpeakerMax {
				return nil, reject(ReasonSpeakerRange, "speaker score %d outside %d..%d", score, cfg.SpeakerMin, cfg.SpeakerMax)
			}
		}

		points, err := brackets.PointsForPlacement(line.Rank)
		if err != nil {
			return nil, reject(ReasonRankOutOfRange, "%v", err)
		}
		results = append(results, &models.Result{
			ParticipationID: p.ID,
			Rank:            line.Rank,
			Points:          points,
			Speaker1:        line.Speaker1,
			Speaker2:        line.Speaker2,
			TeamID:          p.TeamID,
			RoomID:          room.ID,
		})
	}
	return results, nil
}
