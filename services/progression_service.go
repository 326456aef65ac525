package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Dosada05/debate-tab/brackets"
	"github.com/Dosada05/debate-tab/models"
	"github.com/Dosada05/debate-tab/repositories"
)

// Progress is the bracket state of a tournament.
type Progress struct {
	State       models.BracketState `json:"state"`
	RoundNumber int                 `json:"round_number,omitempty"`
	Round       *RoundView          `json:"round,omitempty"`
	Champion    *models.Team        `json:"champion,omitempty"`
	// Pending is set by CurrentState when AdvanceTournament has work to do.
	Pending bool `json:"pending"`
}

type ProgressionService interface {
	// AdvanceTournament moves the tournament to its next step: pairs the next
	// preliminary round, seeds or advances the knockout, or crowns the champion.
	AdvanceTournament(ctx context.Context, tournamentID int) (*Progress, error)
	// CurrentState reports the same state without changing anything.
	CurrentState(ctx context.Context, tournamentID int) (*Progress, error)
}

type progressionService struct {
	*engine
}

// NewProgressionService wires the state machine. publisher may be nil, in which case
// deps.Publisher is used.
func NewProgressionService(deps Deps, publisher PublishService) ProgressionService {
	if publisher != nil {
		deps.Publisher = publisher
	}
	return &progressionService{engine: newEngine(deps)}
}

func splitRounds(t *models.Tournament, rounds []*models.Round) (prelims, knockouts []*models.Round) {
	for _, r := range rounds {
		if t.IsKnockoutRound(r.Number) {
			knockouts = append(knockouts, r)
		} else {
			prelims = append(prelims, r)
		}
	}
	return prelims, knockouts
}

func (s *progressionService) AdvanceTournament(ctx context.Context, tournamentID int) (*Progress, error) {
	var (
		progress *Progress
		events   []event
		closed   []bool
		crowned  *models.Team
	)
	err := s.store.Tx.WithinTournament(ctx, tournamentID, func(ctx context.Context, exec repositories.SQLExecutor) error {
		events, closed, crowned = nil, nil, nil
		t, err := s.getTournament(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if t.Closed {
			progress, err = s.finalProgress(ctx, exec, t)
			return err
		}

		rounds, err := s.store.Rounds.ListByTournament(ctx, exec, t.ID)
		if err != nil {
			return err
		}
		prelims, knockouts := splitRounds(t, rounds)

		// settle закрывает раунд, если все результаты уже внесены.
		settle := func(r *models.Round) (bool, error) {
			if r.Closed {
				return true, nil
			}
			done, champion, err := s.closeIfCompleteTx(ctx, exec, t, r)
			if err != nil || !done {
				return false, err
			}
			view, err := s.buildRoundView(ctx, exec, t, r)
			if err != nil {
				return false, err
			}
			closed = append(closed, t.IsKnockoutRound(r.Number))
			events = append(events, roundEvent(brackets.EventRoundClosed, view))
			crowned = champion
			return true, nil
		}

		for _, r := range prelims {
			done, err := settle(r)
			if err != nil {
				return err
			}
			if !done {
				var pairEvents []event
				progress, pairEvents, err = s.pairPrelim(ctx, exec, t, r.Number)
				events = append(events, pairEvents...)
				return err
			}
		}
		if len(prelims) < t.PrelimRounds {
			var pairEvents []event
			progress, pairEvents, err = s.pairPrelim(ctx, exec, t, len(prelims)+1)
			events = append(events, pairEvents...)
			return err
		}

		var roundEvents []event
		if len(knockouts) == 0 {
			progress, roundEvents, err = s.seedKnockoutTx(ctx, exec, t)
			events = append(events, roundEvents...)
			return err
		}

		latest := knockouts[len(knockouts)-1]
		done, err := settle(latest)
		if err != nil {
			return err
		}
		if crowned != nil {
			progress = &Progress{State: models.StateChampionDecided, RoundNumber: latest.Number, Champion: crowned}
			return nil
		}
		if !done {
			view, err := s.buildRoundView(ctx, exec, t, latest)
			if err != nil {
				return err
			}
			progress = &Progress{State: models.StateKnockoutOpen, RoundNumber: latest.Number, Round: view}
			return nil
		}

		progress, roundEvents, err = s.advanceKnockoutTx(ctx, exec, t, latest)
		if err != nil {
			return err
		}
		events = append(events, roundEvents...)
		if progress.State == models.StateChampionDecided {
			crowned = progress.Champion
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, knockout := range closed {
		s.metrics.RoundClosed(knockout)
	}
	s.publish(tournamentID, events)
	if crowned != nil {
		s.championDecided(ctx, tournamentID, crowned)
	}
	return progress, nil
}

func (s *progressionService) pairPrelim(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, number int) (*Progress, []event, error) {
	view, drawn, err := s.pairRoundTx(ctx, exec, t, number)
	if err != nil {
		return nil, nil, err
	}
	var events []event
	if drawn {
		s.metrics.RoundPaired(false)
		s.logger.InfoContext(ctx, "round paired", slog.Int("tournament_id", t.ID), slog.Int("round", number))
		events = append(events, roundEvent(brackets.EventRoundPaired, view))
	}
	return &Progress{State: models.StatePrelimOpen, RoundNumber: number, Round: view}, events, nil
}

// qualifiersFor returns the teams entering the first knockout round, in standings order.
func (s *progressionService) qualifiersFor(t *models.Tournament, teams []*models.Team) ([]*models.Team, error) {
	if t.Qualifiers < brackets.RoomSize || t.Qualifiers%brackets.RoomSize != 0 {
		return nil, fmt.Errorf("%w: configured %d", ErrInvalidQualifierCount, t.Qualifiers)
	}

	eligible := make([]*models.Team, 0, len(teams))
	for _, team := range brackets.StandingsOrder(teams) {
		if team.IsSwing && !s.cfg.SwingsQualify {
			continue
		}
		eligible = append(eligible, team)
	}

	qualified := eligible[:min(t.Qualifiers, len(eligible))]
	if len(qualified) < brackets.RoomSize || len(qualified)%brackets.RoomSize != 0 {
		return nil, fmt.Errorf("%w: only %d eligible teams for %d places", ErrInvalidQualifierCount, len(qualified), t.Qualifiers)
	}
	return qualified, nil
}

func (s *progressionService) seedKnockoutTx(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) (*Progress, []event, error) {
	teams, err := s.store.Teams.ListByTournament(ctx, exec, t.ID)
	if err != nil {
		return nil, nil, err
	}
	qualified, err := s.qualifiersFor(t, teams)
	if err != nil {
		return nil, nil, err
	}
	return s.createKnockoutRoundTx(ctx, exec, t, t.PrelimRounds+1, qualified)
}

func (s *progressionService) createKnockoutRoundTx(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, number int, teams []*models.Team) (*Progress, []event, error) {
	plans, err := s.knockout.GenerateRooms(ctx, brackets.GenerateRoomsParams{Teams: teams})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrUnbalancedBracket, err)
	}

	round := &models.Round{TournamentID: t.ID, Number: number, Paired: true}
	if err := s.store.Rounds.Create(ctx, exec, round); err != nil {
		return nil, nil, fmt.Errorf("failed to create knockout round %d: %w", number, err)
	}
	if err := s.persistRooms(ctx, exec, round, plans); err != nil {
		return nil, nil, err
	}

	view, err := s.buildRoundView(ctx, exec, t, round)
	if err != nil {
		return nil, nil, err
	}

	phase := brackets.PhaseName(len(teams))
	s.metrics.KnockoutRoundCreated(phase)
	s.logger.InfoContext(ctx, "knockout round created",
		slog.Int("tournament_id", t.ID),
		slog.Int("round", number),
		slog.String("phase", phase),
		slog.Int("teams", len(teams)),
	)
	progress := &Progress{State: models.StateKnockoutOpen, RoundNumber: number, Round: view}
	return progress, []event{roundEvent(brackets.EventKnockoutRoundCreated, view)}, nil
}

func (s *progressionService) advanceKnockoutTx(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, latest *models.Round) (*Progress, []event, error) {
	winners, err := s.roomWinners(ctx, exec, t, latest)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case len(winners) == 0:
		return nil, nil, fmt.Errorf("%w: round %d", ErrNoWinnerFound, latest.Number)
	case len(winners) == 1:
		if err := s.crownTx(ctx, exec, t, winners[0]); err != nil {
			return nil, nil, err
		}
		return &Progress{State: models.StateChampionDecided, RoundNumber: latest.Number, Champion: winners[0]}, nil, nil
	case len(winners)%brackets.RoomSize != 0:
		return nil, nil, fmt.Errorf("%w: %d winners in round %d", ErrUnbalancedBracket, len(winners), latest.Number)
	}

	return s.createKnockoutRoundTx(ctx, exec, t, latest.Number+1, winners)
}

func (s *progressionService) finalProgress(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) (*Progress, error) {
	progress := &Progress{State: models.StateChampionDecided}
	if t.ChampionTeamID != nil {
		champion, err := s.store.Teams.GetByID(ctx, exec, *t.ChampionTeamID)
		if err != nil {
			return nil, mapRepoError(err)
		}
		progress.Champion = champion
	}
	rounds, err := s.store.Rounds.ListByTournament(ctx, exec, t.ID)
	if err != nil {
		return nil, err
	}
	if len(rounds) > 0 {
		progress.RoundNumber = rounds[len(rounds)-1].Number
	}
	return progress, nil
}

func (s *progressionService) CurrentState(ctx context.Context, tournamentID int) (*Progress, error) {
	t, err := s.getTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.Closed {
		return s.finalProgress(ctx, nil, t)
	}

	rounds, err := s.store.Rounds.ListByTournament(ctx, nil, t.ID)
	if err != nil {
		return nil, err
	}
	prelims, knockouts := splitRounds(t, rounds)

	withView := func(state models.BracketState, round *models.Round) (*Progress, error) {
		view, err := s.buildRoundView(ctx, nil, t, round)
		if err != nil {
			return nil, err
		}
		pending := !round.Paired || round.Closed
		if !pending {
			// Все результаты внесены, раунд закроется при следующем advance.
			missing, err := s.store.Results.CountMissingByRound(ctx, nil, round.ID)
			if err != nil {
				return nil, err
			}
			pending = missing == 0
		}
		return &Progress{State: state, RoundNumber: round.Number, Round: view, Pending: pending}, nil
	}

	for _, r := range prelims {
		if !r.Closed {
			return withView(models.StatePrelimOpen, r)
		}
	}
	if len(prelims) < t.PrelimRounds {
		return &Progress{State: models.StatePrelimOpen, RoundNumber: len(prelims) + 1, Pending: true}, nil
	}
	if len(knockouts) == 0 {
		return &Progress{State: models.StatePrelimDone, RoundNumber: len(prelims), Pending: true}, nil
	}
	return withView(models.StateKnockoutOpen, knockouts[len(knockouts)-1])
}
