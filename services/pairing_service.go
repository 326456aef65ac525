package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Dosada05/debate-tab/brackets"
	"github.com/Dosada05/debate-tab/repositories"
)

type PairingService interface {
	// PairRound draws a preliminary round. Calling it again returns the same rooms.
	PairRound(ctx context.Context, tournamentID, roundNumber int) (*RoundView, error)
	GetRound(ctx context.Context, tournamentID, roundNumber int) (*RoundView, error)
}

type pairingService struct {
	*engine
}

func NewPairingService(deps Deps) PairingService {
	return &pairingService{engine: newEngine(deps)}
}

func (s *pairingService) PairRound(ctx context.Context, tournamentID, roundNumber int) (*RoundView, error) {
	var (
		view  *RoundView
		drawn bool
	)
	err := s.store.Tx.WithinTournament(ctx, tournamentID, func(ctx context.Context, exec repositories.SQLExecutor) error {
		t, err := s.getOpenTournament(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		view, drawn, err = s.pairRoundTx(ctx, exec, t, roundNumber)
		return err
	})
	if err != nil {
		return nil, err
	}

	if drawn {
		s.metrics.RoundPaired(false)
		s.logger.InfoContext(ctx, "round paired",
			slog.Int("tournament_id", tournamentID),
			slog.Int("round", roundNumber),
			slog.Int("rooms", len(view.Rooms)),
		)
		s.publish(tournamentID, []event{roundEvent(brackets.EventRoundPaired, view)})
	}
	return view, nil
}

func (s *pairingService) GetRound(ctx context.Context, tournamentID, roundNumber int) (*RoundView, error) {
	t, err := s.getTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}
	round, err := s.store.Rounds.GetByNumber(ctx, nil, tournamentID, roundNumber)
	if err != nil {
		return nil, fmt.Errorf("round %d: %w", roundNumber, mapRepoError(err))
	}
	return s.buildRoundView(ctx, nil, t, round)
}
