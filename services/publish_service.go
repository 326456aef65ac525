package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/debate-tab/models"
	"github.com/Dosada05/debate-tab/storage"
)

// StandingsSnapshot is the document written to object storage.
type StandingsSnapshot struct {
	TournamentID   int               `json:"tournament_id"`
	Name           string            `json:"name"`
	Closed         bool              `json:"closed"`
	ChampionTeamID *int              `json:"champion_team_id,omitempty"`
	GeneratedAt    time.Time         `json:"generated_at"`
	Standings      []models.Standing `json:"standings"`
}

type PublishService interface {
	// PublishStandings uploads the current standings as JSON and returns where they landed.
	PublishStandings(ctx context.Context, tournamentID int) (*storage.UploadResult, error)
}

type publishService struct {
	tournaments TournamentService
	uploader    storage.FileUploader
	logger      *slog.Logger
	now         func() time.Time
}

// NewPublishService returns a publisher; with a nil uploader every call fails with
// ErrPublishingDisabled.
func NewPublishService(tournaments TournamentService, uploader storage.FileUploader, logger *slog.Logger) PublishService {
	if logger == nil {
		logger = slog.Default()
	}
	return &publishService{
		tournaments: tournaments,
		uploader:    uploader,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *publishService) PublishStandings(ctx context.Context, tournamentID int) (*storage.UploadResult, error) {
	if s.uploader == nil {
		return nil, ErrPublishingDisabled
	}

	t, err := s.tournaments.Get(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	standings, err := s.tournaments.GetStandings(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(StandingsSnapshot{
		TournamentID:   t.ID,
		Name:           t.Name,
		Closed:         t.Closed,
		ChampionTeamID: t.ChampionTeamID,
		GeneratedAt:    s.now(),
		Standings:      standings,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode standings: %w", err)
	}

	result, err := s.uploader.Upload(ctx, storage.StandingsKey(tournamentID), "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "standings published",
		slog.Int("tournament_id", tournamentID),
		slog.String("location", result.Location),
	)
	return result, nil
}
