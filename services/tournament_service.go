package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Dosada05/debate-tab/brackets"
	"github.com/Dosada05/debate-tab/models"
	"github.com/Dosada05/debate-tab/repositories"
	"golang.org/x/sync/errgroup"
)

// MembersPerTeam is the number of debaters registered on a BP team.
const MembersPerTeam = 2

type CreateTournamentInput struct {
	Name         string   `json:"name"`
	Organizer    string   `json:"organizer"`
	TeamCount    int      `json:"team_count"`
	PrelimRounds int      `json:"prelim_rounds"`
	Qualifiers   int      `json:"qualifiers"`
	LocationName *string  `json:"location_name,omitempty"`
	LocationLat  *float64 `json:"location_lat,omitempty"`
	LocationLng  *float64 `json:"location_lng,omitempty"`
}

// UpdateTournamentInput changes only the non-nil fields. TeamCount, PrelimRounds and
// Qualifiers are frozen once the first round exists.
type UpdateTournamentInput struct {
	Name         *string  `json:"name,omitempty"`
	Organizer    *string  `json:"organizer,omitempty"`
	TeamCount    *int     `json:"team_count,omitempty"`
	PrelimRounds *int     `json:"prelim_rounds,omitempty"`
	Qualifiers   *int     `json:"qualifiers,omitempty"`
	LocationName *string  `json:"location_name,omitempty"`
	LocationLat  *float64 `json:"location_lat,omitempty"`
	LocationLng  *float64 `json:"location_lng,omitempty"`
}

type TeamInput struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

type ListTournamentsParams struct {
	Closed *bool
	Limit  int
	Offset int
}

type Location struct {
	ID           int      `json:"id"`
	Name         string   `json:"name"`
	LocationName string   `json:"location_name"`
	Lat          *float64 `json:"lat"`
	Lng          *float64 `json:"lng"`
}

// Overview is everything a tab display needs in one response.
type Overview struct {
	Tournament *models.Tournament `json:"tournament"`
	Standings  []models.Standing  `json:"standings"`
	Teams      []*models.Team     `json:"teams"`
	Rounds     []*RoundView       `json:"rounds"`
}

type TournamentService interface {
	Create(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error)
	Get(ctx context.Context, id int) (*models.Tournament, error)
	List(ctx context.Context, params ListTournamentsParams) ([]*models.Tournament, error)
	Update(ctx context.Context, id int, input UpdateTournamentInput) (*models.Tournament, error)
	Delete(ctx context.Context, id int) error

	// ReplaceRoster swaps every non-swing team for the submitted ones.
	ReplaceRoster(ctx context.Context, tournamentID int, teams []TeamInput) ([]*models.Team, error)
	AddTeam(ctx context.Context, tournamentID int, team TeamInput) (*models.Team, error)
	ListTeams(ctx context.Context, tournamentID int) ([]*models.Team, error)

	GetStandings(ctx context.Context, tournamentID int) ([]models.Standing, error)
	GetLocation(ctx context.Context, tournamentID int) (*Location, error)
	GetOverview(ctx context.Context, tournamentID int) (*Overview, error)
}

type tournamentService struct {
	*engine
}

func NewTournamentService(deps Deps) TournamentService {
	return &tournamentService{engine: newEngine(deps)}
}

func validateLocation(lat, lng *float64) error {
	if (lat == nil) != (lng == nil) {
		return fmt.Errorf("%w: latitude and longitude must be given together", ErrValidationFailed)
	}
	if lat != nil && (*lat < -90 || *lat > 90) {
		return fmt.Errorf("%w: latitude %v out of range", ErrValidationFailed, *lat)
	}
	if lng != nil && (*lng < -180 || *lng > 180) {
		return fmt.Errorf("%w: longitude %v out of range", ErrValidationFailed, *lng)
	}
	return nil
}

func validateTournament(t *models.Tournament) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: tournament name is required", ErrValidationFailed)
	}
	if t.TeamCount < 1 {
		return fmt.Errorf("%w: team count must be at least 1", ErrValidationFailed)
	}
	if t.PrelimRounds < 1 {
		return fmt.Errorf("%w: at least one preliminary round is required", ErrValidationFailed)
	}
	if t.Qualifiers < 0 {
		return fmt.Errorf("%w: qualifiers must not be negative", ErrValidationFailed)
	}
	return validateLocation(t.LocationLat, t.LocationLng)
}

func (s *tournamentService) Create(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error) {
	t := &models.Tournament{
		Name:         strings.TrimSpace(input.Name),
		Organizer:    strings.TrimSpace(input.Organizer),
		TeamCount:    input.TeamCount,
		PrelimRounds: input.PrelimRounds,
		Qualifiers:   input.Qualifiers,
		LocationName: input.LocationName,
		LocationLat:  input.LocationLat,
		LocationLng:  input.LocationLng,
	}
	if err := validateTournament(t); err != nil {
		return nil, err
	}

	err := s.store.Tx.WithinTx(ctx, func(ctx context.Context, exec repositories.SQLExecutor) error {
		return s.store.Tournaments.Create(ctx, exec, t)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tournament: %w", err)
	}

	s.logger.InfoContext(ctx, "tournament created", slog.Int("tournament_id", t.ID), slog.String("name", t.Name))
	return t, nil
}

func (s *tournamentService) Get(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := s.getTournament(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if t.ChampionTeamID != nil {
		champion, err := s.store.Teams.GetByID(ctx, nil, *t.ChampionTeamID)
		if err != nil && !errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, err
		}
		t.Champion = champion
	}
	return t, nil
}

func (s *tournamentService) List(ctx context.Context, params ListTournamentsParams) ([]*models.Tournament, error) {
	if params.Limit < 0 || params.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", ErrValidationFailed)
	}
	return s.store.Tournaments.List(ctx, nil, repositories.ListTournamentsFilter{
		Closed: params.Closed,
		Limit:  params.Limit,
		Offset: params.Offset,
	})
}

func (s *tournamentService) Update(ctx context.Context, id int, input UpdateTournamentInput) (*models.Tournament, error) {
	var updated *models.Tournament
	err := s.store.Tx.WithinTournament(ctx, id, func(ctx context.Context, exec repositories.SQLExecutor) error {
		t, err := s.getTournament(ctx, exec, id)
		if err != nil {
			return err
		}

		structural := input.TeamCount != nil || input.PrelimRounds != nil || input.Qualifiers != nil
		if structural {
			rounds, err := s.store.Rounds.ListByTournament(ctx, exec, id)
			if err != nil {
				return err
			}
			if len(rounds) > 0 {
				return fmt.Errorf("%w: team count, rounds and qualifiers are fixed after round 1", ErrTournamentStarted)
			}
		}

		if input.Name != nil {
			t.Name = strings.TrimSpace(*input.Name)
		}
		if input.Organizer != nil {
			t.Organizer = strings.TrimSpace(*input.Organizer)
		}
		if input.TeamCount != nil {
			t.TeamCount = *input.TeamCount
		}
		if input.PrelimRounds != nil {
			t.PrelimRounds = *input.PrelimRounds
		}
		if input.Qualifiers != nil {
			t.Qualifiers = *input.Qualifiers
		}
		if input.LocationName != nil {
			t.LocationName = input.LocationName
		}
		if input.LocationLat != nil || input.LocationLng != nil {
			t.LocationLat = input.LocationLat
			t.LocationLng = input.LocationLng
		}
		if err := validateTournament(t); err != nil {
			return err
		}

		if err := s.store.Tournaments.Update(ctx, exec, t); err != nil {
			return mapRepoError(err)
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *tournamentService) Delete(ctx context.Context, id int) error {
	err := s.store.Tx.WithinTournament(ctx, id, func(ctx context.Context, exec repositories.SQLExecutor) error {
		return mapRepoError(s.store.Tournaments.Delete(ctx, exec, id))
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "tournament deleted", slog.Int("tournament_id", id))
	return nil
}

func validateTeamInput(in TeamInput) (TeamInput, error) {
	out := TeamInput{Name: strings.TrimSpace(in.Name)}
	if out.Name == "" {
		return out, fmt.Errorf("%w: team name is required", ErrValidationFailed)
	}
	if len(in.Members) != MembersPerTeam {
		return out, fmt.Errorf("%w: team %q must have exactly %d members, got %d", ErrValidationFailed, out.Name, MembersPerTeam, len(in.Members))
	}
	for _, m := range in.Members {
		m = strings.TrimSpace(m)
		if m == "" {
			return out, fmt.Errorf("%w: team %q has an unnamed member", ErrValidationFailed, out.Name)
		}
		out.Members = append(out.Members, m)
	}
	return out, nil
}

// ensureRosterOpen fails once any round of the tournament exists.
func (s *tournamentService) ensureRosterOpen(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) error {
	if t.Closed {
		return fmt.Errorf("%w: tournament %d", ErrTournamentClosed, t.ID)
	}
	rounds, err := s.store.Rounds.ListByTournament(ctx, exec, t.ID)
	if err != nil {
		return err
	}
	if len(rounds) > 0 {
		return ErrRosterLocked
	}
	return nil
}

func (s *tournamentService) createTeam(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, in TeamInput) (*models.Team, error) {
	team := &models.Team{TournamentID: tournamentID, Name: in.Name}
	if err := s.store.Teams.Create(ctx, exec, team); err != nil {
		return nil, fmt.Errorf("failed to create team %q: %w", in.Name, mapRepoError(err))
	}
	for _, name := range in.Members {
		member := &models.Member{TeamID: team.ID, Name: name}
		if err := s.store.Teams.CreateMember(ctx, exec, member); err != nil {
			return nil, fmt.Errorf("failed to add member to team %q: %w", in.Name, mapRepoError(err))
		}
		team.Members = append(team.Members, *member)
	}
	return team, nil
}

func (s *tournamentService) ReplaceRoster(ctx context.Context, tournamentID int, teams []TeamInput) ([]*models.Team, error) {
	cleaned := make([]TeamInput, 0, len(teams))
	names := make(map[string]bool, len(teams))
	for _, in := range teams {
		team, err := validateTeamInput(in)
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(team.Name)
		if names[key] {
			return nil, fmt.Errorf("%w: duplicate team name %q", ErrValidationFailed, team.Name)
		}
		names[key] = true
		cleaned = append(cleaned, team)
	}

	var created []*models.Team
	err := s.store.Tx.WithinTournament(ctx, tournamentID, func(ctx context.Context, exec repositories.SQLExecutor) error {
		created = nil
		t, err := s.getTournament(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if len(cleaned) != t.TeamCount {
			return fmt.Errorf("%w: roster must list %d teams, got %d", ErrValidationFailed, t.TeamCount, len(cleaned))
		}
		if err := s.ensureRosterOpen(ctx, exec, t); err != nil {
			return err
		}

		if _, err := s.store.Teams.DeleteNonSwing(ctx, exec, tournamentID); err != nil {
			return fmt.Errorf("failed to clear roster: %w", err)
		}
		for _, in := range cleaned {
			team, err := s.createTeam(ctx, exec, tournamentID, in)
			if err != nil {
				return err
			}
			created = append(created, team)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "roster replaced", slog.Int("tournament_id", tournamentID), slog.Int("teams", len(created)))
	return created, nil
}

func (s *tournamentService) AddTeam(ctx context.Context, tournamentID int, in TeamInput) (*models.Team, error) {
	cleaned, err := validateTeamInput(in)
	if err != nil {
		return nil, err
	}

	var team *models.Team
	err = s.store.Tx.WithinTournament(ctx, tournamentID, func(ctx context.Context, exec repositories.SQLExecutor) error {
		t, err := s.getTournament(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if err := s.ensureRosterOpen(ctx, exec, t); err != nil {
			return err
		}
		team, err = s.createTeam(ctx, exec, tournamentID, cleaned)
		return err
	})
	if err != nil {
		return nil, err
	}
	return team, nil
}

func (s *tournamentService) ListTeams(ctx context.Context, tournamentID int) ([]*models.Team, error) {
	if _, err := s.getTournament(ctx, nil, tournamentID); err != nil {
		return nil, err
	}
	teams, err := s.store.Teams.ListByTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}
	members, err := s.store.Teams.ListMembersByTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}
	for _, team := range teams {
		team.Members = members[team.ID]
	}
	return teams, nil
}

func (s *tournamentService) GetStandings(ctx context.Context, tournamentID int) ([]models.Standing, error) {
	if _, err := s.getTournament(ctx, nil, tournamentID); err != nil {
		return nil, err
	}
	teams, err := s.store.Teams.ListByTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}
	return brackets.Standings(brackets.StandingsOrder(teams)), nil
}

func (s *tournamentService) GetLocation(ctx context.Context, tournamentID int) (*Location, error) {
	t, err := s.getTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}
	loc := &Location{ID: t.ID, Name: t.Name, Lat: t.LocationLat, Lng: t.LocationLng}
	if t.LocationName != nil {
		loc.LocationName = *t.LocationName
	}
	return loc, nil
}

func (s *tournamentService) GetOverview(ctx context.Context, tournamentID int) (*Overview, error) {
	t, err := s.Get(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	overview := &Overview{Tournament: t}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		teams, err := s.ListTeams(gCtx, tournamentID)
		if err != nil {
			return fmt.Errorf("failed to load teams: %w", err)
		}
		overview.Teams = teams
		overview.Standings = brackets.Standings(brackets.StandingsOrder(teams))
		return nil
	})

	g.Go(func() error {
		rounds, err := s.store.Rounds.ListByTournament(gCtx, nil, tournamentID)
		if err != nil {
			return fmt.Errorf("failed to load rounds: %w", err)
		}
		views := make([]*RoundView, len(rounds))
		rg, rCtx := errgroup.WithContext(gCtx)
		rg.SetLimit(4)
		for i, round := range rounds {
			rg.Go(func() error {
				view, err := s.buildRoundView(rCtx, nil, t, round)
				if err != nil {
					return err
				}
				views[i] = view
				return nil
			})
		}
		if err := rg.Wait(); err != nil {
			return fmt.Errorf("failed to load rooms: %w", err)
		}
		overview.Rounds = views
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return overview, nil
}
