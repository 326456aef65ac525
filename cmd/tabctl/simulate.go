package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/Dosada05/debate-tab/models"
	"github.com/Dosada05/debate-tab/repositories"
	"github.com/Dosada05/debate-tab/services"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/spf13/cobra"
)

type simulateOptions struct {
	Teams        int
	PrelimRounds int
	Qualifiers   int
	Seed         uint64
	Engine       services.EngineConfig
}

var simOpts = simulateOptions{Engine: services.DefaultEngineConfig()}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a whole tournament in memory with random results",
	Long: `Creates a tournament with generated teams, then pairs rounds, submits random
ballots and advances until a champion is decided. Useful for checking bracket
shapes before a real event.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sim, err := simulate(cmd.Context(), simOpts, slog.Default())
		if err != nil {
			return err
		}
		return sim.print(cmd.OutOrStdout())
	},
}

func init() {
	f := simulateCmd.Flags()
	f.IntVar(&simOpts.Teams, "teams", 16, "number of registered teams")
	f.IntVar(&simOpts.PrelimRounds, "rounds", 3, "number of preliminary rounds")
	f.IntVar(&simOpts.Qualifiers, "qualifiers", 4, "teams entering the knockout")
	f.Uint64Var(&simOpts.Seed, "seed", 1, "random seed")
	f.BoolVar(&simOpts.Engine.SwingsQualify, "swings-qualify", true, "allow swing teams into the knockout")
}

type simulation struct {
	Tournament *models.Tournament
	Rounds     []*services.RoundView
	Standings  []models.Standing
	Champion   *models.Team
}

// maxSimulationSteps bounds the advance loop if the bracket stalls.
const maxSimulationSteps = 64

func simulate(ctx context.Context, opts simulateOptions, logger *slog.Logger) (*simulation, error) {
	faker := gofakeit.New(opts.Seed)

	deps := services.Deps{
		Store:  repositories.NewMemoryStore(),
		Config: opts.Engine,
		Logger: logger,
	}
	tournaments := services.NewTournamentService(deps)
	results := services.NewResultService(deps)
	progression := services.NewProgressionService(deps, nil)

	lat, lng := faker.Latitude(), faker.Longitude()
	city := faker.City()
	t, err := tournaments.Create(ctx, services.CreateTournamentInput{
		Name:         fmt.Sprintf("%s Open", city),
		Organizer:    faker.Company(),
		TeamCount:    opts.Teams,
		PrelimRounds: opts.PrelimRounds,
		Qualifiers:   opts.Qualifiers,
		LocationName: &city,
		LocationLat:  &lat,
		LocationLng:  &lng,
	})
	if err != nil {
		return nil, fmt.Errorf("create tournament: %w", err)
	}
	if _, err := tournaments.ReplaceRoster(ctx, t.ID, fakeRoster(faker, opts.Teams)); err != nil {
		return nil, fmt.Errorf("register teams: %w", err)
	}

	sim := &simulation{}
	for step := 0; step < maxSimulationSteps; step++ {
		progress, err := progression.AdvanceTournament(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("advance after round %d: %w", len(sim.Rounds), err)
		}
		if progress.State == models.StateChampionDecided {
			sim.Champion = progress.Champion
			break
		}
		view := progress.Round
		if view == nil || view.Round.Closed {
			continue
		}

		outcome, err := results.SubmitResults(ctx, view.Round.ID, fakeBallots(faker, view, opts.Engine))
		if err != nil {
			return nil, fmt.Errorf("submit round %d: %w", view.Round.Number, err)
		}
		sim.Rounds = append(sim.Rounds, outcome.Round)
	}
	if sim.Champion == nil {
		return nil, errors.New("bracket did not converge on a champion")
	}

	if sim.Tournament, err = tournaments.Get(ctx, t.ID); err != nil {
		return nil, err
	}
	if sim.Standings, err = tournaments.GetStandings(ctx, t.ID); err != nil {
		return nil, err
	}
	return sim, nil
}

func fakeRoster(faker *gofakeit.Faker, n int) []services.TeamInput {
	seen := make(map[string]bool, n)
	teams := make([]services.TeamInput, 0, n)
	for len(teams) < n {
		name := fmt.Sprintf("%s %s", faker.Adjective(), faker.Animal())
		if seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		teams = append(teams, services.TeamInput{
			Name:    name,
			Members: []string{faker.Name(), faker.Name()},
		})
	}
	return teams
}

// fakeBallots ranks every room at random. Better ranks get higher speaker scores.
func fakeBallots(faker *gofakeit.Faker, view *services.RoundView, cfg services.EngineConfig) []services.RoomResultInput {
	ballots := make([]services.RoomResultInput, 0, len(view.Rooms))
	for _, room := range view.Rooms {
		ranks := make([]int, len(room.Participations))
		for i := range ranks {
			ranks[i] = i + 1
		}
		faker.ShuffleInts(ranks)

		entry := services.RoomResultInput{RoomID: room.ID}
		for i, p := range room.Participations {
			entry.Teams = append(entry.Teams, services.TeamResultInput{
				TeamID:   p.TeamID,
				Rank:     ranks[i],
				Speaker1: fakeSpeaks(faker, cfg, ranks[i]),
				Speaker2: fakeSpeaks(faker, cfg, ranks[i]),
			})
		}
		ballots = append(ballots, entry)
	}
	return ballots
}

func fakeSpeaks(faker *gofakeit.Faker, cfg services.EngineConfig, rank int) int {
	span := cfg.SpeakerMax - cfg.SpeakerMin
	// ранг 1 получает верхнюю половину диапазона, ранг 4 нижнюю
	lo := cfg.SpeakerMin + span*(4-rank)/8
	hi := lo + span/2
	return faker.IntRange(lo, min(hi, cfg.SpeakerMax))
}

func (s *simulation) print(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s (%d teams, %d rounds played)\n\n", s.Tournament.Name, len(s.Standings), len(s.Rounds))
	fmt.Fprintln(tw, "RANK\tTEAM\tPTS\tSPEAKS\tAVG\t")
	for _, st := range s.Standings {
		name := st.TeamName
		if st.IsSwing {
			name += " (swing)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%.2f\t\n", st.Rank, name, st.Points, st.SpeakerTotal, st.SpeakerAverage)
	}
	fmt.Fprintf(tw, "\nChampion: %s\n", s.Champion.Name)
	return tw.Flush()
}
