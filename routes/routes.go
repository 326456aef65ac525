package routes

import (
	"net/http"

	_ "github.com/Dosada05/debate-tab/docs"
	"github.com/Dosada05/debate-tab/handlers"
	"github.com/Dosada05/debate-tab/metrics"
	"github.com/Dosada05/debate-tab/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Options struct {
	JWTSecret      string
	AllowedOrigins []string
	Metrics        *metrics.Recorder
}

func SetupRoutes(
	router *chi.Mux,
	opts Options,
	tournamentHandler *handlers.TournamentHandler,
	roundHandler *handlers.RoundHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics.Handler())
	}
	router.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// WebSocket вне /api: браузер не передаёт Authorization при upgrade.
	router.Get("/ws/tournaments/{tournamentID}", webSocketHandler.ServeWs)

	requireOperator := []func(http.Handler) http.Handler{
		middleware.Authenticate(opts.JWTSecret),
		middleware.RequireOperator,
	}

	router.Route("/api", func(r chi.Router) {
		r.Get("/tournaments", tournamentHandler.ListHandler)
		r.With(requireOperator...).Post("/tournaments", tournamentHandler.CreateHandler)

		r.Route("/tournaments/{tournamentID}", func(r chi.Router) {
			// Публичные маршруты
			r.Get("/", tournamentHandler.GetByIDHandler)
			r.Get("/overview", tournamentHandler.OverviewHandler)
			r.Get("/teams", tournamentHandler.ListTeamsHandler)
			r.Get("/standings", tournamentHandler.StandingsHandler)
			r.Get("/location", tournamentHandler.LocationHandler)
			r.Get("/state", roundHandler.StateHandler)
			r.Get("/rounds/{roundNumber}", roundHandler.GetRoundHandler)

			// Только оператор
			r.Group(func(r chi.Router) {
				r.Use(requireOperator...)

				r.Patch("/", tournamentHandler.UpdateHandler)
				r.Delete("/", tournamentHandler.DeleteHandler)
				r.Put("/roster", tournamentHandler.ReplaceRosterHandler)
				r.Post("/teams", tournamentHandler.AddTeamHandler)
				r.Post("/rounds/{roundNumber}/pair", roundHandler.PairRoundHandler)
				r.Post("/advance", roundHandler.AdvanceHandler)
				r.Post("/standings/publish", tournamentHandler.PublishStandingsHandler)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(requireOperator...)

			r.Post("/rounds/{roundID}/results", roundHandler.SubmitResultsHandler)
			r.Post("/rounds/{roundID}/close", roundHandler.CloseRoundHandler)
		})
	})
}
