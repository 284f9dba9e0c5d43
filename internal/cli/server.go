package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tournament-service/internal/app"
	"tournament-service/internal/config"
	"tournament-service/internal/domain"
	"tournament-service/internal/infra/memory"
	pgstore "tournament-service/internal/infra/postgres"
	redisinfra "tournament-service/internal/infra/redis"
	transport "tournament-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the tournament server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log.Level)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var store app.TournamentStore
	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleQuestions())
	if pool != nil {
		pg := pgstore.NewTournamentStore(pool)
		store = pg
		loader = pg
	} else {
		store = memory.NewTournamentStore(loader)
	}

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	var questions app.QuestionRepository
	if redisClient != nil {
		questions = redisinfra.NewQuestionRepository(redisClient, loader, questionTTL)
	} else {
		questions = memory.NewQuestionRepository(loader, questionTTL)
	}

	var registry app.SessionRegistry
	if redisClient != nil {
		registry = redisinfra.NewRegistry(redisClient, redisTTL)
	} else {
		registry = memory.NewRegistry()
	}

	hub := transport.NewHub()
	service := app.NewTournamentService(
		registry, questions, store, hub,
		app.RapidityScorer{}, clockwork.NewRealClock(), logger,
	)
	wsHandler := transport.NewWSHandler(service, hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.HandleFunc("/tournaments", createTournamentHandler(service, logger))

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info().Str("port", finalPort).Msg("starting tournament service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info().Msg("shutting down server")
	case <-ctx.Done():
		logger.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// createTournamentHandler is the thin seam to whatever upstream API owns
// tournament records: it only registers a live session for an existing code.
func createTournamentHandler(service *app.TournamentService, logger zerolog.Logger) http.HandlerFunc {
	type createRequest struct {
		Code         string   `json:"code"`
		QuestionUIDs []string `json:"questionUids"`
		Deferred     bool     `json:"deferred"`
		QuizID       string   `json:"quizId"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		_, err := service.CreateSession(r.Context(), req.Code, req.QuestionUIDs, app.SessionOptions{
			Deferred:     req.Deferred,
			LinkedQuizID: req.QuizID,
		})
		if err != nil {
			logger.Error().Err(err).Str("code", req.Code).Msg("create session failed")
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

// sampleQuestions provides a minimal question pool; swap the loader for the
// Postgres-backed one in production.
func sampleQuestions() map[string]domain.Question {
	return map[string]domain.Question{
		"q1": {
			UID:  "q1",
			Text: "What is 2 + 2?",
			Options: []domain.Option{
				{Text: "3", Correct: false},
				{Text: "4", Correct: true},
				{Text: "5", Correct: false},
			},
			TimeSeconds: 20,
		},
		"q2": {
			UID:      "q2",
			Text:     "Which of these are prime?",
			Multiple: true,
			Options: []domain.Option{
				{Text: "2", Correct: true},
				{Text: "4", Correct: false},
				{Text: "7", Correct: true},
			},
			TimeSeconds: 30,
		},
	}
}
