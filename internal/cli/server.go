package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"toohak-session-service/internal/app"
	"toohak-session-service/internal/config"
	"toohak-session-service/internal/domain"
	"toohak-session-service/internal/infra/memory"
	pgloader "toohak-session-service/internal/infra/postgres"
	redisinfra "toohak-session-service/internal/infra/redis"
	transport "toohak-session-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	zlog, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer zlog.Sync()
	logger := zlog.Sugar()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

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

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgloader.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	exportTTL := config.TTLDuration(cfg.Export.TTL, time.Hour)
	var exports app.ExportStore
	if redisClient != nil {
		exports = redisinfra.NewExportStore(redisClient, exportTTL)
	} else {
		exports = memory.NewExportStore()
	}

	tokens := cfg.Auth.Tokens
	if len(tokens) == 0 {
		tokens = map[string]int{"example-token": 1}
	}

	scheduler := app.NewTimerScheduler(logger)
	service := app.NewSessionService(
		memory.NewSessionStore(),
		quizRepo,
		memory.NewTokenResolver(tokens),
		exports,
		scheduler,
		logger,
	)
	defer service.Close()

	handler := transport.NewHandler(service, logger)
	wsHandler := transport.NewWSHandler(service, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Infow("starting quiz session service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorw("failed to start server", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server...")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes provides minimal quiz data for running without Postgres.
func sampleQuizzes() map[int]domain.Quiz {
	return map[int]domain.Quiz{
		1: {
			ID:      1,
			OwnerID: 1,
			Name:    "Warmup",
			Questions: []domain.Question{
				{
					ID:              1,
					Text:            "What is 2 + 2?",
					DurationSeconds: 10,
					Points:          10,
					Answers: []domain.Answer{
						{ID: 1, Text: "3", Colour: "red"},
						{ID: 2, Text: "4", Colour: "blue", Correct: true},
						{ID: 3, Text: "5", Colour: "green"},
					},
				},
			},
		},
	}
}
