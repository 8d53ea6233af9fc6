package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quiz-exam-service/internal/app"
	"quiz-exam-service/internal/auth"
	"quiz-exam-service/internal/config"
	"quiz-exam-service/internal/infra/memory"
	"quiz-exam-service/internal/infra/postgres"
	infraredis "quiz-exam-service/internal/infra/redis"
	"quiz-exam-service/internal/logging"
	transport "quiz-exam-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz examination server",
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
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	slog.SetDefault(logger)

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret (or JWT_SECRET) must be set")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store  app.Store
		loader app.QuizLoader
	)
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
		db := postgres.OpenDB(cfg.Postgres.URL)
		defer db.Close()
		store = postgres.NewStore(db)

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader = postgres.NewQuizLoader(pool)
	} else {
		logger.Warn("postgres not configured, data lives in memory only")
		mem := memory.NewStore()
		store, loader = mem, mem
	}

	monitor := app.NewMonitor()
	var progress app.ProgressPublisher = monitor

	var quizzes app.QuizRepository
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		quizzes = infraredis.NewQuizCache(client, loader,
			config.TTLDuration(cfg.Redis.TTL, config.TTLDuration(cfg.Quiz.CacheTTL, 10*time.Minute)), logger)

		relay := infraredis.NewProgressRelay(client, monitor, logger)
		progress = relay
		go func() { _ = relay.Serve(ctx) }()
	} else {
		quizzes = memory.NewQuizCache(loader, config.TTLDuration(cfg.Quiz.CacheTTL, 10*time.Minute))
	}

	codes := app.NewAccessCodeGenerator(store, cfg.AccessCode.Attempts,
		config.TTLDuration(cfg.AccessCode.RetryDelay, 5*time.Millisecond))
	quizService := app.NewQuizService(store, quizzes, codes, app.WithLogger(logger.With("component", "quizzes")))
	examService := app.NewExaminationService(store, quizzes,
		app.WithLogger(logger.With("component", "examinations")),
		app.WithProgress(progress))

	router := transport.NewRouter(transport.RouterDeps{
		Handlers:       transport.NewHandlers(quizService, examService, logger),
		Monitor:        transport.NewMonitorHandler(quizService, monitor, cfg.Server.AllowedOrigins, logger),
		Tokens:         auth.NewTokens(cfg.Auth.JWTSecret),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  config.TTLDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.TTLDuration(cfg.Server.WriteTimeout, 15*time.Second),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting quiz examination service", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
