package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"lms-quiz-engine/internal/app"
	"lms-quiz-engine/internal/config"
	"lms-quiz-engine/internal/domain"
	"lms-quiz-engine/internal/infra/memory"
	pgcatalog "lms-quiz-engine/internal/infra/postgres"
	redisinfra "lms-quiz-engine/internal/infra/redis"
	transport "lms-quiz-engine/internal/transport/http"
	"lms-quiz-engine/internal/upstream"
)

// NewServeCmd builds the CLI subcommand to start the engine.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the quiz session engine",
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

	if cfg.Postgres.URL != "" {
		if err := applyCatalogSchema(ctx, cfg); err != nil {
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
	}

	var api upstream.API
	if cfg.Upstream.BaseURL != "" {
		api = upstream.NewRESTClient(cfg.Upstream.BaseURL, config.Duration(cfg.Upstream.Timeout, 15*time.Second))
	} else {
		log.Printf("no upstream configured, serving the built-in sample catalog")
		api = sampleUpstream()
	}

	var loader memory.CatalogLoader = memory.UpstreamLoader{
		LessonQuizzesFn: api.LessonQuizzes,
		QuizQuestionsFn: api.QuizQuestions,
	}
	if pool != nil {
		loader = pgcatalog.NewCatalogLoader(pool)
	}

	catalogTTL := config.Duration(cfg.Catalog.TTL, 10*time.Minute)
	var catalog app.CatalogRepository
	if redisClient != nil {
		catalog = redisinfra.NewCatalogCache(redisClient, loader, catalogTTL)
	} else {
		catalog = memory.NewCatalogCache(loader, catalogTTL)
	}

	sessionTTL := config.Duration(cfg.Session.TTL, 30*time.Minute)
	var snapshots app.SnapshotStore
	if redisClient != nil {
		snapshots = redisinfra.NewSnapshotStore(redisClient, sessionTTL)
	} else {
		snapshots = memory.NewSnapshotStore()
	}

	pollInterval := config.Duration(cfg.Poll.Interval, app.DefaultPollInterval)
	engine := app.NewEngine(api, catalog, snapshots, pollInterval)
	wsHandler := transport.NewWSHandler(engine)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz session engine on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleUpstream seeds the built-in fake with one lesson; swap in a real
// upstream base URL for anything beyond local development.
func sampleUpstream() *upstream.Fake {
	quizzes := []domain.Quiz{
		{
			ID:             "quiz-1",
			LessonID:       "lesson-1",
			Title:          "Checkpoint quiz",
			Published:      true,
			PassingScore:   70,
			TotalQuestions: 3,
		},
	}
	questions := map[string][]domain.Question{
		"quiz-1": {
			{ID: "q1", QuizID: "quiz-1", Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, Correct: "4"},
			{ID: "q2", QuizID: "quiz-1", Prompt: "What is 3 * 3?", Options: []string{"6", "9", "12"}, Correct: "9"},
			{ID: "q3", QuizID: "quiz-1", Prompt: "What is 10 / 2?", Options: []string{"5", "2", "20"}, Correct: "5"},
		},
	}
	return upstream.NewFake(quizzes, questions)
}
