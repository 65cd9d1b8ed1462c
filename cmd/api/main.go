package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"postergen/internal/adapter/repo"
	"postergen/internal/history"
	"postergen/internal/http/handlers"
	"postergen/internal/http/httpapi"
	"postergen/internal/infra"
	"postergen/internal/pipeline"
	"postergen/internal/providers/eval"
	"postergen/internal/providers/image"
	"postergen/internal/providers/prompt"
	"postergen/internal/providers/rank"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()

	// History store: Postgres when DATABASE_URL is set, JSON file log
	// otherwise.
	var store history.Store
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		store = repo.NewHistoryRepository(pool)
	} else {
		fileLog, err := history.NewFileLog(cfg.HistoryPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open history log")
		}
		store = fileLog
	}

	enhancer, err := prompt.NewGeminiEnhancer(prompt.GeminiOptions{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.GeminiBaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build enhancer")
	}

	ranker := rank.NewOpenAIRanker(rank.OpenAIOptions{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
		OnFallback: func(reason string, err error) {
			logger.Warn().Err(err).Str("reason", reason).Msg("ranking fell back to heuristic")
		},
	})

	imagen, err := image.NewImagenClient(image.ImagenOptions{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.ImagenModel,
		BaseURL: cfg.GeminiBaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build imagen client")
	}
	gemini, err := image.NewGeminiClient(image.GeminiOptions{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiImageModel,
		BaseURL: cfg.GeminiBaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build gemini image client")
	}
	generator, err := image.ForBackend(cfg.ImageBackend, imagen, gemini)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to select image backend")
	}

	var evaluator eval.Evaluator
	if cfg.OpenAIAPIKey != "" {
		ev, err := eval.NewOpenAIEvaluator(eval.OpenAIOptions{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build evaluator")
		}
		evaluator = ev
	}

	pipe, err := pipeline.New(pipeline.Options{
		Enhancer:  enhancer,
		Ranker:    ranker,
		Generator: generator,
		Evaluator: evaluator,
		History:   store,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build pipeline")
	}

	app := handlers.NewApp(pipe, store, cfg, logger)
	router := httpapi.NewRouter(app, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("backend", cfg.ImageBackend).Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
