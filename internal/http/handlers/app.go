package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"postergen/internal/domain"
	"postergen/internal/history"
	"postergen/internal/infra"
	"postergen/internal/pipeline"
)

type App struct {
	Pipeline *pipeline.Pipeline
	History  history.Store
	Config   *infra.Config
	Logger   zerolog.Logger
}

func NewApp(p *pipeline.Pipeline, store history.Store, cfg *infra.Config, logger zerolog.Logger) *App {
	return &App{Pipeline: p, History: store, Config: cfg, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]string{"error": kind, "message": message})
}

// fail maps pipeline errors onto HTTP statuses. Caller input problems map to
// 400, upstream backend problems to 502, everything else to 500.
func (a *App) fail(w http.ResponseWriter, err error) {
	var backend *domain.GenerationBackendError
	var enhancement *domain.MalformedEnhancementError
	var evaluation *domain.MalformedEvaluationError
	var batch *domain.InvalidBatchError
	switch {
	case errors.Is(err, domain.ErrInvalidPrompt):
		a.error(w, http.StatusBadRequest, "invalid_prompt", "prompt must not be empty")
	case errors.As(err, &batch):
		a.error(w, http.StatusBadRequest, "invalid_batch", err.Error())
	case errors.As(err, &backend):
		a.error(w, http.StatusBadGateway, "backend_failure", err.Error())
	case errors.As(err, &enhancement), errors.As(err, &evaluation):
		a.error(w, http.StatusBadGateway, "malformed_response", err.Error())
	default:
		a.Logger.Error().Err(err).Msg("handler: unclassified failure")
		a.error(w, http.StatusInternalServerError, "internal", "request failed")
	}
}
