package handlers

import (
	"encoding/json"
	"net/http"

	"postergen/internal/domain"
)

type enhanceRequest struct {
	Prompt       string `json:"prompt"`
	VariantCount int    `json:"variant_count"`
}

type enhanceResponse struct {
	Variants    []domain.PromptVariant `json:"variants"`
	WinnerIndex int                    `json:"winner_index"`
	Scores      []float64              `json:"scores"`
	Rationale   string                 `json:"rationale,omitempty"`
	Source      string                 `json:"source"`
}

// Enhance produces a ranked variant batch without rendering any images.
func (a *App) Enhance(w http.ResponseWriter, r *http.Request) {
	var req enhanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	count := req.VariantCount
	if count < 1 {
		count = a.Config.VariantCount
	}
	variants, verdict, err := a.Pipeline.EnhanceAndRank(r.Context(), req.Prompt, count)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, enhanceResponse{
		Variants:    variants,
		WinnerIndex: verdict.WinnerIndex,
		Scores:      verdict.Scores,
		Rationale:   verdict.Rationale,
		Source:      verdict.Source,
	})
}
