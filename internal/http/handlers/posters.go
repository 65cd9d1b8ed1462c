package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"postergen/internal/domain"
	"postergen/internal/pipeline"
)

type posterRequest struct {
	Prompt          string   `json:"prompt"`
	AspectRatio     string   `json:"aspect_ratio"`
	ImageCount      int      `json:"image_count"`
	VariantCount    int      `json:"variant_count"`
	Evaluate        *bool    `json:"evaluate"`
	ReferenceImages []string `json:"reference_images"`
}

type posterImage struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Image  []byte `json:"image"`
}

type refinementSummary struct {
	Iterations int     `json:"iterations"`
	BestScore  float64 `json:"best_score"`
	StopReason string  `json:"stop_reason"`
	Failure    string  `json:"failure,omitempty"`
}

type posterResponse struct {
	ID          string             `json:"id"`
	Prompt      string             `json:"prompt"`
	AspectRatio string             `json:"aspect_ratio"`
	Images      []posterImage      `json:"images"`
	Refinement  *refinementSummary `json:"refinement,omitempty"`
}

// GeneratePoster runs the full pipeline for one request: variant
// enhancement, ranking, rendering and, when evaluation is enabled, the
// refinement loop.
func (a *App) GeneratePoster(w http.ResponseWriter, r *http.Request) {
	var req posterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	aspect, err := domain.NormalizeAspectRatio(req.AspectRatio)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	refs := make([][]byte, 0, len(req.ReferenceImages))
	for _, encoded := range req.ReferenceImages {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "reference_images must be base64 encoded")
			return
		}
		refs = append(refs, raw)
	}

	cfg := pipeline.Config{
		VariantCount:      a.Config.VariantCount,
		ImageCount:        a.Config.ImageCount,
		EvalEnabled:       a.Config.EvalEnabled,
		TargetScore:       a.Config.TargetScore,
		MaxIterations:     a.Config.MaxIterations,
		NoImprovementStop: a.Config.NoImprovementStop,
	}
	if req.VariantCount > 0 {
		cfg.VariantCount = req.VariantCount
	}
	if req.ImageCount > 0 {
		cfg.ImageCount = req.ImageCount
	}
	if req.Evaluate != nil {
		cfg.EvalEnabled = *req.Evaluate
	}

	resp, err := a.Pipeline.Run(r.Context(), pipeline.Request{
		RawPrompt:   req.Prompt,
		AspectRatio: aspect,
		References:  refs,
		Config:      cfg,
	})
	if err != nil {
		a.fail(w, err)
		return
	}

	out := posterResponse{
		ID:          resp.RecordID,
		Prompt:      resp.Prompt,
		AspectRatio: string(aspect),
	}
	for _, img := range resp.Images {
		out.Images = append(out.Images, posterImage{Width: img.Width, Height: img.Height, Image: img.Bytes})
	}
	if resp.Refinement != nil {
		summary := &refinementSummary{
			Iterations: resp.Refinement.Iteration,
			BestScore:  resp.Refinement.BestScore,
			StopReason: string(resp.Refinement.StopReason),
		}
		if resp.Refinement.Failure != nil {
			summary.Failure = resp.Refinement.Failure.Error()
		}
		out.Refinement = summary
	}
	a.json(w, http.StatusOK, out)
}
