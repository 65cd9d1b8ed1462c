package domain

import (
	"fmt"
	"strings"
	"time"
)

// AspectRatio enumerates the output shapes a caller may request. Values are
// named presets; NormalizeAspectRatio also accepts raw "W:H" strings so
// existing clients keep working.
type AspectRatio string

const (
	AspectSquare     AspectRatio = "square"
	AspectPortrait   AspectRatio = "portrait"
	AspectLandscape  AspectRatio = "landscape"
	AspectWidescreen AspectRatio = "widescreen"
	AspectTall       AspectRatio = "tall"
	AspectPhoto      AspectRatio = "photo"
)

// NormalizeAspectRatio resolves a caller supplied value to an AspectRatio.
// Preset names are matched case-insensitively, raw "W:H" strings pass through
// unchanged, and empty input defaults to square.
func NormalizeAspectRatio(v string) (AspectRatio, error) {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return AspectSquare, nil
	}
	switch AspectRatio(v) {
	case AspectSquare, AspectPortrait, AspectLandscape, AspectWidescreen, AspectTall, AspectPhoto:
		return AspectRatio(v), nil
	}
	if w, h, ok := strings.Cut(v, ":"); ok && isDigits(w) && isDigits(h) {
		return AspectRatio(v), nil
	}
	return "", fmt.Errorf("unknown aspect ratio %q", v)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// PromptVariant is one candidate enhanced prompt produced from a raw user
// prompt. Index is the insertion position within its batch and carries no
// quality ranking.
type PromptVariant struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
}

// RankingVerdict is the outcome of scoring a variant batch. WinnerIndex is
// always within bounds of the batch that produced it; Scores aligns 1:1 with
// the variants.
type RankingVerdict struct {
	WinnerIndex int       `json:"winner_index"`
	Scores      []float64 `json:"scores"`
	Rationale   string    `json:"rationale,omitempty"`
	Source      string    `json:"source"`
}

// GeneratedImage holds rendered image bytes plus the prompt that produced
// them. Ownership passes to the caller; overlay collaborators may mutate the
// bytes without notifying the generator.
type GeneratedImage struct {
	Bytes        []byte
	Width        int
	Height       int
	SourcePrompt string
}

// EvaluationVerdict is the evaluator's judgement of a single image.
// EditInstruction is present whenever MeetsTarget is false and the loop still
// has budget to act on it.
type EvaluationVerdict struct {
	Score           float64 `json:"score"`
	MeetsTarget     bool    `json:"meets_target"`
	EditInstruction string  `json:"edit_instruction,omitempty"`
	Rationale       string  `json:"rationale,omitempty"`
}

// StopReason records why a refinement loop terminated.
type StopReason string

const (
	StopTargetReached  StopReason = "target_reached"
	StopBudgetExceeded StopReason = "budget_exceeded"
	StopNoImprovement  StopReason = "no_improvement"
	StopBackendFailure StopReason = "backend_failure"
	StopCancelled      StopReason = "cancelled"
)

// RefinementStep is one (image, score) pair recorded by the loop, including
// images that did not beat the best score.
type RefinementStep struct {
	Image     GeneratedImage
	Score     float64
	Iteration int
}

// RefinementState tracks one refinement loop invocation. It is mutated only
// by the loop controller and is terminal once StopReason is set. BestScore is
// monotonically non-decreasing and Iteration never exceeds the configured
// cap.
type RefinementState struct {
	Iteration  int
	Best       GeneratedImage
	BestScore  float64
	History    []RefinementStep
	StopReason StopReason
	Failure    error
}

// HistoryImage is the stored shape of one generated image inside a history
// record. Data marshals as base64 in the JSON file log; the Postgres store
// keeps it inside the record's JSON column.
type HistoryImage struct {
	ID     string `json:"id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Data   []byte `json:"image,omitempty"`
}

// HistoryRecord is the finalized record appended to the history log after a
// pipeline run.
type HistoryRecord struct {
	ID          string         `json:"id"`
	Prompt      string         `json:"prompt"`
	AspectRatio string         `json:"aspect_ratio"`
	Images      []HistoryImage `json:"images"`
	CreatedAt   time.Time      `json:"timestamp"`
}
