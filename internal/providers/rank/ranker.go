package rank

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"postergen/internal/domain"
)

// Ranker scores a batch of candidate prompts against the user's original
// intent and selects one winner. Implementations never fail for a well-formed
// batch; an empty batch yields *domain.InvalidBatchError.
type Ranker interface {
	Rank(ctx context.Context, original string, variants []domain.PromptVariant) (domain.RankingVerdict, error)
}

const (
	heuristicSourceName = "heuristic"
	openAISourceName    = "openai"
)

// HeuristicRanker is the deterministic local fallback used when no scoring
// backend is configured. Scores are a pure function of the variant texts, so
// the same batch always produces the same winner.
type HeuristicRanker struct{}

func NewHeuristicRanker() *HeuristicRanker {
	return &HeuristicRanker{}
}

func (h *HeuristicRanker) Rank(ctx context.Context, original string, variants []domain.PromptVariant) (domain.RankingVerdict, error) {
	if err := ctx.Err(); err != nil {
		return domain.RankingVerdict{}, err
	}
	if len(variants) == 0 {
		return domain.RankingVerdict{}, &domain.InvalidBatchError{Reason: "no variants"}
	}
	scores := make([]float64, len(variants))
	for i, v := range variants {
		scores[i] = informativeness(v.Text)
	}
	winner := 0
	for i, s := range scores {
		if s > scores[winner] {
			winner = i
		}
	}
	return domain.RankingVerdict{
		WinnerIndex: winner,
		Scores:      scores,
		Rationale:   "deterministic informativeness heuristic",
		Source:      heuristicSourceName,
	}, nil
}

var lowerCaser = cases.Lower(language.Und)

// informativeness approximates descriptive richness: distinct case-folded
// tokens of four or more letters, plus a bonus for prompt lengths inside a
// usable band. Bounded to [0, 10] like backend scores.
func informativeness(text string) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	seen := make(map[string]struct{})
	for _, tok := range strings.Fields(trimmed) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		if len(tok) < 4 {
			continue
		}
		folded := lowerCaser.String(tok)
		seen[folded] = struct{}{}
	}
	score := float64(len(seen)) * 0.35
	switch l := len(trimmed); {
	case l >= 60 && l <= 600:
		score += 2
	case l > 600:
		score += 0.5
	}
	if score > 10 {
		score = 10
	}
	return score
}

var _ Ranker = (*HeuristicRanker)(nil)
