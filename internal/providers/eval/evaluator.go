package eval

import (
	"context"

	"postergen/internal/domain"
)

// Evaluator scores a rendered image against the original (pre-enhancement)
// intent. Scores are backend-dependent and not bit-reproducible, but the
// verdict shape is always the same; an unparseable backend response fails
// with *domain.MalformedEvaluationError.
type Evaluator interface {
	Evaluate(ctx context.Context, img domain.GeneratedImage, originalPrompt string, targetScore float64) (domain.EvaluationVerdict, error)
}
