package prompt

import (
	"context"

	"postergen/internal/domain"
)

// EnhanceRequest carries one enhancement call. Strict tightens the backend
// instruction and is set by the pipeline on its single retry after a
// malformed response.
type EnhanceRequest struct {
	RawPrompt    string
	VariantCount int
	Strict       bool
}

// Enhancer turns a raw user prompt into a batch of enhanced candidate
// prompts. Implementations return exactly VariantCount variants or fail with
// *domain.MalformedEnhancementError when the backend response cannot be
// parsed into that shape.
type Enhancer interface {
	EnhanceVariants(ctx context.Context, req EnhanceRequest) ([]domain.PromptVariant, error)
}
