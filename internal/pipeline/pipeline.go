package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"postergen/internal/domain"
	"postergen/internal/history"
	"postergen/internal/overlay"
	"postergen/internal/providers/eval"
	"postergen/internal/providers/image"
	"postergen/internal/providers/prompt"
	"postergen/internal/providers/rank"
	"postergen/internal/refine"
)

// Options wires the pipeline's collaborators. Evaluator may be nil, in which
// case refinement is unavailable regardless of per-request config.
type Options struct {
	Enhancer  prompt.Enhancer
	Ranker    rank.Ranker
	Generator image.Generator
	Evaluator eval.Evaluator
	Overlay   overlay.Applier
	History   history.Store
	Logger    zerolog.Logger
}

// Config holds the per-invocation knobs. They are read once at the start of a
// run and treated as immutable for that run.
type Config struct {
	VariantCount      int
	ImageCount        int
	EvalEnabled       bool
	TargetScore       float64
	MaxIterations     int
	NoImprovementStop bool
}

// Request is one poster generation invocation.
type Request struct {
	RawPrompt   string
	AspectRatio domain.AspectRatio
	References  [][]byte
	Config      Config
}

// Response is the finalized outcome of a successful run. Callers either get
// a usable image set or a classified error, never a half-populated result.
type Response struct {
	Prompt     string
	Variants   []domain.PromptVariant
	Verdict    domain.RankingVerdict
	Images     []domain.GeneratedImage
	Refinement *domain.RefinementState
	RecordID   string
}

// Pipeline orchestrates enhancement, ranking, generation, refinement,
// overlay and history for one request at a time. Independent invocations may
// run concurrently; the history store serializes its own writes.
type Pipeline struct {
	enhancer  prompt.Enhancer
	ranker    rank.Ranker
	generator image.Generator
	evaluator eval.Evaluator
	overlay   overlay.Applier
	store     history.Store
	logger    zerolog.Logger
}

func New(opts Options) (*Pipeline, error) {
	if opts.Enhancer == nil {
		return nil, errors.New("pipeline: enhancer is required")
	}
	if opts.Ranker == nil {
		return nil, errors.New("pipeline: ranker is required")
	}
	if opts.Generator == nil {
		return nil, errors.New("pipeline: generator is required")
	}
	if opts.History == nil {
		return nil, errors.New("pipeline: history store is required")
	}
	ov := opts.Overlay
	if ov == nil {
		ov = overlay.NewPassThrough()
	}
	return &Pipeline{
		enhancer:  opts.Enhancer,
		ranker:    opts.Ranker,
		generator: opts.Generator,
		evaluator: opts.Evaluator,
		overlay:   ov,
		store:     opts.History,
		logger:    opts.Logger.With().Str("component", "pipeline").Logger(),
	}, nil
}

// Run executes the full workflow. Enhancement and ranking failures propagate;
// refinement failures terminate the loop early with the best-so-far result
// instead of aborting the request.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Response, error) {
	raw := strings.TrimSpace(req.RawPrompt)
	if raw == "" {
		return nil, domain.ErrInvalidPrompt
	}
	cfg := req.Config
	if cfg.VariantCount < 1 {
		cfg.VariantCount = 3
	}
	if cfg.ImageCount < 1 {
		cfg.ImageCount = 2
	}

	variants, err := p.enhance(ctx, raw, cfg.VariantCount)
	if err != nil {
		return nil, err
	}

	verdict, err := p.ranker.Rank(ctx, raw, variants)
	if err != nil {
		return nil, err
	}
	if verdict.WinnerIndex < 0 || verdict.WinnerIndex >= len(variants) {
		return nil, fmt.Errorf("rank: winner index %d out of range", verdict.WinnerIndex)
	}
	winning := variants[verdict.WinnerIndex]
	p.logger.Info().Int("winner_index", winning.Index).Str("source", verdict.Source).
		Msg("pipeline: variant selected")

	genReq := image.GenerateRequest{
		Prompt:          winning.Text,
		AspectRatio:     req.AspectRatio,
		Count:           cfg.ImageCount,
		ReferenceImages: req.References,
		RequestID:       uuid.NewString(),
	}
	result, err := p.generator.Generate(ctx, genReq)
	if err != nil {
		return nil, err
	}
	if len(result.Failures) > 0 {
		p.logger.Warn().Int("failed", len(result.Failures)).Int("rendered", len(result.Images)).
			Msg("pipeline: partial generation result")
	}
	images := result.Images

	var refinement *domain.RefinementState
	if cfg.EvalEnabled && p.evaluator != nil {
		refinement = p.refineBest(ctx, raw, images, genReq, cfg)
		if refinement != nil {
			images = []domain.GeneratedImage{refinement.Best}
		}
	}

	overlaid, err := p.overlay.Apply(ctx, images)
	if err != nil {
		p.logger.Warn().Err(err).Msg("pipeline: overlay failed, keeping raw images")
	} else {
		images = overlaid
	}

	record := buildRecord(raw, req.AspectRatio, images)
	if err := p.store.Append(ctx, record); err != nil {
		p.logger.Error().Err(err).Str("record_id", record.ID).
			Msg("pipeline: history append failed")
	}

	return &Response{
		Prompt:     winning.Text,
		Variants:   variants,
		Verdict:    verdict,
		Images:     images,
		Refinement: refinement,
		RecordID:   record.ID,
	}, nil
}

// EnhanceAndRank runs only the variant generation and ranking stages, for
// callers that want a best prompt without rendering anything.
func (p *Pipeline) EnhanceAndRank(ctx context.Context, rawPrompt string, variantCount int) ([]domain.PromptVariant, domain.RankingVerdict, error) {
	raw := strings.TrimSpace(rawPrompt)
	if raw == "" {
		return nil, domain.RankingVerdict{}, domain.ErrInvalidPrompt
	}
	if variantCount < 1 {
		variantCount = 3
	}
	variants, err := p.enhance(ctx, raw, variantCount)
	if err != nil {
		return nil, domain.RankingVerdict{}, err
	}
	verdict, err := p.ranker.Rank(ctx, raw, variants)
	if err != nil {
		return nil, domain.RankingVerdict{}, err
	}
	return variants, verdict, nil
}

// enhance asks for the variant batch, retrying once with a stricter
// instruction after a malformed response, then falling back to the raw prompt
// as the sole variant.
func (p *Pipeline) enhance(ctx context.Context, raw string, count int) ([]domain.PromptVariant, error) {
	variants, err := p.enhancer.EnhanceVariants(ctx, prompt.EnhanceRequest{RawPrompt: raw, VariantCount: count})
	if err == nil {
		return variants, nil
	}
	var malformed *domain.MalformedEnhancementError
	if !errors.As(err, &malformed) {
		return nil, err
	}
	p.logger.Warn().Err(err).Msg("pipeline: malformed enhancement, retrying strict")
	variants, err = p.enhancer.EnhanceVariants(ctx, prompt.EnhanceRequest{RawPrompt: raw, VariantCount: count, Strict: true})
	if err == nil {
		return variants, nil
	}
	if !errors.As(err, &malformed) {
		return nil, err
	}
	p.logger.Warn().Err(err).Msg("pipeline: strict retry failed, using raw prompt as sole variant")
	return []domain.PromptVariant{{Text: raw, Index: 0}}, nil
}

// refineBest evaluates the initial batch, seeds the loop with the
// best-scoring image, and runs the refinement controller. A failure to score
// any initial image disables refinement for this run; the unevaluated images
// are still returned to the caller.
func (p *Pipeline) refineBest(ctx context.Context, originalPrompt string, images []domain.GeneratedImage, genReq image.GenerateRequest, cfg Config) *domain.RefinementState {
	bestIdx := -1
	var bestVerdict domain.EvaluationVerdict
	for i, img := range images {
		v, err := p.evaluator.Evaluate(ctx, img, originalPrompt, cfg.TargetScore)
		if err != nil {
			p.logger.Warn().Err(err).Int("index", i).Msg("pipeline: initial evaluation failed")
			continue
		}
		if bestIdx == -1 || v.Score > bestVerdict.Score {
			bestIdx = i
			bestVerdict = v
		}
	}
	if bestIdx == -1 {
		p.logger.Warn().Msg("pipeline: no initial image could be evaluated, skipping refinement")
		return nil
	}

	controller := refine.New(p.generator, p.evaluator, refine.Options{
		TargetScore:       cfg.TargetScore,
		MaxIterations:     cfg.MaxIterations,
		NoImprovementStop: cfg.NoImprovementStop,
	}, p.logger)
	return controller.Run(ctx, originalPrompt, images[bestIdx], bestVerdict, genReq)
}

func buildRecord(prompt string, aspect domain.AspectRatio, images []domain.GeneratedImage) domain.HistoryRecord {
	record := domain.HistoryRecord{
		ID:          uuid.NewString(),
		Prompt:      prompt,
		AspectRatio: string(aspect),
		CreatedAt:   time.Now().UTC(),
	}
	for _, img := range images {
		record.Images = append(record.Images, domain.HistoryImage{
			ID:     uuid.NewString(),
			Width:  img.Width,
			Height: img.Height,
			Data:   img.Bytes,
		})
	}
	return record
}
