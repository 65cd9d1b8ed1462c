package refine

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"postergen/internal/domain"
	"postergen/internal/providers/eval"
	"postergen/internal/providers/image"
)

// Options configures one refinement loop invocation. Values are read once at
// loop start and treated as immutable for the run.
type Options struct {
	TargetScore       float64
	MaxIterations     int
	NoImprovementStop bool
}

// Controller drives repeated generate, evaluate and edit cycles until the
// target score, the iteration cap, or a no-improvement condition is reached.
type Controller struct {
	generator image.Generator
	evaluator eval.Evaluator
	opts      Options
	logger    zerolog.Logger
}

func New(generator image.Generator, evaluator eval.Evaluator, opts Options, logger zerolog.Logger) *Controller {
	return &Controller{
		generator: generator,
		evaluator: evaluator,
		opts:      opts,
		logger:    logger.With().Str("component", "refine").Logger(),
	}
}

type loopState int

const (
	stateEvaluating loopState = iota
	stateEditing
	stateGenerating
	stateDone
)

// Run executes the loop starting from the best initial image and its
// evaluation. It always returns a terminal state holding the best image seen:
// backend failures mid-loop terminate the loop with the last known-good best
// and the failure recorded, never an error. The three stop predicates are
// checked in fixed priority order: target score, iteration budget,
// no-improvement.
func (c *Controller) Run(ctx context.Context, originalPrompt string, initial domain.GeneratedImage, initialVerdict domain.EvaluationVerdict, req image.GenerateRequest) *domain.RefinementState {
	st := &domain.RefinementState{
		Best:      initial,
		BestScore: initialVerdict.Score,
		History: []domain.RefinementStep{
			{Image: initial, Score: initialVerdict.Score, Iteration: 0},
		},
	}

	verdict := initialVerdict
	improved := true
	editInstruction := ""
	var candidate domain.GeneratedImage

	state := stateEvaluating
	for state != stateDone {
		switch state {
		case stateEvaluating:
			switch {
			case verdict.Score >= c.opts.TargetScore:
				st.StopReason = domain.StopTargetReached
				state = stateDone
			case st.Iteration >= c.opts.MaxIterations:
				st.StopReason = domain.StopBudgetExceeded
				state = stateDone
			case c.opts.NoImprovementStop && st.Iteration > 0 && !improved:
				st.StopReason = domain.StopNoImprovement
				state = stateDone
			default:
				state = stateEditing
			}

		case stateEditing:
			// Cancellation is honored cooperatively between iterations only;
			// a running iteration always completes.
			if err := ctx.Err(); err != nil {
				st.StopReason = domain.StopCancelled
				st.Failure = err
				state = stateDone
				break
			}
			editInstruction = verdict.EditInstruction
			if editInstruction == "" {
				editInstruction = "improve the overall composition and visual quality"
			}
			st.Iteration++
			state = stateGenerating

		case stateGenerating:
			editReq := image.GenerateRequest{
				Prompt:          BuildEditPrompt(req.Prompt, editInstruction),
				AspectRatio:     req.AspectRatio,
				Count:           1,
				ReferenceImages: [][]byte{st.Best.Bytes},
				RequestID:       req.RequestID,
			}
			res, err := c.generator.Generate(ctx, editReq)
			if err == nil && len(res.Images) == 0 {
				err = &domain.GenerationBackendError{
					Backend: string(c.generator.Backend()),
					Err:     errors.New("edit produced no images"),
				}
			}
			if err != nil {
				c.logger.Warn().Err(err).Int("iteration", st.Iteration).
					Msg("refine: generation failed, returning best so far")
				st.StopReason = domain.StopBackendFailure
				st.Failure = err
				state = stateDone
				break
			}
			candidate = res.Images[0]

			v, evalErr := c.evaluator.Evaluate(ctx, candidate, originalPrompt, c.opts.TargetScore)
			if evalErr != nil {
				// An unscorable image counts as a non-improving step.
				c.logger.Warn().Err(evalErr).Int("iteration", st.Iteration).
					Msg("refine: evaluation failed, treating as non-improving")
				st.History = append(st.History, domain.RefinementStep{Image: candidate, Score: -1, Iteration: st.Iteration})
				improved = false
				verdict = domain.EvaluationVerdict{Score: -1, EditInstruction: editInstruction}
				state = stateEvaluating
				break
			}

			st.History = append(st.History, domain.RefinementStep{Image: candidate, Score: v.Score, Iteration: st.Iteration})
			if v.Score > st.BestScore {
				st.Best = candidate
				st.BestScore = v.Score
				improved = true
			} else {
				improved = false
			}
			c.logger.Debug().Int("iteration", st.Iteration).
				Float64("score", v.Score).Float64("best_score", st.BestScore).
				Msg("refine: iteration evaluated")
			verdict = v
			state = stateEvaluating
		}
	}

	c.logger.Info().Str("stop_reason", string(st.StopReason)).
		Int("iterations", st.Iteration).Float64("best_score", st.BestScore).
		Msg("refine: loop finished")
	return st
}

// BuildEditPrompt merges the prompt that produced the reference image with
// the evaluator's edit instruction so the backend edits rather than
// recomposes.
func BuildEditPrompt(sourcePrompt, instruction string) string {
	var b strings.Builder
	b.WriteString("This image was generated from the following prompt:\n\n")
	b.WriteString(strings.TrimSpace(sourcePrompt))
	b.WriteString("\n\nApply the following edit to the attached image. Keep everything else unchanged:\n\n")
	b.WriteString(strings.TrimSpace(instruction))
	return b.String()
}
