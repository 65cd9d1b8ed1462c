package rank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"postergen/internal/domain"
)

type OpenAIOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Fallback   Ranker
	OnFallback func(reason string, err error)
}

// OpenAIRanker scores all variants in one rubric-based chat-completions call
// so scores are comparably calibrated. When the backend is unconfigured or
// the call fails it applies the deterministic heuristic fallback, which keeps
// the pipeline fully functional without the optional backend.
type OpenAIRanker struct {
	apiKey     string
	model      string
	baseURL    string
	client     *http.Client
	fallback   Ranker
	onFallback func(reason string, err error)
}

const openAIDefaultTimeout = 30 * time.Second

const rankSystemPrompt = "You are a senior prompt engineer and creative director evaluating candidate prompts " +
	"for a poster image generation model. Score each candidate from 0.0 to 10.0 on visual specificity, " +
	"brand safety (no rendered text, logos, brands or QR codes) and likely aesthetic quality. " +
	`Respond with ONLY valid JSON: {"scores":[{"index":int,"score":number,"rationale":string}],"best_index":int}. ` +
	"No markdown, no extra prose."

type openAIChatRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *openAIFormat   `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type rankPayload struct {
	Scores []struct {
		Index     int     `json:"index"`
		Score     float64 `json:"score"`
		Rationale string  `json:"rationale"`
	} `json:"scores"`
	BestIndex int `json:"best_index"`
}

func NewOpenAIRanker(opts OpenAIOptions) *OpenAIRanker {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIDefaultTimeout}
	}
	fallback := opts.Fallback
	if fallback == nil {
		fallback = NewHeuristicRanker()
	}
	return &OpenAIRanker{
		apiKey:     strings.TrimSpace(opts.APIKey),
		model:      model,
		baseURL:    baseURL,
		client:     client,
		fallback:   fallback,
		onFallback: opts.OnFallback,
	}
}

func (o *OpenAIRanker) Rank(ctx context.Context, original string, variants []domain.PromptVariant) (domain.RankingVerdict, error) {
	if len(variants) == 0 {
		return domain.RankingVerdict{}, &domain.InvalidBatchError{Reason: "no variants"}
	}
	if o.apiKey == "" {
		return o.useFallback(ctx, original, variants, "missing_api_key", nil)
	}
	texts := make([]string, len(variants))
	for i, v := range variants {
		texts[i] = v.Text
	}
	candidates, err := json.Marshal(texts)
	if err != nil {
		return o.useFallback(ctx, original, variants, "encode_candidates", err)
	}
	payload := openAIChatRequest{
		Model:       o.model,
		Temperature: 0.2,
		ResponseFormat: &openAIFormat{
			Type: "json_object",
		},
		Messages: []openAIMessage{
			{Role: "system", Content: rankSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("User prompt (goal):\n%s\n\nCandidate prompts (JSON array, score each by array index):\n%s", original, candidates)},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return o.useFallback(ctx, original, variants, "encode_request", err)
	}
	endpoint := fmt.Sprintf("%s/chat/completions", o.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return o.useFallback(ctx, original, variants, "build_request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return o.useFallback(ctx, original, variants, "http_request", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return o.useFallback(ctx, original, variants, fmt.Sprintf("http_%d", resp.StatusCode), fmt.Errorf("openai status %d", resp.StatusCode))
	}
	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return o.useFallback(ctx, original, variants, "decode_response", err)
	}
	if len(out.Choices) == 0 {
		return o.useFallback(ctx, original, variants, "empty_choices", errors.New("no choices"))
	}
	verdict, err := parseRankVerdict(out.Choices[0].Message.Content, len(variants))
	if err != nil {
		return o.useFallback(ctx, original, variants, "parse_payload", err)
	}
	return verdict, nil
}

func parseRankVerdict(raw string, batchSize int) (domain.RankingVerdict, error) {
	var parsed rankPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err != nil {
		return domain.RankingVerdict{}, err
	}
	if len(parsed.Scores) != batchSize {
		return domain.RankingVerdict{}, fmt.Errorf("expected %d scores, got %d", batchSize, len(parsed.Scores))
	}
	scores := make([]float64, batchSize)
	rationales := make([]string, 0, batchSize)
	for _, s := range parsed.Scores {
		if s.Index < 0 || s.Index >= batchSize {
			return domain.RankingVerdict{}, fmt.Errorf("score index %d out of range", s.Index)
		}
		scores[s.Index] = s.Score
		if s.Rationale != "" {
			rationales = append(rationales, s.Rationale)
		}
	}
	// Winner is the maximum score with ties broken by earliest index. The
	// backend's best_index is advisory only; the parsed scores decide.
	winner := 0
	for i, s := range scores {
		if s > scores[winner] {
			winner = i
		}
	}
	return domain.RankingVerdict{
		WinnerIndex: winner,
		Scores:      scores,
		Rationale:   strings.Join(rationales, " "),
		Source:      openAISourceName,
	}, nil
}

func (o *OpenAIRanker) useFallback(ctx context.Context, original string, variants []domain.PromptVariant, reason string, err error) (domain.RankingVerdict, error) {
	if o.onFallback != nil {
		o.onFallback(reason, err)
	}
	return o.fallback.Rank(ctx, original, variants)
}

var _ Ranker = (*OpenAIRanker)(nil)
