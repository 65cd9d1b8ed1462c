package eval

import (
	"bytes"
	"context"
	"encoding/base64"
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
}

// OpenAIEvaluator sends the rendered image plus the original intent to a
// multimodal scoring backend and receives a numeric score with, when below
// target, a single actionable edit instruction.
type OpenAIEvaluator struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

const (
	openAIDefaultTimeout = 60 * time.Second
	openAIBackendName    = "openai"
)

const evalSystemPrompt = "You are a senior visual evaluator analyzing a poster image for alignment with the user's intent. " +
	"Judge composition, fidelity to the prompt, and legibility of any text or logo areas. " +
	`Respond with ONLY valid JSON: {"score":number,"rationale":string,"edit_instructions":string}. ` +
	"Score range 0.0-10.0, one decimal. edit_instructions must be a single concrete, actionable change " +
	"(e.g. \"increase contrast of the foreground subject\"), or an empty string if nothing needs changing. " +
	"No markdown, no extra text."

type openAIChatRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *openAIFormat   `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string              `json:"role"`
	Content []openAIContentPart `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
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

type evalPayload struct {
	Score            *float64 `json:"score"`
	Rationale        string   `json:"rationale"`
	EditInstructions string   `json:"edit_instructions"`
}

func NewOpenAIEvaluator(opts OpenAIOptions) (*OpenAIEvaluator, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
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
	return &OpenAIEvaluator{
		apiKey:  strings.TrimSpace(opts.APIKey),
		model:   model,
		baseURL: baseURL,
		client:  client,
	}, nil
}

func (o *OpenAIEvaluator) Evaluate(ctx context.Context, img domain.GeneratedImage, originalPrompt string, targetScore float64) (domain.EvaluationVerdict, error) {
	payload := openAIChatRequest{
		Model:       o.model,
		Temperature: 0.2,
		ResponseFormat: &openAIFormat{
			Type: "json_object",
		},
		Messages: []openAIMessage{
			{
				Role:    "system",
				Content: []openAIContentPart{{Type: "text", Text: evalSystemPrompt}},
			},
			{
				Role: "user",
				Content: []openAIContentPart{
					{Type: "text", Text: fmt.Sprintf("User prompt (goal):\n%s\n\nEvaluate the image below against this goal.", originalPrompt)},
					{Type: "image_url", ImageURL: &openAIImageURL{URL: toDataURL(img.Bytes)}},
				},
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return domain.EvaluationVerdict{}, fmt.Errorf("evaluate: encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/chat/completions", o.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return domain.EvaluationVerdict{}, fmt.Errorf("evaluate: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return domain.EvaluationVerdict{}, fmt.Errorf("evaluate: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return domain.EvaluationVerdict{}, fmt.Errorf("evaluate: openai status %d", resp.StatusCode)
	}
	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.EvaluationVerdict{}, &domain.MalformedEvaluationError{Backend: openAIBackendName, Err: err}
	}
	if len(out.Choices) == 0 {
		return domain.EvaluationVerdict{}, &domain.MalformedEvaluationError{Backend: openAIBackendName, Err: errors.New("no choices")}
	}
	raw := strings.TrimSpace(out.Choices[0].Message.Content)
	var parsed evalPayload
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return domain.EvaluationVerdict{}, &domain.MalformedEvaluationError{Backend: openAIBackendName, Raw: raw, Err: err}
	}
	if parsed.Score == nil {
		return domain.EvaluationVerdict{}, &domain.MalformedEvaluationError{Backend: openAIBackendName, Raw: raw, Err: errors.New("missing score")}
	}
	score := clampScore(*parsed.Score)
	verdict := domain.EvaluationVerdict{
		Score:       score,
		MeetsTarget: score >= targetScore,
		Rationale:   parsed.Rationale,
	}
	if !verdict.MeetsTarget {
		instr := strings.TrimSpace(parsed.EditInstructions)
		if instr == "" {
			instr = "improve the overall composition and visual quality"
		}
		verdict.EditInstruction = instr
	}
	return verdict, nil
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 10 {
		return 10
	}
	return s
}

func toDataURL(data []byte) string {
	mime := "image/png"
	if len(data) >= 3 && bytes.HasPrefix(data, []byte("\xff\xd8\xff")) {
		mime = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
}

var _ Evaluator = (*OpenAIEvaluator)(nil)
