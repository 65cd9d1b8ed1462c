package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"postergen/internal/domain"
)

type GeminiOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// GeminiEnhancer expands a raw prompt into N stylistically diverse candidate
// prompts with a single generateContent call.
type GeminiEnhancer struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

const (
	geminiDefaultTimeout = 30 * time.Second
	geminiBackendName    = "gemini"
)

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	CandidateCount   int     `json:"candidateCount,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func NewGeminiEnhancer(opts GeminiOptions) (*GeminiEnhancer, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-2.5-pro"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: geminiDefaultTimeout}
	}
	return &GeminiEnhancer{
		apiKey:  strings.TrimSpace(opts.APIKey),
		model:   model,
		baseURL: baseURL,
		client:  client,
	}, nil
}

func (g *GeminiEnhancer) EnhanceVariants(ctx context.Context, req EnhanceRequest) ([]domain.PromptVariant, error) {
	if req.VariantCount < 1 {
		return nil, fmt.Errorf("variant count must be >= 1, got %d", req.VariantCount)
	}
	payload := geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{{
				Text: buildVariantInstruction(req),
			}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      0.7,
			CandidateCount:   1,
			ResponseMimeType: "application/json",
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("enhance: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(), &buf)
	if err != nil {
		return nil, fmt.Errorf("enhance: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	body := buf.Bytes()
	resp, err := doWithRetry(g.client, httpReq, body)
	if err != nil {
		return nil, fmt.Errorf("enhance: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("enhance: gemini status %d", resp.StatusCode)
	}
	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &domain.MalformedEnhancementError{Backend: geminiBackendName, Err: err}
	}
	text := extractText(out)
	if text == "" {
		return nil, &domain.MalformedEnhancementError{Backend: geminiBackendName, Raw: text, Err: errors.New("empty response")}
	}
	variants, err := parseVariants(text, req.VariantCount)
	if err != nil {
		return nil, &domain.MalformedEnhancementError{Backend: geminiBackendName, Raw: text, Err: err}
	}
	return variants, nil
}

func (g *GeminiEnhancer) endpoint() string {
	return fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
}

func extractText(resp geminiResponse) string {
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if strings.TrimSpace(part.Text) != "" {
				return part.Text
			}
		}
	}
	return ""
}

func parseVariants(raw string, want int) ([]domain.PromptVariant, error) {
	fragment := extractJSONFragment(raw)
	if fragment == "" {
		return nil, errors.New("empty payload")
	}
	var texts []string
	if err := json.Unmarshal([]byte(fragment), &texts); err != nil {
		return nil, err
	}
	if len(texts) != want {
		return nil, fmt.Errorf("expected %d variants, got %d", want, len(texts))
	}
	variants := make([]domain.PromptVariant, 0, want)
	for i, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, fmt.Errorf("variant %d is empty", i)
		}
		variants = append(variants, domain.PromptVariant{Text: text, Index: i})
	}
	return variants, nil
}

func buildVariantInstruction(req EnhanceRequest) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "You are an expert prompt engineer for a poster image generation model. Rewrite the user's concept into %d distinct, stylistically diverse prompts. ", req.VariantCount)
	sb.WriteString("Each prompt must preserve the user's intent while adding concrete composition, layout, color palette and style detail useful for image generation. ")
	sb.WriteString("Do not request rendered text, logos, brands or QR codes. ")
	if req.Strict {
		fmt.Fprintf(sb, "Respond with ONLY a JSON array of exactly %d strings. No markdown, no code fences, no keys, no commentary. ", req.VariantCount)
	} else {
		fmt.Fprintf(sb, "Respond as a JSON array of %d strings. ", req.VariantCount)
	}
	fmt.Fprintf(sb, "User concept:\n%s", strings.TrimSpace(req.RawPrompt))
	return sb.String()
}

var _ Enhancer = (*GeminiEnhancer)(nil)
