package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
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

// GeminiClient renders images through the general multimodal model's image
// capability. This is the secondary backend and the one the refinement loop
// leans on for edit-by-reference, since reference images travel as inline
// parts of the same generateContent call.
type GeminiClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

const geminiImageDefaultTimeout = 120 * time.Second

type geminiGenerateRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiGenConfig struct {
	CandidateCount     int      `json:"candidateCount,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func NewGeminiClient(opts GeminiOptions) (*GeminiClient, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-2.5-flash-image"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: geminiImageDefaultTimeout}
	}
	return &GeminiClient{
		apiKey:  strings.TrimSpace(opts.APIKey),
		model:   model,
		baseURL: baseURL,
		client:  client,
	}, nil
}

func (c *GeminiClient) Backend() Backend {
	return BackendGemini
}

func (c *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (*Result, error) {
	count := req.Count
	if count < 1 {
		count = 1
	}
	parts := []geminiPart{{Text: buildGeminiImagePrompt(req)}}
	for _, ref := range req.ReferenceImages {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: sniffMime(ref),
			Data:     base64.StdEncoding.EncodeToString(ref),
		}})
	}
	payload := geminiGenerateRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenConfig{
			CandidateCount:     1,
			ResponseModalities: []string{"IMAGE"},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &domain.GenerationBackendError{Backend: string(BackendGemini), Err: fmt.Errorf("marshal request: %w", err)}
	}

	var out geminiGenerateResponse
	if err := c.invoke(ctx, body, &out); err != nil {
		return nil, err
	}

	result := &Result{}
	index := 0
	for _, cand := range out.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			if len(result.Images) >= count {
				break
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil || len(data) == 0 {
				if err == nil {
					err = errors.New("empty inline payload")
				}
				result.Failures = append(result.Failures, ItemFailure{Index: index, Err: err})
				index++
				continue
			}
			w, h := decodeDimensions(data)
			if w == 0 || h == 0 {
				w, h = fallbackDimensions(req.AspectRatio)
			}
			result.Images = append(result.Images, domain.GeneratedImage{
				Bytes:        data,
				Width:        w,
				Height:       h,
				SourcePrompt: req.Prompt,
			})
			index++
		}
	}
	if len(result.Images) == 0 {
		return nil, &domain.GenerationBackendError{Backend: string(BackendGemini), Err: errors.New("no image content returned")}
	}
	return result, nil
}

func (c *GeminiClient) invoke(ctx context.Context, body []byte, out any) error {
	attempt := func() (int, []byte, error) {
		endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return 0, nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", c.apiKey)
		resp, err := c.client.Do(httpReq)
		if err != nil {
			return 0, nil, err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, nil, err
		}
		return resp.StatusCode, data, nil
	}

	status, data, err := attempt()
	if (err != nil && isTransportTransient(err)) || (err == nil && isTransientStatus(status)) {
		select {
		case <-ctx.Done():
			return &domain.GenerationBackendError{Backend: string(BackendGemini), Err: ctx.Err()}
		case <-time.After(time.Second):
		}
		status, data, err = attempt()
	}
	if err != nil {
		return &domain.GenerationBackendError{Backend: string(BackendGemini), Err: err}
	}
	if status >= 300 {
		return &domain.GenerationBackendError{Backend: string(BackendGemini), StatusCode: status, Detail: string(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &domain.GenerationBackendError{Backend: string(BackendGemini), Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func buildGeminiImagePrompt(req GenerateRequest) string {
	sb := &strings.Builder{}
	sb.WriteString(strings.TrimSpace(req.Prompt))
	if ratio := ratioString(req.AspectRatio); ratio != "" {
		fmt.Fprintf(sb, "\nAspect ratio: %s", ratio)
	}
	if len(req.ReferenceImages) > 0 {
		sb.WriteString("\nUse the attached image as the base and apply the requested changes to it.")
	}
	return sb.String()
}

func sniffMime(data []byte) string {
	if len(data) >= 8 && bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")) {
		return "image/png"
	}
	if len(data) >= 3 && bytes.HasPrefix(data, []byte("\xff\xd8\xff")) {
		return "image/jpeg"
	}
	return "image/png"
}

var _ Generator = (*GeminiClient)(nil)
