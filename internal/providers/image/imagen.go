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

type ImagenOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// ImagenClient renders images through the dedicated Imagen predict endpoint.
// This is the primary backend.
type ImagenClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

const imagenDefaultTimeout = 120 * time.Second

type imagenPredictRequest struct {
	Instances  []imagenInstance `json:"instances"`
	Parameters imagenParameters `json:"parameters"`
}

type imagenInstance struct {
	Prompt          string           `json:"prompt"`
	ReferenceImages []imagenRefImage `json:"referenceImages,omitempty"`
}

type imagenRefImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
}

type imagenParameters struct {
	SampleCount      int    `json:"sampleCount"`
	AspectRatio      string `json:"aspectRatio,omitempty"`
	OutputMimeType   string `json:"outputMimeType,omitempty"`
	PersonGeneration string `json:"personGeneration,omitempty"`
}

type imagenPredictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MimeType           string `json:"mimeType"`
	} `json:"predictions"`
}

func NewImagenClient(opts ImagenOptions) (*ImagenClient, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("imagen api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "imagen-4.0-generate-preview-06-06"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: imagenDefaultTimeout}
	}
	return &ImagenClient{
		apiKey:  strings.TrimSpace(opts.APIKey),
		model:   model,
		baseURL: baseURL,
		client:  client,
	}, nil
}

func (c *ImagenClient) Backend() Backend {
	return BackendImagen
}

func (c *ImagenClient) Generate(ctx context.Context, req GenerateRequest) (*Result, error) {
	count := req.Count
	if count < 1 {
		count = 1
	}
	instance := imagenInstance{Prompt: strings.TrimSpace(req.Prompt)}
	for _, ref := range req.ReferenceImages {
		instance.ReferenceImages = append(instance.ReferenceImages, imagenRefImage{
			BytesBase64Encoded: base64.StdEncoding.EncodeToString(ref),
		})
	}
	payload := imagenPredictRequest{
		Instances: []imagenInstance{instance},
		Parameters: imagenParameters{
			SampleCount:      count,
			AspectRatio:      ratioString(req.AspectRatio),
			OutputMimeType:   "image/jpeg",
			PersonGeneration: "ALLOW_ADULT",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &domain.GenerationBackendError{Backend: string(BackendImagen), Err: fmt.Errorf("marshal request: %w", err)}
	}

	var out imagenPredictResponse
	if err := c.invoke(ctx, body, &out); err != nil {
		return nil, err
	}
	if len(out.Predictions) == 0 {
		return nil, &domain.GenerationBackendError{Backend: string(BackendImagen), Err: errors.New("no predictions returned")}
	}

	result := &Result{}
	for i, pred := range out.Predictions {
		data, err := base64.StdEncoding.DecodeString(pred.BytesBase64Encoded)
		if err != nil || len(data) == 0 {
			if err == nil {
				err = errors.New("empty prediction payload")
			}
			result.Failures = append(result.Failures, ItemFailure{Index: i, Err: err})
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
	}
	if len(result.Images) == 0 {
		return nil, &domain.GenerationBackendError{Backend: string(BackendImagen), Err: errors.New("all predictions failed to decode")}
	}
	return result, nil
}

func (c *ImagenClient) invoke(ctx context.Context, body []byte, out any) error {
	attempt := func() (int, []byte, error) {
		endpoint := fmt.Sprintf("%s/models/%s:predict", c.baseURL, url.PathEscape(c.model))
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
	// One retry with backoff on transport failures and 5xx. Auth and quota
	// statuses surface immediately.
	if (err != nil && isTransportTransient(err)) || (err == nil && isTransientStatus(status)) {
		select {
		case <-ctx.Done():
			return &domain.GenerationBackendError{Backend: string(BackendImagen), Err: ctx.Err()}
		case <-time.After(time.Second):
		}
		status, data, err = attempt()
	}
	if err != nil {
		return &domain.GenerationBackendError{Backend: string(BackendImagen), Err: err}
	}
	if status >= 300 {
		return &domain.GenerationBackendError{Backend: string(BackendImagen), StatusCode: status, Detail: string(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &domain.GenerationBackendError{Backend: string(BackendImagen), Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

var _ Generator = (*ImagenClient)(nil)
