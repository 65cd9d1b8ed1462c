package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	stdimage "image"
	"image/png"
	"io"
	"net/http"
	"strings"
	"testing"

	"postergen/internal/domain"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, stdimage.NewRGBA(stdimage.Rect(0, 0, 1, 1))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func jsonResponse(t *testing.T, status int, v any) *http.Response {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(string(data))),
	}
}

func predictResponse(t *testing.T, payloads ...string) *http.Response {
	t.Helper()
	var body imagenPredictResponse
	for _, p := range payloads {
		body.Predictions = append(body.Predictions, struct {
			BytesBase64Encoded string `json:"bytesBase64Encoded"`
			MimeType           string `json:"mimeType"`
		}{BytesBase64Encoded: p, MimeType: "image/png"})
	}
	return jsonResponse(t, http.StatusOK, body)
}

func TestImagenGenerateBatch(t *testing.T) {
	img := pngBytes(t)
	encoded := base64.StdEncoding.EncodeToString(img)
	var captured imagenPredictRequest
	client, err := NewImagenClient(ImagenOptions{
		APIKey: "dummy",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
				t.Fatalf("decode request: %v", err)
			}
			return predictResponse(t, encoded, encoded), nil
		})},
	})
	if err != nil {
		t.Fatalf("NewImagenClient returned error: %v", err)
	}
	res, err := client.Generate(context.Background(), GenerateRequest{
		Prompt:      "a poster",
		AspectRatio: domain.AspectWidescreen,
		Count:       2,
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if len(res.Images) != 2 {
		t.Fatalf("len(Images) = %d, want 2", len(res.Images))
	}
	if res.Images[0].Width != 1 || res.Images[0].Height != 1 {
		t.Fatalf("dimensions = %dx%d, want 1x1", res.Images[0].Width, res.Images[0].Height)
	}
	if res.Images[0].SourcePrompt != "a poster" {
		t.Fatalf("SourcePrompt = %q, want %q", res.Images[0].SourcePrompt, "a poster")
	}
	if captured.Parameters.SampleCount != 2 {
		t.Fatalf("SampleCount = %d, want 2", captured.Parameters.SampleCount)
	}
	if captured.Parameters.AspectRatio != "16:9" {
		t.Fatalf("AspectRatio = %q, want %q", captured.Parameters.AspectRatio, "16:9")
	}
	if len(captured.Instances) != 1 || captured.Instances[0].Prompt != "a poster" {
		t.Fatalf("Instances = %+v, want single instance with prompt", captured.Instances)
	}
}

func TestImagenGeneratePartialFailure(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(pngBytes(t))
	client, err := NewImagenClient(ImagenOptions{
		APIKey: "dummy",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return predictResponse(t, encoded, "!!!not-base64!!!"), nil
		})},
	})
	if err != nil {
		t.Fatalf("NewImagenClient returned error: %v", err)
	}
	res, err := client.Generate(context.Background(), GenerateRequest{Prompt: "a poster", Count: 2})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if len(res.Images) != 1 {
		t.Fatalf("len(Images) = %d, want 1", len(res.Images))
	}
	if len(res.Failures) != 1 {
		t.Fatalf("len(Failures) = %d, want 1", len(res.Failures))
	}
	if res.Failures[0].Index != 1 {
		t.Fatalf("Failures[0].Index = %d, want 1", res.Failures[0].Index)
	}
}

func TestImagenGenerateAuthErrorNotRetried(t *testing.T) {
	calls := 0
	client, err := NewImagenClient(ImagenOptions{
		APIKey: "dummy",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			calls++
			return &http.Response{
				StatusCode: http.StatusUnauthorized,
				Header:     make(http.Header),
				Body:       io.NopCloser(strings.NewReader(`{"error":"bad key"}`)),
			}, nil
		})},
	})
	if err != nil {
		t.Fatalf("NewImagenClient returned error: %v", err)
	}
	_, err = client.Generate(context.Background(), GenerateRequest{Prompt: "a poster", Count: 1})
	var backend *domain.GenerationBackendError
	if !errors.As(err, &backend) {
		t.Fatalf("err = %v, want GenerationBackendError", err)
	}
	if backend.StatusCode != http.StatusUnauthorized {
		t.Fatalf("StatusCode = %d, want 401", backend.StatusCode)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestImagenGenerateRetriesServerError(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(pngBytes(t))
	calls := 0
	client, err := NewImagenClient(ImagenOptions{
		APIKey: "dummy",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return &http.Response{
					StatusCode: http.StatusServiceUnavailable,
					Header:     make(http.Header),
					Body:       io.NopCloser(strings.NewReader("overloaded")),
				}, nil
			}
			return predictResponse(t, encoded), nil
		})},
	})
	if err != nil {
		t.Fatalf("NewImagenClient returned error: %v", err)
	}
	res, err := client.Generate(context.Background(), GenerateRequest{Prompt: "a poster", Count: 1})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if len(res.Images) != 1 {
		t.Fatalf("len(Images) = %d, want 1", len(res.Images))
	}
}

func TestImagenGenerateEncodesReferenceImages(t *testing.T) {
	ref := []byte("reference-bytes")
	encoded := base64.StdEncoding.EncodeToString(pngBytes(t))
	var captured imagenPredictRequest
	client, err := NewImagenClient(ImagenOptions{
		APIKey: "dummy",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
				t.Fatalf("decode request: %v", err)
			}
			return predictResponse(t, encoded), nil
		})},
	})
	if err != nil {
		t.Fatalf("NewImagenClient returned error: %v", err)
	}
	if _, err := client.Generate(context.Background(), GenerateRequest{Prompt: "edit", Count: 1, ReferenceImages: [][]byte{ref}}); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if len(captured.Instances[0].ReferenceImages) != 1 {
		t.Fatalf("reference images = %d, want 1", len(captured.Instances[0].ReferenceImages))
	}
	want := base64.StdEncoding.EncodeToString(ref)
	if captured.Instances[0].ReferenceImages[0].BytesBase64Encoded != want {
		t.Fatal("reference image bytes not base64 encoded in request")
	}
}

func TestRatioString(t *testing.T) {
	cases := []struct {
		in   domain.AspectRatio
		want string
	}{
		{domain.AspectSquare, "1:1"},
		{domain.AspectPortrait, "3:4"},
		{domain.AspectLandscape, "4:3"},
		{domain.AspectWidescreen, "16:9"},
		{domain.AspectTall, "9:16"},
		{domain.AspectPhoto, "3:2"},
		{"", "1:1"},
		{"21:9", "21:9"},
	}
	for _, tc := range cases {
		if got := ratioString(tc.in); got != tc.want {
			t.Fatalf("ratioString(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
