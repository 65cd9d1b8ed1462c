package image

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"postergen/internal/domain"
)

// Backend identifies one of the two capability-equivalent image backends.
type Backend string

const (
	BackendImagen Backend = "imagen"
	BackendGemini Backend = "gemini"
)

// GenerateRequest is the normalized request passed to any image backend.
// ReferenceImages plus an edit instruction embedded in the prompt request an
// edited variant instead of a fresh composition.
type GenerateRequest struct {
	Prompt          string
	AspectRatio     domain.AspectRatio
	Count           int
	ReferenceImages [][]byte
	RequestID       string
}

// ItemFailure reports one failed image inside an otherwise successful batch
// call.
type ItemFailure struct {
	Index int
	Err   error
}

// Result carries the rendered images and any per-item failures. A batch with
// some rendered and some failed items is surfaced here as a partial result,
// not as an all-or-nothing error.
type Result struct {
	Images   []domain.GeneratedImage
	Failures []ItemFailure
}

// Generator is the contract implemented by all image backends.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Result, error)
	Backend() Backend
}

// ratioString maps the named aspect presets onto the ratio strings both
// backends accept. Unknown values pass through so raw "W:H" strings keep
// working.
func ratioString(a domain.AspectRatio) string {
	switch a {
	case domain.AspectSquare, "":
		return "1:1"
	case domain.AspectPortrait:
		return "3:4"
	case domain.AspectLandscape:
		return "4:3"
	case domain.AspectWidescreen:
		return "16:9"
	case domain.AspectTall:
		return "9:16"
	case domain.AspectPhoto:
		return "3:2"
	default:
		return string(a)
	}
}

// fallbackDimensions returns nominal pixel dimensions for an aspect preset,
// used when the returned bytes cannot be decoded.
func fallbackDimensions(a domain.AspectRatio) (int, int) {
	switch ratioString(a) {
	case "16:9":
		return 1920, 1080
	case "9:16":
		return 1080, 1920
	case "3:4":
		return 1024, 1365
	case "4:3":
		return 1365, 1024
	case "3:2":
		return 1536, 1024
	default:
		return 1024, 1024
	}
}

func decodeDimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func isTransientStatus(code int) bool {
	return code >= 500 || code == 408
}

func isTransportTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return true
	}
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") {
		return true
	}
	return strings.Contains(msg, "temporary")
}
