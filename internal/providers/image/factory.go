package image

import (
	"fmt"
	"strings"
)

// ForBackend selects the configured backend. Both are constructed at startup;
// the selector decides which one serves a given run.
func ForBackend(selector string, imagen *ImagenClient, gemini *GeminiClient) (Generator, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(selector))) {
	case BackendImagen, "":
		if imagen == nil {
			return nil, fmt.Errorf("imagen backend is not configured")
		}
		return imagen, nil
	case BackendGemini:
		if gemini == nil {
			return nil, fmt.Errorf("gemini backend is not configured")
		}
		return gemini, nil
	default:
		return nil, fmt.Errorf("unknown image backend %q", selector)
	}
}
