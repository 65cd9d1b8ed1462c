package eval

import (
	"context"
	"encoding/json"
	"errors"
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

func chatResponse(t *testing.T, content string) *http.Response {
	t.Helper()
	body := openAIChatResponse{}
	body.Choices = append(body.Choices, struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}{})
	body.Choices[0].Message.Content = content
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(string(data))),
	}
}

func newEvaluator(t *testing.T, rt roundTripFunc) *OpenAIEvaluator {
	t.Helper()
	ev, err := NewOpenAIEvaluator(OpenAIOptions{
		APIKey:     "dummy",
		HTTPClient: &http.Client{Transport: rt},
	})
	if err != nil {
		t.Fatalf("NewOpenAIEvaluator returned error: %v", err)
	}
	return ev
}

func TestEvaluateMeetsTarget(t *testing.T) {
	ev := newEvaluator(t, func(r *http.Request) (*http.Response, error) {
		return chatResponse(t, `{"score":9.2,"rationale":"strong composition","edit_instructions":""}`), nil
	})
	verdict, err := ev.Evaluate(context.Background(), domain.GeneratedImage{Bytes: []byte{0xff, 0xd8, 0xff}}, "a poster", 8.5)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if verdict.Score != 9.2 {
		t.Fatalf("Score = %v, want 9.2", verdict.Score)
	}
	if !verdict.MeetsTarget {
		t.Fatal("expected MeetsTarget")
	}
	if verdict.EditInstruction != "" {
		t.Fatalf("EditInstruction = %q, want empty", verdict.EditInstruction)
	}
}

func TestEvaluateBelowTargetCarriesEditInstruction(t *testing.T) {
	ev := newEvaluator(t, func(r *http.Request) (*http.Response, error) {
		return chatResponse(t, `{"score":6.0,"rationale":"flat","edit_instructions":"increase contrast of the title area"}`), nil
	})
	verdict, err := ev.Evaluate(context.Background(), domain.GeneratedImage{Bytes: []byte{1}}, "a poster", 8.5)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if verdict.MeetsTarget {
		t.Fatal("expected MeetsTarget to be false")
	}
	if verdict.EditInstruction != "increase contrast of the title area" {
		t.Fatalf("EditInstruction = %q", verdict.EditInstruction)
	}
}

func TestEvaluateBelowTargetDefaultsInstruction(t *testing.T) {
	ev := newEvaluator(t, func(r *http.Request) (*http.Response, error) {
		return chatResponse(t, `{"score":4.0,"rationale":"weak","edit_instructions":""}`), nil
	})
	verdict, err := ev.Evaluate(context.Background(), domain.GeneratedImage{Bytes: []byte{1}}, "a poster", 8.5)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if verdict.EditInstruction == "" {
		t.Fatal("expected a default edit instruction below target")
	}
}

func TestEvaluateClampsScore(t *testing.T) {
	ev := newEvaluator(t, func(r *http.Request) (*http.Response, error) {
		return chatResponse(t, `{"score":14.0,"rationale":"overflow","edit_instructions":""}`), nil
	})
	verdict, err := ev.Evaluate(context.Background(), domain.GeneratedImage{Bytes: []byte{1}}, "a poster", 8.5)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if verdict.Score != 10 {
		t.Fatalf("Score = %v, want 10", verdict.Score)
	}
}

func TestEvaluateMissingScoreIsMalformed(t *testing.T) {
	ev := newEvaluator(t, func(r *http.Request) (*http.Response, error) {
		return chatResponse(t, `{"rationale":"no score here"}`), nil
	})
	_, err := ev.Evaluate(context.Background(), domain.GeneratedImage{Bytes: []byte{1}}, "a poster", 8.5)
	var malformed *domain.MalformedEvaluationError
	if !errors.As(err, &malformed) {
		t.Fatalf("err = %v, want MalformedEvaluationError", err)
	}
	if malformed.Raw == "" {
		t.Fatal("expected raw payload to be captured")
	}
}

func TestEvaluateBackendStatusError(t *testing.T) {
	ev := newEvaluator(t, func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusTooManyRequests,
			Header:     make(http.Header),
			Body:       io.NopCloser(strings.NewReader("quota")),
		}, nil
	})
	if _, err := ev.Evaluate(context.Background(), domain.GeneratedImage{Bytes: []byte{1}}, "a poster", 8.5); err == nil {
		t.Fatal("expected error for quota status")
	}
}

func TestToDataURLSniffsJPEG(t *testing.T) {
	url := toDataURL([]byte{0xff, 0xd8, 0xff, 0xe0})
	if !strings.HasPrefix(url, "data:image/jpeg;base64,") {
		t.Fatalf("url = %q, want jpeg data url", url)
	}
}
