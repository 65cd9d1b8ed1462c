package rank

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
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

func TestOpenAIRankerParsesBackendScores(t *testing.T) {
	ranker := NewOpenAIRanker(OpenAIOptions{
		APIKey: "dummy",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if got := r.Header.Get("Authorization"); got != "Bearer dummy" {
				t.Fatalf("Authorization = %q, want %q", got, "Bearer dummy")
			}
			return chatResponse(t, `{"scores":[{"index":0,"score":6.5,"rationale":"flat"},{"index":1,"score":8.9,"rationale":"rich"}],"best_index":1}`), nil
		})},
	})
	verdict, err := ranker.Rank(context.Background(), "goal", variantBatch("a", "b"))
	if err != nil {
		t.Fatalf("Rank returned error: %v", err)
	}
	if verdict.WinnerIndex != 1 {
		t.Fatalf("WinnerIndex = %d, want 1", verdict.WinnerIndex)
	}
	if verdict.Source != openAISourceName {
		t.Fatalf("Source = %q, want %q", verdict.Source, openAISourceName)
	}
	if verdict.Scores[0] != 6.5 || verdict.Scores[1] != 8.9 {
		t.Fatalf("Scores = %v, want [6.5 8.9]", verdict.Scores)
	}
}

func TestOpenAIRankerMissingKeyUsesHeuristic(t *testing.T) {
	var reason string
	ranker := NewOpenAIRanker(OpenAIOptions{
		OnFallback: func(r string, err error) { reason = r },
	})
	verdict, err := ranker.Rank(context.Background(), "goal", variantBatch("short", "a much longer and more descriptive poster variant with lighting detail"))
	if err != nil {
		t.Fatalf("Rank returned error: %v", err)
	}
	if verdict.Source != heuristicSourceName {
		t.Fatalf("Source = %q, want %q", verdict.Source, heuristicSourceName)
	}
	if reason != "missing_api_key" {
		t.Fatalf("fallback reason = %q, want %q", reason, "missing_api_key")
	}
}

func TestOpenAIRankerFallsBackOnTransportFailure(t *testing.T) {
	var reason string
	ranker := NewOpenAIRanker(OpenAIOptions{
		APIKey: "dummy",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return nil, errors.New("boom")
		})},
		OnFallback: func(r string, err error) { reason = r },
	})
	verdict, err := ranker.Rank(context.Background(), "goal", variantBatch("a", "b"))
	if err != nil {
		t.Fatalf("Rank returned error: %v", err)
	}
	if verdict.Source != heuristicSourceName {
		t.Fatalf("Source = %q, want %q", verdict.Source, heuristicSourceName)
	}
	if reason != "http_request" {
		t.Fatalf("fallback reason = %q, want %q", reason, "http_request")
	}
}

func TestOpenAIRankerFallsBackOnMalformedPayload(t *testing.T) {
	var reason string
	ranker := NewOpenAIRanker(OpenAIOptions{
		APIKey: "dummy",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return chatResponse(t, `{"scores":[{"index":0,"score":6.5}]}`), nil
		})},
		OnFallback: func(r string, err error) { reason = r },
	})
	verdict, err := ranker.Rank(context.Background(), "goal", variantBatch("a", "b"))
	if err != nil {
		t.Fatalf("Rank returned error: %v", err)
	}
	if verdict.Source != heuristicSourceName {
		t.Fatalf("Source = %q, want %q", verdict.Source, heuristicSourceName)
	}
	if reason != "parse_payload" {
		t.Fatalf("fallback reason = %q, want %q", reason, "parse_payload")
	}
}

func TestOpenAIRankerEmptyBatch(t *testing.T) {
	ranker := NewOpenAIRanker(OpenAIOptions{APIKey: "dummy"})
	_, err := ranker.Rank(context.Background(), "goal", nil)
	if err == nil {
		t.Fatal("expected error for empty batch")
	}
}

func TestParseRankVerdictTieIgnoresAdvisoryBestIndex(t *testing.T) {
	verdict, err := parseRankVerdict(`{"scores":[{"index":0,"score":7.0},{"index":1,"score":7.0}],"best_index":1}`, 2)
	if err != nil {
		t.Fatalf("parseRankVerdict returned error: %v", err)
	}
	if verdict.WinnerIndex != 0 {
		t.Fatalf("WinnerIndex = %d, want 0", verdict.WinnerIndex)
	}
}

func TestParseRankVerdictRejectsOutOfRangeIndex(t *testing.T) {
	if _, err := parseRankVerdict(`{"scores":[{"index":0,"score":7.0},{"index":5,"score":8.0}]}`, 2); err == nil {
		t.Fatal("expected error for out of range index")
	}
}
