package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeAspectRatio(t *testing.T) {
	cases := []struct {
		in      string
		want    AspectRatio
		wantErr bool
	}{
		{"", AspectSquare, false},
		{"square", AspectSquare, false},
		{"  Portrait ", AspectPortrait, false},
		{"WIDESCREEN", AspectWidescreen, false},
		{"16:9", AspectRatio("16:9"), false},
		{"21:9", AspectRatio("21:9"), false},
		{"circle", "", true},
		{"16:", "", true},
		{":9", "", true},
		{"a:b", "", true},
	}
	for _, tc := range cases {
		got, err := NormalizeAspectRatio(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("NormalizeAspectRatio(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NormalizeAspectRatio(%q) returned error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("NormalizeAspectRatio(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExcerptTruncatesLongPayloads(t *testing.T) {
	short := "short payload"
	if got := Excerpt(short); got != short {
		t.Fatalf("Excerpt(short) = %q, want unchanged", got)
	}
	long := strings.Repeat("x", 500)
	got := Excerpt(long)
	if !strings.HasSuffix(got, "... [truncated]") {
		t.Fatalf("Excerpt(long) = %q, want truncation marker", got)
	}
	if len(got) >= len(long) {
		t.Fatal("expected excerpt to be shorter than input")
	}
}

func TestErrorTypesUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	var err error = &MalformedEnhancementError{Backend: "gemini", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatal("MalformedEnhancementError must unwrap to its cause")
	}
	err = &GenerationBackendError{Backend: "imagen", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatal("GenerationBackendError must unwrap to its cause")
	}
	err = &MalformedEvaluationError{Backend: "openai", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatal("MalformedEvaluationError must unwrap to its cause")
	}
}

func TestGenerationBackendErrorMessage(t *testing.T) {
	err := &GenerationBackendError{Backend: "imagen", StatusCode: 429, Detail: "quota exceeded"}
	msg := err.Error()
	if !strings.Contains(msg, "imagen") || !strings.Contains(msg, "429") {
		t.Fatalf("Error() = %q, want backend and status", msg)
	}
}
