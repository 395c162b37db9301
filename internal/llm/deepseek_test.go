package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestStripCodeBlock(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"```json\n{\"issues\": []}\n```", `{"issues": []}`},
		{"```\n{}\n```", "{}"},
		{`{"issues": []}`, `{"issues": []}`},
		{"  {\"a\": 1}  ", `{"a": 1}`},
	}
	for _, c := range cases {
		if got := stripCodeBlock(c.in); got != c.want {
			t.Errorf("stripCodeBlock(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestDecodeIssues(t *testing.T) {
	text := "```json\n" + `{"issues": [
		{"type": "Definitive Language", "text": "绝对不会", "explanation": "过于绝对", "suggested_fix": "通常不会", "para_index": 2}
	]}` + "\n```"
	issues, err := DecodeIssues(text)
	if err != nil {
		t.Fatalf("DecodeIssues: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(issues))
	}
	iss := issues[0]
	if iss.Type != "Definitive Language" || iss.ParaIndex != 2 || iss.SuggestedFix != "通常不会" {
		t.Errorf("unexpected issue: %+v", iss)
	}
}

func TestDecodeIssues_Malformed(t *testing.T) {
	if _, err := DecodeIssues("I found no issues, great document!"); err == nil {
		t.Error("expected error for prose output")
	}
}

func TestDecodeIssues_EmptyList(t *testing.T) {
	issues, err := DecodeIssues(`{"issues": []}`)
	if err != nil {
		t.Fatalf("DecodeIssues: %v", err)
	}
	if len(issues) != 0 {
		t.Errorf("expected no issues, got %+v", issues)
	}
}

func TestReview(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"choices": [{"message": {"content": "{\"issues\": [{\"type\": \"Grammar & Spelling\", \"text\": \"错字\", \"para_index\": 0}]}"}}]}`)
	}))
	defer srv.Close()

	c := NewClient("sk-test", srv.URL, "deepseek-chat")
	issues, err := c.Review(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if len(issues) != 1 || issues[0].Text != "错字" {
		t.Errorf("unexpected issues: %+v", issues)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&RetryableError{StatusCode: 429}) {
		t.Error("RetryableError should be retryable")
	}
	if IsRetryable(errors.New("boom")) {
		t.Error("plain errors are not retryable")
	}
	wrapped := fmt.Errorf("chunk 3: %w", &RetryableError{StatusCode: 503})
	if !IsRetryable(wrapped) {
		t.Error("wrapped RetryableError should be retryable")
	}
}

func TestBackoff(t *testing.T) {
	for attempt := 0; attempt < 8; attempt++ {
		d := Backoff(attempt)
		if d <= 0 || d > 45*time.Second {
			t.Errorf("Backoff(%d) = %v out of range", attempt, d)
		}
	}
}

func TestReview_RetryableStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("k", srv.URL, "deepseek-chat")
	_, err := c.Review(context.Background(), "s", "u")
	var retryable *RetryableError
	if !errors.As(err, &retryable) {
		t.Fatalf("expected RetryableError, got %v", err)
	}
	if retryable.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d", retryable.StatusCode)
	}
}
