package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/example/trustlens/internal/imageprocessor"
)

type recordedRequest struct {
	mu          sync.Mutex
	method      string
	key         string
	contentType string
	body        map[string]any
}

func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32, *recordedRequest) {
	t.Helper()

	calls := &atomic.Int32{}
	recorded := &recordedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		recorded.mu.Lock()
		defer recorded.mu.Unlock()
		recorded.method = r.Method
		recorded.key = r.URL.Query().Get("key")
		recorded.contentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &recorded.body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, calls, recorded
}

func candidateBody(t *testing.T, text string) string {
	t.Helper()
	resp := map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
		},
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(raw)
}

func testImage() *imageprocessor.Image {
	return imageprocessor.New("photo.png", "image/png", []byte("hello"))
}

func TestAnalyzeBuildsRequest(t *testing.T) {
	srv, calls, recorded := newTestServer(t, http.StatusOK, candidateBody(t, `{"verdict":"Authentic"}`))
	client := NewClient(srv.URL, srv.Client(), zap.NewNop())

	if _, err := client.Analyze(context.Background(), testImage(), "secret key&x"); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	recorded.mu.Lock()
	defer recorded.mu.Unlock()

	if calls.Load() != 1 {
		t.Fatalf("expected exactly one call, got %d", calls.Load())
	}
	if recorded.method != http.MethodPost {
		t.Fatalf("expected POST, got %s", recorded.method)
	}
	if recorded.key != "secret key&x" {
		t.Fatalf("expected credential in key query parameter, got %q", recorded.key)
	}
	if recorded.contentType != "application/json" {
		t.Fatalf("unexpected content type %q", recorded.contentType)
	}

	contents := recorded.body["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if text := parts[0].(map[string]any)["text"].(string); !strings.Contains(text, "forensic image analyst") {
		t.Fatalf("prompt part missing, got %q", text)
	}
	inline := parts[1].(map[string]any)["inline_data"].(map[string]any)
	if inline["mime_type"] != "image/png" || inline["data"] != "aGVsbG8=" {
		t.Fatalf("unexpected inline_data %+v", inline)
	}

	gen := recorded.body["generationConfig"].(map[string]any)
	if gen["temperature"] != 0.1 || gen["topP"] != 0.95 || gen["maxOutputTokens"] != float64(1024) || gen["responseMimeType"] != "application/json" {
		t.Fatalf("unexpected generationConfig %+v", gen)
	}
}

func TestAnalyzeReturnsStructuredResult(t *testing.T) {
	text := `{"verdict":"AI-Generated","confidence":"92%","analysis":"...","indicators":["a","b"]}`
	srv, _, _ := newTestServer(t, http.StatusOK, candidateBody(t, text))
	client := NewClient(srv.URL, srv.Client(), zap.NewNop())

	got, err := client.Analyze(context.Background(), testImage(), "key")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	want := &AnalysisResult{Verdict: "AI-Generated", Confidence: "92%", Analysis: "...", Indicators: []string{"a", "b"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestAnalyzeDegradesOnUnparsableText(t *testing.T) {
	srv, _, _ := newTestServer(t, http.StatusOK, candidateBody(t, "not json"))
	client := NewClient(srv.URL, srv.Client(), zap.NewNop())

	got, err := client.Analyze(context.Background(), testImage(), "key")
	if err != nil {
		t.Fatalf("expected degraded success, got %v", err)
	}
	want := &AnalysisResult{Verdict: "Analysis Complete", Confidence: "N/A", Analysis: "not json", Indicators: []string{}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestAnalyzeMapsStatusToKind(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantKind    Kind
		wantMessage string
	}{
		{
			name:        "bad request",
			status:      http.StatusBadRequest,
			body:        `{"error":{"code":400,"message":"Image too large"}}`,
			wantKind:    KindInvalidRequest,
			wantMessage: "Invalid request: Image too large",
		},
		{
			name:        "forbidden",
			status:      http.StatusForbidden,
			body:        `{"error":{"code":403,"message":"API key not valid"}}`,
			wantKind:    KindUnauthorized,
			wantMessage: "Unauthorized: API key not valid. Please check your Gemini API key.",
		},
		{
			name:        "rate limited",
			status:      http.StatusTooManyRequests,
			body:        `{"error":{"message":"Quota exceeded"}}`,
			wantKind:    KindRateLimited,
			wantMessage: "Rate limit exceeded: Quota exceeded. Wait a moment and try again, or check your API quota at aistudio.google.com.",
		},
		{
			name:        "server error without body",
			status:      http.StatusInternalServerError,
			body:        `<html>oops</html>`,
			wantKind:    KindRemote,
			wantMessage: "500: API Error: 500 Internal Server Error",
		},
		{
			name:        "unauthorized status is a remote error",
			status:      http.StatusUnauthorized,
			body:        `{}`,
			wantKind:    KindRemote,
			wantMessage: "401: API Error: 401 Unauthorized",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			srv, calls, _ := newTestServer(t, tt.status, tt.body)
			client := NewClient(srv.URL, srv.Client(), zap.NewNop())

			_, err := client.Analyze(context.Background(), testImage(), "AIzaSyTESTKEY")
			var infErr *Error
			if !errors.As(err, &infErr) {
				t.Fatalf("expected *Error, got %T (%v)", err, err)
			}
			if infErr.Kind != tt.wantKind {
				t.Fatalf("kind = %s, want %s", infErr.Kind, tt.wantKind)
			}
			if infErr.Message != tt.wantMessage {
				t.Fatalf("message = %q, want %q", infErr.Message, tt.wantMessage)
			}
			if infErr.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", infErr.StatusCode, tt.status)
			}
			if calls.Load() != 1 {
				t.Fatalf("expected no retries, got %d calls", calls.Load())
			}
		})
	}
}

func TestAnalyzeEmptyResponse(t *testing.T) {
	for name, body := range map[string]string{
		"no candidates": `{"candidates":[]}`,
		"no parts":      `{"candidates":[{"content":{"parts":[]}}]}`,
		"empty text":    `{"candidates":[{"content":{"parts":[{"text":""}]}}]}`,
	} {
		body := body
		t.Run(name, func(t *testing.T) {
			srv, _, _ := newTestServer(t, http.StatusOK, body)
			client := NewClient(srv.URL, srv.Client(), zap.NewNop())

			_, err := client.Analyze(context.Background(), testImage(), "key")
			var infErr *Error
			if !errors.As(err, &infErr) || infErr.Kind != KindEmptyResponse {
				t.Fatalf("expected empty response error, got %v", err)
			}
			if infErr.Message != "No response received from Gemini API." {
				t.Fatalf("unexpected message %q", infErr.Message)
			}
		})
	}
}

func TestAnalyzeTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	client := NewClient(endpoint, nil, zap.NewNop())
	_, err := client.Analyze(context.Background(), testImage(), "key")
	var infErr *Error
	if !errors.As(err, &infErr) || infErr.Kind != KindTransport {
		t.Fatalf("expected transport error, got %v", err)
	}
	if infErr.Unwrap() == nil {
		t.Fatal("expected wrapped cause")
	}
}

func TestAnalyzeUsesDefaultMIMEType(t *testing.T) {
	srv, _, recorded := newTestServer(t, http.StatusOK, candidateBody(t, `{}`))
	client := NewClient(srv.URL, srv.Client(), zap.NewNop())

	img := &imageprocessor.Image{Name: "x", Data: []byte("x")}
	if _, err := client.Analyze(context.Background(), img, "key"); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	recorded.mu.Lock()
	defer recorded.mu.Unlock()
	parts := recorded.body["contents"].([]any)[0].(map[string]any)["parts"].([]any)
	inline := parts[1].(map[string]any)["inline_data"].(map[string]any)
	if inline["mime_type"] != "image/jpeg" {
		t.Fatalf("expected jpeg fallback, got %v", inline["mime_type"])
	}
}
