package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joseph-ayodele/committee-extract/internal/common"
	"github.com/joseph-ayodele/committee-extract/internal/core/llm"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "test-model", JSONMode: true}, quietLogger())
}

func TestCompleteSendsChatRequest(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"{\"הערות\": \"x\"}"},"finish_reason":"stop"}]}`)
	})

	out, err := c.Complete(context.Background(), "prompt text")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"הערות": "x"}` {
		t.Fatalf("content = %q", out)
	}
	if got["model"] != "test-model" || got["temperature"] != float64(0) {
		t.Fatalf("request = %v", got)
	}
	if rf, ok := got["response_format"].(map[string]any); !ok || rf["type"] != "json_object" {
		t.Fatalf("response_format = %v", got["response_format"])
	}
	msgs := got["messages"].([]any)
	if user := msgs[1].(map[string]any); user["content"] != "prompt text" {
		t.Fatalf("user message = %v", user)
	}
}

func TestCompleteFailuresAreOracleUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"non-2xx", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}},
		{"empty body", func(w http.ResponseWriter, _ *http.Request) {}},
		{"no choices", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"choices":[]}`)
		}},
		{"empty content", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"  "}}]}`)
		}},
		{"not json", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `<html>gateway</html>`)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls++
				tt.handler(w, r)
			})
			_, err := c.Complete(context.Background(), "p")
			if !errors.Is(err, common.ErrOracleUnavailable) {
				t.Fatalf("err = %v, want ErrOracleUnavailable", err)
			}
			if calls != 1 {
				t.Fatalf("calls = %d, want exactly one attempt", calls)
			}
		})
	}
}

func TestCompleteTransportError(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1/v1"}, quietLogger())
	_, err := c.Complete(context.Background(), "p")
	if !errors.Is(err, common.ErrOracleUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestCompleteWithImagesAttachesDataURLs(t *testing.T) {
	var got struct {
		Messages []struct {
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"{}"}}]}`)
	})
	_, err := c.CompleteWithImages(context.Background(), "look", []llm.Image{
		{MimeType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}},
		{MimeType: "image/png", Data: []byte{1, 2, 3}},
	})
	if err != nil {
		t.Fatal(err)
	}
	var parts []map[string]any
	if err := json.Unmarshal(got.Messages[1].Content, &parts); err != nil {
		t.Fatalf("user content is not a part list: %s", got.Messages[1].Content)
	}
	if len(parts) != 3 || parts[0]["text"] != "look" {
		t.Fatalf("parts = %v", parts)
	}
	url := parts[1]["image_url"].(map[string]any)["url"].(string)
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Fatalf("url = %s", url)
	}
}
