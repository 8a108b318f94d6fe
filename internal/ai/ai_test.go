package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"apex/internal/config"
)

func TestAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("authorization = %q", got)
		}
		b, _ := io.ReadAll(r.Body)
		var req map[string]any
		json.Unmarshal(b, &req)
		if req["model"] != "test-model" {
			t.Errorf("model = %v", req["model"])
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"tags\":[\"go\",\"testing\"],\"summary\":\"A tweet about Go.\"}"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(config.AIConfig{APIKey: "k", BaseURL: srv.URL, Model: "test-model"})
	res, err := c.Analyze(context.Background(), "go testing is nice")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tags) != 2 || res.Tags[0] != "go" {
		t.Errorf("tags = %v", res.Tags)
	}
	if res.Summary != "A tweet about Go." {
		t.Errorf("summary = %q", res.Summary)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(config.AIConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	if _, err := c.Analyze(context.Background(), "x"); err == nil {
		t.Error("want error on 429")
	}

	c = NewClient(config.AIConfig{BaseURL: srv.URL})
	if _, err := c.Analyze(context.Background(), "x"); err == nil {
		t.Error("want error without api key")
	}
}
