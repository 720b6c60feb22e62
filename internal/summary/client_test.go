package summary

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chatsync/internal/model"
)

func TestDisabledWithoutBaseURL(t *testing.T) {
	c := NewClient("", "tok", time.Second)
	if c.Enabled() {
		t.Fatalf("client reports enabled with no URL configured")
	}
	if _, err := c.Summarize(context.Background(), "c1", 50); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}

func TestSummarizeDecodesResponse(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/summarize", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			ChatID       string `json:"chat_id"`
			MessageLimit int    `json:"message_limit"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.ChatID != "c1" || body.MessageLimit != 50 {
			t.Errorf("request = %+v", body)
		}
		json.NewEncoder(w).Encode(model.ChatSummary{
			Summary:      "shipping plan agreed",
			Sentiment:    "positive",
			Highlights:   []string{"release friday"},
			ActionItems:  []string{"tag v2.1"},
			MessageCount: 42,
		})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	got, err := c.Summarize(context.Background(), "c1", 50)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if got.Summary != "shipping plan agreed" || got.MessageCount != 42 {
		t.Fatalf("summary = %+v", got)
	}
	if len(got.ActionItems) != 1 || got.ActionItems[0] != "tag v2.1" {
		t.Fatalf("action items = %v", got.ActionItems)
	}
}

func TestSummarizeSurfacesUpstreamFailure(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/summarize", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	if _, err := c.Summarize(context.Background(), "c1", 0); err == nil {
		t.Fatalf("upstream failure not surfaced")
	}
}
