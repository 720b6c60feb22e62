package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chatsync/internal/model"
)

func newTestServer(t *testing.T, register func(r chi.Router)) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestListChatsSendsCredential(t *testing.T) {
	var gotAuth string
	srv := newTestServer(t, func(r chi.Router) {
		r.Get("/api/chats", func(w http.ResponseWriter, req *http.Request) {
			gotAuth = req.Header.Get("Authorization")
			json.NewEncoder(w).Encode([]model.Chat{
				{ID: "c1", Kind: model.ChatKindGroup, Name: "ops"},
			})
		})
	})

	c := NewClient(srv.URL, "tok-1", time.Second)
	chats, err := c.ListChats(context.Background())
	if err != nil {
		t.Fatalf("list chats: %v", err)
	}
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if len(chats) != 1 || chats[0].ID != "c1" {
		t.Fatalf("chats = %+v", chats)
	}
}

func TestHistoryDecodesMessages(t *testing.T) {
	srv := newTestServer(t, func(r chi.Router) {
		r.Get("/api/chats/{chatID}/messages", func(w http.ResponseWriter, req *http.Request) {
			if got := chi.URLParam(req, "chatID"); got != "c9" {
				t.Errorf("chat id = %q", got)
			}
			json.NewEncoder(w).Encode([]model.Message{
				{ID: "m1", ChatID: "c9", Text: "first"},
				{ID: "m2", ChatID: "c9", Text: "second"},
			})
		})
	})

	c := NewClient(srv.URL, "", time.Second)
	msgs, err := c.History(context.Background(), "c9")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 2 || msgs[1].Text != "second" {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestCreateChatValidatesBeforeSending(t *testing.T) {
	called := false
	srv := newTestServer(t, func(r chi.Router) {
		r.Post("/api/chats", func(w http.ResponseWriter, req *http.Request) {
			called = true
		})
	})

	c := NewClient(srv.URL, "", time.Second)
	// Group chats need a name.
	_, err := c.CreateChat(context.Background(), CreateChatRequest{
		Kind:           model.ChatKindGroup,
		ParticipantIDs: []string{"u1"},
	})
	if err == nil {
		t.Fatalf("invalid request passed validation")
	}
	if called {
		t.Fatalf("invalid request reached the server")
	}
}

func TestErrorStatusSurface(t *testing.T) {
	srv := newTestServer(t, func(r chi.Router) {
		r.Delete("/api/chats/{chatID}", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})
	})

	c := NewClient(srv.URL, "", time.Second)
	err := c.DeleteChat(context.Background(), "c1")
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("err = %v, want status 403 surfaced", err)
	}
}

func TestUploadAttachmentMultipart(t *testing.T) {
	srv := newTestServer(t, func(r chi.Router) {
		r.Post("/api/uploads", func(w http.ResponseWriter, req *http.Request) {
			f, hdr, err := req.FormFile("file")
			if err != nil {
				t.Errorf("form file: %v", err)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			defer f.Close()
			data, _ := io.ReadAll(f)
			if string(data) != "file-bytes" {
				t.Errorf("payload = %q", data)
			}
			json.NewEncoder(w).Encode(model.Attachment{
				ID:   "a1",
				Name: hdr.Filename,
				URL:  "/files/a1",
			})
		})
	})

	c := NewClient(srv.URL, "", time.Second)
	att, err := c.UploadAttachment(context.Background(), "report.pdf", 10, strings.NewReader("file-bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if att.ID != "a1" || att.Name != "report.pdf" {
		t.Fatalf("attachment = %+v", att)
	}
	if att.Size != 10 {
		t.Fatalf("size fallback not applied: %d", att.Size)
	}
}

func TestRemoveParticipantPath(t *testing.T) {
	var gotPath string
	srv := newTestServer(t, func(r chi.Router) {
		r.Delete("/api/chats/{chatID}/participants/{userID}", func(w http.ResponseWriter, req *http.Request) {
			gotPath = req.URL.Path
		})
	})

	c := NewClient(srv.URL, "", time.Second)
	if err := c.RemoveParticipant(context.Background(), "c1", "u2"); err != nil {
		t.Fatalf("remove participant: %v", err)
	}
	if gotPath != "/api/chats/c1/participants/u2" {
		t.Fatalf("path = %q", gotPath)
	}
}
