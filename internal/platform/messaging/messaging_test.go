package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"shiftwatch/internal/domain/notify"
	"shiftwatch/internal/platform/config"
)

func TestBotSend(t *testing.T) {
	var got sendRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	m := NewBot(srv.URL, "tok", srv.Client())
	if err := m.Send(context.Background(), "4242", "please check in"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if path != "/bottok/sendMessage" {
		t.Fatalf("unexpected path %q", path)
	}
	if got.ChatID != "4242" || got.Text != "please check in" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestBotSendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"ok":false,"description":"bot was blocked by the user"}`))
	}))
	defer srv.Close()

	if err := NewBot(srv.URL, "tok", srv.Client()).Send(context.Background(), "1", "hi"); err == nil {
		t.Fatal("expected rejected send to fail")
	}
}

func TestBotSendWithoutHandle(t *testing.T) {
	err := NewBot("http://unused", "tok", nil).Send(context.Background(), " ", "hi")
	if !errors.Is(err, notify.ErrNoHandle) {
		t.Fatalf("expected ErrNoHandle, got %v", err)
	}
}

func TestNewDisabledIsNoop(t *testing.T) {
	m := New(config.Defaults())
	if err := m.Send(context.Background(), "", "hi"); err != nil {
		t.Fatalf("expected noop messenger, got %v", err)
	}
}
