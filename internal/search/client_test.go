package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gosandol/ansimssi/internal/stream"
)

func TestClient_StreamDecodesEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		fl := w.(http.Flusher)
		_, _ = w.Write([]byte("{\"type\":\"meta\",\"sources\":[{\"title\":\"S1\",\"url\":\"http://x\"}]}\n"))
		fl.Flush()
		_, _ = w.Write([]byte("{\"type\":\"content\",\"delta\":\"안녕\"}\n"))
		fl.Flush()
		_, _ = w.Write([]byte("{\"type\":\"done\",\"related_questions\":[]}\n"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	events, errc := c.Stream(context.Background(), "hi", "")

	var got []stream.Event
	for ev := range events {
		got = append(got, ev)
	}
	if err := <-errc; err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if _, ok := got[0].(stream.Meta); !ok {
		t.Fatalf("expected Meta first, got %T", got[0])
	}
	if _, ok := got[2].(stream.Done); !ok {
		t.Fatalf("expected Done last, got %T", got[2])
	}
}

func TestClient_StreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	events, errc := NewClient(srv.URL).Stream(context.Background(), "hi", "")
	for range events {
		t.Fatalf("expected no events on error status")
	}
	if err := <-errc; err == nil {
		t.Fatalf("expected transport error")
	}
}

func TestClient_StreamAbort(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{\"type\":\"content\",\"delta\":\"partial\"}\n"))
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	events, errc := NewClient(srv.URL).Stream(ctx, "hi", "")

	ev, ok := <-events
	if !ok {
		t.Fatalf("expected first event before abort")
	}
	if ev.(stream.Content).Delta != "partial" {
		t.Fatalf("unexpected event: %#v", ev)
	}

	cancel()
	for range events {
	}
	if err := <-errc; err == nil {
		t.Fatalf("expected error after abort: stream ended without done")
	}
}

func TestClient_Ask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/answer" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{\"answer\":\"네, 안심씨입니다.\",\"disclaimer\":\"참고용\"}"))
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL).Ask(context.Background(), "누구세요")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if got.Answer != "네, 안심씨입니다." || got.Disclaimer != "참고용" {
		t.Fatalf("unexpected answer: %+v", got)
	}
}

func TestClient_SuggestTimeoutDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.SuggestTimeout = 30 * time.Millisecond
	if _, err := c.Suggest(context.Background(), "감기"); err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestClient_Suggest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "감기" {
			t.Errorf("unexpected q: %q", got)
		}
		_, _ = w.Write([]byte("[{\"query\":\"감기 빨리 낫는 법\",\"label\":\"감기 관리\"}]"))
	}))
	defer srv.Close()

	out, err := NewClient(srv.URL).Suggest(context.Background(), "감기")
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(out) != 1 || out[0].Query != "감기 빨리 낫는 법" {
		t.Fatalf("unexpected suggestions: %+v", out)
	}
}
