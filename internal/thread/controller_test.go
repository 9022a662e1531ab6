package thread

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gosandol/ansimssi/internal/session"
	"github.com/gosandol/ansimssi/internal/stream"
)

// fakeStreamer hands out one scripted stream per Stream call, in call order.
type fakeStreamer struct {
	mu      sync.Mutex
	scripts []*scriptedStream
	calls   int
}

type scriptedStream struct {
	events chan stream.Event
	errc   chan error
	ctx    context.Context
}

func (f *fakeStreamer) Stream(ctx context.Context, query, threadID string) (<-chan stream.Event, <-chan error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.scripts[f.calls]
	f.calls++
	s.ctx = ctx
	return s.events, s.errc
}

func newScript() *scriptedStream {
	return &scriptedStream{events: make(chan stream.Event, 16), errc: make(chan error, 1)}
}

func (s *scriptedStream) finish(err error) {
	if err != nil {
		s.errc <- err
	}
	close(s.events)
	close(s.errc)
}

type fakePersister struct {
	mu    sync.Mutex
	calls []savedTurn
}

type savedTurn struct {
	threadID, query, answer string
	sources                 []stream.Source
}

func (p *fakePersister) SaveTurn(ctx context.Context, threadID, query, answer string, sources []stream.Source) error {
	p.mu.Lock()
	p.calls = append(p.calls, savedTurn{threadID, query, answer, sources})
	p.mu.Unlock()
	return nil
}

func (p *fakePersister) saved() []savedTurn {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]savedTurn, len(p.calls))
	copy(out, p.calls)
	return out
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatalf("lifecycle did not finish")
	}
}

func TestController_CompletedLifecyclePersistsOnce(t *testing.T) {
	s := newScript()
	fs := &fakeStreamer{scripts: []*scriptedStream{s}}
	p := &fakePersister{}
	c := NewController(fs, p)

	var published []session.Snapshot
	var mu sync.Mutex
	c.Subscribe(func(snap session.Snapshot) {
		mu.Lock()
		published = append(published, snap)
		mu.Unlock()
	})

	h := c.Submit(context.Background(), "혈압이 높은 것 같아")
	s.events <- stream.Meta{Sources: []stream.Source{{Title: "S1", URL: "http://x"}}}
	s.events <- stream.Content{Delta: "혈압"}
	s.events <- stream.Content{Delta: "관리가 필요합니다."}
	s.events <- stream.Done{RelatedQuestions: []string{"운동은?"}}
	s.finish(nil)
	waitDone(t, h)

	if h.Err() != nil {
		t.Fatalf("unexpected error: %v", h.Err())
	}
	final := h.Final()
	if final.AnswerText != "혈압관리가 필요합니다." || !final.IsComplete {
		t.Fatalf("unexpected final snapshot: %+v", final)
	}

	saved := p.saved()
	if len(saved) != 1 {
		t.Fatalf("expected exactly one persistence call, got %d", len(saved))
	}
	if saved[0].query != "혈압이 높은 것 같아" || saved[0].answer != "혈압관리가 필요합니다." {
		t.Fatalf("unexpected saved turn: %+v", saved[0])
	}
	if len(saved[0].sources) != 1 {
		t.Fatalf("expected sources persisted, got %+v", saved[0].sources)
	}

	// Progressive rendering: one publish per event.
	mu.Lock()
	n := len(published)
	mu.Unlock()
	if n != 4 {
		t.Fatalf("expected 4 published snapshots, got %d", n)
	}
}

func TestController_NewSubmitSupersedesAndDiscardsStaleEvents(t *testing.T) {
	a, b := newScript(), newScript()
	fs := &fakeStreamer{scripts: []*scriptedStream{a, b}}
	p := &fakePersister{}
	c := NewController(fs, p)

	ha := c.Submit(context.Background(), "query A")
	a.events <- stream.Content{Delta: "partial A"}

	// Wait for A's event to land before superseding.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && c.Current().AnswerText == "" {
		time.Sleep(2 * time.Millisecond)
	}

	hb := c.Submit(context.Background(), "query B")

	// A's abort must have happened: its stream context is cancelled.
	select {
	case <-a.ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected superseded stream context cancelled")
	}

	// Late events from A arrive after B started; they must be inert.
	a.events <- stream.Content{Delta: " STALE"}
	a.events <- stream.Done{}
	a.finish(context.Canceled)

	b.events <- stream.Content{Delta: "answer B"}
	b.events <- stream.Done{}
	b.finish(nil)

	waitDone(t, ha)
	waitDone(t, hb)

	if !ha.Superseded() {
		t.Fatalf("expected A superseded")
	}
	final := hb.Final()
	if final.AnswerText != "answer B" {
		t.Fatalf("stale events leaked into B's snapshot: %q", final.AnswerText)
	}
	saved := p.saved()
	if len(saved) != 1 || saved[0].query != "query B" {
		t.Fatalf("expected only B persisted, got %+v", saved)
	}
}

func TestController_TransportErrorAppendsApologyAndSkipsPersist(t *testing.T) {
	s := newScript()
	fs := &fakeStreamer{scripts: []*scriptedStream{s}}
	p := &fakePersister{}
	c := NewController(fs, p)

	h := c.Submit(context.Background(), "q")
	s.events <- stream.Content{Delta: "시작"}
	s.finish(errors.New("connection reset"))
	waitDone(t, h)

	if h.Err() == nil {
		t.Fatalf("expected transport error surfaced")
	}
	final := h.Final()
	if !strings.Contains(final.AnswerText, "시작") || !strings.Contains(final.AnswerText, "죄송합니다") {
		t.Fatalf("expected partial answer plus apology, got %q", final.AnswerText)
	}
	if final.IsComplete {
		t.Fatalf("errored lifecycle must not be complete")
	}
	if len(p.saved()) != 0 {
		t.Fatalf("errored lifecycle must not persist")
	}

	// The surface stays usable: a new submit works.
	s2 := newScript()
	fs.mu.Lock()
	fs.scripts = append(fs.scripts, s2)
	fs.mu.Unlock()
	h2 := c.Submit(context.Background(), "again")
	s2.events <- stream.Done{}
	s2.finish(nil)
	waitDone(t, h2)
	if h2.Err() != nil {
		t.Fatalf("expected clean second lifecycle, got %v", h2.Err())
	}
}

func TestController_EndWithoutDoneIsIncomplete(t *testing.T) {
	s := newScript()
	fs := &fakeStreamer{scripts: []*scriptedStream{s}}
	p := &fakePersister{}
	c := NewController(fs, p)

	h := c.Submit(context.Background(), "q")
	s.events <- stream.Content{Delta: "half"}
	s.finish(nil) // clean EOF, but no done record
	waitDone(t, h)

	if !errors.Is(h.Err(), ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", h.Err())
	}
	if len(p.saved()) != 0 {
		t.Fatalf("incomplete lifecycle must not persist")
	}
}
