package thread

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gosandol/ansimssi/internal/session"
	"github.com/gosandol/ansimssi/internal/stream"
)

// ErrIncomplete marks a stream that ended without a done record.
var ErrIncomplete = errors.New("stream ended without done record")

// apologyText is appended to the visible answer when a lifecycle dies on a
// transport error. The surface stays submittable; the error never escapes.
const apologyText = "죄송합니다. 검색 중 오류가 발생했습니다. 다시 시도해 주세요."

// Persister stores one completed turn. Invoked exactly once per completed
// lifecycle, never for a superseded or failed one.
type Persister interface {
	SaveTurn(ctx context.Context, threadID, query, answer string, sources []stream.Source) error
}

// Streamer opens the streaming answer protocol for one query.
type Streamer interface {
	Stream(ctx context.Context, query, threadID string) (<-chan stream.Event, <-chan error)
}

// Controller owns the query -> stream -> snapshot -> persist lifecycle for one
// conversation surface. A new Submit supersedes the live one: its network read
// is aborted and its late events are provably inert (generation comparison
// under the controller mutex, never timing).
type Controller struct {
	streamer Streamer
	persist  Persister
	threadID string

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	current session.Snapshot
	subs    []func(session.Snapshot)
}

// Handle identifies one submitted lifecycle. Done is closed when the
// lifecycle finishes for any reason: completion, transport error, supersede.
type Handle struct {
	ID    string
	Query string

	gen  uint64
	done chan struct{}

	mu         sync.Mutex
	err        error
	superseded bool
	final      session.Snapshot
}

// Done is closed once the lifecycle has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err reports the transport error of a finished lifecycle, if any.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Superseded reports whether a newer Submit aborted this lifecycle.
func (h *Handle) Superseded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.superseded
}

// Final returns the snapshot as it stood when the lifecycle finished.
func (h *Handle) Final() session.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.final
}

// NewController creates a controller for a fresh conversation thread.
func NewController(s Streamer, p Persister) *Controller {
	return &Controller{streamer: s, persist: p, threadID: uuid.NewString()}
}

// ThreadID identifies the conversation thread persisted turns belong to.
func (c *Controller) ThreadID() string { return c.threadID }

// Subscribe registers a callback invoked with a fresh read-only snapshot after
// every folded event. Callbacks run on the lifecycle goroutine; keep them short.
func (c *Controller) Subscribe(fn func(session.Snapshot)) {
	c.mu.Lock()
	c.subs = append(c.subs, fn)
	c.mu.Unlock()
}

// Current returns the latest published snapshot.
func (c *Controller) Current() session.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Submit aborts any live lifecycle and starts a new one for query.
func (c *Controller) Submit(ctx context.Context, query string) *Handle {
	h := &Handle{ID: uuid.NewString(), Query: query, done: make(chan struct{})}

	c.mu.Lock()
	if c.cancel != nil {
		// Exactly one abort per superseded lifecycle.
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	h.gen = c.gen
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.current = session.Snapshot{}
	c.mu.Unlock()

	go c.run(runCtx, h)
	return h
}

// Abort cancels the live lifecycle without starting a new one.
func (c *Controller) Abort() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
}

func (c *Controller) run(ctx context.Context, h *Handle) {
	defer close(h.done)

	events, errc := c.streamer.Stream(ctx, h.Query, c.threadID)
	for ev := range events {
		c.apply(h.gen, ev)
	}
	streamErr := <-errc

	c.mu.Lock()
	if c.gen != h.gen {
		// A newer query won; this lifecycle is discarded without persistence.
		c.mu.Unlock()
		h.mu.Lock()
		h.superseded = true
		h.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel = nil
	}
	snap := c.current
	complete := snap.IsComplete && streamErr == nil

	if !complete {
		// Ended without done, or transport failure: incomplete session.
		snap.AnswerText = appendApology(snap.AnswerText)
		c.current = snap
	}
	subs := make([]func(session.Snapshot), len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	h.mu.Lock()
	h.err = streamErr
	if streamErr == nil && !snap.IsComplete {
		h.err = ErrIncomplete
	}
	h.final = snap
	h.mu.Unlock()

	if complete {
		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.persist.SaveTurn(saveCtx, c.threadID, h.Query, snap.AnswerText, snap.Sources); err != nil {
			log.Printf("thread: persist turn failed (non-fatal): %v", err)
		}
		return
	}
	log.Printf("thread: lifecycle %s ended incomplete: %v", h.ID, streamErr)
	for _, fn := range subs {
		fn(snap)
	}
}

// apply folds one event into the current snapshot and publishes it, unless
// the event belongs to a superseded generation.
func (c *Controller) apply(gen uint64, ev stream.Event) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.current = session.Fold(c.current, ev)
	snap := c.current
	subs := make([]func(session.Snapshot), len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func appendApology(answer string) string {
	if answer == "" {
		return apologyText
	}
	return answer + "\n\n" + apologyText
}
