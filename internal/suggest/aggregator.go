// Package suggest merges local keyword matches with remote suggestion lookups
// while the user types. Local matches publish immediately after a debounce;
// the remote set is folded in when it arrives, but only if the input has not
// changed since.
package suggest

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/gosandol/ansimssi/internal/hangul"
	"github.com/gosandol/ansimssi/internal/search"
)

const (
	debounceDelay = 300 * time.Millisecond
	maxItems      = 8

	remoteCacheTTL   = time.Minute
	remoteCacheSweep = 5 * time.Minute
)

// Remote looks up server-side suggestions. The transport owns its own timeout;
// any error here degrades to local-only results.
type Remote interface {
	Suggest(ctx context.Context, q string) ([]search.Suggestion, error)
}

// Result is one published suggestion set. Seq identifies the input edit that
// produced it; consumers keep only the highest Seq they have seen.
type Result struct {
	Seq   uint64
	Query string
	Items []search.Suggestion
}

// Index is the in-memory keyword table matched with chosung awareness.
type Index struct {
	entries []search.Suggestion
}

func NewIndex(entries []search.Suggestion) *Index {
	return &Index{entries: entries}
}

// DefaultIndex carries the built-in health keyword table.
func DefaultIndex() *Index {
	return NewIndex([]search.Suggestion{
		{Query: "감기 증상", Label: "감기 증상이 궁금해요", Type: "local"},
		{Query: "감기약 종류", Label: "감기약에는 어떤 게 있나요", Type: "local"},
		{Query: "타이레놀 복용법", Label: "타이레놀은 어떻게 먹나요", Type: "local"},
		{Query: "두통 원인", Label: "두통이 생기는 이유", Type: "local"},
		{Query: "소화불량 대처", Label: "소화불량엔 어떻게 하나요", Type: "local"},
		{Query: "혈압 정상 수치", Label: "혈압 정상 범위가 궁금해요", Type: "local"},
		{Query: "당뇨 초기 증상", Label: "당뇨 초기 증상이 궁금해요", Type: "local"},
		{Query: "독감 예방접종", Label: "독감 예방접종 시기", Type: "local"},
		{Query: "어지럼증 원인", Label: "어지러울 때 의심 질환", Type: "local"},
		{Query: "변비 해결", Label: "변비에 좋은 습관", Type: "local"},
	})
}

// Match returns at most maxItems entries whose query or label matches q
// directly or by initial consonants.
func (ix *Index) Match(q string) []search.Suggestion {
	if strings.TrimSpace(q) == "" {
		return nil
	}
	var out []search.Suggestion
	for _, e := range ix.entries {
		if hangul.Match(q, e.Query) || hangul.Match(q, e.Label) {
			out = append(out, e)
			if len(out) == maxItems {
				break
			}
		}
	}
	return out
}

// Aggregator debounces input edits and publishes merged suggestion sets.
type Aggregator struct {
	remote  Remote
	index   *Index
	publish func(Result)
	delay   time.Duration
	cache   *cache.Cache

	mu     sync.Mutex
	seq    uint64
	timer  *time.Timer
	closed bool
}

// New wires an aggregator. publish is called from aggregator goroutines and
// must be safe for concurrent use.
func New(remote Remote, index *Index, publish func(Result)) *Aggregator {
	return &Aggregator{
		remote:  remote,
		index:   index,
		publish: publish,
		delay:   debounceDelay,
		cache:   cache.New(remoteCacheTTL, remoteCacheSweep),
	}
}

// SetInput registers the current input text. Each call supersedes all pending
// work for earlier inputs; an empty input clears suggestions immediately.
func (a *Aggregator) SetInput(q string) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.seq++
	seq := a.seq
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	if strings.TrimSpace(q) == "" {
		a.mu.Unlock()
		a.publish(Result{Seq: seq, Query: q})
		return
	}
	a.timer = time.AfterFunc(a.delay, func() { a.fire(seq, q) })
	a.mu.Unlock()
}

// Close stops pending timers; in-flight remote lookups finish but publish
// nothing.
func (a *Aggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *Aggregator) fire(seq uint64, q string) {
	a.mu.Lock()
	if a.closed || seq != a.seq {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	local := a.index.Match(q)

	if cached, ok := a.cache.Get(q); ok {
		// Already fetched while typing; one merged publish.
		a.publishIfCurrent(seq, q, merge(local, cached.([]search.Suggestion)))
		return
	}

	// Local matches first, remote folded in when it lands.
	a.publishIfCurrent(seq, q, local)

	items, err := a.remote.Suggest(context.Background(), q)
	if err != nil {
		log.Printf("suggest: remote lookup %q: %v", q, err)
		return
	}
	a.cache.Set(q, items, cache.DefaultExpiration)
	if len(items) == 0 {
		return
	}
	a.publishIfCurrent(seq, q, merge(local, items))
}

func (a *Aggregator) publishIfCurrent(seq uint64, q string, items []search.Suggestion) {
	a.mu.Lock()
	if a.closed || seq != a.seq {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()
	a.publish(Result{Seq: seq, Query: q, Items: items})
}

// merge keeps local entries first and appends remote entries whose query key
// is not already present, capped at maxItems.
func merge(local, remote []search.Suggestion) []search.Suggestion {
	out := make([]search.Suggestion, 0, maxItems)
	seen := make(map[string]bool, maxItems)
	for _, s := range local {
		key := stripKey(s.Query)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
		if len(out) == maxItems {
			return out
		}
	}
	for _, s := range remote {
		key := stripKey(s.Query)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
		if len(out) == maxItems {
			return out
		}
	}
	return out
}

func stripKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "")
}
