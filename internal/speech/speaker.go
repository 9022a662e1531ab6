package speech

import (
	"context"
	"log"
	"sync"
)

// UtteranceHandle tracks one playback request. Done is closed only when the
// utterance completes naturally; a cancelled utterance never signals Done.
// Finished is closed when the utterance is over for any reason.
type UtteranceHandle struct {
	done     chan struct{}
	finished chan struct{}

	mu        sync.Mutex
	cancelled bool
	cancel    context.CancelFunc
}

// Done is the fire-once completion signal. Suppressed by cancellation.
func (h *UtteranceHandle) Done() <-chan struct{} { return h.done }

// Finished is closed when playback has ended, completed or cancelled.
func (h *UtteranceHandle) Finished() <-chan struct{} { return h.finished }

// Completed reports natural completion (true) versus interruption (false).
// Only meaningful after Finished.
func (h *UtteranceHandle) Completed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.cancelled
}

func (h *UtteranceHandle) markCancelled() {
	h.mu.Lock()
	h.cancelled = true
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Speaker plays synthesized speech through a Sink. At most one utterance is
// in flight: starting a new one cancels the prior one, and a cancelled
// utterance's completion signal is suppressed.
type Speaker struct {
	synth SynthFunc
	sink  Sink

	mu      sync.Mutex
	current *UtteranceHandle
}

// NewSpeaker builds a Speaker over the given synthesis transport and sink.
func NewSpeaker(synth SynthFunc, sink Sink) *Speaker {
	if sink == nil {
		sink = nopSink{}
	}
	return &Speaker{synth: synth, sink: sink}
}

// Speak starts playback of u, implicitly cancelling any in-flight utterance.
// Synthesis failure degrades to text-only: the handle still completes
// naturally so the caller's turn loop keeps going.
func (s *Speaker) Speak(ctx context.Context, u Utterance) *UtteranceHandle {
	h := &UtteranceHandle{
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	playCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	s.mu.Lock()
	if s.current != nil {
		s.current.markCancelled()
	}
	s.current = h
	s.mu.Unlock()

	go s.play(playCtx, u, h)
	return h
}

// Cancel interrupts the in-flight utterance, if any, suppressing its
// completion signal and dropping queued audio immediately.
func (s *Speaker) Cancel() {
	s.mu.Lock()
	h := s.current
	s.current = nil
	s.mu.Unlock()
	if h != nil {
		h.markCancelled()
	}
	s.sink.Reset()
}

func (s *Speaker) play(ctx context.Context, u Utterance, h *UtteranceHandle) {
	defer func() {
		s.mu.Lock()
		if s.current == h {
			s.current = nil
		}
		s.mu.Unlock()

		if h.Completed() {
			s.sink.FlushTail()
			close(h.done)
		} else {
			s.sink.Reset()
		}
		close(h.finished)
	}()

	pcmCh, errCh := s.synth(ctx, u)
	openPCM, openErr := true, true
	for openPCM || openErr {
		select {
		case b, ok := <-pcmCh:
			if !ok {
				openPCM = false
				continue
			}
			if len(b) > 0 && h.Completed() {
				s.sink.WritePCM(b)
			}
		case e, ok := <-errCh:
			if !ok {
				openErr = false
				continue
			}
			if e != nil {
				// Degrade to text-only; the turn loop must keep going.
				log.Printf("speaker: synthesis error (degrading to text): %v", e)
			}
		case <-ctx.Done():
			// Cut short for any reason means no completion signal.
			h.markCancelled()
			openPCM, openErr = false, false
		}
	}
}

type nopSink struct{}

func (nopSink) WritePCM([]byte) {}
func (nopSink) FlushTail()      {}
func (nopSink) Reset()          {}
