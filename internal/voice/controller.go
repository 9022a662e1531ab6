package voice

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gosandol/ansimssi/internal/search"
	"github.com/gosandol/ansimssi/internal/speech"
)

// State of the voice turn loop.
type State int

const (
	StateIdle State = iota
	StateListening
	StateProcessing
	StateSpeaking
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	case StateError:
		return "error"
	}
	return "unknown"
}

const (
	dispatchTimeout = 20 * time.Second

	dispatchApology = "오류가 발생했습니다."
	emptyAnswer     = "죄송합니다. 답변을 찾을 수 없습니다."
)

// Dispatcher answers one voice query. The voice path uses the non-streaming
// endpoint: one whole utterance to synthesize.
type Dispatcher interface {
	Ask(ctx context.Context, query string) (search.Answer, error)
}

// PlaybackHandle is the observable side of one utterance.
type PlaybackHandle interface {
	Done() <-chan struct{}
	Finished() <-chan struct{}
	Completed() bool
}

// Playback is the speech playback adapter as the controller sees it.
type Playback interface {
	Speak(ctx context.Context, u speech.Utterance) PlaybackHandle
	Cancel()
}

type speakerPlayback struct{ s *speech.Speaker }

func (p speakerPlayback) Speak(ctx context.Context, u speech.Utterance) PlaybackHandle {
	return p.s.Speak(ctx, u)
}
func (p speakerPlayback) Cancel() { p.s.Cancel() }

// WrapSpeaker adapts a speech.Speaker to the Playback interface.
func WrapSpeaker(s *speech.Speaker) Playback { return speakerPlayback{s: s} }

// Status is the published, read-only view of the voice session.
type Status struct {
	State             State
	Transcript        string
	Response          string
	ErrReason         speech.ErrorKind
	Settings          Settings
	PermissionGranted bool
}

// Controller drives the voice conversation turn loop:
// Listening -> Processing -> Speaking -> Listening. Every adapter callback
// carries the generation and the instance that produced it; callbacks from a
// superseded generation or a replaced instance never cause a transition.
type Controller struct {
	dispatch      Dispatcher
	playback      Playback
	newRecognizer speech.RecognizerFactory
	store         SettingsStore
	onChange      func(Status)

	mu          sync.Mutex
	open        bool
	state       State
	gen         uint64
	rec         speech.Recognizer
	transcript  string
	response    string
	errReason   speech.ErrorKind
	settings    Settings
	permission  bool
	overlayOpen bool
	sessCtx     context.Context
	sessCancel  context.CancelFunc
}

// NewController wires the turn loop. onChange may be nil.
func NewController(d Dispatcher, p Playback, f speech.RecognizerFactory, store SettingsStore, onChange func(Status)) *Controller {
	return &Controller{
		dispatch:      d,
		playback:      p,
		newRecognizer: f,
		store:         store,
		onChange:      onChange,
		settings:      DefaultSettings(),
	}
}

// Open starts a voice session. With permission already granted, capture
// starts immediately; otherwise the session sits in Idle until
// GrantPermission.
func (c *Controller) Open(ctx context.Context) {
	c.mu.Lock()
	if c.open {
		c.mu.Unlock()
		return
	}
	prof, err := c.store.Load()
	if err != nil {
		log.Printf("voice: loading settings: %v", err)
		prof = Profile{Settings: DefaultSettings()}
	}
	c.settings = prof.Settings
	c.permission = prof.PermissionGranted
	c.open = true
	c.transcript = ""
	c.response = ""
	c.errReason = speech.ErrNone
	c.sessCtx, c.sessCancel = context.WithCancel(ctx)
	if c.permission {
		c.startListeningLocked()
	} else {
		c.state = StateIdle
	}
	st := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(st)
}

// GrantPermission records consent, persists the hands-free choice made on the
// consent surface, and arms capture.
func (c *Controller) GrantPermission(handsFree bool) {
	c.mu.Lock()
	c.permission = true
	c.settings.HandsFree = handsFree
	c.saveProfileLocked()
	if c.open && c.state == StateIdle {
		c.startListeningLocked()
	}
	st := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(st)
}

// Status returns the current session view.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Resume manually re-arms capture from the paused Idle state (non-hands-free
// flows, or after the settings overlay interrupted listening).
func (c *Controller) Resume() {
	c.mu.Lock()
	if c.open && c.permission && c.state == StateIdle {
		c.startListeningLocked()
	}
	st := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(st)
}

// Retry leaves the Error state. Permission failures require a fresh
// GrantPermission; everything else restarts capture directly.
func (c *Controller) Retry() {
	c.mu.Lock()
	if !c.open || c.state != StateError {
		c.mu.Unlock()
		return
	}
	c.errReason = speech.ErrNone
	if c.permission {
		c.startListeningLocked()
	} else {
		c.state = StateIdle
	}
	st := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(st)
}

// SetOverlayOpen tracks the modal settings surface. Opening it while
// listening releases the microphone; closing it never restarts capture by
// itself — only playback completion or an explicit Resume/Open re-arms.
func (c *Controller) SetOverlayOpen(openOverlay bool) {
	c.mu.Lock()
	c.overlayOpen = openOverlay
	var rec speech.Recognizer
	if openOverlay && c.state == StateListening {
		rec = c.rec
		c.rec = nil
		c.gen++
		c.state = StateIdle
		c.transcript = ""
	}
	st := c.snapshotLocked()
	c.mu.Unlock()
	if rec != nil {
		rec.Stop()
		_ = rec.Close()
	}
	c.emit(st)
}

// UpdateSettings persists new preferences. A settings change while listening
// replaces the capture instance, the hand-off window the generation guard
// exists for.
func (c *Controller) UpdateSettings(s Settings) {
	c.mu.Lock()
	c.settings = s
	c.saveProfileLocked()
	if c.open && c.state == StateListening {
		c.startListeningLocked()
	}
	st := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(st)
}

// Close tears the session down: capture aborted, playback cancelled,
// ephemeral state cleared. Both resources are released on this path
// regardless of the state the session was in.
func (c *Controller) Close() {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return
	}
	c.open = false
	c.gen++ // all in-flight callbacks are now stale
	rec := c.rec
	c.rec = nil
	c.state = StateIdle
	c.transcript = ""
	c.response = ""
	c.errReason = speech.ErrNone
	cancel := c.sessCancel
	c.sessCancel = nil
	c.sessCtx = nil
	st := c.snapshotLocked()
	c.mu.Unlock()

	if rec != nil {
		rec.Stop()
		_ = rec.Close()
	}
	c.playback.Cancel()
	if cancel != nil {
		cancel()
	}
	c.emit(st)
}

// startListeningLocked opens a new capture generation. The previous instance,
// if any, is closed; its late events carry the old generation and instance and
// are dropped by handleCapture.
func (c *Controller) startListeningLocked() {
	c.gen++
	gen := c.gen
	old := c.rec
	rec := c.newRecognizer()
	c.rec = rec
	c.state = StateListening
	c.errReason = speech.ErrNone
	if old != nil {
		old.Stop()
		_ = old.Close()
	}
	if err := rec.Start(); err != nil {
		log.Printf("voice: capture start: %v", err)
	}
	go c.pump(gen, rec)
}

func (c *Controller) pump(gen uint64, rec speech.Recognizer) {
	for ev := range rec.Events() {
		c.handleCapture(gen, rec, ev)
	}
}

// handleCapture is the single entry point for capture callbacks. Identity of
// the instance, not state alone, gates every transition.
func (c *Controller) handleCapture(gen uint64, rec speech.Recognizer, ev speech.CaptureEvent) {
	c.mu.Lock()
	if !c.open || gen != c.gen || rec != c.rec {
		c.mu.Unlock()
		return
	}

	switch {
	case ev.Err == speech.ErrNoSpeech:
		// Recoverable: absorb silently and keep the cycle alive.
		if c.state == StateListening {
			if err := rec.Start(); err != nil {
				log.Printf("voice: capture restart after no-speech: %v", err)
			}
		}
		c.mu.Unlock()

	case ev.Err != speech.ErrNone:
		c.state = StateError
		c.errReason = ev.Err
		c.rec = nil
		c.transcript = ""
		if ev.Err == speech.ErrPermissionDenied {
			// Re-consent required next time.
			c.permission = false
			c.saveProfileLocked()
		}
		st := c.snapshotLocked()
		c.mu.Unlock()
		rec.Stop()
		_ = rec.Close()
		c.playback.Cancel()
		c.emit(st)

	case ev.Final != "":
		if c.state != StateListening {
			c.mu.Unlock()
			return
		}
		c.transcript = ev.Final
		c.state = StateProcessing
		st := c.snapshotLocked()
		c.mu.Unlock()
		rec.Stop()
		c.emit(st)
		go c.process(gen, ev.Final)

	case ev.Partial != "":
		if c.state != StateListening {
			c.mu.Unlock()
			return
		}
		c.transcript = ev.Partial
		st := c.snapshotLocked()
		c.mu.Unlock()
		c.emit(st)

	default:
		c.mu.Unlock()
	}
}

// process dispatches the finalized utterance and starts playback of the
// answer. A dispatch failure is spoken as an apology and the loop continues;
// it never strands the session.
func (c *Controller) process(gen uint64, query string) {
	c.mu.Lock()
	sessCtx := c.sessCtx
	c.mu.Unlock()
	if sessCtx == nil {
		return
	}

	askCtx, cancel := context.WithTimeout(sessCtx, dispatchTimeout)
	ans, err := c.dispatch.Ask(askCtx, query)
	cancel()

	text := ans.Answer
	if err != nil {
		log.Printf("voice: dispatch failed: %v", err)
		text = dispatchApology
	} else if text == "" {
		text = emptyAnswer
	}

	c.mu.Lock()
	if !c.open || gen != c.gen || c.state != StateProcessing {
		c.mu.Unlock()
		return
	}
	c.response = text
	c.state = StateSpeaking
	u := speech.Utterance{
		Text:    text,
		Lang:    "ko-KR",
		Rate:    c.settings.SpeechRate,
		VoiceID: c.settings.VoiceID,
	}
	// Speak before releasing the lock so the Speaking state is never
	// observable without its playback handle in flight.
	h := c.playback.Speak(sessCtx, u)
	st := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(st)
	go func() {
		<-h.Finished()
		if h.Completed() {
			c.handlePlaybackDone(gen)
		}
	}()
}

// handlePlaybackDone closes the turn. Hands-free re-arms capture unless the
// settings overlay is open; otherwise the session pauses awaiting Resume.
func (c *Controller) handlePlaybackDone(gen uint64) {
	c.mu.Lock()
	if !c.open || gen != c.gen || c.state != StateSpeaking {
		c.mu.Unlock()
		return
	}
	c.transcript = ""
	if c.settings.HandsFree && !c.overlayOpen {
		c.startListeningLocked()
	} else {
		c.state = StateIdle
	}
	st := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(st)
}

func (c *Controller) snapshotLocked() Status {
	return Status{
		State:             c.state,
		Transcript:        c.transcript,
		Response:          c.response,
		ErrReason:         c.errReason,
		Settings:          c.settings,
		PermissionGranted: c.permission,
	}
}

func (c *Controller) saveProfileLocked() {
	if c.store == nil {
		return
	}
	if err := c.store.Save(Profile{Settings: c.settings, PermissionGranted: c.permission}); err != nil {
		log.Printf("voice: saving settings: %v", err)
	}
}

func (c *Controller) emit(st Status) {
	if c.onChange != nil {
		c.onChange(st)
	}
}
