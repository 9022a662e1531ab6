package speech

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// resultMessage mirrors one recognition push from the STT gateway: a set of
// recognitions from a given index onward, each flagged final or interim.
type resultMessage struct {
	Type    string       `json:"type"`
	Index   int          `json:"index"`
	Results []wireResult `json:"results"`
}

type wireResult struct {
	Final        bool              `json:"final"`
	Alternatives []wireAlternative `json:"alternatives"`
}

type wireAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence,omitempty"`
}

type errorMessage struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

// GatewayRecognizer captures speech through the Ansimssi STT gateway over a
// WebSocket. It normalizes gateway pushes into CaptureEvents: interim text as
// partials, finals concatenated into one finalized utterance per push.
type GatewayRecognizer struct {
	gatewayURL string
	lang       string

	events chan CaptureEvent

	mu     sync.RWMutex
	conn   *websocket.Conn
	active bool
	closed bool
}

// NewGatewayRecognizer builds a recognizer for the given ws:// gateway URL.
func NewGatewayRecognizer(gatewayURL, lang string) *GatewayRecognizer {
	if lang == "" {
		lang = "ko-KR"
	}
	return &GatewayRecognizer{
		gatewayURL: gatewayURL,
		lang:       lang,
		events:     make(chan CaptureEvent, 32),
	}
}

// Events returns the normalized capture event stream. The channel survives
// Start/Stop cycles and is closed by Close.
func (r *GatewayRecognizer) Events() <-chan CaptureEvent { return r.events }

// Start opens a capture cycle. Calling Start while already active is a no-op,
// not an error. Dial failures surface as a TransportUnavailable event rather
// than an error return so the caller's event loop sees every failure the same
// way.
func (r *GatewayRecognizer) Start() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("recognizer closed")
	}
	if r.active {
		r.mu.Unlock()
		return nil
	}

	if r.gatewayURL == "" {
		r.mu.Unlock()
		r.emit(CaptureEvent{Err: ErrUnsupported})
		return nil
	}

	params := url.Values{}
	params.Set("lang", r.lang)
	wsURL := r.gatewayURL + "?" + params.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(wsURL, nil)
	if err != nil {
		kind := ErrTransportUnavailable
		if resp != nil && (resp.StatusCode == 401 || resp.StatusCode == 403) {
			kind = ErrPermissionDenied
		}
		r.mu.Unlock()
		log.Printf("recognizer: dial failed: %v", err)
		r.emit(CaptureEvent{Err: kind})
		return nil
	}

	r.conn = conn
	r.active = true
	r.mu.Unlock()

	go r.readLoop(conn)
	return nil
}

// Stop ends the capture cycle and releases the connection before returning.
// No events for this cycle are delivered after Stop returns and the reader
// has observed the closed socket.
func (r *GatewayRecognizer) Stop() {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.active = false
	r.mu.Unlock()
	if conn != nil {
		_ = conn.WriteJSON(map[string]string{"type": "stop"})
		_ = conn.Close()
	}
}

// Close stops capture and closes the event stream. The recognizer cannot be
// restarted afterwards.
func (r *GatewayRecognizer) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	conn := r.conn
	r.conn = nil
	r.active = false
	close(r.events)
	r.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	return nil
}

func (r *GatewayRecognizer) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			// A read error after Stop/Close is the normal teardown path;
			// only an active cycle reports it.
			r.mu.RLock()
			active := r.conn == conn
			r.mu.RUnlock()
			if active {
				log.Printf("recognizer: read error: %v", err)
				r.emit(CaptureEvent{Err: ErrTransportUnavailable})
			}
			return
		}
		if ev, ok := r.processMessage(conn, message); ok {
			r.emit(ev)
		}
	}
}

// processMessage normalizes one gateway frame. Unknown or malformed frames
// are dropped with a log line, matching the answer-protocol policy.
func (r *GatewayRecognizer) processMessage(conn *websocket.Conn, message []byte) (CaptureEvent, bool) {
	r.mu.RLock()
	current := r.conn == conn
	r.mu.RUnlock()
	if !current {
		return CaptureEvent{}, false
	}

	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		log.Printf("recognizer: dropping malformed frame: %v", err)
		return CaptureEvent{}, false
	}
	switch base.Type {
	case "result":
		var msg resultMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("recognizer: dropping malformed result: %v", err)
			return CaptureEvent{}, false
		}
		return foldResults(msg.Results)
	case "error":
		var msg errorMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("recognizer: dropping malformed error frame: %v", err)
			return CaptureEvent{}, false
		}
		return CaptureEvent{Err: mapErrorCode(msg.Code)}, true
	default:
		log.Printf("recognizer: ignoring frame type %q", base.Type)
		return CaptureEvent{}, false
	}
}

// foldResults consumes alternative 0 of each result, concatenating finals.
// If any final text is present the event is a Final, otherwise a Partial of
// the concatenated interim text.
func foldResults(results []wireResult) (CaptureEvent, bool) {
	var final, interim string
	for _, res := range results {
		if len(res.Alternatives) == 0 {
			continue
		}
		text := res.Alternatives[0].Transcript
		if res.Final {
			final += text
		} else {
			interim += text
		}
	}
	if final != "" {
		return CaptureEvent{Final: final}, true
	}
	if interim != "" {
		return CaptureEvent{Partial: interim}, true
	}
	return CaptureEvent{}, false
}

func mapErrorCode(code string) ErrorKind {
	switch code {
	case "permission-denied", "not-allowed", "service-not-allowed":
		return ErrPermissionDenied
	case "no-speech":
		return ErrNoSpeech
	case "unsupported":
		return ErrUnsupported
	default:
		return ErrTransportUnavailable
	}
}

// emit never blocks capture on a slow consumer; the newest events win.
// The send happens under the read lock so Close cannot close the channel
// mid-send.
func (r *GatewayRecognizer) emit(ev CaptureEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	default:
		log.Printf("recognizer: event buffer full, dropping event")
	}
}
