package speech

import "context"

// ErrorKind classifies capture failures. Only PermissionDenied,
// TransportUnavailable and Unsupported are fatal to a voice session;
// NoSpeech is absorbed by the turn controller.
type ErrorKind int

const (
	ErrNone ErrorKind = iota
	ErrPermissionDenied
	ErrNoSpeech
	ErrTransportUnavailable
	ErrUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNone:
		return "none"
	case ErrPermissionDenied:
		return "permission-denied"
	case ErrNoSpeech:
		return "no-speech"
	case ErrTransportUnavailable:
		return "transport-unavailable"
	case ErrUnsupported:
		return "unsupported"
	}
	return "unknown"
}

// Fatal reports whether this error kind ends the voice session.
func (k ErrorKind) Fatal() bool {
	return k == ErrPermissionDenied || k == ErrTransportUnavailable || k == ErrUnsupported
}

// CaptureEvent is one normalized recognition event: a running partial, a
// finalized utterance, or an error. Exactly one field is meaningful.
type CaptureEvent struct {
	Partial string
	Final   string
	Err     ErrorKind
}

// Recognizer is the minimal interface for speech capture. One instance may be
// active at a time; Start while active is a no-op, and Stop releases the
// microphone before returning.
type Recognizer interface {
	Start() error
	Stop()
	Events() <-chan CaptureEvent
	Close() error
}

// RecognizerFactory builds a fresh Recognizer instance. The voice turn
// controller creates one instance per capture generation so stale callbacks
// are attributable to the instance that produced them.
type RecognizerFactory func() Recognizer

// Utterance is one playback request.
type Utterance struct {
	Text    string
	Lang    string
	Rate    float64
	VoiceID string
}

// Sink consumes 48kHz PCM16LE mono and performs delivery. Implementations
// buffer internally and pace output; Reset drops queued audio immediately
// so interruption feels instant.
type Sink interface {
	WritePCM(pcm []byte)
	FlushTail()
	Reset()
}

// SynthFunc streams 48kHz PCM for the given utterance. The audio channel is
// closed at synthesis end; the error channel carries at most one error.
type SynthFunc func(ctx context.Context, u Utterance) (<-chan []byte, <-chan error)
