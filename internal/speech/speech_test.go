package speech

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestFoldResults(t *testing.T) {
	cases := []struct {
		name    string
		results []wireResult
		want    CaptureEvent
		ok      bool
	}{
		{
			name: "interim only",
			results: []wireResult{
				{Final: false, Alternatives: []wireAlternative{{Transcript: "혈압이"}}},
			},
			want: CaptureEvent{Partial: "혈압이"},
			ok:   true,
		},
		{
			name: "finals concatenated, alternative zero only",
			results: []wireResult{
				{Final: true, Alternatives: []wireAlternative{{Transcript: "혈압이 "}, {Transcript: "별압이 "}}},
				{Final: true, Alternatives: []wireAlternative{{Transcript: "높아"}}},
			},
			want: CaptureEvent{Final: "혈압이 높아"},
			ok:   true,
		},
		{
			name: "final wins over interim in same push",
			results: []wireResult{
				{Final: true, Alternatives: []wireAlternative{{Transcript: "안녕"}}},
				{Final: false, Alternatives: []wireAlternative{{Transcript: "하세"}}},
			},
			want: CaptureEvent{Final: "안녕"},
			ok:   true,
		},
		{
			name:    "empty push dropped",
			results: []wireResult{{Final: false, Alternatives: nil}},
			ok:      false,
		},
	}
	for _, tc := range cases {
		got, ok := foldResults(tc.results)
		if ok != tc.ok {
			t.Fatalf("%s: ok=%v want %v", tc.name, ok, tc.ok)
		}
		if ok && got != tc.want {
			t.Fatalf("%s: got %+v want %+v", tc.name, got, tc.want)
		}
	}
}

func TestMapErrorCode(t *testing.T) {
	if mapErrorCode("not-allowed") != ErrPermissionDenied {
		t.Fatalf("not-allowed should map to permission denied")
	}
	if mapErrorCode("no-speech") != ErrNoSpeech {
		t.Fatalf("no-speech mapping wrong")
	}
	if mapErrorCode("anything-else") != ErrTransportUnavailable {
		t.Fatalf("unknown codes should map to transport unavailable")
	}
}

func TestErrorKind_Fatal(t *testing.T) {
	if ErrNoSpeech.Fatal() {
		t.Fatalf("no-speech must be recoverable")
	}
	for _, k := range []ErrorKind{ErrPermissionDenied, ErrTransportUnavailable, ErrUnsupported} {
		if !k.Fatal() {
			t.Fatalf("%v must be fatal", k)
		}
	}
}

func TestCleanForSpeech(t *testing.T) {
	in := "**안심씨의 최종 권고:** 물을 드세요. [참고]"
	if got := CleanForSpeech(in); got != "안심씨의 최종 권고: 물을 드세요." {
		t.Fatalf("unexpected clean text: %q", got)
	}
}

// slowSynth emits a few chunks with delays so tests can interrupt mid-stream.
func slowSynth(chunks int, delay time.Duration, emitted *int32) SynthFunc {
	return func(ctx context.Context, u Utterance) (<-chan []byte, <-chan error) {
		pcm := make(chan []byte, chunks)
		errc := make(chan error, 1)
		go func() {
			defer close(pcm)
			defer close(errc)
			for i := 0; i < chunks; i++ {
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
				pcm <- []byte{1, 0, 2, 0}
				if emitted != nil {
					atomic.AddInt32(emitted, 1)
				}
			}
		}()
		return pcm, errc
	}
}

type countingSink struct {
	wrote   int32
	flushed int32
	resets  int32
}

func (s *countingSink) WritePCM(p []byte) { atomic.AddInt32(&s.wrote, 1) }
func (s *countingSink) FlushTail()        { atomic.AddInt32(&s.flushed, 1) }
func (s *countingSink) Reset()            { atomic.AddInt32(&s.resets, 1) }

func TestSpeaker_NaturalCompletionSignals(t *testing.T) {
	sink := &countingSink{}
	sp := NewSpeaker(slowSynth(3, time.Millisecond, nil), sink)
	h := sp.Speak(context.Background(), Utterance{Text: "안녕하세요"})

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected natural completion")
	}
	<-h.Finished()
	if !h.Completed() {
		t.Fatalf("expected Completed true")
	}
	if atomic.LoadInt32(&sink.wrote) == 0 {
		t.Fatalf("expected audio written")
	}
	if atomic.LoadInt32(&sink.flushed) != 1 {
		t.Fatalf("expected tail flushed once")
	}
}

func TestSpeaker_CancelSuppressesCompletion(t *testing.T) {
	var emitted int32
	sink := &countingSink{}
	sp := NewSpeaker(slowSynth(50, 5*time.Millisecond, &emitted), sink)
	h := sp.Speak(context.Background(), Utterance{Text: "긴 응답입니다"})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && atomic.LoadInt32(&emitted) == 0 {
		time.Sleep(time.Millisecond)
	}
	sp.Cancel()

	select {
	case <-h.Finished():
	case <-time.After(time.Second):
		t.Fatalf("cancelled utterance must finish")
	}
	select {
	case <-h.Done():
		t.Fatalf("cancelled utterance must not signal completion")
	case <-time.After(50 * time.Millisecond):
	}
	if h.Completed() {
		t.Fatalf("expected Completed false after cancel")
	}
	if atomic.LoadInt32(&sink.resets) == 0 {
		t.Fatalf("expected sink reset on cancel")
	}
}

func TestSpeaker_NewSpeakCancelsPrior(t *testing.T) {
	sink := &countingSink{}
	sp := NewSpeaker(slowSynth(50, 5*time.Millisecond, nil), sink)
	first := sp.Speak(context.Background(), Utterance{Text: "첫번째"})
	second := sp.Speak(context.Background(), Utterance{Text: "두번째"})

	select {
	case <-first.Finished():
	case <-time.After(time.Second):
		t.Fatalf("first utterance must be cancelled by second")
	}
	if first.Completed() {
		t.Fatalf("first utterance must not complete")
	}
	select {
	case <-second.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("second utterance must complete")
	}
}

func TestSpeaker_SynthErrorDegradesToCompletion(t *testing.T) {
	synth := func(ctx context.Context, u Utterance) (<-chan []byte, <-chan error) {
		pcm := make(chan []byte)
		errc := make(chan error, 1)
		errc <- context.DeadlineExceeded
		close(pcm)
		close(errc)
		return pcm, errc
	}
	sp := NewSpeaker(synth, &countingSink{})
	h := sp.Speak(context.Background(), Utterance{Text: "말할 수 없음"})

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatalf("synthesis failure must still complete the turn")
	}
}

func TestPacedWriter_ResetDropsQueued(t *testing.T) {
	w := NewPacedWriter(discardWriter{})
	defer w.Close()
	w.WritePCM(make([]byte, 48000)) // 0.5s of audio
	if w.Idle() {
		t.Fatalf("expected queued audio")
	}
	w.Reset()
	if !w.Idle() {
		t.Fatalf("expected queue drained after reset")
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
