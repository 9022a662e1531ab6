package speech

import (
	"io"
	"sync"
	"time"
)

// PacedWriter buffers 48kHz PCM16LE mono and delivers it to an output device
// in paced 20ms frames. It implements Sink. Reset drops queued frames so a
// cancelled utterance goes silent immediately.
type PacedWriter struct {
	out          io.Writer
	frameBytes   int
	pcmBuf       []byte
	frames       chan []byte
	stopCh       chan struct{}
	stopped      bool
	mu           sync.Mutex
}

const (
	sampleRate    = 48000
	frameDuration = 20 * time.Millisecond
)

// NewPacedWriter constructs a paced writer with 20ms frames at 48kHz mono.
func NewPacedWriter(out io.Writer) *PacedWriter {
	w := &PacedWriter{
		out:        out,
		frameBytes: sampleRate / 50 * 2, // 20ms of s16le mono
		frames:     make(chan []byte, 512),
		stopCh:     make(chan struct{}),
	}
	go w.pacer()
	return w
}

// WritePCM buffers PCM data and emits full frames to the pacer queue.
func (w *PacedWriter) WritePCM(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pcmBuf = append(w.pcmBuf, pcm...)
	for len(w.pcmBuf) >= w.frameBytes {
		frame := make([]byte, w.frameBytes)
		copy(frame, w.pcmBuf[:w.frameBytes])
		w.pcmBuf = w.pcmBuf[w.frameBytes:]
		w.pushFrame(frame)
	}
}

// FlushTail pads any remaining PCM to a full frame so the last syllable is
// not clipped.
func (w *PacedWriter) FlushTail() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pcmBuf) == 0 {
		return
	}
	frame := make([]byte, w.frameBytes)
	copy(frame, w.pcmBuf)
	w.pcmBuf = w.pcmBuf[:0]
	w.pushFrame(frame)
}

// Reset drops all queued audio immediately.
func (w *PacedWriter) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pcmBuf = w.pcmBuf[:0]
	for {
		select {
		case <-w.frames:
		default:
			return
		}
	}
}

// Close stops the pacer goroutine.
func (w *PacedWriter) Close() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.stopCh)
	}
	w.mu.Unlock()
}

// Idle reports whether all queued audio has been delivered.
func (w *PacedWriter) Idle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pcmBuf) == 0 && len(w.frames) == 0
}

func (w *PacedWriter) pacer() {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			select {
			case frame := <-w.frames:
				_, _ = w.out.Write(frame)
			default:
			}
		}
	}
}

// pushFrame enqueues a frame, dropping the oldest when the queue is full so
// synthesis that outruns playback cannot block the caller.
func (w *PacedWriter) pushFrame(frame []byte) {
	for {
		select {
		case w.frames <- frame:
			return
		default:
			select {
			case <-w.frames:
			default:
			}
		}
	}
}
