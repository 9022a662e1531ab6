package stream

import (
	"bytes"
	"encoding/json"
	"log"
	"strings"
)

// record mirrors the wire shape of every protocol line. One struct covers all
// record types; the Type field selects which fields are meaningful.
type record struct {
	Type             string   `json:"type"`
	Sources          []Source `json:"sources"`
	Images           []string `json:"images"`
	Academic         []Paper  `json:"academic"`
	Disclaimer       string   `json:"disclaimer"`
	Delta            string   `json:"delta"`
	RelatedQuestions []string `json:"related_questions"`
}

// Decoder reassembles newline-delimited JSON records from arbitrary byte
// chunks. A single Decoder serves a single network stream; it is not safe for
// concurrent use and does not need to be (one reader goroutine per stream).
type Decoder struct {
	buf []byte
}

// NewDecoder returns a Decoder with an empty reassembly buffer.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode appends chunk to the internal buffer and emits one event per
// complete line, in line order. The trailing fragment after the last newline
// is retained for the next call, so a record split across chunk boundaries
// (including mid UTF-8 sequence) is reassembled exactly.
func (d *Decoder) Decode(chunk []byte) []Event {
	if len(chunk) == 0 {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var events []Event
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := d.buf[:idx]
		d.buf = d.buf[idx+1:]
		if ev, ok := parseLine(line); ok {
			events = append(events, ev)
		}
	}
	return events
}

// Flush parses any final unterminated line. Call exactly once at stream end.
func (d *Decoder) Flush() []Event {
	if len(d.buf) == 0 {
		return nil
	}
	line := d.buf
	d.buf = nil
	if ev, ok := parseLine(line); ok {
		return []Event{ev}
	}
	return nil
}

// parseLine decodes one protocol line. A malformed line or an unrecognized
// type is dropped with a log line; it never aborts the stream.
func parseLine(line []byte) (Event, bool) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return nil, false
	}
	var rec record
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		log.Printf("stream: dropping malformed line (%d bytes): %v", len(trimmed), err)
		return nil, false
	}
	switch rec.Type {
	case "meta":
		return Meta{
			Sources:    rec.Sources,
			Images:     rec.Images,
			Academic:   rec.Academic,
			Disclaimer: strings.TrimSpace(rec.Disclaimer),
		}, true
	case "content":
		return Content{Delta: rec.Delta}, true
	case "done":
		return Done{RelatedQuestions: rec.RelatedQuestions}, true
	case "":
		log.Printf("stream: dropping record without type field")
		return nil, false
	default:
		// Forward-compatible: unknown record types are ignorable by contract.
		log.Printf("stream: ignoring record type %q", rec.Type)
		return nil, false
	}
}
