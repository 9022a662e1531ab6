package session

import (
	"github.com/gosandol/ansimssi/internal/stream"
)

// Snapshot is the accumulated, render-ready state of one query's answer.
// It is a value type: Fold returns a new Snapshot and never mutates its input,
// so a published Snapshot can be handed to any reader without copying.
type Snapshot struct {
	AnswerText       string
	Sources          []stream.Source
	Images           []string
	Academic         []stream.Paper
	Disclaimer       string
	RelatedQuestions []string
	IsComplete       bool
}

// Fold applies one stream event to a snapshot. It is a pure function: no
// side effects, no I/O. AnswerText is append-only; meta fields use
// last-non-empty-write-wins so repeated meta records are tolerated.
func Fold(s Snapshot, ev stream.Event) Snapshot {
	switch e := ev.(type) {
	case stream.Meta:
		if len(e.Sources) > 0 {
			s.Sources = e.Sources
		}
		if len(e.Images) > 0 {
			s.Images = e.Images
		}
		if len(e.Academic) > 0 {
			s.Academic = e.Academic
		}
		if e.Disclaimer != "" {
			s.Disclaimer = e.Disclaimer
		}
	case stream.Content:
		s.AnswerText += e.Delta
	case stream.Done:
		s.RelatedQuestions = e.RelatedQuestions
		s.IsComplete = true
	}
	return s
}
