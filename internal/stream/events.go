package stream

// Event is one decoded record of the line-delimited answer protocol.
// The set is closed: Meta, Content, Done.
type Event interface{ isEvent() }

// Source is a single cited reference. It is never mutated after decode.
type Source struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	Snippet    string `json:"snippet,omitempty"`
	IsSolution bool   `json:"is_solution,omitempty"`
}

// Paper is an academic reference attached to an answer.
type Paper struct {
	Title           string `json:"title"`
	Link            string `json:"link"`
	Year            string `json:"year,omitempty"`
	PublicationInfo string `json:"publication_info,omitempty"`
	Snippet         string `json:"snippet,omitempty"`
}

// Meta carries the structured answer metadata. The protocol conventionally
// sends one meta record early, but zero or more must be tolerated.
type Meta struct {
	Sources    []Source
	Images     []string
	Academic   []Paper
	Disclaimer string
}

// Content carries one incremental answer-text fragment.
type Content struct {
	Delta string
}

// Done terminates a session normally.
type Done struct {
	RelatedQuestions []string
}

func (Meta) isEvent()    {}
func (Content) isEvent() {}
func (Done) isEvent()    {}
