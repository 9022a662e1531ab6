package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gosandol/ansimssi/internal/stream"
)

// Client talks to the Ansimssi answer backend: the streaming answer protocol,
// the non-streaming voice endpoint, and suggestion lookup.
type Client struct {
	// HTTPClient has no global timeout; streaming responses stay open for the
	// whole generation. Per-call deadlines come from the caller's context.
	HTTPClient *http.Client
	BaseURL    string

	// SuggestTimeout bounds suggestion lookups; failures degrade silently at
	// the aggregator, so keep this short.
	SuggestTimeout time.Duration
}

// Answer is the non-streaming query response used by the voice path.
type Answer struct {
	Answer     string          `json:"answer"`
	Sources    []stream.Source `json:"sources,omitempty"`
	Disclaimer string          `json:"disclaimer,omitempty"`
}

// Suggestion is one completion candidate; Query is the dispatchable text,
// Label the display text.
type Suggestion struct {
	Query string `json:"query"`
	Label string `json:"label"`
	Type  string `json:"type,omitempty"`
}

type searchRequest struct {
	Query    string `json:"query"`
	ThreadID string `json:"thread_id,omitempty"`
}

func NewClient(baseURL string) *Client {
	return &Client{
		HTTPClient:     &http.Client{},
		BaseURL:        strings.TrimRight(baseURL, "/"),
		SuggestTimeout: 1500 * time.Millisecond,
	}
}

// Stream submits query over the streaming answer protocol and emits decoded
// events in arrival order. The event channel is closed at stream end; the
// error channel receives at most one error (transport failure or abort) and
// is then closed. Ending without a Done event is the caller's signal of an
// incomplete session.
func (c *Client) Stream(ctx context.Context, query, threadID string) (<-chan stream.Event, <-chan error) {
	events := make(chan stream.Event, 64)
	errc := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errc)

		body, _ := json.Marshal(searchRequest{Query: query, ThreadID: threadID})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/search", bytes.NewReader(body))
		if err != nil {
			errc <- err
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			errc <- fmt.Errorf("search stream: %w", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			errc <- fmt.Errorf("search stream: status=%d body=%s", resp.StatusCode, string(b))
			return
		}

		dec := stream.NewDecoder()
		buf := make([]byte, 4096)
		for {
			n, rerr := resp.Body.Read(buf)
			if n > 0 {
				for _, ev := range dec.Decode(buf[:n]) {
					select {
					case events <- ev:
					case <-ctx.Done():
						errc <- ctx.Err()
						return
					}
				}
			}
			if rerr != nil {
				if rerr == io.EOF {
					for _, ev := range dec.Flush() {
						select {
						case events <- ev:
						case <-ctx.Done():
							errc <- ctx.Err()
							return
						}
					}
					return
				}
				errc <- fmt.Errorf("search stream read: %w", rerr)
				return
			}
		}
	}()

	return events, errc
}

// Ask hits the non-streaming query endpoint. Used by the voice turn loop,
// which wants one whole utterance to synthesize.
func (c *Client) Ask(ctx context.Context, query string) (Answer, error) {
	body, _ := json.Marshal(searchRequest{Query: query})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/answer", bytes.NewReader(body))
	if err != nil {
		return Answer{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Answer{}, fmt.Errorf("answer: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Answer{}, fmt.Errorf("answer: status=%d body=%s", resp.StatusCode, string(b))
	}
	var out Answer
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Answer{}, fmt.Errorf("answer decode: %w", err)
	}
	return out, nil
}

// Suggest fetches remote completion candidates for the given prefix. The
// deadline is enforced here so callers can treat any error as "no remote
// suggestions" without their own timer.
func (c *Client) Suggest(ctx context.Context, q string) ([]Suggestion, error) {
	timeout := c.SuggestTimeout
	if timeout <= 0 {
		timeout = 1500 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := c.BaseURL + "/api/suggest?q=" + url.QueryEscape(q)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("suggest: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("suggest: status=%d", resp.StatusCode)
	}
	var out []Suggestion
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("suggest decode: %w", err)
	}
	return out, nil
}
