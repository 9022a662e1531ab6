// Command simserver simulates the assistant backend: the streaming search
// endpoint, the non-streaming answer endpoint, and suggestion lookup. It lets
// the client binary run end to end without the real service.
package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/gosandol/ansimssi/internal/hangul"
	"github.com/gosandol/ansimssi/internal/stream"
)

type searchRequest struct {
	Query    string `json:"query"`
	ThreadID string `json:"thread_id"`
}

type metaRecord struct {
	Type       string          `json:"type"`
	Sources    []stream.Source `json:"sources,omitempty"`
	Images     []string        `json:"images,omitempty"`
	Academic   []stream.Paper  `json:"academic,omitempty"`
	Disclaimer string          `json:"disclaimer,omitempty"`
}

type contentRecord struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
}

type doneRecord struct {
	Type             string   `json:"type"`
	RelatedQuestions []string `json:"related_questions,omitempty"`
}

type answerResponse struct {
	Answer     string          `json:"answer"`
	Sources    []stream.Source `json:"sources,omitempty"`
	Disclaimer string          `json:"disclaimer,omitempty"`
}

type suggestion struct {
	Query string `json:"query"`
	Label string `json:"label"`
	Type  string `json:"type,omitempty"`
}

const deltaRunes = 12

func newServer(delay time.Duration) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.POST("/api/search", func(c echo.Context) error {
		var req searchRequest
		if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Query) == "" {
			return c.String(http.StatusBadRequest, "missing query")
		}
		ans := pickAnswer(req.Query)

		res := c.Response()
		res.Header().Set(echo.HeaderContentType, "application/x-ndjson")
		res.WriteHeader(http.StatusOK)
		enc := json.NewEncoder(res)
		write := func(v any) error {
			if err := enc.Encode(v); err != nil {
				return err
			}
			res.Flush()
			return nil
		}

		if err := write(metaRecord{
			Type:       "meta",
			Sources:    ans.sources,
			Academic:   ans.academic,
			Disclaimer: ans.disclaimer,
		}); err != nil {
			return nil
		}

		ctx := c.Request().Context()
		for _, delta := range chunks(ans.body, deltaRunes) {
			if delay > 0 {
				select {
				case <-ctx.Done():
					// Client went away mid-stream; nothing left to send.
					return nil
				case <-time.After(delay):
				}
			}
			if err := write(contentRecord{Type: "content", Delta: delta}); err != nil {
				return nil
			}
		}
		_ = write(doneRecord{Type: "done", RelatedQuestions: ans.related})
		return nil
	})

	e.POST("/api/answer", func(c echo.Context) error {
		var req searchRequest
		if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Query) == "" {
			return c.String(http.StatusBadRequest, "missing query")
		}
		ans := pickAnswer(req.Query)
		return c.JSON(http.StatusOK, answerResponse{
			Answer:     ans.body,
			Sources:    ans.sources,
			Disclaimer: ans.disclaimer,
		})
	})

	e.GET("/api/suggest", func(c echo.Context) error {
		q := c.QueryParam("q")
		out := []suggestion{}
		if strings.TrimSpace(q) != "" {
			for _, s := range cannedSuggestions {
				if hangul.Match(q, s.Query) || hangul.Match(q, s.Label) {
					out = append(out, s)
				}
			}
		}
		return c.JSON(http.StatusOK, out)
	})

	return e
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	delay := flag.Duration("delay", 60*time.Millisecond, "inter-chunk streaming delay")
	flag.Parse()

	e := newServer(*delay)
	e.Logger.Fatal(e.Start(*addr))
}
