package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
)

// GatewaySynth synthesizes speech through the Ansimssi TTS gateway, which
// streams raw 48kHz PCM16LE over a chunked HTTP response.
type GatewaySynth struct {
	HTTPClient *http.Client
	BaseURL    string
}

func NewGatewaySynth(baseURL string) *GatewaySynth {
	return &GatewaySynth{
		HTTPClient: &http.Client{},
		BaseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type speakRequest struct {
	Text    string  `json:"text"`
	Lang    string  `json:"lang"`
	Rate    float64 `json:"rate"`
	VoiceID string  `json:"voice_id,omitempty"`
}

// markupRe strips markdown emphasis and bracketed tags before synthesis so
// the voice never reads out formatting characters.
var markupRe = regexp.MustCompile(`[*#]|\[[^\]]*\]`)

// CleanForSpeech removes render markup from answer text.
func CleanForSpeech(text string) string {
	return strings.TrimSpace(markupRe.ReplaceAllString(text, ""))
}

// Stream implements SynthFunc.
func (g *GatewaySynth) Stream(ctx context.Context, u Utterance) (<-chan []byte, <-chan error) {
	pcmCh := make(chan []byte, 256)
	errCh := make(chan error, 1)

	go func() {
		defer close(pcmCh)
		defer close(errCh)

		text := CleanForSpeech(u.Text)
		if text == "" {
			return
		}
		lang := u.Lang
		if lang == "" {
			lang = "ko-KR"
		}
		rate := u.Rate
		if rate <= 0 {
			rate = 1.0
		}

		body, _ := json.Marshal(speakRequest{Text: text, Lang: lang, Rate: rate, VoiceID: u.VoiceID})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/v1/speak/stream", bytes.NewReader(body))
		if err != nil {
			errCh <- err
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := g.HTTPClient.Do(req)
		if err != nil {
			errCh <- fmt.Errorf("tts stream: %w", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			errCh <- fmt.Errorf("tts stream: status=%d body=%s", resp.StatusCode, string(b))
			return
		}

		buf := make([]byte, 4096)
		for {
			n, rerr := resp.Body.Read(buf)
			if n > 0 {
				out := make([]byte, n)
				copy(out, buf[:n])
				select {
				case pcmCh <- out:
				case <-ctx.Done():
					return
				}
			}
			if rerr != nil {
				if rerr != io.EOF {
					errCh <- fmt.Errorf("tts stream read: %w", rerr)
				}
				return
			}
		}
	}()

	return pcmCh, errCh
}
