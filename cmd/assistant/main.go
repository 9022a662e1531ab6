// Command assistant is the terminal client: streaming question/answer with
// conversation history, typed suggestion lookup, and an optional voice mode
// speaking through the STT/TTS gateways.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/gosandol/ansimssi/internal/config"
	"github.com/gosandol/ansimssi/internal/history"
	"github.com/gosandol/ansimssi/internal/search"
	"github.com/gosandol/ansimssi/internal/session"
	"github.com/gosandol/ansimssi/internal/speech"
	"github.com/gosandol/ansimssi/internal/suggest"
	"github.com/gosandol/ansimssi/internal/thread"
	"github.com/gosandol/ansimssi/internal/voice"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	store, err := history.Open(cfg.HistoryDBPath)
	if err != nil {
		log.Fatalf("opening history store: %v", err)
	}
	defer store.Close()

	client := search.NewClient(cfg.APIBaseURL)
	ctrl := thread.NewController(client, store)
	ctrl.Subscribe(newRenderer().render)

	agg := suggest.New(client, suggest.DefaultIndex(), printSuggestions)
	defer agg.Close()

	// Voice mode. Playback pacing is real-time; routing the PCM to an audio
	// device is left to an external pipe.
	synth := speech.NewGatewaySynth(cfg.TTSBaseURL)
	sink := speech.NewPacedWriter(io.Discard)
	defer sink.Close()
	speaker := speech.NewSpeaker(synth.Stream, sink)
	settingsStore := voice.NewFileStore(cfg.SettingsPath)
	recFactory := func() speech.Recognizer {
		return speech.NewGatewayRecognizer(cfg.STTGatewayURL, "ko")
	}
	vc := voice.NewController(client, voice.WrapSpeaker(speaker), recFactory, settingsStore, printVoiceStatus)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("shutdown signal received: %v", sig)
		vc.Close()
		ctrl.Abort()
		store.Close()
		os.Exit(0)
	}()

	fmt.Println("안심씨에게 무엇이든 물어보세요. (/help 로 명령어 확인)")

	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := runCommand(line, ctrl, vc, agg, store); quit {
				break
			}
			continue
		}
		ctrl.Submit(context.Background(), line)
	}

	vc.Close()
	ctrl.Abort()
}

func runCommand(line string, ctrl *thread.Controller, vc *voice.Controller, agg *suggest.Aggregator, store *history.Store) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/help":
		fmt.Println(`/suggest <text>  입력 중 추천 질문 보기
/abort           진행 중인 답변 중단
/history         대화 기록 보기
/voice           음성 대화 시작 (off|grant|resume|retry 하위 명령)
/quit            종료`)
	case "/quit", "/exit":
		return true
	case "/abort":
		ctrl.Abort()
	case "/suggest":
		agg.SetInput(arg)
	case "/history":
		threads, err := store.History(context.Background())
		if err != nil {
			log.Printf("history: %v", err)
			break
		}
		for _, th := range threads {
			fmt.Printf("%s  %s  %s\n", th.CreatedAt.Format("2006-01-02 15:04"), th.ID, th.Title)
		}
	case "/voice":
		switch arg {
		case "":
			vc.Open(context.Background())
		case "off":
			vc.Close()
		case "grant":
			vc.GrantPermission(true)
		case "resume":
			vc.Resume()
		case "retry":
			vc.Retry()
		default:
			fmt.Println("usage: /voice [off|grant|resume|retry]")
		}
	default:
		fmt.Printf("unknown command %s\n", cmd)
	}
	return false
}

// renderer prints streaming answer text incrementally: each snapshot repeats
// the full text so far, so only the unseen suffix goes to the terminal.
type renderer struct {
	mu      sync.Mutex
	printed int
}

func newRenderer() *renderer { return &renderer{} }

func (r *renderer) render(snap session.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(snap.AnswerText) < r.printed {
		// New turn started.
		r.printed = 0
		fmt.Println()
	}
	fmt.Print(snap.AnswerText[r.printed:])
	r.printed = len(snap.AnswerText)
	if snap.IsComplete {
		fmt.Println()
		for _, s := range snap.Sources {
			fmt.Printf("  출처: %s (%s)\n", s.Title, s.URL)
		}
		if snap.Disclaimer != "" {
			fmt.Printf("  %s\n", snap.Disclaimer)
		}
		for _, q := range snap.RelatedQuestions {
			fmt.Printf("  연관 질문: %s\n", q)
		}
		r.printed = 0
	}
}

func printSuggestions(res suggest.Result) {
	if len(res.Items) == 0 {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "추천 질문 (%s):\n", res.Query)
	for _, s := range res.Items {
		fmt.Fprintf(&b, "  - %s\n", s.Label)
	}
	fmt.Print(b.String())
}

func printVoiceStatus(st voice.Status) {
	switch st.State {
	case voice.StateListening:
		if st.Settings.SubtitlesEnabled && st.Transcript != "" {
			fmt.Printf("[듣는 중] %s\n", st.Transcript)
		}
	case voice.StateProcessing:
		fmt.Printf("[처리 중] %s\n", st.Transcript)
	case voice.StateSpeaking:
		if st.Settings.SubtitlesEnabled {
			fmt.Printf("[말하는 중] %s\n", st.Response)
		}
	case voice.StateError:
		fmt.Printf("[음성 오류] %s (/voice retry 로 재시도)\n", st.ErrReason)
	}
}
