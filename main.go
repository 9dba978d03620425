// InterviewAvatar - a voice-driven interview engine with an animated avatar.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/normanking/interviewavatar/internal/bus"
	"github.com/normanking/interviewavatar/internal/config"
	"github.com/normanking/interviewavatar/internal/interview"
	"github.com/normanking/interviewavatar/internal/llm"
	"github.com/normanking/interviewavatar/internal/logging"
	"github.com/normanking/interviewavatar/internal/orchestrator"
	"github.com/normanking/interviewavatar/internal/queue"
	"github.com/normanking/interviewavatar/internal/speech"
)

// loadEnvFile loads API keys from ~/.interviewavatar/.env into the process
// environment so config files don't have to carry secrets.
func loadEnvFile(logger *logging.Logger) {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}

	data, err := os.ReadFile(filepath.Join(home, ".interviewavatar", ".env"))
	if err != nil {
		return
	}

	loaded := 0
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
			loaded++
		}
	}
	if loaded > 0 {
		zlog := logger.Zerolog()
		zlog.Info().Int("keys", loaded).Msg("Environment loaded from .env")
	}
}

func main() {
	logger, err := logging.New(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	loadEnvFile(logger)

	zlog := logger.Zerolog()

	cfg, err := config.Load()
	if err != nil {
		zlog.Warn().Err(err).Msg("Config load failed, using defaults")
	}

	eventBus := bus.NewEventBus()

	// LLM stack: rate-limited queue in front of the completion provider.
	requestQueue := queue.New(cfg.LLM.RateLimit, logger.Component("queue"))
	defer requestQueue.Close()

	provider := llm.NewOpenAIProvider(logger.Zerolog(), &llm.OpenAIConfig{
		APIKey:      cfg.LLM.APIKey,
		ServerURL:   cfg.LLM.ServerURL,
		Model:       cfg.LLM.Model,
		Timeout:     cfg.LLM.Timeout,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if !provider.IsAvailable() {
		zlog.Warn().Msg("No LLM API key configured, running on fallback questions and summaries")
	}
	gateway := llm.NewGateway(provider, requestQueue, logger.Zerolog())

	// Speech stack: streaming recognition plus HTTP synthesis. Either side
	// may be unavailable; the manager disables the affected control.
	recognizer := speech.NewStreamingRecognizer(logger.Zerolog(), &speech.StreamingConfig{
		URL:            cfg.Speech.RecognitionURL,
		APIKey:         cfg.Speech.RecognitionKey,
		Language:       cfg.Speech.Language,
		InterimResults: cfg.Speech.InterimResults,
		SilenceTimeout: cfg.Speech.SilenceTimeout,
	})
	synthesizer := speech.NewHTTPSynthesizer(logger.Zerolog(), &speech.SynthesisConfig{
		URL:    cfg.Speech.SynthesisURL,
		APIKey: cfg.Speech.SynthesisAPIKey,
	}, speech.NopPlayer{})

	speechManager := speech.NewManager(recognizer, synthesizer, speech.VoiceSettings{
		Voice:       cfg.Speech.Voice,
		Preferences: cfg.Speech.VoicePreferences,
		Speed:       cfg.Speech.Speed,
	}, eventBus, logger.Zerolog())

	// Batch transcription backs recorded-audio answers when no streaming
	// endpoint is configured.
	speechManager.SetTranscriber(speech.NewHTTPTranscriber(logger.Zerolog(), nil))

	// Lifecycle events land in the log for post-run inspection.
	lifecycleLogger := logger.Component("events")
	eventBus.SubscribeMultiple([]bus.EventType{
		bus.EventTypeStateChanged,
		bus.EventTypeEmotionChanged,
		bus.EventTypeSessionSaved,
		bus.EventTypeSessionSaveFailed,
	}, func(e bus.Event) {
		lifecycleLogger.Debug().Str("event", string(e.Type)).Fields(e.Data).Msg("Event")
	})

	// Interview stack.
	store := interview.NewFileStore(cfg.Session.Dir, logger.Zerolog())
	flow := interview.NewFlow(gateway, store, eventBus, logger.Zerolog())

	coordinator := orchestrator.New(flow, speechManager, orchestrator.Config{
		SettleDelay: cfg.Interview.SettleDelay,
		TurnSilence: cfg.Interview.TurnSilence,
	}, eventBus, logger.Zerolog())
	defer coordinator.Close()

	// Voice settings follow config file edits without a restart.
	watcher, err := config.NewWatcher(logger.Zerolog())
	if err != nil {
		zlog.Warn().Err(err).Msg("Config watcher unavailable")
	} else {
		defer watcher.Close()
		watcher.OnReload(func(c *config.Config) {
			speechManager.SetVoiceSettings(speech.VoiceSettings{
				Voice:       c.Speech.Voice,
				Preferences: c.Speech.VoicePreferences,
				Speed:       c.Speech.Speed,
			})
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		cancel()
	}()

	runConsole(ctx, coordinator, flow, speechManager, eventBus)
}

// runConsole drives the interview from stdin. When streaming recognition
// is unavailable, typed lines stand in for spoken answers.
func runConsole(ctx context.Context, coordinator *orchestrator.Orchestrator, flow *interview.Flow, speechManager *speech.Manager, eventBus *bus.EventBus) {
	questions := make(chan string, 8)
	eventBus.Subscribe(bus.EventTypeQuestionAsked, func(e bus.Event) {
		if text, ok := e.Data["text"].(string); ok {
			select {
			case questions <- text:
			default:
			}
		}
	})

	summaries := make(chan struct{}, 1)
	eventBus.Subscribe(bus.EventTypeSummaryReady, func(bus.Event) {
		select {
		case summaries <- struct{}{}:
		default:
		}
	})

	if err := coordinator.Resume(ctx); err != nil {
		fmt.Printf("Resume failed: %v\n", err)
	}

	scanner := bufio.NewScanner(os.Stdin)

	if flow.State() == interview.StateComplete {
		if session := flow.Session(); session != nil && session.Summary != nil {
			fmt.Printf("--- Previous interview summary ---\n%s\n\n", session.Summary.Text)
		}
	}

	if flow.State() == interview.StateIdle || flow.State() == interview.StateComplete {
		fmt.Println("Describe the interview context (role, background), then press enter:")
		if !scanner.Scan() {
			return
		}
		if err := coordinator.StartInterview(ctx, strings.TrimSpace(scanner.Text())); err != nil {
			fmt.Printf("Could not start interview: %v\n", err)
			return
		}
	}

	typedAnswers := !speechManager.RecognitionSupported()
	if typedAnswers {
		fmt.Println("(no recognition endpoint configured; type your answers)")
	}

	for {
		select {
		case <-ctx.Done():
			return

		case text := <-questions:
			fmt.Printf("\nInterviewer [%s]: %s\n", coordinator.Emotion(), text)
			if typedAnswers {
				fmt.Print("> ")
				if !scanner.Scan() {
					return
				}
				if err := flow.ProcessAnswer(ctx, scanner.Text()); err != nil {
					fmt.Printf("Answer not accepted: %v\n", err)
				}
			}

		case <-summaries:
			session := flow.Session()
			if session != nil && session.Summary != nil {
				fmt.Printf("\n--- Interview complete [%s] ---\n%s\n", coordinator.Emotion(), session.Summary.Text)
				fmt.Printf("Engagement: %.1f/10 (%s) over %d answers\n",
					session.Summary.Analytics.AverageScore,
					session.Summary.Analytics.DominantSentiment,
					session.Summary.Analytics.ResponseCount)
			}
			return
		}
	}
}
