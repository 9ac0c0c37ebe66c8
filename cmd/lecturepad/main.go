package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/csheth/lecturepad/internal/annotation"
	"github.com/csheth/lecturepad/internal/chat"
	"github.com/csheth/lecturepad/internal/config"
	"github.com/csheth/lecturepad/internal/course"
	"github.com/csheth/lecturepad/internal/llm"
	"github.com/csheth/lecturepad/internal/logger"
	"github.com/csheth/lecturepad/internal/playback"
	"github.com/csheth/lecturepad/internal/progress"
	"github.com/csheth/lecturepad/internal/session"
	"github.com/csheth/lecturepad/internal/store"
	"github.com/csheth/lecturepad/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	courseID := flag.String("course", cfg.CourseID, "course identifier")
	userID := flag.String("user", cfg.UserID, "user identifier")
	lectureID := flag.String("lecture", "", "lecture to open first (defaults to the first lecture)")
	courseFile := flag.String("course-file", "", "read course content from a JSON file instead of the API")
	storeDriver := flag.String("store", cfg.StoreDriver, "local store: memory, file, sqlite or redis")
	noAltScreen := flag.Bool("no-alt-screen", false, "disable the alternate screen buffer")
	noAutoplay := flag.Bool("no-autoplay", false, "do not start playback when a lecture opens")
	llmModel := flag.String("llm-model", cfg.LLM.Model, "override the assistant model")
	llmEndpoint := flag.String("llm-endpoint", cfg.LLM.Endpoint, "OpenAI-compatible endpoint (eg. http://localhost:11434/v1)")
	flag.Parse()

	cfg.CourseID = *courseID
	cfg.UserID = *userID
	cfg.StoreDriver = *storeDriver
	cfg.LLM.Model = *llmModel
	cfg.LLM.Endpoint = *llmEndpoint
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.LogMode, cfg.LogPath)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backing, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	defer func() {
		if err := backing.Close(); err != nil {
			log.Warn("store close failed", "error", err)
		}
	}()

	var (
		content    session.ContentSource
		enrollment session.EnrollmentChecker
		remote     progress.Saver
	)
	if *courseFile != "" {
		absPath, err := filepath.Abs(*courseFile)
		if err != nil {
			return fmt.Errorf("resolve course file: %w", err)
		}
		content = course.NewFileSource(absPath)
	} else {
		client := course.NewClient(course.Config{
			BaseURL: cfg.APIBase,
			Token:   cfg.APIToken,
			Timeout: cfg.FetchTimeout,
			Log:     log,
		})
		content, enrollment, remote = client, client, client
	}

	var resources session.TextSource
	if cache, err := course.NewResourceCache(nil); err != nil {
		log.Warn("resource cache disabled", "error", err)
	} else {
		resources = cache
	}

	assistant, err := llm.NewFromEnv(llm.Config{
		Model:         cfg.LLM.Model,
		Endpoint:      cfg.LLM.Endpoint,
		APIKey:        cfg.LLM.APIKey,
		StreamTimeout: cfg.StreamTimeout,
	})
	if err != nil {
		return fmt.Errorf("init assistant: %w", err)
	}
	log.Info("assistant configured", "provider", assistant.Name())

	media, player := playback.NewSimulated(log)
	tracker := progress.New(progress.Config{
		UserID:   cfg.UserID,
		Store:    backing,
		Remote:   remote,
		Interval: cfg.ProgressInterval,
		Delta:    cfg.ProgressDelta,
		Log:      log,
	})
	defer tracker.Close()
	notes := annotation.New(annotation.Config{UserID: cfg.UserID, Store: backing, Log: log})
	engine := chat.New(chat.Config{Client: assistant, StreamTimeout: cfg.StreamTimeout, Log: log})

	sess := session.New(session.Config{
		CourseID:       cfg.CourseID,
		UserID:         cfg.UserID,
		StartLectureID: *lectureID,
		Autoplay:       !*noAutoplay,
		Content:        content,
		Resources:      resources,
		Enrollment:     enrollment,
		Player:         player,
		Progress:       tracker,
		Notes:          notes,
		Chat:           engine,
		Log:            log,
	})
	defer sess.Close()

	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithMouseCellMotion()}
	if !*noAltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	program := tea.NewProgram(
		tui.New(tui.Config{
			Session:  sess,
			Player:   player,
			Media:    media,
			Notes:    notes,
			Chat:     engine,
			Progress: tracker,
			Log:      log,
			Context:  ctx,
		}),
		opts...,
	)

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("program error: %w", err)
	}
	return nil
}
