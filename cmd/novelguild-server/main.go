package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	server "github.com/kazz187/novelguild/internal"
	"github.com/kazz187/novelguild/internal/config"
	"github.com/kazz187/novelguild/internal/conversation"
	"github.com/kazz187/novelguild/internal/eventbus"
	"github.com/kazz187/novelguild/internal/generation"
	"github.com/kazz187/novelguild/internal/persona"
	"github.com/kazz187/novelguild/internal/prompt"
	"github.com/kazz187/novelguild/internal/pushnotification"
	pushsubrepo "github.com/kazz187/novelguild/internal/pushsubscription/repositoryimpl"
	"github.com/kazz187/novelguild/internal/stream"
	"github.com/kazz187/novelguild/internal/workflow"
	workflowrepo "github.com/kazz187/novelguild/internal/workflow/repositoryimpl"
	"github.com/kazz187/novelguild/pkg/clog"
	"github.com/kazz187/novelguild/pkg/storage"
)

const (
	drainTimeout    = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.IsLocal() {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	// Setup storage
	var store storage.Storage
	switch env.StorageEnv.Type {
	case "s3":
		store, err = storage.NewS3Storage(context.Background(), env.StorageEnv.S3Bucket, env.StorageEnv.S3Prefix, env.StorageEnv.S3Region)
		if err != nil {
			slog.Error("failed to create S3 storage", "error", err)
			os.Exit(1)
		}
	default:
		store, err = storage.NewLocalStorage(env.StorageEnv.BaseDir)
		if err != nil {
			slog.Error("failed to create local storage", "error", err)
			os.Exit(1)
		}
	}

	promptStore, err := storage.NewLocalStorage(env.PromptEnv.Dir)
	if err != nil {
		slog.Error("failed to open prompt directory", "dir", env.PromptEnv.Dir, "error", err)
		os.Exit(1)
	}

	// Setup generation
	var (
		backend generation.Generator
		pinger  server.Pinger
	)
	switch env.GenerationEnv.Provider {
	case "claude":
		backend = generation.NewClaudeGenerator(env.ClaudeMaxTurns, promptStore.BaseDir())
	default:
		gemini := generation.NewGeminiClient(env.GeminiAPIKey,
			generation.WithGeminiBaseURL(env.GeminiBaseURL),
			generation.WithGeminiModel(env.GeminiModel),
		)
		backend, pinger = gemini, gemini
	}
	generator := generation.NewRetryGenerator(backend, generation.RetryConfig{
		Timeout:        env.GenerationEnv.Timeout,
		MaxAttempts:    env.MaxAttempts,
		InitialBackoff: env.InitialBackoff,
	})
	slog.Info("generation backend ready", "provider", env.GenerationEnv.Provider)

	// Setup prompts and conversations
	registry := persona.NewRegistry()
	loader := prompt.NewLoader(promptStore)
	conv := conversation.NewService(registry, loader, generator, conversation.NewMemoryHistory(conversation.HistoryLimit))

	// Setup event bus and workflows
	bus := eventbus.New()
	orch := workflow.NewOrchestrator(workflowrepo.NewJSONRepository(store), conv, bus)
	journal := eventbus.NewJournal(bus, store)

	// Setup push notification
	vapidEnv := config.VAPIDEnvFromEnv(env)
	pushSubRepo := pushsubrepo.NewYAMLRepository(store)
	pushSender := pushnotification.NewSender(vapidEnv, pushSubRepo)
	pushNotificationServer := pushnotification.NewServer(vapidEnv, pushSubRepo, pushSender)
	pushDispatcher := pushnotification.NewDispatcher(bus, pushSender)

	// Setup streams
	streamRegistry := stream.NewRegistry()
	streamHandler := stream.NewHandler(stream.NewDispatcher(conv, orch), streamRegistry, conv, orch)

	srv := server.NewServer(
		env,
		conversation.NewServer(conv),
		workflow.NewServer(orch),
		pushNotificationServer,
		streamHandler,
		pinger,
	)

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// Requests outlive the signal so open streams can be drained.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	var wg conc.WaitGroup
	wg.Go(func() { pushDispatcher.Start(ctx) })
	wg.Go(func() { journal.Start(ctx) })
	if env.PromptEnv.Watch {
		wg.Go(func() {
			if err := prompt.NewWatcher(env.PromptEnv.Dir, loader).Run(ctx); err != nil {
				slog.Error("prompt watcher stopped", "error", err)
			}
		})
	}

	go func() {
		if err := srv.ListenAndServe(baseCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server", "active_streams", len(streamRegistry.Active()))

	drainCtx, drainCancel := context.WithTimeout(context.Background(), drainTimeout)
	defer drainCancel()
	if err := streamRegistry.Drain(drainCtx); err != nil {
		slog.Warn("stream drain timed out, remaining sessions cancelled", "error", err)
	}
	cancelBase()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	wg.Wait()
}
