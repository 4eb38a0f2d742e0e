// Package app assembles the FeliChat relay: configuration in, a running
// pair of HTTP servers (chat and health) out.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felichat/felichat/common/retry"
	"github.com/felichat/felichat/internal/felichat/apicall"
	"github.com/felichat/felichat/internal/felichat/chat"
	"github.com/felichat/felichat/internal/felichat/config"
	"github.com/felichat/felichat/internal/felichat/image"
	"github.com/felichat/felichat/internal/felichat/memory"
	"github.com/felichat/felichat/internal/felichat/nlp"
	"github.com/felichat/felichat/internal/felichat/session"
	"github.com/felichat/felichat/internal/felichat/store"
	"github.com/felichat/felichat/internal/felichat/tokenizer"
	"github.com/felichat/felichat/internal/felichat/web"
)

// sweepInterval is how often stale sessions are expired.
const sweepInterval = time.Minute

// App is the assembled application.
type App struct {
	cfg config.Config

	store        *store.Store // nil when the ledger is disabled
	sessions     *session.Manager
	chatServer   *web.Server
	chatHTTP     *http.Server
	healthServer *HealthServer
}

// New wires up all components from the configuration.
func New(cfg config.Config) (*App, error) {
	setupLogging(cfg.Debug)

	var db *store.Store
	if cfg.Store.DatabasePath != "" {
		slog.Info("opening database", "path", cfg.Store.DatabasePath)
		var err error
		db, err = store.Open(cfg.Store.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("initialize database: %w", err)
		}
	} else {
		slog.Info("usage ledger disabled")
	}

	retryCfg := retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Cooldown:    cfg.Retry.Cooldown,
		Backoff:     cfg.Retry.Backoff,
		MaxDelay:    cfg.Retry.MaxDelay,
	}
	caller := apicall.New(apicall.Config{
		Timeout: cfg.Retry.Timeout,
		Retry:   retryCfg,
	})

	completer := nlp.New(nlp.Config{
		APIKey:           cfg.NLP.APIKey,
		BaseURL:          cfg.NLP.BaseURL,
		Model:            cfg.NLP.Model,
		MaxReplyTokens:   cfg.NLP.ReplyMaxTokens,
		Temperature:      cfg.NLP.Temperature,
		FrequencyPenalty: cfg.NLP.FrequencyPenalty,
		PresencePenalty:  cfg.NLP.PresencePenalty,
		Stop:             cfg.NLP.Stop,
	}, caller)

	compactor := memory.NewCompactor(
		tokenizer.Heuristic{CharsPerToken: tokenizer.DefaultCharsPerToken},
		completer,
		memory.Budget{
			MaxTokens:    cfg.NLP.MaxTokens,
			ReplyReserve: cfg.NLP.ReplyMaxTokens,
		},
		memory.Prompts{
			PreSummary: cfg.Persona.PreSummaryPrompt,
			PreNote:    cfg.Persona.PreSummaryNote,
			PostNote:   cfg.Persona.PostSummaryNote,
		},
	)

	var generator chat.Generator
	if cfg.Image.Enabled {
		generator = image.New(image.Config{
			APIKey:  cfg.Image.APIKey,
			BaseURL: cfg.Image.BaseURL,
			Engine:  cfg.Image.Engine,
			Steps:   cfg.Image.Steps,
			Samples: cfg.Image.Samples,
		}, caller)
	}

	var recorder chat.Recorder
	if db != nil {
		recorder = db
	}

	engine := chat.NewEngine(
		compactor,
		completer,
		image.ReplyParser{
			Marker:         cfg.Persona.DescriptionMarker,
			ReplyPrefix:    cfg.Persona.ReplyPrefix,
			FallbackPrompt: cfg.Persona.FallbackImageText,
		},
		generator,
		recorder,
	)

	sessions := session.NewManager(session.ManagerConfig{
		Cooldown:      cfg.Session.Cooldown,
		MaxSessions:   cfg.Session.MaxSessions,
		PersonaPrompt: cfg.Persona.InitialPrompt,
	})

	a := &App{
		cfg:        cfg,
		store:      db,
		sessions:   sessions,
		chatServer: web.New(sessions, engine),
	}
	if cfg.HTTP.HealthAddr != "" {
		a.healthServer = NewHealthServer(cfg.HTTP.HealthAddr, sessions)
	}
	return a, nil
}

// Run starts the HTTP servers and blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.healthServer != nil {
		if err := a.healthServer.Start(ctx); err != nil {
			slog.Warn("health server failed to start; continuing without it", "err", err)
		}
	}

	mux := http.NewServeMux()
	a.chatServer.RegisterRoutes(mux)

	ln, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.HTTP.Addr, err)
	}
	a.chatHTTP = &http.Server{
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	go func() {
		slog.Info("chat server listening", "addr", ln.Addr().String())
		if err := a.chatHTTP.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("chat server stopped", "err", err)
		}
	}()

	// Expire stale sessions in the background.
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if expired := a.sessions.ExpireStale(time.Now()); len(expired) > 0 {
					slog.Info("expired stale sessions", "count", len(expired))
				}
			}
		}
	}()

	slog.Info("FeliChat is running; press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutdown signal received")
	return nil
}

// Stop shuts down the HTTP servers and closes the database.
func (a *App) Stop() {
	if a.chatHTTP != nil {
		slog.Info("stopping chat server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.chatHTTP.Shutdown(ctx); err != nil {
			slog.Warn("chat server shutdown error", "err", err)
		}
	}

	if a.healthServer != nil {
		slog.Info("stopping health server")
		a.healthServer.Stop()
	}

	if a.store != nil {
		slog.Info("closing database")
		a.store.Close()
	}
}

// setupLogging installs the default slog handler.
func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
