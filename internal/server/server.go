package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/docustore/userman/config"
	"github.com/docustore/userman/internal/archive"
	"github.com/docustore/userman/internal/events"
	"github.com/docustore/userman/internal/handlers"
	"github.com/docustore/userman/internal/ledger"
	"github.com/docustore/userman/internal/recordstore"
	"github.com/docustore/userman/internal/services"
	"github.com/docustore/userman/internal/store"
	"github.com/docustore/userman/internal/token"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server wraps the HTTP server, router and the shared record-store
// client.
type Server struct {
	httpServer  *http.Server
	router      *chi.Mux
	recordStore *recordstore.Client
	publisher   *events.Publisher
	logger      *slog.Logger
}

// New constructs a Server: one record-store client shared by reference
// across every component, the credential ledger and services on top of
// it, and the chi router in front.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	rs, err := recordstore.New(cfg.RecordStore.BaseURL, recordstore.WithTimeout(cfg.RecordStore.Timeout))
	if err != nil {
		return nil, err
	}

	codec, err := token.NewCodec(cfg.Auth.JWTSecret)
	if err != nil {
		rs.Close()
		return nil, err
	}

	publisher, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		rs.Close()
		return nil, err
	}

	schemaArchive, err := newArchive(ctx, cfg)
	if err != nil {
		rs.Close()
		_ = publisher.Close()
		return nil, err
	}

	credLedger := ledger.New(codec, rs)
	userRepo := store.NewUserRepository(rs)

	userService := services.NewUserService(userRepo)
	sessionService := services.NewSessionService(services.SessionConfig{
		Users:      userRepo,
		Ledger:     credLedger,
		Publisher:  publisher,
		Logger:     logger,
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
	})
	gate := services.NewGate(userRepo, credLedger, logger)
	databaseCfg := services.DatabaseConfig{
		Users:  userRepo,
		Admin:  rs,
		Logger: logger,
		Host:   cfg.RecordStore.DocumentHost,
		Port:   cfg.RecordStore.DocumentPort,
	}
	if schemaArchive != nil {
		databaseCfg.Archive = schemaArchive
	}
	databaseService := services.NewDatabaseService(databaseCfg)

	authHandler := handlers.NewAuthHandler(sessionService, userService, gate)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, sessionService, userService, gate)
	})
	router.Route("/databases", func(r chi.Router) {
		handlers.DatabaseRouter(r, databaseService, authHandler.RequireAuth)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8100
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer:  httpServer,
		router:      router,
		recordStore: rs,
		publisher:   publisher,
		logger:      logger,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown closes the record-store client, the event publisher and the
// HTTP server.
func (s *Server) Shutdown() error {
	if s.recordStore != nil {
		s.recordStore.Close()
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.Warn("failed to close event publisher", "error", err)
		}
	}
	return s.httpServer.Close()
}

// newPublisher builds the configured events backend. An empty backend
// selector disables event publication entirely.
func newPublisher(ctx context.Context, cfg config.Config, logger *slog.Logger) (*events.Publisher, error) {
	switch cfg.Events.Backend {
	case "":
		logger.Info("account event publication disabled")
		return events.NewPublisher(nil, ""), nil
	case "rabbitmq":
		backend, err := events.NewRabbitMQBackend(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("init rabbitmq backend: %w", err)
		}
		return events.NewPublisher(backend, cfg.Events.Channel), nil
	case "pubsub":
		backend, err := events.NewPubSubBackend(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("init pubsub backend: %w", err)
		}
		return events.NewPublisher(backend, cfg.Events.Channel), nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Events.Backend)
	}
}

// newArchive builds the configured schema archive. An empty backend
// selector disables archiving.
func newArchive(ctx context.Context, cfg config.Config) (*archive.SchemaArchive, error) {
	switch cfg.Archive.Backend {
	case "":
		return nil, nil
	case "minio":
		backend, err := archive.NewMinioBackend(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("init minio backend: %w", err)
		}
		a := archive.New(backend)
		if err := a.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure archive bucket: %w", err)
		}
		return a, nil
	case "gcs":
		backend, err := archive.NewGCSBackend(ctx, cfg.GCS)
		if err != nil {
			return nil, fmt.Errorf("init gcs backend: %w", err)
		}
		a := archive.New(backend)
		if err := a.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure archive bucket: %w", err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
	}
}
