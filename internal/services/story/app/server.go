// Package app wires the story runtime and HTTP lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emberleaf/emberleaf/internal/platform/config"
	"github.com/emberleaf/emberleaf/internal/platform/timeouts"
	"github.com/emberleaf/emberleaf/internal/services/story/api"
	"github.com/emberleaf/emberleaf/internal/services/story/catalog"
	"github.com/emberleaf/emberleaf/internal/services/story/catalog/content"
	"github.com/emberleaf/emberleaf/internal/services/story/engine"
	"github.com/emberleaf/emberleaf/internal/services/story/observability/audit"
	storysqlite "github.com/emberleaf/emberleaf/internal/services/story/storage/sqlite"
)

type serverEnv struct {
	DBPath         string        `env:"EMBERLEAF_STORY_DB_PATH"`
	SessionSecret  string        `env:"EMBERLEAF_SESSION_SECRET"`
	SessionIssuer  string        `env:"EMBERLEAF_SESSION_ISSUER"`
	SessionTTL     time.Duration `env:"EMBERLEAF_SESSION_TTL"`
	RefillInterval time.Duration `env:"EMBERLEAF_REFILL_INTERVAL"`
}

func loadServerEnv() serverEnv {
	var cfg serverEnv
	_ = config.ParseEnv(&cfg)
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "story.db")
	}
	return cfg
}

// Server hosts the story HTTP API and storage lifecycle.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	store      *storysqlite.Store
}

// Options override environment-derived configuration. Zero values defer
// to the environment.
type Options struct {
	DBPath         string
	SessionSecret  string
	RefillInterval time.Duration
}

// New creates a configured story server listening on the provided address.
func New(ctx context.Context, addr string, opts Options) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	env := loadServerEnv()
	if opts.DBPath != "" {
		env.DBPath = opts.DBPath
	}
	if opts.SessionSecret != "" {
		env.SessionSecret = opts.SessionSecret
	}
	if opts.RefillInterval > 0 {
		env.RefillInterval = opts.RefillInterval
	}
	if strings.TrimSpace(env.SessionSecret) == "" {
		_ = listener.Close()
		return nil, errors.New("session secret is required (EMBERLEAF_SESSION_SECRET)")
	}

	store, err := openStoryStore(ctx, env.DBPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	cat, err := catalog.Load(content.FS)
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("load story catalog: %w", err)
	}

	eng, err := engine.New(engine.Config{
		Catalog:        cat,
		Store:          store,
		RefillInterval: env.RefillInterval,
		Audit:          audit.NewEmitter(store),
	})
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("build story engine: %w", err)
	}

	sessions, err := api.NewSessions([]byte(env.SessionSecret), env.SessionIssuer, env.SessionTTL)
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("build sessions: %w", err)
	}

	httpServer := &http.Server{
		Handler:           api.NewServer(eng, sessions).Handler(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	return &Server{
		listener:   listener,
		httpServer: httpServer,
		store:      store,
	}, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a story server until context cancellation.
func Run(ctx context.Context, addr string, opts Options) error {
	server, err := New(ctx, addr, opts)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the HTTP server until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("story server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases story server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close story store: %v", err)
		}
	}
}

func openStoryStore(ctx context.Context, path string) (*storysqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := storysqlite.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open story sqlite store: %w", err)
	}
	return store, nil
}
