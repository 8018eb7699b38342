package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"liveclass/internal/api"
	"liveclass/internal/attendance"
	"liveclass/internal/auth"
	"liveclass/internal/config"
	"liveclass/internal/database"
	"liveclass/internal/gate"
	"liveclass/internal/notes"
	"liveclass/internal/session"
	"liveclass/internal/websocket"
	"liveclass/internal/whiteboard"
	dbconfig "liveclass/pkg/database"
)

// Application owns every component and wires them in dependency order:
// storage, then the lifecycle manager, then the room transport, then the
// HTTP surface. Stop unwinds in the reverse order.
type Application struct {
	config     *config.Config
	db         *database.Manager
	sessions   *session.Manager
	registry   *websocket.Registry
	wsHandler  *websocket.Handler
	httpServer *http.Server
}

// NewApplication builds the full object graph. Nothing is listening yet;
// Start opens the listener.
func NewApplication(cfg *config.Config) (*Application, error) {
	db, err := database.NewManager(&dbconfig.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  cfg.Database.MaxConnections,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	sessions := session.NewManager(db, db)

	registry := websocket.NewRegistry()
	broadcaster := websocket.NewBroadcaster(registry)
	sessions.SetBroadcaster(broadcaster)

	authenticator := auth.NewAuthenticator(cfg.Auth.JWTSecret, db, cfg.Auth.TokenTTL)
	accessGate := gate.New(db)
	whiteboardSvc := whiteboard.NewService(db, sessions)
	tracker := attendance.NewTracker(db)
	noteSvc := notes.NewService(db, sessions)

	wsHandler := websocket.NewHandler(websocket.Config{
		ReadTimeout:       cfg.WebSocket.ReadTimeout,
		PingInterval:      cfg.WebSocket.PingInterval,
		MessageBufferSize: cfg.WebSocket.MessageBufferSize,
		MaxMessageSize:    cfg.WebSocket.MaxMessageSize,
		CheckOrigin:       cfg.WebSocket.CheckOrigin,
	}, registry, broadcaster, sessions, authenticator, accessGate, whiteboardSvc, tracker)

	apiServer := api.NewServer(sessions, whiteboardSvc, tracker, noteSvc,
		authenticator, accessGate, broadcaster, db, registry)

	router := mux.NewRouter()
	apiServer.Routes(router)
	router.HandleFunc("/ws/sessions/{id}", wsHandler.HandleSession).Methods(http.MethodGet)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		db:         db,
		sessions:   sessions,
		registry:   registry,
		wsHandler:  wsHandler,
		httpServer: httpServer,
	}, nil
}

// Start loads open sessions into the lifecycle cache and opens the listener.
// Returns once the server is accepting or has failed to bind.
func (a *Application) Start(ctx context.Context) error {
	if err := a.sessions.LoadOpenSessions(ctx); err != nil {
		return fmt.Errorf("failed to load open sessions: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening: addr=%s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts the application down: stop accepting HTTP, drain live websocket
// connections, then close the database last so in-flight cleanup writes land.
func (a *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down")

	if err := a.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP shutdown error: err=%v", err)
	}

	a.registry.Drain()
	a.wsHandler.Close()

	if err := a.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	log.Printf("Shutdown complete")
	return nil
}
