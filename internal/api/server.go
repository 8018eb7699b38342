package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"liveclass/internal/auth"
	"liveclass/internal/gate"
	"liveclass/internal/notes"
	"liveclass/internal/session"
	"liveclass/internal/whiteboard"
	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// SessionService is the lesson lifecycle surface the API exposes.
type SessionService interface {
	Start(ctx context.Context, scheduleID, callerID, topic string) (*types.Session, error)
	End(ctx context.Context, sessionID, callerID string) (*types.Session, error)
	Cancel(ctx context.Context, sessionID, callerID string) (*types.Session, error)
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
	ListActiveFor(ctx context.Context, user *types.User) ([]*types.Session, error)
}

// WhiteboardService serves whiteboard state and teacher-issued clears.
type WhiteboardService interface {
	Append(ctx context.Context, sessionID, actorID, eventType string, payload json.RawMessage) (*types.WhiteboardEvent, error)
	State(ctx context.Context, sessionID string) ([]*types.WhiteboardEvent, error)
}

// AttendanceService serves online attendance records.
type AttendanceService interface {
	OnJoin(ctx context.Context, sessionID, studentID string) (*types.AttendanceRecord, error)
	Records(ctx context.Context, sessionID string) ([]*types.AttendanceRecord, error)
}

// NoteService serves the per-student lesson notebook.
type NoteService interface {
	Save(ctx context.Context, student *types.User, sessionID, content, attachmentURL string) (*types.StudentNote, error)
	ListForSession(ctx context.Context, caller *types.User, sessionID string) ([]*types.StudentNote, error)
	ListMine(ctx context.Context, studentID, subjectID string) ([]*types.StudentNote, error)
}

// Authenticator resolves bearer tokens for the auth middleware.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*types.User, error)
}

// AccessGate guards the REST join the same way it guards the websocket one.
type AccessGate interface {
	Authorize(ctx context.Context, user *types.User, session *types.Session) error
}

// Broadcaster fans REST-initiated events (whiteboard clear) out to the room.
type Broadcaster interface {
	Broadcast(sessionID string, event any)
}

// HealthChecker reports storage liveness for the health endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RoomStats reports live connection counters.
type RoomStats interface {
	CountInSession(sessionID string) int
	Stats() map[string]int
}

// Server is the REST surface. Every /api route runs behind the bearer-token
// middleware; /health is open.
type Server struct {
	sessions      SessionService
	whiteboard    WhiteboardService
	attendance    AttendanceService
	notes         NoteService
	authenticator Authenticator
	gate          AccessGate
	broadcaster   Broadcaster
	health        HealthChecker
	rooms         RoomStats
	validate      *validator.Validate
}

// NewServer creates the REST server.
func NewServer(sessions SessionService, whiteboardSvc WhiteboardService,
	attendance AttendanceService, noteSvc NoteService, authenticator Authenticator,
	accessGate AccessGate, broadcaster Broadcaster, health HealthChecker,
	rooms RoomStats) *Server {

	return &Server{
		sessions:      sessions,
		whiteboard:    whiteboardSvc,
		attendance:    attendance,
		notes:         noteSvc,
		authenticator: authenticator,
		gate:          accessGate,
		broadcaster:   broadcaster,
		health:        health,
		rooms:         rooms,
		validate:      validator.New(),
	}
}

// Routes registers the REST routes on the router.
func (s *Server) Routes(r *mux.Router) {
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/lessons/start", s.handleStartLesson).Methods(http.MethodPost)
	api.HandleFunc("/lessons/{id}/end", s.handleEndLesson).Methods(http.MethodPost)
	api.HandleFunc("/lessons/{id}/cancel", s.handleCancelLesson).Methods(http.MethodPost)
	api.HandleFunc("/lessons/active", s.handleActiveLessons).Methods(http.MethodGet)

	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/join", s.handleJoinSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/whiteboard", s.handleWhiteboardState).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/whiteboard/clear", s.handleWhiteboardClear).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/attendance", s.handleSessionAttendance).Methods(http.MethodGet)

	api.HandleFunc("/notes", s.handleSaveNote).Methods(http.MethodPost)
	api.HandleFunc("/notes/session/{id}", s.handleSessionNotes).Methods(http.MethodGet)
	api.HandleFunc("/notes/my", s.handleMyNotes).Methods(http.MethodGet)
}

type contextKey string

const userKey contextKey = "user"

// authMiddleware authenticates the bearer token and stores the user on the
// request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.FromAuthorizationHeader(r.Header.Get("Authorization"))
		user, err := s.authenticator.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// callerFrom returns the authenticated user stored by the middleware.
func callerFrom(r *http.Request) *types.User {
	user, _ := r.Context().Value(userKey).(*types.User)
	return user
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Response encoding failed: err=%v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps service sentinels to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, interfaces.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, session.ErrScheduleNotFound):
		writeError(w, http.StatusNotFound, "Schedule not found")
	case errors.Is(err, session.ErrNotOwner):
		writeError(w, http.StatusForbidden, "Only the session teacher may do this")
	case errors.Is(err, session.ErrDuplicateActiveSession):
		writeError(w, http.StatusConflict, "An open session already exists for this schedule")
	case errors.Is(err, session.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "Session is already closed")
	case errors.Is(err, whiteboard.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "Only the session teacher can modify the whiteboard")
	case errors.Is(err, whiteboard.ErrSessionNotActive):
		writeError(w, http.StatusConflict, "Session is not active")
	case errors.Is(err, notes.ErrNotYourClass):
		writeError(w, http.StatusForbidden, "Session belongs to another class")
	case gate.IsDenial(err):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		log.Printf("Request failed: err=%v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}
