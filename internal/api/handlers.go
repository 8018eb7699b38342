package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"liveclass/pkg/types"
)

// startLessonRequest is the POST /api/lessons/start body.
type startLessonRequest struct {
	ScheduleID string `json:"schedule_id" validate:"required,max=50"`
	Topic      string `json:"topic" validate:"max=500"`
}

// saveNoteRequest is the POST /api/notes body.
type saveNoteRequest struct {
	SessionID     string `json:"session_id" validate:"required,max=50"`
	Content       string `json:"content" validate:"required,max=10000"`
	AttachmentURL string `json:"attachment_url" validate:"omitempty,url,max=500"`
}

func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleStartLesson(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if caller.Role != types.RoleTeacher {
		writeError(w, http.StatusForbidden, "Only teachers can start a lesson")
		return
	}

	var req startLessonRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	sess, err := s.sessions.Start(r.Context(), req.ScheduleID, caller.ID, req.Topic)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleEndLesson(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	sess, err := s.sessions.End(r.Context(), mux.Vars(r)["id"], caller.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleCancelLesson(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	sess, err := s.sessions.Cancel(r.Context(), mux.Vars(r)["id"], caller.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleActiveLessons(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	sessions, err := s.sessions.ListActiveFor(r.Context(), caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*types.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	sess, err := s.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":     sess,
		"connections": s.rooms.CountInSession(sessionID),
	})
}

// handleJoinSession is the REST join: gate-checked and idempotent. Students
// get an attendance record; teachers get a plain confirmation.
func (s *Server) handleJoinSession(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	sessionID := mux.Vars(r)["id"]

	sess, err := s.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !sess.IsOpen() {
		writeError(w, http.StatusConflict, "Session is not active")
		return
	}
	if err := s.gate.Authorize(r.Context(), caller, sess); err != nil {
		writeServiceError(w, err)
		return
	}

	resp := map[string]any{"session_id": sessionID, "joined": true}
	if caller.Role == types.RoleStudent {
		record, err := s.attendance.OnJoin(r.Context(), sessionID, caller.ID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp["attendance"] = record
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWhiteboardState(w http.ResponseWriter, r *http.Request) {
	events, err := s.whiteboard.State(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if events == nil {
		events = []*types.WhiteboardEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleWhiteboardClear persists a CLEAR row and then broadcasts it, same
// ordering contract as the websocket path.
func (s *Server) handleWhiteboardClear(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	sessionID := mux.Vars(r)["id"]

	event, err := s.whiteboard.Append(r.Context(), sessionID, caller.ID, types.WhiteboardClear, nil)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	s.broadcaster.Broadcast(sessionID, &types.WhiteboardBroadcast{
		Type:      types.EventWhiteboardClear,
		SessionID: sessionID,
		CreatedBy: event.CreatedBy,
		Payload:   event.Payload,
		Timestamp: event.CreatedAt,
	})
	writeJSON(w, http.StatusOK, event)
}

func (s *Server) handleSessionAttendance(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	sessionID := mux.Vars(r)["id"]

	sess, err := s.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if caller.Role != types.RoleAdmin && caller.ID != sess.TeacherID {
		writeError(w, http.StatusForbidden, "Only the session teacher may view attendance")
		return
	}

	records, err := s.attendance.Records(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if records == nil {
		records = []*types.AttendanceRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"attendance": records})
}

func (s *Server) handleSaveNote(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if caller.Role != types.RoleStudent {
		writeError(w, http.StatusForbidden, "Only students keep lesson notes")
		return
	}

	var req saveNoteRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	note, err := s.notes.Save(r.Context(), caller, req.SessionID, req.Content, req.AttachmentURL)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleSessionNotes(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	list, err := s.notes.ListForSession(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []*types.StudentNote{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": list})
}

func (s *Server) handleMyNotes(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if caller.Role != types.RoleStudent {
		writeError(w, http.StatusForbidden, "Only students keep lesson notes")
		return
	}

	list, err := s.notes.ListMine(r.Context(), caller.ID, r.URL.Query().Get("subject_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []*types.StudentNote{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": list})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := s.health.HealthCheck(r.Context()); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"websocket": s.rooms.Stats(),
	})
}
