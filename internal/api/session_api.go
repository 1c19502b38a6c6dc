package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"kitehostel/internal/metrics"
	"kitehostel/internal/model"
	"kitehostel/internal/schedule"
	"kitehostel/internal/service"
	"kitehostel/internal/timecalc"
)

const maxBodyBytes = 1 << 20

type openSessionRequest struct {
	TeacherID uuid.UUID `json:"teacher_id"`
	Date      string    `json:"date"`
}

type editRequest struct {
	EventID   uuid.UUID           `json:"event_id"`
	Delta     int                 `json:"delta"`
	Proposals []schedule.Proposal `json:"proposals"`
}

type sessionResponse struct {
	SessionID uuid.UUID          `json:"session_id"`
	Day       service.TeacherDay `json:"day"`
	Pending   []model.EventPatch `json:"pending,omitempty"`
	Changes   []schedule.Change  `json:"changes,omitempty"`
	Committed []model.EventPatch `json:"committed,omitempty"`
}

// handleOpenSession loads a teacher's day for editing.
// POST /api/v1/sessions {"teacher_id": UUID, "date": "YYYY-MM-DD"}
func (s *HTTPServer) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_open")

	var req openSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TeacherID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "teacher_id is required")
		return
	}
	date, err := s.dateOrToday(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	session, err := s.svc.OpenSession(r.Context(), req.TeacherID, date)
	if err != nil {
		s.writeEditError(w, err)
		return
	}
	id := s.sessions.add(session)

	s.logger.Info().
		Str("session_id", id.String()).
		Str("teacher_id", req.TeacherID.String()).
		Str("date", timecalc.FormatDate(date)).
		Msg("edit session opened")
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: id, Day: session.Day()})
}

// handleGetSession returns the session's day with its pending changes.
// GET /api/v1/sessions/{id}
func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_get")

	id, session, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: id, Day: session.Day(), Pending: session.PendingPatches()})
}

// handleCloseSession drops a session and its uncommitted changes.
// DELETE /api/v1/sessions/{id}
func (s *HTTPServer) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_close")

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	if !s.sessions.remove(id) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSessionAction runs one edit operation on a session.
// POST /api/v1/sessions/{id}/{action}
func (s *HTTPServer) handleSessionAction(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_edit")

	id, session, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var req editRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := sessionResponse{SessionID: id}
	var err error
	switch action := r.PathValue("action"); action {
	case "shift":
		err = singleChange(&resp, func() (schedule.Change, error) { return session.ShiftTime(req.EventID, req.Delta) })
	case "resize":
		err = singleChange(&resp, func() (schedule.Change, error) { return session.AdjustDuration(req.EventID, req.Delta) })
	case "move-up":
		resp.Changes, err = session.MoveUp(req.EventID)
	case "move-down":
		resp.Changes, err = session.MoveDown(req.EventID)
	case "propose":
		if len(req.Proposals) == 0 {
			writeError(w, http.StatusBadRequest, "proposals are required")
			return
		}
		resp.Changes, err = session.Propose(req.Proposals...)
	case "revert":
		resp.Changes, err = session.Revert(req.EventID)
	case "revert-all":
		resp.Changes, err = session.RevertAll()
	case "commit":
		resp.Committed, err = session.Commit(r.Context(), req.EventID)
	case "commit-all":
		resp.Committed, err = session.CommitAll(r.Context())
	case "refresh":
		err = session.Refresh(r.Context())
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown action %q", action))
		return
	}
	if err != nil {
		s.writeEditError(w, err)
		return
	}

	resp.Day = session.Day()
	resp.Pending = session.PendingPatches()
	writeJSON(w, http.StatusOK, resp)
}

func singleChange(resp *sessionResponse, edit func() (schedule.Change, error)) error {
	change, err := edit()
	if err != nil {
		return err
	}
	resp.Changes = []schedule.Change{change}
	return nil
}

func (s *HTTPServer) lookupSession(w http.ResponseWriter, r *http.Request) (uuid.UUID, *service.Session, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return uuid.Nil, nil, false
	}
	session, ok := s.sessions.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return uuid.Nil, nil, false
	}
	return id, session, true
}

// writeEditError maps declined edits and stale commits to client errors.
func (s *HTTPServer) writeEditError(w http.ResponseWriter, err error) {
	status := editStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("session operation failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func editStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrTeacherNotScheduled), errors.Is(err, schedule.ErrUnknownEvent):
		return http.StatusNotFound
	case errors.Is(err, service.ErrStaleSchedule),
		errors.Is(err, schedule.ErrNothingToCommit),
		errors.Is(err, schedule.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, schedule.ErrOverlap),
		errors.Is(err, schedule.ErrOutOfDay),
		errors.Is(err, schedule.ErrDurationTooShort),
		errors.Is(err, schedule.ErrNoNeighbour),
		errors.Is(err, schedule.ErrInvalidDuration):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads an optional JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
