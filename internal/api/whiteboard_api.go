package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"kitehostel/internal/metrics"
	"kitehostel/internal/timecalc"
)

// handleWhiteboard returns every teacher's day with stats and revenue.
// GET /api/v1/whiteboard?date=YYYY-MM-DD
func (s *HTTPServer) handleWhiteboard(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("whiteboard")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	date, ok := s.parseDate(w, r)
	if !ok {
		return
	}

	wb, err := s.svc.Whiteboard(r.Context(), date)
	if err != nil {
		s.logger.Error().Err(err).Str("date", timecalc.FormatDate(date)).Msg("build whiteboard")
		writeError(w, http.StatusInternalServerError, "failed to build whiteboard")
		return
	}

	writeJSON(w, http.StatusOK, wb)
}

// handleTeacherDay returns a single teacher's column.
// GET /api/v1/whiteboard/teacher?date=YYYY-MM-DD&teacher_id=UUID
func (s *HTTPServer) handleTeacherDay(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("teacher_day")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	teacherID, err := uuid.Parse(r.URL.Query().Get("teacher_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid teacher_id")
		return
	}
	date, ok := s.parseDate(w, r)
	if !ok {
		return
	}

	wb, err := s.svc.Whiteboard(r.Context(), date)
	if err != nil {
		s.logger.Error().Err(err).Str("date", timecalc.FormatDate(date)).Msg("build whiteboard")
		writeError(w, http.StatusInternalServerError, "failed to build whiteboard")
		return
	}

	for _, day := range wb.Teachers {
		if day.TeacherID == teacherID {
			writeJSON(w, http.StatusOK, day)
			return
		}
	}
	writeError(w, http.StatusNotFound, "teacher has no schedule on this date")
}

// parseDate reads ?date=, defaulting to today in UTC.
func (s *HTTPServer) parseDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	date, err := s.dateOrToday(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}

func (s *HTTPServer) dateOrToday(raw string) (time.Time, error) {
	if raw == "" {
		return timecalc.StartOfDay(s.now()), nil
	}
	return timecalc.ParseDate(raw)
}
