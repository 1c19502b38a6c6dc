package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"kitehostel/internal/schedule"
	"kitehostel/internal/service"
)

type mockWhiteboards struct {
	mock.Mock
}

func (m *mockWhiteboards) Whiteboard(ctx context.Context, date time.Time) (*service.Whiteboard, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Whiteboard), args.Error(1)
}

func (m *mockWhiteboards) OpenSession(ctx context.Context, teacherID uuid.UUID, date time.Time) (*service.Session, error) {
	args := m.Called(ctx, teacherID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Session), args.Error(1)
}

type errorResponse struct {
	Error string `json:"error"`
}

var day = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

func newTestServer(svc Whiteboards, burst int) *HTTPServer {
	s := NewHTTPServer(svc, 0, 100, burst, nil)
	s.now = func() time.Time { return day.Add(10 * time.Hour) }
	return s
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleWhiteboard(t *testing.T) {
	teacherID := uuid.New()
	wb := &service.Whiteboard{
		Date:         "2025-03-14",
		EarliestTime: "09:00",
		Teachers: []service.TeacherDay{{
			TeacherID:   teacherID,
			TeacherName: "Ana",
			Nodes:       []schedule.Node{{Kind: schedule.NodeEvent, StartTime: "09:00", Duration: 60}},
		}},
		Global: schedule.Stats{TotalEvents: 1},
	}

	svc := &mockWhiteboards{}
	svc.On("Whiteboard", mock.Anything, day).Return(wb, nil)
	h := newTestServer(svc, 10).Handler()

	t.Run("explicit date", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/whiteboard?date=2025-03-14")
		require.Equal(t, http.StatusOK, rec.Code)

		var got service.Whiteboard
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "09:00", got.EarliestTime)
		require.Len(t, got.Teachers, 1)
		assert.Equal(t, teacherID, got.Teachers[0].TeacherID)
	})

	t.Run("defaults to today", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/whiteboard")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("teacher day", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/whiteboard/teacher?date=2025-03-14&teacher_id="+teacherID.String())
		require.Equal(t, http.StatusOK, rec.Code)

		var got service.TeacherDay
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "Ana", got.TeacherName)
	})

	t.Run("teacher not scheduled", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/whiteboard/teacher?date=2025-03-14&teacher_id="+uuid.NewString())
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleWhiteboard_Validation(t *testing.T) {
	h := newTestServer(&mockWhiteboards{}, 10).Handler()

	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
		wantError  string
	}{
		{"wrong method", http.MethodPost, "/api/v1/whiteboard", http.StatusMethodNotAllowed, "method not allowed; use GET"},
		{"bad date", http.MethodGet, "/api/v1/whiteboard?date=14-03-2025", http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD"},
		{"bad teacher id", http.MethodGet, "/api/v1/whiteboard/teacher?teacher_id=nope", http.StatusBadRequest, "invalid teacher_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.target)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var got errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.wantError, got.Error)
		})
	}
}

func TestHandleWhiteboard_ServiceError(t *testing.T) {
	svc := &mockWhiteboards{}
	svc.On("Whiteboard", mock.Anything, day).Return(nil, errors.New("db down"))

	rec := do(t, newTestServer(svc, 10).Handler(), http.MethodGet, "/api/v1/whiteboard?date=2025-03-14")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRateLimit(t *testing.T) {
	svc := &mockWhiteboards{}
	svc.On("Whiteboard", mock.Anything, day).Return(&service.Whiteboard{Date: "2025-03-14"}, nil)
	s := NewHTTPServer(svc, 0, 0.001, 2, nil)
	h := s.Handler()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(t, h, http.MethodGet, "/api/v1/whiteboard?date=2025-03-14").Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
