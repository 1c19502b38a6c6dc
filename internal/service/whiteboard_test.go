package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"kitehostel/internal/events"
	"kitehostel/internal/model"
	"kitehostel/internal/schedule"
	"kitehostel/internal/timecalc"
)

var day = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) LessonsForDate(ctx context.Context, date time.Time) ([]model.Lesson, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Lesson), args.Error(1)
}

func (m *mockSource) BookingClassesForDate(ctx context.Context, date time.Time) ([]schedule.BookingClass, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schedule.BookingClass), args.Error(1)
}

type mockUpdater struct {
	mock.Mock
}

func (m *mockUpdater) UpdateEvent(ctx context.Context, patch model.EventPatch) error {
	return m.Called(ctx, patch).Error(0)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

type fixture struct {
	teacher *model.Teacher
	lesson  model.Lesson
	first   uuid.UUID
	second  uuid.UUID
}

func newFixture() fixture {
	teacher := &model.Teacher{ID: uuid.New(), Name: "Ana"}
	lesson := model.Lesson{
		ID:         uuid.New(),
		Teacher:    teacher,
		Commission: &model.Commission{ID: uuid.New(), PricePerHour: 20},
		Status:     model.LessonPlanned,
		Booking: model.BookingInfo{
			ID:       uuid.New(),
			Status:   model.BookingActive,
			Package:  &model.Package{ID: uuid.New(), DurationMinutes: 120, PricePerStudent: 100},
			Students: []model.Student{{ID: uuid.New(), Name: "Joana"}, {ID: uuid.New(), Name: "Rui"}},
		},
	}
	f := fixture{teacher: teacher, first: uuid.New(), second: uuid.New()}
	lesson.Events = []model.Event{
		{ID: f.first, LessonID: lesson.ID, Date: "2025-03-14", StartTime: "09:00", DurationMinutes: 60, Status: model.EventPlanned},
		{ID: f.second, LessonID: lesson.ID, Date: "2025-03-14", StartTime: "11:00", DurationMinutes: 60, Status: model.EventPlanned},
	}
	f.lesson = lesson
	return f
}

func (f fixture) lessonsWith(mutate func(*model.Lesson)) []model.Lesson {
	l := f.lesson
	l.Events = append([]model.Event(nil), f.lesson.Events...)
	if mutate != nil {
		mutate(&l)
	}
	return []model.Lesson{l}
}

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func TestService_Whiteboard(t *testing.T) {
	f := newFixture()
	source := &mockSource{}
	source.On("LessonsForDate", mock.Anything, day).Return(f.lessonsWith(nil), nil)
	source.On("BookingClassesForDate", mock.Anything, day).Return([]schedule.BookingClass{schedule.NewBookingClass(f.lesson.Booking)}, nil)

	svc := New(source, &mockUpdater{}, nil, schedule.DefaultPolicy(), testLogger())

	wb, err := svc.Whiteboard(context.Background(), day.Add(15*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, "2025-03-14", wb.Date)
	assert.Equal(t, "09:00", wb.EarliestTime)
	require.Len(t, wb.Teachers, 1)
	assert.Len(t, wb.Teachers[0].Nodes, 3)
	assert.Len(t, wb.Teachers[0].BookingClasses, 1)

	assert.Equal(t, 2, wb.Global.TotalEvents)
	assert.InDelta(t, wb.Revenue.Teacher, wb.Global.TotalEarnings, 1e-9)
	assert.InDelta(t, wb.Revenue.School, wb.Global.SchoolRevenue, 1e-9)
	assert.Equal(t, 2.0, wb.LessonStats.SemiPrivate)
	assert.Equal(t, 200.0, wb.Revenue.Revenue)
	source.AssertExpectations(t)
}

func TestService_WhiteboardSourceError(t *testing.T) {
	source := &mockSource{}
	source.On("LessonsForDate", mock.Anything, day).Return(nil, errors.New("db down"))

	svc := New(source, &mockUpdater{}, nil, schedule.DefaultPolicy(), nil)

	_, err := svc.Whiteboard(context.Background(), day)
	assert.Error(t, err)
}

func TestService_OpenSessionUnknownTeacher(t *testing.T) {
	f := newFixture()
	source := &mockSource{}
	source.On("LessonsForDate", mock.Anything, day).Return(f.lessonsWith(nil), nil)
	source.On("BookingClassesForDate", mock.Anything, day).Return(nil, nil)

	svc := New(source, &mockUpdater{}, nil, schedule.DefaultPolicy(), nil)

	_, err := svc.OpenSession(context.Background(), uuid.New(), day)
	assert.ErrorIs(t, err, ErrTeacherNotScheduled)
}

func TestSession_Commit(t *testing.T) {
	f := newFixture()
	source := &mockSource{}
	source.On("LessonsForDate", mock.Anything, day).Return(f.lessonsWith(nil), nil)
	source.On("BookingClassesForDate", mock.Anything, day).Return(nil, nil)

	updater := &mockUpdater{}
	updater.On("UpdateEvent", mock.Anything, mock.MatchedBy(func(p model.EventPatch) bool {
		return p.EventID == f.first && p.Start != nil && p.Start.Equal(day.Add(9*time.Hour+30*time.Minute))
	})).Return(nil).Once()

	publisher := &mockPublisher{}
	publisher.On("PublishJSON", events.EventTypeEventUpdated, mock.MatchedBy(func(p events.EventUpdated) bool {
		return p.EventID == f.first && p.TeacherID == f.teacher.ID && p.Date == "2025-03-14"
	})).Return(nil).Once()

	svc := New(source, updater, publisher, schedule.DefaultPolicy(), testLogger())
	session, err := svc.OpenSession(context.Background(), f.teacher.ID, day)
	require.NoError(t, err)

	_, err = session.ShiftTime(f.first, 30)
	require.NoError(t, err)
	require.Len(t, session.PendingPatches(), 1)

	patches, err := session.Commit(context.Background(), f.first)
	require.NoError(t, err)
	require.Len(t, patches, 1)
	assert.Nil(t, patches[0].DurationMinutes)
	assert.Empty(t, session.PendingPatches())
	assert.Equal(t, schedule.StateCommitted, session.Day().Nodes[0].State)

	updater.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestSession_CommitRejectsStaleOverlap(t *testing.T) {
	f := newFixture()
	source := &mockSource{}
	source.On("LessonsForDate", mock.Anything, day).Return(f.lessonsWith(nil), nil).Once()
	source.On("BookingClassesForDate", mock.Anything, day).Return(nil, nil)

	svc := New(source, &mockUpdater{}, nil, schedule.DefaultPolicy(), nil)
	session, err := svc.OpenSession(context.Background(), f.teacher.ID, day)
	require.NoError(t, err)

	_, err = session.AdjustDuration(f.first, 60)
	require.NoError(t, err)

	// someone else moved the second event to 10:30 in the meantime
	source.On("LessonsForDate", mock.Anything, day).Return(f.lessonsWith(func(l *model.Lesson) {
		l.Events[1].StartTime = "10:30"
	}), nil)

	_, err = session.Commit(context.Background(), f.first)
	assert.ErrorIs(t, err, ErrStaleSchedule)
	assert.ErrorIs(t, err, schedule.ErrOverlap)
	assert.Len(t, session.PendingPatches(), 1)

	require.NoError(t, session.Refresh(context.Background()))
	assert.Empty(t, session.PendingPatches())
	assert.Equal(t, "10:30", session.Day().Nodes[2].StartTime)
}

func TestSession_CommitWithoutChange(t *testing.T) {
	f := newFixture()
	source := &mockSource{}
	source.On("LessonsForDate", mock.Anything, day).Return(f.lessonsWith(nil), nil)
	source.On("BookingClassesForDate", mock.Anything, day).Return(nil, nil)

	svc := New(source, &mockUpdater{}, nil, schedule.DefaultPolicy(), nil)
	session, err := svc.OpenSession(context.Background(), f.teacher.ID, day)
	require.NoError(t, err)

	_, err = session.Commit(context.Background(), f.first)
	assert.ErrorIs(t, err, schedule.ErrNothingToCommit)
}

func TestSession_CommitAll(t *testing.T) {
	f := newFixture()
	source := &mockSource{}
	source.On("LessonsForDate", mock.Anything, day).Return(f.lessonsWith(nil), nil).Once()
	source.On("LessonsForDate", mock.Anything, day).Return(f.lessonsWith(func(l *model.Lesson) {
		l.Events[0].DurationMinutes = 90
	}), nil)
	source.On("BookingClassesForDate", mock.Anything, day).Return(nil, nil)

	updater := &mockUpdater{}
	updater.On("UpdateEvent", mock.Anything, mock.Anything).Return(nil)

	svc := New(source, updater, nil, schedule.DefaultPolicy(), nil)
	session, err := svc.OpenSession(context.Background(), f.teacher.ID, day)
	require.NoError(t, err)

	_, err = session.AdjustDuration(f.first, 30)
	require.NoError(t, err)
	_, err = session.AdjustDuration(f.second, 30)
	require.NoError(t, err)

	patches, err := session.CommitAll(context.Background())
	require.NoError(t, err)
	require.Len(t, patches, 2)
	assert.True(t, patches[0].IsEmpty())
	updater.AssertNumberOfCalls(t, "UpdateEvent", 1)
}

// memStore keeps lessons in memory and applies event patches to them.
type memStore struct {
	mu      sync.Mutex
	lessons []model.Lesson
}

func (m *memStore) LessonsForDate(_ context.Context, _ time.Time) ([]model.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Lesson, len(m.lessons))
	for i, l := range m.lessons {
		l.Events = append([]model.Event(nil), l.Events...)
		out[i] = l
	}
	return out, nil
}

func (m *memStore) BookingClassesForDate(_ context.Context, _ time.Time) ([]schedule.BookingClass, error) {
	return nil, nil
}

func (m *memStore) UpdateEvent(_ context.Context, patch model.EventPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.lessons {
		for j := range m.lessons[i].Events {
			ev := &m.lessons[i].Events[j]
			if ev.ID != patch.EventID {
				continue
			}
			if patch.Start != nil {
				ev.Date = timecalc.FormatDate(*patch.Start)
				ev.StartTime = timecalc.FormatClock(*patch.Start)
			}
			if patch.DurationMinutes != nil {
				ev.DurationMinutes = *patch.DurationMinutes
			}
			return nil
		}
	}
	return errors.New("event not found")
}

func (m *memStore) startOf(id uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.lessons {
		for _, ev := range l.Events {
			if ev.ID == id {
				return ev.StartTime
			}
		}
	}
	return ""
}

func adjacentStore() (fixture, *memStore) {
	f := newFixture()
	lessons := f.lessonsWith(func(l *model.Lesson) {
		l.Events[1].StartTime = "10:00"
	})
	return f, &memStore{lessons: lessons}
}

func TestSession_CommitSwap(t *testing.T) {
	tests := []struct {
		name   string
		commit func(context.Context, *Session, fixture) ([]model.EventPatch, error)
	}{
		{"commit all", func(ctx context.Context, s *Session, _ fixture) ([]model.EventPatch, error) {
			return s.CommitAll(ctx)
		}},
		{"commit moved event", func(ctx context.Context, s *Session, f fixture) ([]model.EventPatch, error) {
			return s.Commit(ctx, f.first)
		}},
		{"commit partner", func(ctx context.Context, s *Session, f fixture) ([]model.EventPatch, error) {
			return s.Commit(ctx, f.second)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, store := adjacentStore()
			publisher := &mockPublisher{}
			publisher.On("PublishJSON", events.EventTypeEventUpdated, mock.Anything).Return(nil).Twice()

			svc := New(store, store, publisher, schedule.DefaultPolicy(), testLogger())
			session, err := svc.OpenSession(context.Background(), f.teacher.ID, day)
			require.NoError(t, err)

			_, err = session.MoveDown(f.first)
			require.NoError(t, err)

			patches, err := tt.commit(context.Background(), session, f)
			require.NoError(t, err)
			assert.Len(t, patches, 2)
			assert.Empty(t, session.PendingPatches())

			assert.Equal(t, "10:00", store.startOf(f.first))
			assert.Equal(t, "09:00", store.startOf(f.second))

			reopened, err := svc.OpenSession(context.Background(), f.teacher.ID, day)
			require.NoError(t, err)
			assert.Empty(t, reopened.Day().Conflicts)
			assert.Equal(t, f.second, reopened.Day().Nodes[0].EventID)
			publisher.AssertExpectations(t)
		})
	}
}

func TestSession_RevertSwap(t *testing.T) {
	f, store := adjacentStore()
	svc := New(store, store, nil, schedule.DefaultPolicy(), nil)
	session, err := svc.OpenSession(context.Background(), f.teacher.ID, day)
	require.NoError(t, err)

	_, err = session.MoveUp(f.second)
	require.NoError(t, err)

	changes, err := session.Revert(f.second)
	require.NoError(t, err)
	assert.Len(t, changes, 2)
	assert.Empty(t, session.PendingPatches())
}

func TestSession_CommitPolicyViolationIsNotStale(t *testing.T) {
	f, store := adjacentStore()
	svc := New(store, store, nil, schedule.Policy{Overlap: schedule.OverlapClamp, MinDurationMinutes: 15}, nil)
	session, err := svc.OpenSession(context.Background(), f.teacher.ID, day)
	require.NoError(t, err)

	_, err = session.AdjustDuration(f.first, -40)
	require.NoError(t, err)

	svc.SetPolicy(schedule.DefaultPolicy())
	_, err = session.Commit(context.Background(), f.first)
	assert.ErrorIs(t, err, schedule.ErrDurationTooShort)
	assert.NotErrorIs(t, err, ErrStaleSchedule)
	assert.Equal(t, "09:00", store.startOf(f.first))
}

func TestService_SetPolicy(t *testing.T) {
	svc := New(&mockSource{}, &mockUpdater{}, nil, schedule.DefaultPolicy(), nil)
	svc.SetPolicy(schedule.Policy{Overlap: schedule.OverlapReject, MinDurationMinutes: 15})
	assert.Equal(t, schedule.OverlapReject, svc.Policy().Overlap)
}
