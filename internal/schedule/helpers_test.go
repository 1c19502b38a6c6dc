package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"kitehostel/internal/model"
)

var testDate = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

func newTeacher(name string) *model.Teacher {
	return &model.Teacher{ID: uuid.New(), Name: name}
}

func newLesson(teacher *model.Teacher, students int) model.Lesson {
	l := model.Lesson{
		ID:         uuid.New(),
		Teacher:    teacher,
		Commission: &model.Commission{ID: uuid.New(), PricePerHour: 20},
		Status:     model.LessonPlanned,
		Booking: model.BookingInfo{
			ID:      uuid.New(),
			Status:  model.BookingActive,
			Package: &model.Package{ID: uuid.New(), DurationMinutes: 120, PricePerStudent: 100, Description: "Course"},
		},
	}
	for i := 0; i < students; i++ {
		l.Booking.Students = append(l.Booking.Students, model.Student{ID: uuid.New(), Name: "Kiter"})
	}
	return l
}

// dayWith builds a schedule with one lesson and events at the given "HH:MM"/duration pairs.
func dayWith(t *testing.T, policy Policy, slots ...any) (*TeacherSchedule, []uuid.UUID) {
	t.Helper()
	teacher := newTeacher("Ana")
	ts := NewTeacherSchedule(teacher.ID, teacher.Name, testDate, policy)
	lesson := newLesson(teacher, 2)
	require.NoError(t, ts.AddLesson(lesson))

	var ids []uuid.UUID
	for i := 0; i+1 < len(slots); i += 2 {
		id := uuid.New()
		require.NoError(t, ts.AddEvent(EventInput{
			EventID:         id,
			LessonID:        lesson.ID,
			StartTime:       slots[i].(string),
			DurationMinutes: slots[i+1].(int),
			Status:          model.EventPlanned,
			StudentCount:    2,
		}))
		ids = append(ids, id)
	}
	return ts, ids
}

func startOf(t *testing.T, ts *TeacherSchedule, id uuid.UUID) string {
	t.Helper()
	ev, ok := ts.Event(id)
	require.True(t, ok)
	return ev.StartTime()
}

func durationOf(t *testing.T, ts *TeacherSchedule, id uuid.UUID) int {
	t.Helper()
	ev, ok := ts.Event(id)
	require.True(t, ok)
	return ev.DurationMinutes
}
