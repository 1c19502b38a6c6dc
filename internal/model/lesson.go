package model

import "github.com/google/uuid"

type LessonStatus string

const (
	LessonPlanned   LessonStatus = "planned"
	LessonCompleted LessonStatus = "completed"
	LessonCancelled LessonStatus = "cancelled"
	LessonRest      LessonStatus = "rest"
	LessonDelegated LessonStatus = "delegated"
)

type Teacher struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Commission is the hourly rate a teacher earns for delivered events.
type Commission struct {
	ID           uuid.UUID `json:"id"`
	TeacherID    uuid.UUID `json:"teacher_id"`
	PricePerHour float64   `json:"price_per_hour"`
	Description  string    `json:"description,omitempty"`
}

// Lesson is one teacher's assignment to deliver a booking.
// Teacher is nil until the lesson is assigned.
type Lesson struct {
	ID         uuid.UUID    `json:"id"`
	Teacher    *Teacher     `json:"teacher,omitempty"`
	Commission *Commission  `json:"commission,omitempty"`
	Status     LessonStatus `json:"status"`
	Events     []Event      `json:"events"`
	Booking    BookingInfo  `json:"booking"`
}

// EventMinutes sums the durations of all events of the lesson.
func (l Lesson) EventMinutes() int {
	total := 0
	for _, e := range l.Events {
		total += e.DurationMinutes
	}
	return total
}

func (l Lesson) HasTeacher() bool {
	return l.Teacher != nil && l.Teacher.ID != uuid.Nil
}
