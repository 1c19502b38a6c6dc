package model

import (
	"time"

	"github.com/google/uuid"

	"kitehostel/internal/timecalc"
)

type EventStatus string

const (
	EventPlanned   EventStatus = "planned"
	EventTBC       EventStatus = "tbc"
	EventCompleted EventStatus = "completed"
)

// Event is a single dated, timed occurrence of teaching within a lesson.
type Event struct {
	ID              uuid.UUID   `json:"id"`
	LessonID        uuid.UUID   `json:"lesson_id"`
	Date            string      `json:"date"`       // "2006-01-02"
	StartTime       string      `json:"start_time"` // "15:04", UTC wall clock
	DurationMinutes int         `json:"duration_minutes"`
	Location        string      `json:"location"`
	Status          EventStatus `json:"status"`
}

// Start returns the UTC instant the event begins.
func (e Event) Start() (time.Time, error) {
	return timecalc.CreateUTCDateTime(e.Date, e.StartTime)
}

// EventPatch carries only the changed fields of an event for the persistence layer.
type EventPatch struct {
	EventID         uuid.UUID  `json:"event_id"`
	Start           *time.Time `json:"start,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p EventPatch) IsEmpty() bool {
	return p.Start == nil && p.DurationMinutes == nil
}
