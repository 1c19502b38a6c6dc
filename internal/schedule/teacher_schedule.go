// Package schedule builds and edits the per-teacher, per-day whiteboard.
//
// A TeacherSchedule is request scoped: it is assembled from the current
// lesson/event rows for one date, mutated in memory while a user edits it and
// discarded afterwards. Only committed event fields are written back.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kitehostel/internal/model"
	"kitehostel/internal/revenue"
	"kitehostel/internal/timecalc"
)

var (
	ErrTeacherMismatch = errors.New("lesson is not assigned to this teacher")
	ErrUnknownLesson   = errors.New("unknown lesson")
	ErrUnknownEvent    = errors.New("unknown event")
	ErrDuplicateEvent  = errors.New("event already scheduled")
	ErrInvalidDuration = errors.New("event duration must be positive")
)

// OverlapPolicy decides what happens to an edit that would run into a neighbour.
type OverlapPolicy string

const (
	OverlapClamp  OverlapPolicy = "clamp"
	OverlapReject OverlapPolicy = "reject"
)

// Policy configures edit validation.
type Policy struct {
	Overlap            OverlapPolicy
	MinDurationMinutes int
}

func DefaultPolicy() Policy {
	return Policy{Overlap: OverlapClamp, MinDurationMinutes: 30}
}

func (p Policy) minDuration() int {
	if p.MinDurationMinutes <= 0 {
		return 1
	}
	return p.MinDurationMinutes
}

func (p Policy) clamps() bool {
	return p.Overlap != OverlapReject
}

// BookingClass is a booking summary shown on lesson cards.
type BookingClass struct {
	BookingID          uuid.UUID           `json:"booking_id"`
	PackageDescription string              `json:"package_description,omitempty"`
	StudentNames       []string            `json:"student_names"`
	DateStart          time.Time           `json:"date_start"`
	DateEnd            time.Time           `json:"date_end"`
	Status             model.BookingStatus `json:"status"`
}

// NewBookingClass summarizes a booking.
func NewBookingClass(b model.BookingInfo) BookingClass {
	bc := BookingClass{
		BookingID:    b.ID,
		StudentNames: b.StudentNames(),
		DateStart:    b.DateStart,
		DateEnd:      b.DateEnd,
		Status:       b.Status,
	}
	if b.Package != nil {
		bc.PackageDescription = b.Package.Description
	}
	return bc
}

// Stats are the derived figures of one or more teacher days.
type Stats struct {
	TotalEvents   int     `json:"total_events"`
	TotalLessons  int     `json:"total_lessons"`
	TotalHours    float64 `json:"total_hours"`
	TotalEarnings float64 `json:"total_earnings"`
	SchoolRevenue float64 `json:"school_revenue"`
}

// Add sums two stats field-wise.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		TotalEvents:   s.TotalEvents + o.TotalEvents,
		TotalLessons:  s.TotalLessons + o.TotalLessons,
		TotalHours:    s.TotalHours + o.TotalHours,
		TotalEarnings: s.TotalEarnings + o.TotalEarnings,
		SchoolRevenue: s.SchoolRevenue + o.SchoolRevenue,
	}
}

// EventInput describes an event to place on the schedule.
type EventInput struct {
	EventID         uuid.UUID
	LessonID        uuid.UUID
	StartTime       string // "HH:MM"
	DurationMinutes int
	Location        string
	Status          model.EventStatus
	StudentCount    int
	StudentNames    []string
}

// TeacherSchedule is one teacher's day. It is not safe for concurrent use.
type TeacherSchedule struct {
	TeacherID   uuid.UUID
	TeacherName string
	Date        time.Time

	policy Policy

	lessons     map[uuid.UUID]model.Lesson
	lessonOrder []uuid.UUID
	events      map[uuid.UUID]*ScheduledEvent

	bookingClasses []BookingClass
	attached       map[uuid.UUID]bool
}

func NewTeacherSchedule(teacherID uuid.UUID, teacherName string, date time.Time, policy Policy) *TeacherSchedule {
	return &TeacherSchedule{
		TeacherID:   teacherID,
		TeacherName: teacherName,
		Date:        timecalc.StartOfDay(date),
		policy:      policy,
		lessons:     make(map[uuid.UUID]model.Lesson),
		events:      make(map[uuid.UUID]*ScheduledEvent),
		attached:    make(map[uuid.UUID]bool),
	}
}

func (s *TeacherSchedule) Policy() Policy {
	return s.policy
}

// AddLesson registers the lesson whose events will be placed on this day.
// Re-adding a lesson replaces its financial context.
func (s *TeacherSchedule) AddLesson(l model.Lesson) error {
	if !l.HasTeacher() || l.Teacher.ID != s.TeacherID {
		return fmt.Errorf("%w: lesson %s", ErrTeacherMismatch, l.ID)
	}
	if _, ok := s.lessons[l.ID]; !ok {
		s.lessonOrder = append(s.lessonOrder, l.ID)
	}
	s.lessons[l.ID] = l
	return nil
}

// AddEvent places an event on the day. Node order is derived on read, so events
// may be added in any order. Overlaps already present in stored data are kept
// and reported by Conflicts.
func (s *TeacherSchedule) AddEvent(in EventInput) error {
	if _, ok := s.lessons[in.LessonID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLesson, in.LessonID)
	}
	if _, ok := s.events[in.EventID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, in.EventID)
	}
	if in.DurationMinutes <= 0 {
		return fmt.Errorf("%w: event %s has %d minutes", ErrInvalidDuration, in.EventID, in.DurationMinutes)
	}

	start, err := timecalc.TimeToMinutes(in.StartTime)
	if err != nil {
		return err
	}

	ev := &ScheduledEvent{
		EventID:         in.EventID,
		LessonID:        in.LessonID,
		Date:            timecalc.FormatDate(s.Date),
		StartMinutes:    start,
		DurationMinutes: in.DurationMinutes,
		Location:        in.Location,
		Status:          in.Status,
		StudentCount:    in.StudentCount,
		StudentNames:    in.StudentNames,
		state:           StateUnmodified,
	}
	ev.baseline = ev.slot()
	s.events[in.EventID] = ev
	return nil
}

// Lessons returns the backing lessons in insertion order.
func (s *TeacherSchedule) Lessons() []model.Lesson {
	out := make([]model.Lesson, 0, len(s.lessonOrder))
	for _, id := range s.lessonOrder {
		out = append(out, s.lessons[id])
	}
	return out
}

// Events returns the scheduled events ordered by start time.
func (s *TeacherSchedule) Events() []ScheduledEvent {
	return sortedEvents(s.eventList())
}

func (s *TeacherSchedule) Event(id uuid.UUID) (ScheduledEvent, bool) {
	ev, ok := s.events[id]
	if !ok {
		return ScheduledEvent{}, false
	}
	return *ev, true
}

// Nodes returns the ordered events with gap nodes between them.
func (s *TeacherSchedule) Nodes() []Node {
	return BuildNodes(s.eventList())
}

// Conflicts lists overlapping events on the day.
func (s *TeacherSchedule) Conflicts() []Conflict {
	return FindConflicts(s.eventList())
}

// EarliestTime returns the first start time of the day.
func (s *TeacherSchedule) EarliestTime() (string, bool) {
	if len(s.events) == 0 {
		return "", false
	}
	earliest := timecalc.MinutesPerDay
	for _, ev := range s.events {
		if ev.StartMinutes < earliest {
			earliest = ev.StartMinutes
		}
	}
	return timecalc.MinutesToTime(earliest), true
}

// CalculateTeacherStats derives counts and money from the current event values,
// including proposed edits. Money uses the same split as revenue.CalcLessonRevenue.
func (s *TeacherSchedule) CalculateTeacherStats() Stats {
	var st Stats
	minutesByLesson := make(map[uuid.UUID]int)

	for _, ev := range s.events {
		st.TotalEvents++
		minutesByLesson[ev.LessonID] += ev.DurationMinutes
	}

	for _, id := range s.lessonOrder {
		minutes, ok := minutesByLesson[id]
		if !ok {
			continue
		}
		l := s.lessons[id]
		split := revenue.LessonSplit(minutes, l.Booking.StudentCount(), l.Booking.Package, l.Commission)

		st.TotalLessons++
		st.TotalHours += float64(minutes) / 60
		st.TotalEarnings += split.Teacher
		st.SchoolRevenue += split.School
	}

	return st
}

// HasBooking reports whether any lesson of the day belongs to the booking.
func (s *TeacherSchedule) HasBooking(bookingID uuid.UUID) bool {
	for _, l := range s.lessons {
		if l.Booking.ID == bookingID {
			return true
		}
	}
	return false
}

// AttachBookingClass adds a booking summary once.
func (s *TeacherSchedule) AttachBookingClass(bc BookingClass) {
	if s.attached[bc.BookingID] {
		return
	}
	s.attached[bc.BookingID] = true
	s.bookingClasses = append(s.bookingClasses, bc)
}

func (s *TeacherSchedule) BookingClasses() []BookingClass {
	return append([]BookingClass(nil), s.bookingClasses...)
}

func (s *TeacherSchedule) eventList() []ScheduledEvent {
	list := make([]ScheduledEvent, 0, len(s.events))
	for _, ev := range s.events {
		list = append(list, *ev)
	}
	return list
}
