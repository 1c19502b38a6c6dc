// Package service assembles the daily whiteboard and runs edit sessions on it.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kitehostel/internal/model"
	"kitehostel/internal/revenue"
	"kitehostel/internal/schedule"
	"kitehostel/internal/stats"
	"kitehostel/internal/timecalc"
)

var (
	ErrTeacherNotScheduled = errors.New("teacher has no schedule on this date")
	ErrStaleSchedule       = errors.New("schedule changed since it was loaded")
)

// LessonSource fetches the lessons and booking summaries of a date.
type LessonSource interface {
	LessonsForDate(ctx context.Context, date time.Time) ([]model.Lesson, error)
	BookingClassesForDate(ctx context.Context, date time.Time) ([]schedule.BookingClass, error)
}

// EventPublisher announces committed changes.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// TeacherDay is one teacher's column on the whiteboard.
type TeacherDay struct {
	TeacherID      uuid.UUID               `json:"teacher_id"`
	TeacherName    string                  `json:"teacher_name"`
	Nodes          []schedule.Node         `json:"nodes"`
	Stats          schedule.Stats          `json:"stats"`
	BookingClasses []schedule.BookingClass `json:"booking_classes"`
	Conflicts      []schedule.Conflict     `json:"conflicts,omitempty"`
}

// Whiteboard is the read model of one school day.
type Whiteboard struct {
	Date         string         `json:"date"`
	EarliestTime string         `json:"earliest_time,omitempty"`
	Teachers     []TeacherDay   `json:"teachers"`
	Global       schedule.Stats `json:"global"`
	LessonStats  stats.Result   `json:"lesson_stats"`
	Revenue      revenue.Result `json:"revenue"`
}

// Service builds whiteboards from a lesson source and commits edits through an updater.
type Service struct {
	source    LessonSource
	updater   schedule.EventUpdater
	publisher EventPublisher
	logger    zerolog.Logger

	mu     sync.RWMutex
	policy schedule.Policy
}

func New(source LessonSource, updater schedule.EventUpdater, publisher EventPublisher, policy schedule.Policy, logger *zerolog.Logger) *Service {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &Service{
		source:    source,
		updater:   updater,
		publisher: publisher,
		logger:    l.With().Str("component", "whiteboard").Logger(),
		policy:    policy,
	}
}

// SetPolicy swaps the edit policy used by new sessions.
func (s *Service) SetPolicy(p schedule.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = p
}

func (s *Service) Policy() schedule.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

// Whiteboard assembles every teacher's day together with stats and revenue.
func (s *Service) Whiteboard(ctx context.Context, date time.Time) (*Whiteboard, error) {
	date = timecalc.StartOfDay(date)
	lessons, schedules, err := s.load(ctx, date, s.Policy())
	if err != nil {
		return nil, err
	}

	day := schedule.FilterLessonsForDate(lessons, date)
	wb := &Whiteboard{
		Date:        timecalc.FormatDate(date),
		Teachers:    make([]TeacherDay, 0, len(schedules)),
		Global:      schedule.CalculateGlobalStats(schedules),
		LessonStats: stats.CalcLessonStats(day),
		Revenue:     revenue.CalcLessonRevenue(model.GroupBookings(day)),
	}
	if earliest, ok := schedule.EarliestTimeFromSchedules(schedules); ok {
		wb.EarliestTime = earliest
	}
	for _, ts := range schedules.Sorted() {
		wb.Teachers = append(wb.Teachers, teacherDay(ts))
	}

	s.logger.Debug().
		Str("date", wb.Date).
		Int("teachers", len(wb.Teachers)).
		Int("events", wb.Global.TotalEvents).
		Msg("whiteboard assembled")
	return wb, nil
}

// OpenSession loads one teacher's day for editing.
func (s *Service) OpenSession(ctx context.Context, teacherID uuid.UUID, date time.Time) (*Session, error) {
	date = timecalc.StartOfDay(date)
	ts, err := s.teacherSchedule(ctx, teacherID, date, s.Policy())
	if err != nil {
		return nil, err
	}
	return &Session{svc: s, teacherID: teacherID, date: date, schedule: ts}, nil
}

func (s *Service) load(ctx context.Context, date time.Time, policy schedule.Policy) ([]model.Lesson, schedule.Schedules, error) {
	lessons, err := s.source.LessonsForDate(ctx, date)
	if err != nil {
		return nil, nil, fmt.Errorf("load lessons for %s: %w", timecalc.FormatDate(date), err)
	}
	classes, err := s.source.BookingClassesForDate(ctx, date)
	if err != nil {
		return nil, nil, fmt.Errorf("load booking classes for %s: %w", timecalc.FormatDate(date), err)
	}

	schedules := schedule.NewAssembler(policy, &s.logger).CreateTeacherSchedulesFromLessons(lessons, classes, date)
	return lessons, schedules, nil
}

func (s *Service) teacherSchedule(ctx context.Context, teacherID uuid.UUID, date time.Time, policy schedule.Policy) (*schedule.TeacherSchedule, error) {
	_, schedules, err := s.load(ctx, date, policy)
	if err != nil {
		return nil, err
	}
	ts, ok := schedules[teacherID]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrTeacherNotScheduled, teacherID, timecalc.FormatDate(date))
	}
	return ts, nil
}

func teacherDay(ts *schedule.TeacherSchedule) TeacherDay {
	return TeacherDay{
		TeacherID:      ts.TeacherID,
		TeacherName:    ts.TeacherName,
		Nodes:          ts.Nodes(),
		Stats:          ts.CalculateTeacherStats(),
		BookingClasses: ts.BookingClasses(),
		Conflicts:      ts.Conflicts(),
	}
}
