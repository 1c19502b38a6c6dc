package schedule

import (
	"bytes"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kitehostel/internal/metrics"
	"kitehostel/internal/model"
	"kitehostel/internal/timecalc"
)

// Schedules indexes the day's teacher schedules by teacher id.
type Schedules map[uuid.UUID]*TeacherSchedule

// Sorted returns the schedules ordered by teacher name, then id.
func (s Schedules) Sorted() []*TeacherSchedule {
	out := make([]*TeacherSchedule, 0, len(s))
	for _, ts := range s {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TeacherName != out[j].TeacherName {
			return out[i].TeacherName < out[j].TeacherName
		}
		return bytes.Compare(out[i].TeacherID[:], out[j].TeacherID[:]) < 0
	})
	return out
}

// Assembler groups a day's lessons into teacher schedules.
type Assembler struct {
	policy Policy
	logger zerolog.Logger
}

func NewAssembler(policy Policy, logger *zerolog.Logger) *Assembler {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &Assembler{
		policy: policy,
		logger: l.With().Str("component", "assembler").Logger(),
	}
}

func (a *Assembler) Policy() Policy {
	return a.policy
}

// CreateTeacherSchedulesFromLessons builds one schedule per assigned teacher.
// Lessons without a teacher are skipped. Events dated on another day are
// ignored; malformed events are logged and left out.
func (a *Assembler) CreateTeacherSchedulesFromLessons(lessons []model.Lesson, classes []BookingClass, date time.Time) Schedules {
	started := time.Now()
	schedules := make(Schedules)

	for _, lesson := range lessons {
		if !lesson.HasTeacher() {
			metrics.IncEventExcluded("unassigned")
			continue
		}

		ts, ok := schedules[lesson.Teacher.ID]
		if !ok {
			ts = NewTeacherSchedule(lesson.Teacher.ID, lesson.Teacher.Name, date, a.policy)
			schedules[lesson.Teacher.ID] = ts
		}
		if err := ts.AddLesson(lesson); err != nil {
			a.logger.Warn().Err(err).Str("lesson_id", lesson.ID.String()).Msg("lesson skipped")
			continue
		}

		names := lesson.Booking.StudentNames()
		for _, ev := range lesson.Events {
			a.addEvent(ts, lesson, ev, names, date)
		}
	}

	for _, bc := range classes {
		for _, ts := range schedules {
			if ts.HasBooking(bc.BookingID) {
				ts.AttachBookingClass(bc)
			}
		}
	}

	metrics.AddSchedulesAssembled(len(schedules))
	metrics.ObserveAssembly(time.Since(started).Seconds())
	return schedules
}

func (a *Assembler) addEvent(ts *TeacherSchedule, lesson model.Lesson, ev model.Event, names []string, date time.Time) {
	log := a.logger.With().
		Str("event_id", ev.ID.String()).
		Str("lesson_id", lesson.ID.String()).
		Logger()

	start, err := ev.Start()
	if err != nil {
		log.Warn().Err(err).Str("date", ev.Date).Str("start_time", ev.StartTime).Msg("event has malformed start")
		metrics.IncEventExcluded("invalid_time")
		return
	}
	if !timecalc.IsSameUTCDate(start, date) {
		return
	}

	err = ts.AddEvent(EventInput{
		EventID:         ev.ID,
		LessonID:        lesson.ID,
		StartTime:       timecalc.FormatClock(start),
		DurationMinutes: ev.DurationMinutes,
		Location:        ev.Location,
		Status:          ev.Status,
		StudentCount:    lesson.Booking.StudentCount(),
		StudentNames:    names,
	})
	if err != nil {
		log.Warn().Err(err).Msg("event excluded")
		metrics.IncEventExcluded("invalid_event")
	}
}

// CalculateGlobalStats sums the stats of every schedule.
func CalculateGlobalStats(schedules Schedules) Stats {
	var total Stats
	for _, ts := range schedules {
		total = total.Add(ts.CalculateTeacherStats())
	}
	return total
}

// EarliestTimeFromSchedules returns the first start time across all schedules.
func EarliestTimeFromSchedules(schedules Schedules) (string, bool) {
	earliest, found := timecalc.MinutesPerDay, false
	for _, ts := range schedules {
		clock, ok := ts.EarliestTime()
		if !ok {
			continue
		}
		m, err := timecalc.TimeToMinutes(clock)
		if err != nil {
			continue
		}
		if m < earliest {
			earliest, found = m, true
		}
	}
	if !found {
		return "", false
	}
	return timecalc.MinutesToTime(earliest), true
}

// FilterLessonsForDate returns copies of the assigned lessons with their
// events narrowed to the date. Malformed events are dropped, so revenue and
// stats see the same rows the schedules do.
func FilterLessonsForDate(lessons []model.Lesson, date time.Time) []model.Lesson {
	out := make([]model.Lesson, 0, len(lessons))
	for _, l := range lessons {
		if !l.HasTeacher() {
			continue
		}
		day := l
		day.Events = nil
		for _, ev := range l.Events {
			start, err := ev.Start()
			if err != nil || ev.DurationMinutes <= 0 || !timecalc.IsSameUTCDate(start, date) {
				continue
			}
			day.Events = append(day.Events, ev)
		}
		out = append(out, day)
	}
	return out
}
