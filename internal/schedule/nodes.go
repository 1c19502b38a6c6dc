package schedule

import (
	"bytes"
	"sort"

	"github.com/google/uuid"

	"kitehostel/internal/model"
	"kitehostel/internal/timecalc"
)

// NodeKind distinguishes scheduled events from the idle time between them.
type NodeKind string

const (
	NodeEvent NodeKind = "event"
	NodeGap   NodeKind = "gap"
)

// Node is one entry of a teacher's day as presented to the user.
type Node struct {
	Kind          NodeKind          `json:"kind"`
	EventID       uuid.UUID         `json:"event_id,omitempty"`
	LessonID      uuid.UUID         `json:"lesson_id,omitempty"`
	StartTime     string            `json:"start_time"`
	Duration      int               `json:"duration"`
	Location      string            `json:"location,omitempty"`
	Status        model.EventStatus `json:"status,omitempty"`
	StudentCount  int               `json:"student_count,omitempty"`
	StudentNames  []string          `json:"student_names,omitempty"`
	State         EditState         `json:"state,omitempty"`
	StartDelta    int               `json:"start_delta,omitempty"`
	DurationDelta int               `json:"duration_delta,omitempty"`
}

// slot is a [start, start+duration) interval in minutes since midnight.
type slot struct {
	start    int
	duration int
}

func (s slot) end() int {
	return s.start + s.duration
}

func overlaps(a, b slot) bool {
	return a.start < b.end() && b.start < a.end()
}

// ScheduledEvent is an event placed on a teacher's day.
type ScheduledEvent struct {
	EventID         uuid.UUID         `json:"event_id"`
	LessonID        uuid.UUID         `json:"lesson_id"`
	Date            string            `json:"date"`
	StartMinutes    int               `json:"start_minutes"`
	DurationMinutes int               `json:"duration_minutes"`
	Location        string            `json:"location"`
	Status          model.EventStatus `json:"status"`
	StudentCount    int               `json:"student_count"`
	StudentNames    []string          `json:"student_names"`

	baseline slot
	state    EditState
}

func (e ScheduledEvent) StartTime() string {
	return timecalc.MinutesToTime(e.StartMinutes)
}

func (e ScheduledEvent) End() int {
	return e.StartMinutes + e.DurationMinutes
}

func (e ScheduledEvent) State() EditState {
	if e.state == "" {
		return StateUnmodified
	}
	return e.state
}

// Modified reports whether the event differs from its persisted values.
func (e ScheduledEvent) Modified() bool {
	return e.slot() != e.baseline
}

// Persisted returns the start and duration the event has in storage.
func (e ScheduledEvent) Persisted() (start, duration int) {
	return e.baseline.start, e.baseline.duration
}

func (e ScheduledEvent) slot() slot {
	return slot{start: e.StartMinutes, duration: e.DurationMinutes}
}

func (e ScheduledEvent) node() Node {
	return Node{
		Kind:          NodeEvent,
		EventID:       e.EventID,
		LessonID:      e.LessonID,
		StartTime:     e.StartTime(),
		Duration:      e.DurationMinutes,
		Location:      e.Location,
		Status:        e.Status,
		StudentCount:  e.StudentCount,
		StudentNames:  e.StudentNames,
		State:         e.State(),
		StartDelta:    e.StartMinutes - e.baseline.start,
		DurationDelta: e.DurationMinutes - e.baseline.duration,
	}
}

// BuildNodes orders events by start time and inserts a gap node wherever the
// teacher is idle between two events. The input is not modified.
func BuildNodes(events []ScheduledEvent) []Node {
	sorted := sortedEvents(events)
	nodes := make([]Node, 0, 2*len(sorted))

	cursor := 0
	for i, ev := range sorted {
		if i > 0 && cursor < ev.StartMinutes {
			nodes = append(nodes, Node{
				Kind:      NodeGap,
				StartTime: timecalc.MinutesToTime(cursor),
				Duration:  ev.StartMinutes - cursor,
			})
		}
		nodes = append(nodes, ev.node())
		if i == 0 || ev.End() > cursor {
			cursor = ev.End()
		}
	}

	return nodes
}

// Conflict names two events whose intervals overlap.
type Conflict struct {
	First  uuid.UUID `json:"first"`
	Second uuid.UUID `json:"second"`
}

// FindConflicts lists every overlapping pair, earlier event first.
func FindConflicts(events []ScheduledEvent) []Conflict {
	sorted := sortedEvents(events)
	var conflicts []Conflict

	for i := range sorted {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].StartMinutes >= sorted[i].End() {
				break
			}
			if overlaps(sorted[i].slot(), sorted[j].slot()) {
				conflicts = append(conflicts, Conflict{First: sorted[i].EventID, Second: sorted[j].EventID})
			}
		}
	}

	return conflicts
}

func sortedEvents(events []ScheduledEvent) []ScheduledEvent {
	sorted := make([]ScheduledEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].StartMinutes != sorted[j].StartMinutes {
			return sorted[i].StartMinutes < sorted[j].StartMinutes
		}
		return bytes.Compare(sorted[i].EventID[:], sorted[j].EventID[:]) < 0
	})
	return sorted
}
