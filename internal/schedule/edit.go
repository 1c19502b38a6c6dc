package schedule

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"kitehostel/internal/metrics"
	"kitehostel/internal/model"
	"kitehostel/internal/timecalc"
)

var (
	ErrOverlap           = errors.New("change would overlap a neighbouring event")
	ErrOutOfDay          = errors.New("change would leave the schedule day")
	ErrDurationTooShort  = errors.New("duration below minimum")
	ErrNoNeighbour       = errors.New("no neighbouring event")
	ErrNothingToCommit   = errors.New("event has no pending change")
	ErrInvalidTransition = errors.New("invalid edit state transition")
)

// EditState tracks an event through an edit session.
type EditState string

const (
	StateUnmodified EditState = "unmodified"
	StateProposed   EditState = "proposed"
	StateCommitted  EditState = "committed"
	StateReverted   EditState = "reverted"
)

var editTransitions = map[EditState][]EditState{
	StateUnmodified: {StateProposed},
	StateProposed:   {StateProposed, StateCommitted, StateReverted},
	StateCommitted:  {StateProposed},
	StateReverted:   {StateProposed},
}

// CanTransition checks if transition is allowed.
func CanTransition(from, to EditState) bool {
	for _, s := range editTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// EventUpdater persists changed event fields.
type EventUpdater interface {
	UpdateEvent(ctx context.Context, patch model.EventPatch) error
}

// Proposal sets absolute new values for one event.
type Proposal struct {
	EventID         uuid.UUID `json:"event_id"`
	StartMinutes    int       `json:"start_minutes"`
	DurationMinutes int       `json:"duration_minutes"`
}

// Change reports where an event stands relative to its persisted values.
type Change struct {
	EventID       uuid.UUID `json:"event_id"`
	StartDelta    int       `json:"start_delta"`
	DurationDelta int       `json:"duration_delta"`
	Clamped       bool      `json:"clamped"`
	State         EditState `json:"state"`
}

const (
	opShift    = "shift"
	opResize   = "resize"
	opMove     = "move"
	opPropose  = "propose"
	opRevert   = "revert"
	outApplied = "applied"
	outClamped = "clamped"
	outDecline = "declined"
)

// ShiftTime moves an event by delta minutes without passing its neighbours.
// Under the clamp policy the event stops at the neighbour or day boundary;
// a shift that cannot move at all is declined.
func (s *TeacherSchedule) ShiftTime(id uuid.UUID, delta int) (Change, error) {
	ev, ok := s.events[id]
	if !ok {
		return Change{}, fmt.Errorf("%w: %s", ErrUnknownEvent, id)
	}
	if delta == 0 {
		return s.change(ev, false), nil
	}

	b := s.boundsOf(id)
	lo, loErr := 0, ErrOutOfDay
	if b.hasPrev && b.prevEnd > lo {
		lo, loErr = b.prevEnd, ErrOverlap
	}
	hi, hiErr := timecalc.MinutesPerDay-ev.DurationMinutes, ErrOutOfDay
	if b.hasNext && b.nextStart-ev.DurationMinutes < hi {
		hi, hiErr = b.nextStart-ev.DurationMinutes, ErrOverlap
	}
	if hi < lo {
		return Change{}, s.decline(opShift, fmt.Errorf("%w: event %s has no room", ErrOverlap, id))
	}

	target := ev.StartMinutes + delta
	start, boundErr := target, error(nil)
	switch {
	case target < lo:
		start, boundErr = lo, loErr
	case target > hi:
		start, boundErr = hi, hiErr
	}

	clamped := start != target
	if clamped && (!s.policy.clamps() || !movesWith(start-ev.StartMinutes, delta)) {
		return Change{}, s.decline(opShift, boundErr)
	}

	changes, err := s.apply(opShift, clamped, Proposal{
		EventID:         id,
		StartMinutes:    start,
		DurationMinutes: ev.DurationMinutes,
	})
	if err != nil {
		return Change{}, err
	}
	return changes[0], nil
}

// AdjustDuration grows or shrinks an event by delta minutes, keeping its start.
func (s *TeacherSchedule) AdjustDuration(id uuid.UUID, delta int) (Change, error) {
	ev, ok := s.events[id]
	if !ok {
		return Change{}, fmt.Errorf("%w: %s", ErrUnknownEvent, id)
	}
	if delta == 0 {
		return s.change(ev, false), nil
	}

	b := s.boundsOf(id)
	minDur := s.policy.minDuration()
	maxDur, maxErr := timecalc.MinutesPerDay-ev.StartMinutes, ErrOutOfDay
	if b.hasNext && b.nextStart-ev.StartMinutes < maxDur {
		maxDur, maxErr = b.nextStart-ev.StartMinutes, ErrOverlap
	}

	target := ev.DurationMinutes + delta
	duration, boundErr := target, error(nil)
	switch {
	case target < minDur:
		duration, boundErr = minDur, ErrDurationTooShort
	case target > maxDur:
		duration, boundErr = maxDur, maxErr
	}
	if maxDur < minDur && delta > 0 {
		return Change{}, s.decline(opResize, fmt.Errorf("%w: event %s has no room", ErrOverlap, id))
	}

	clamped := duration != target
	if clamped && (!s.policy.clamps() || !movesWith(duration-ev.DurationMinutes, delta)) {
		return Change{}, s.decline(opResize, boundErr)
	}

	changes, err := s.apply(opResize, clamped, Proposal{
		EventID:         id,
		StartMinutes:    ev.StartMinutes,
		DurationMinutes: duration,
	})
	if err != nil {
		return Change{}, err
	}
	return changes[0], nil
}

// MoveUp swaps an event with the one before it. The pair keeps the interval it
// occupied and the idle time between them.
func (s *TeacherSchedule) MoveUp(id uuid.UUID) ([]Change, error) {
	sorted := s.Events()
	i := indexOf(sorted, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, id)
	}
	if i == 0 {
		return nil, s.decline(opMove, fmt.Errorf("%w: %s is first", ErrNoNeighbour, id))
	}
	return s.swap(sorted[i-1], sorted[i])
}

// MoveDown swaps an event with the one after it.
func (s *TeacherSchedule) MoveDown(id uuid.UUID) ([]Change, error) {
	sorted := s.Events()
	i := indexOf(sorted, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, id)
	}
	if i == len(sorted)-1 {
		return nil, s.decline(opMove, fmt.Errorf("%w: %s is last", ErrNoNeighbour, id))
	}
	return s.swap(sorted[i], sorted[i+1])
}

func (s *TeacherSchedule) swap(earlier, later ScheduledEvent) ([]Change, error) {
	gap := later.StartMinutes - earlier.End()
	if gap < 0 {
		gap = 0
	}
	return s.apply(opMove, false,
		Proposal{
			EventID:         later.EventID,
			StartMinutes:    earlier.StartMinutes,
			DurationMinutes: later.DurationMinutes,
		},
		Proposal{
			EventID:         earlier.EventID,
			StartMinutes:    earlier.StartMinutes + later.DurationMinutes + gap,
			DurationMinutes: earlier.DurationMinutes,
		},
	)
}

// Propose applies absolute values to one or more events. Either every proposal
// fits or none is applied; nothing is clamped.
func (s *TeacherSchedule) Propose(proposals ...Proposal) ([]Change, error) {
	return s.apply(opPropose, false, proposals...)
}

// Revert restores the persisted values of an event together with every
// proposed event linked to it, so both halves of a swap go back at once. It is
// declined when a restored interval collides with an event that stays put.
func (s *TeacherSchedule) Revert(id uuid.UUID) ([]Change, error) {
	ev, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, id)
	}
	if !CanTransition(ev.State(), StateReverted) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ev.State(), StateReverted)
	}

	group := s.Linked(id)
	restore := make(map[uuid.UUID]slot, len(group))
	for _, gid := range group {
		restore[gid] = s.events[gid].baseline
	}
	if clash := s.collisions(restore); len(clash) > 0 {
		return nil, s.decline(opRevert, fmt.Errorf("%w: persisted slot of %s is taken", ErrOverlap, clash[0]))
	}

	metrics.IncEditDecision(opRevert, outApplied)
	return s.restore(group), nil
}

// RevertAll discards every proposed change of the day. An event whose
// persisted interval is now held by an event that stays put, for instance one
// committed in the meantime, keeps its proposed values and is reported in the
// returned error.
func (s *TeacherSchedule) RevertAll() ([]Change, error) {
	restore := make(map[uuid.UUID]slot)
	for id, ev := range s.events {
		if ev.State() == StateProposed {
			restore[id] = ev.baseline
		}
	}

	var kept []uuid.UUID
	for {
		clash := s.collisions(restore)
		if len(clash) == 0 {
			break
		}
		for _, id := range clash {
			delete(restore, id)
		}
		kept = append(kept, clash...)
	}

	var ids []uuid.UUID
	for _, ev := range s.Events() {
		if _, ok := restore[ev.EventID]; ok {
			ids = append(ids, ev.EventID)
		}
	}
	changes := s.restore(ids)

	if len(kept) > 0 {
		sortIDs(kept)
		return changes, s.decline(opRevert, fmt.Errorf("%w: %d events keep their proposed values: %v", ErrOverlap, len(kept), kept))
	}
	if len(changes) > 0 {
		metrics.IncEditDecision(opRevert, outApplied)
	}
	return changes, nil
}

// Linked returns id together with every proposed event whose change depends
// on it, in day order. Two proposed events are linked when the new interval of
// one lands on the persisted interval of the other; links are transitive.
func (s *TeacherSchedule) Linked(id uuid.UUID) []uuid.UUID {
	if _, ok := s.events[id]; !ok {
		return nil
	}

	group := map[uuid.UUID]bool{id: true}
	queue := []uuid.UUID{id}
	for len(queue) > 0 {
		cur := s.events[queue[0]]
		queue = queue[1:]
		for otherID, other := range s.events {
			if group[otherID] || other.State() != StateProposed {
				continue
			}
			if overlaps(cur.slot(), other.baseline) || overlaps(other.slot(), cur.baseline) {
				group[otherID] = true
				queue = append(queue, otherID)
			}
		}
	}

	ids := make([]uuid.UUID, 0, len(group))
	for _, ev := range s.Events() {
		if group[ev.EventID] {
			ids = append(ids, ev.EventID)
		}
	}
	return ids
}

func (s *TeacherSchedule) State(id uuid.UUID) (EditState, bool) {
	ev, ok := s.events[id]
	if !ok {
		return "", false
	}
	return ev.State(), true
}

// Delta returns the current change of an event relative to its persisted values.
func (s *TeacherSchedule) Delta(id uuid.UUID) (Change, bool) {
	ev, ok := s.events[id]
	if !ok {
		return Change{}, false
	}
	return s.change(ev, false), true
}

// PendingPatches lists the changed fields of every modified event, in day order.
func (s *TeacherSchedule) PendingPatches() []model.EventPatch {
	var patches []model.EventPatch
	for _, ev := range s.Events() {
		if p := s.patchFor(s.events[ev.EventID]); !p.IsEmpty() {
			patches = append(patches, p)
		}
	}
	return patches
}

// ValidateEvent re-checks an event's current values against its siblings.
func (s *TeacherSchedule) ValidateEvent(id uuid.UUID) error {
	ev, ok := s.events[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, id)
	}
	return s.validate(map[uuid.UUID]slot{id: ev.slot()})
}

// BatchUpdater persists several event patches as one unit.
type BatchUpdater interface {
	UpdateEvents(ctx context.Context, patches []model.EventPatch) error
}

// Commit writes the pending change of an event, together with the changes
// linked to it, through the updater.
func (s *TeacherSchedule) Commit(ctx context.Context, id uuid.UUID, updater EventUpdater) ([]model.EventPatch, error) {
	if _, ok := s.events[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, id)
	}
	return s.CommitEvents(ctx, s.Linked(id), updater)
}

// CommitEvents writes the pending changes of ids and makes their current values
// the new persisted baseline. Events without a change are skipped. An updater
// implementing BatchUpdater receives every patch in one call.
func (s *TeacherSchedule) CommitEvents(ctx context.Context, ids []uuid.UUID, updater EventUpdater) ([]model.EventPatch, error) {
	next := make(map[uuid.UUID]slot, len(ids))
	var patches []model.EventPatch
	for _, id := range ids {
		ev, ok := s.events[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, id)
		}
		patch := s.patchFor(ev)
		if patch.IsEmpty() || !CanTransition(ev.State(), StateCommitted) {
			continue
		}
		next[id] = ev.slot()
		patches = append(patches, patch)
	}
	if len(patches) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNothingToCommit, ids)
	}

	if err := s.validate(next); err != nil {
		metrics.IncCommit("invalid")
		return nil, err
	}
	if err := writePatches(ctx, updater, patches); err != nil {
		metrics.IncCommit("failed")
		return nil, err
	}

	for id := range next {
		ev := s.events[id]
		ev.baseline = ev.slot()
		ev.state = StateCommitted
	}
	metrics.IncCommit("ok")
	return patches, nil
}

func writePatches(ctx context.Context, updater EventUpdater, patches []model.EventPatch) error {
	if batch, ok := updater.(BatchUpdater); ok {
		if err := batch.UpdateEvents(ctx, patches); err != nil {
			return fmt.Errorf("update %d events: %w", len(patches), err)
		}
		return nil
	}
	for _, p := range patches {
		if err := updater.UpdateEvent(ctx, p); err != nil {
			return fmt.Errorf("update event %s: %w", p.EventID, err)
		}
	}
	return nil
}

// MarkCommitted records that an event's current values were persisted elsewhere.
func (s *TeacherSchedule) MarkCommitted(id uuid.UUID) error {
	ev, ok := s.events[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, id)
	}
	if !CanTransition(ev.State(), StateCommitted) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ev.State(), StateCommitted)
	}
	ev.baseline = ev.slot()
	ev.state = StateCommitted
	return nil
}

// apply validates the proposals as a whole and folds them into the schedule.
func (s *TeacherSchedule) apply(op string, clamped bool, proposals ...Proposal) ([]Change, error) {
	next := make(map[uuid.UUID]slot, len(proposals))
	for _, p := range proposals {
		if _, ok := s.events[p.EventID]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, p.EventID)
		}
		next[p.EventID] = slot{start: p.StartMinutes, duration: p.DurationMinutes}
	}

	if err := s.validate(next); err != nil {
		return nil, s.decline(op, err)
	}

	changes := make([]Change, 0, len(proposals))
	for _, p := range proposals {
		ev := s.events[p.EventID]
		if ev.slot() != next[p.EventID] {
			ev.StartMinutes = p.StartMinutes
			ev.DurationMinutes = p.DurationMinutes
			switch {
			case !ev.Modified() && CanTransition(ev.State(), StateReverted):
				ev.state = StateReverted
			case CanTransition(ev.State(), StateProposed):
				ev.state = StateProposed
			}
		}
		changes = append(changes, s.change(ev, clamped))
	}

	outcome := outApplied
	if clamped {
		outcome = outClamped
	}
	metrics.IncEditDecision(op, outcome)
	return changes, nil
}

// validate checks each proposed interval against the day bounds and every
// other event, using proposed values for events that are part of the change.
func (s *TeacherSchedule) validate(next map[uuid.UUID]slot) error {
	for id, sl := range next {
		current := s.events[id].slot()
		if sl.duration <= 0 {
			return fmt.Errorf("%w: event %s", ErrInvalidDuration, id)
		}
		if sl.duration != current.duration && sl.duration < s.policy.minDuration() {
			return fmt.Errorf("%w: %d < %d minutes", ErrDurationTooShort, sl.duration, s.policy.minDuration())
		}
		if sl != current && (sl.start < 0 || sl.end() > timecalc.MinutesPerDay) {
			return fmt.Errorf("%w: %s-%s", ErrOutOfDay, timecalc.MinutesToTime(sl.start), timecalc.MinutesToTime(sl.end()))
		}

		for otherID, other := range s.events {
			if otherID == id {
				continue
			}
			theirs := other.slot()
			if p, ok := next[otherID]; ok {
				theirs = p
			}
			if overlaps(sl, theirs) {
				return fmt.Errorf("%w: %s and %s", ErrOverlap, id, otherID)
			}
		}
	}
	return nil
}

// collisions lists the events of next whose interval overlaps another event,
// taking next's intervals in place of the current ones.
func (s *TeacherSchedule) collisions(next map[uuid.UUID]slot) []uuid.UUID {
	var clash []uuid.UUID
	for id, sl := range next {
		for otherID, other := range s.events {
			if otherID == id {
				continue
			}
			theirs := other.slot()
			if p, ok := next[otherID]; ok {
				theirs = p
			}
			if overlaps(sl, theirs) {
				clash = append(clash, id)
				break
			}
		}
	}
	sortIDs(clash)
	return clash
}

func (s *TeacherSchedule) restore(ids []uuid.UUID) []Change {
	changes := make([]Change, 0, len(ids))
	for _, id := range ids {
		ev := s.events[id]
		ev.StartMinutes = ev.baseline.start
		ev.DurationMinutes = ev.baseline.duration
		ev.state = StateReverted
		changes = append(changes, s.change(ev, false))
	}
	return changes
}

type bounds struct {
	prevEnd   int
	hasPrev   bool
	nextStart int
	hasNext   bool
}

// boundsOf finds the end of the latest-ending event ordered before id and the
// start of the event ordered right after it.
func (s *TeacherSchedule) boundsOf(id uuid.UUID) bounds {
	sorted := s.Events()
	i := indexOf(sorted, id)

	var b bounds
	for _, ev := range sorted[:i] {
		if !b.hasPrev || ev.End() > b.prevEnd {
			b.prevEnd, b.hasPrev = ev.End(), true
		}
	}
	if i+1 < len(sorted) {
		b.nextStart, b.hasNext = sorted[i+1].StartMinutes, true
	}
	return b
}

func (s *TeacherSchedule) patchFor(ev *ScheduledEvent) model.EventPatch {
	patch := model.EventPatch{EventID: ev.EventID}
	if ev.StartMinutes != ev.baseline.start {
		if start, err := timecalc.CreateUTCDateTime(ev.Date, ev.StartTime()); err == nil {
			patch.Start = &start
		}
	}
	if ev.DurationMinutes != ev.baseline.duration {
		d := ev.DurationMinutes
		patch.DurationMinutes = &d
	}
	return patch
}

func (s *TeacherSchedule) change(ev *ScheduledEvent, clamped bool) Change {
	return Change{
		EventID:       ev.EventID,
		StartDelta:    ev.StartMinutes - ev.baseline.start,
		DurationDelta: ev.DurationMinutes - ev.baseline.duration,
		Clamped:       clamped,
		State:         ev.State(),
	}
}

func (s *TeacherSchedule) decline(op string, err error) error {
	metrics.IncEditDecision(op, outDecline)
	return err
}

// movesWith reports whether a clamped movement still goes the requested way
// and no further than requested.
func movesWith(moved, requested int) bool {
	if moved == 0 || (moved > 0) != (requested > 0) {
		return false
	}
	return abs(moved) <= abs(requested)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}

func indexOf(events []ScheduledEvent, id uuid.UUID) int {
	for i, ev := range events {
		if ev.EventID == id {
			return i
		}
	}
	return -1
}
