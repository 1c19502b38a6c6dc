package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"kitehostel/internal/events"
	"kitehostel/internal/model"
	"kitehostel/internal/schedule"
	"kitehostel/internal/timecalc"
)

// Session holds one teacher's day while it is being edited. Proposed changes
// live only in memory until committed.
type Session struct {
	svc       *Service
	teacherID uuid.UUID
	date      time.Time

	mu       sync.Mutex
	schedule *schedule.TeacherSchedule
}

func (s *Session) TeacherID() uuid.UUID {
	return s.teacherID
}

func (s *Session) Date() time.Time {
	return s.date
}

// Day returns the current view of the session, including proposed changes.
func (s *Session) Day() TeacherDay {
	s.mu.Lock()
	defer s.mu.Unlock()
	return teacherDay(s.schedule)
}

func (s *Session) ShiftTime(id uuid.UUID, delta int) (schedule.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule.ShiftTime(id, delta)
}

func (s *Session) AdjustDuration(id uuid.UUID, delta int) (schedule.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule.AdjustDuration(id, delta)
}

func (s *Session) MoveUp(id uuid.UUID) ([]schedule.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule.MoveUp(id)
}

func (s *Session) MoveDown(id uuid.UUID) ([]schedule.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule.MoveDown(id)
}

func (s *Session) Propose(proposals ...schedule.Proposal) ([]schedule.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule.Propose(proposals...)
}

func (s *Session) Revert(id uuid.UUID) ([]schedule.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule.Revert(id)
}

func (s *Session) RevertAll() ([]schedule.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule.RevertAll()
}

func (s *Session) State(id uuid.UUID) (schedule.EditState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule.State(id)
}

func (s *Session) PendingPatches() []model.EventPatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule.PendingPatches()
}

// Refresh reloads the day from the source, dropping uncommitted changes.
func (s *Session) Refresh(ctx context.Context) error {
	ts, err := s.svc.teacherSchedule(ctx, s.teacherID, s.date, s.svc.Policy())
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.schedule = ts
	s.mu.Unlock()
	return nil
}

// Commit persists an event's proposed change together with every change
// linked to it, such as the other half of a swap. The day is reloaded and the
// group re-applied under the reject policy, so a sibling that moved in storage
// since the session was opened makes the commit fail instead of overlapping.
// It returns one patch per committed event; a patch is empty when storage
// already held the values.
func (s *Session) Commit(ctx context.Context, id uuid.UUID) ([]model.EventPatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.schedule.Event(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", schedule.ErrUnknownEvent, id)
	}
	if state := current.State(); state != schedule.StateProposed {
		return nil, fmt.Errorf("%w: %s is %s", schedule.ErrNothingToCommit, id, state)
	}

	group := s.schedule.Linked(id)
	proposals := make([]schedule.Proposal, 0, len(group))
	for _, gid := range group {
		ev, _ := s.schedule.Event(gid)
		proposals = append(proposals, schedule.Proposal{
			EventID:         gid,
			StartMinutes:    ev.StartMinutes,
			DurationMinutes: ev.DurationMinutes,
		})
	}

	strict := s.svc.Policy()
	strict.Overlap = schedule.OverlapReject
	fresh, err := s.svc.teacherSchedule(ctx, s.teacherID, s.date, strict)
	if err != nil {
		return nil, err
	}

	if _, err := fresh.Propose(proposals...); err != nil {
		if s.divergedFrom(fresh) {
			return nil, fmt.Errorf("%w: %w", ErrStaleSchedule, err)
		}
		return nil, err
	}

	written, err := fresh.CommitEvents(ctx, group, s.svc.updater)
	if err != nil && !errors.Is(err, schedule.ErrNothingToCommit) {
		return nil, err
	}
	byID := make(map[uuid.UUID]model.EventPatch, len(written))
	for _, p := range written {
		byID[p.EventID] = p
	}

	patches := make([]model.EventPatch, 0, len(group))
	for _, gid := range group {
		if err := s.schedule.MarkCommitted(gid); err != nil {
			return patches, err
		}
		p, ok := byID[gid]
		if !ok {
			p = model.EventPatch{EventID: gid}
		}
		patches = append(patches, p)
	}
	for _, p := range written {
		s.announce(p)
	}

	s.svc.logger.Info().
		Str("teacher_id", s.teacherID.String()).
		Str("date", timecalc.FormatDate(s.date)).
		Int("events", len(group)).
		Int("written", len(written)).
		Msg("schedule change committed")
	return patches, nil
}

// CommitAll commits every pending change in day order and stops at the first failure.
func (s *Session) CommitAll(ctx context.Context) ([]model.EventPatch, error) {
	var committed []model.EventPatch
	for _, p := range s.PendingPatches() {
		if state, _ := s.State(p.EventID); state != schedule.StateProposed {
			// already written with an earlier linked change
			continue
		}
		patches, err := s.Commit(ctx, p.EventID)
		if err != nil {
			return committed, err
		}
		committed = append(committed, patches...)
	}
	return committed, nil
}

// divergedFrom reports whether storage no longer holds what the session
// treats as persisted.
func (s *Session) divergedFrom(fresh *schedule.TeacherSchedule) bool {
	mine := s.schedule.Events()
	if len(mine) != len(fresh.Events()) {
		return true
	}
	for _, ev := range mine {
		other, ok := fresh.Event(ev.EventID)
		if !ok {
			return true
		}
		start, duration := ev.Persisted()
		freshStart, freshDuration := other.Persisted()
		if start != freshStart || duration != freshDuration {
			return true
		}
	}
	return false
}

func (s *Session) announce(patch model.EventPatch) {
	if s.svc.publisher == nil {
		return
	}
	err := s.svc.publisher.PublishJSON(events.EventTypeEventUpdated, events.EventUpdated{
		EventID:         patch.EventID,
		TeacherID:       s.teacherID,
		Date:            timecalc.FormatDate(s.date),
		Start:           patch.Start,
		DurationMinutes: patch.DurationMinutes,
	})
	if err != nil {
		s.svc.logger.Warn().Err(err).Str("event_id", patch.EventID.String()).Msg("publish event update")
	}
}
