package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"kitehostel/internal/model"
	"kitehostel/internal/timecalc"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// UpdateEvent writes the changed fields of an event. An empty patch is a no-op.
func (db *DB) UpdateEvent(ctx context.Context, patch model.EventPatch) error {
	if err := updateEvent(ctx, db.DB, patch); err != nil {
		return err
	}
	db.logger.Debug().Str("event_id", patch.EventID.String()).Msg("event updated")
	return nil
}

// UpdateEvents writes several patches in one transaction, so events that
// trade places are never persisted half-moved.
func (db *DB) UpdateEvents(ctx context.Context, patches []model.EventPatch) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range patches {
		if err := updateEvent(ctx, tx, p); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	db.logger.Debug().Int("events", len(patches)).Msg("events updated")
	return nil
}

func updateEvent(ctx context.Context, ex execer, patch model.EventPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	var sets []string
	var args []interface{}
	if patch.Start != nil {
		sets = append(sets, "date = ?", "start_time = ?")
		args = append(args, timecalc.FormatDate(*patch.Start), timecalc.FormatClock(*patch.Start))
	}
	if patch.DurationMinutes != nil {
		sets = append(sets, "duration_minutes = ?")
		args = append(args, *patch.DurationMinutes)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), patch.EventID)

	res, err := ex.ExecContext(ctx,
		fmt.Sprintf("UPDATE events SET %s WHERE id = ?", strings.Join(sets, ", ")),
		args...,
	)
	if err != nil {
		return fmt.Errorf("update event %s: %w", patch.EventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrEventNotFound, patch.EventID)
	}
	return nil
}

// GetEvent loads a single event.
func (db *DB) GetEvent(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	var ev model.Event
	var location sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT id, lesson_id, date, start_time, duration_minutes, location, status
		FROM events WHERE id = ?`,
		id,
	).Scan(&ev.ID, &ev.LessonID, &ev.Date, &ev.StartTime, &ev.DurationMinutes, &location, &ev.Status)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	ev.Location = location.String
	return &ev, nil
}

func (db *DB) CreateTeacher(ctx context.Context, t model.Teacher) error {
	_, err := db.ExecContext(ctx, "INSERT INTO teachers (id, name) VALUES (?, ?)", t.ID, t.Name)
	if err != nil {
		return fmt.Errorf("insert teacher: %w", err)
	}
	return nil
}

func (db *DB) CreateCommission(ctx context.Context, c model.Commission) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO commissions (id, teacher_id, price_per_hour, description) VALUES (?, ?, ?, ?)",
		c.ID, c.TeacherID, c.PricePerHour, c.Description,
	)
	if err != nil {
		return fmt.Errorf("insert commission: %w", err)
	}
	return nil
}

// CreateBooking stores a booking with its package and students.
func (db *DB) CreateBooking(ctx context.Context, b model.BookingInfo) error {
	if err := b.Validate(); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var packageID interface{}
	if p := b.Package; p != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO packages
			(id, duration_minutes, price_per_student, capacity_students, capacity_kites, description)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, p.DurationMinutes, p.PricePerStudent, p.CapacityStudents, p.CapacityKites, p.Description,
		)
		if err != nil {
			return fmt.Errorf("insert package: %w", err)
		}
		packageID = p.ID
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO bookings (id, package_id, date_start, date_end, status) VALUES (?, ?, ?, ?, ?)",
		b.ID, packageID, timecalc.FormatDate(b.DateStart), timecalc.FormatDate(b.DateEnd), b.Status,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}

	for i, s := range b.Students {
		if _, err = tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO students (id, name, last_name) VALUES (?, ?, ?)",
			s.ID, s.Name, s.LastName,
		); err != nil {
			return fmt.Errorf("insert student: %w", err)
		}
		if _, err = tx.ExecContext(ctx,
			"INSERT INTO booking_students (booking_id, student_id, position) VALUES (?, ?, ?)",
			b.ID, s.ID, i,
		); err != nil {
			return fmt.Errorf("link student: %w", err)
		}
	}

	return tx.Commit()
}

// CreateLesson stores a lesson and its events. The booking must exist.
func (db *DB) CreateLesson(ctx context.Context, l model.Lesson) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var teacherID, commissionID uuid.NullUUID
	if l.Teacher != nil {
		teacherID = uuid.NullUUID{UUID: l.Teacher.ID, Valid: true}
	}
	if l.Commission != nil {
		commissionID = uuid.NullUUID{UUID: l.Commission.ID, Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO lessons (id, booking_id, teacher_id, commission_id, status) VALUES (?, ?, ?, ?, ?)",
		l.ID, l.Booking.ID, teacherID, commissionID, l.Status,
	)
	if err != nil {
		return fmt.Errorf("insert lesson: %w", err)
	}

	for _, ev := range l.Events {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO events (id, lesson_id, date, start_time, duration_minutes, location, status)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, l.ID, ev.Date, ev.StartTime, ev.DurationMinutes, ev.Location, ev.Status,
		)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	return tx.Commit()
}
