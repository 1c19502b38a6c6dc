package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kitehostel/internal/metrics"
	"kitehostel/internal/model"
	"kitehostel/internal/schedule"
	"kitehostel/internal/timecalc"
)

var errMalformedRow = errors.New("malformed row")

const lessonColumns = `
	l.id, l.status,
	t.id, t.name,
	c.id, c.teacher_id, c.price_per_hour, c.description,
	b.id, b.date_start, b.date_end, b.status,
	p.id, p.duration_minutes, p.price_per_student, p.capacity_students, p.capacity_kites, p.description`

const lessonJoins = `
	FROM lessons l
	JOIN bookings b ON b.id = l.booking_id
	LEFT JOIN teachers t ON t.id = l.teacher_id
	LEFT JOIN commissions c ON c.id = l.commission_id
	LEFT JOIN packages p ON p.id = b.package_id`

// LessonsForDate returns every lesson with at least one event on date. Each
// lesson carries only that day's events and its full booking join.
func (db *DB) LessonsForDate(ctx context.Context, date time.Time) ([]model.Lesson, error) {
	day := timecalc.FormatDate(date)

	rows, err := db.QueryContext(ctx,
		`SELECT `+lessonColumns+lessonJoins+`
		WHERE l.id IN (SELECT lesson_id FROM events WHERE date = ?)
		ORDER BY l.id`,
		day,
	)
	if err != nil {
		return nil, fmt.Errorf("query lessons: %w", err)
	}
	defer rows.Close()

	var lessons []model.Lesson
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		l, err := scanLesson(rows)
		if errors.Is(err, errMalformedRow) {
			db.logger.Warn().Err(err).Str("date", day).Msg("lesson skipped")
			metrics.IncEventExcluded("invalid_booking")
			continue
		}
		if err != nil {
			return nil, err
		}
		index[l.ID] = len(lessons)
		lessons = append(lessons, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(lessons) == 0 {
		return nil, nil
	}

	if err := db.attachEvents(ctx, day, lessons, index); err != nil {
		return nil, err
	}

	students, err := db.studentsForDate(ctx, day)
	if err != nil {
		return nil, err
	}
	for i := range lessons {
		lessons[i].Booking.Students = students[lessons[i].Booking.ID]
	}

	return lessons, nil
}

func (db *DB) attachEvents(ctx context.Context, day string, lessons []model.Lesson, index map[uuid.UUID]int) error {
	rows, err := db.QueryContext(ctx,
		`SELECT id, lesson_id, date, start_time, duration_minutes, location, status
		FROM events WHERE date = ? ORDER BY start_time, id`,
		day,
	)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ev model.Event
		var location sql.NullString
		if err := rows.Scan(&ev.ID, &ev.LessonID, &ev.Date, &ev.StartTime, &ev.DurationMinutes, &location, &ev.Status); err != nil {
			return fmt.Errorf("scan event: %w", err)
		}
		ev.Location = location.String
		if i, ok := index[ev.LessonID]; ok {
			lessons[i].Events = append(lessons[i].Events, ev)
		}
	}
	return rows.Err()
}

// studentsForDate loads the students of every booking with an event on day,
// in booking order.
func (db *DB) studentsForDate(ctx context.Context, day string) (map[uuid.UUID][]model.Student, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT bs.booking_id, s.id, s.name, s.last_name
		FROM booking_students bs
		JOIN students s ON s.id = bs.student_id
		WHERE bs.booking_id IN (
			SELECT l.booking_id FROM lessons l JOIN events e ON e.lesson_id = l.id WHERE e.date = ?
		)
		ORDER BY bs.booking_id, bs.position`,
		day,
	)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()
	return scanStudents(rows)
}

// BookingClassesForDate summarizes the bookings running on date.
func (db *DB) BookingClassesForDate(ctx context.Context, date time.Time) ([]schedule.BookingClass, error) {
	day := timecalc.FormatDate(date)

	rows, err := db.QueryContext(ctx,
		`SELECT b.id, b.date_start, b.date_end, b.status, p.description
		FROM bookings b
		LEFT JOIN packages p ON p.id = b.package_id
		WHERE b.date_start <= ? AND b.date_end >= ?
		ORDER BY b.date_start, b.id`,
		day, day,
	)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	var classes []schedule.BookingClass
	for rows.Next() {
		var bc schedule.BookingClass
		var start, end string
		var description sql.NullString
		if err := rows.Scan(&bc.BookingID, &start, &end, &bc.Status, &description); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		if bc.DateStart, err = timecalc.ParseDate(start); err != nil {
			db.logger.Warn().Err(err).Str("booking_id", bc.BookingID.String()).Msg("booking class skipped")
			continue
		}
		if bc.DateEnd, err = timecalc.ParseDate(end); err != nil {
			db.logger.Warn().Err(err).Str("booking_id", bc.BookingID.String()).Msg("booking class skipped")
			continue
		}
		bc.PackageDescription = description.String
		classes = append(classes, bc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range classes {
		students, err := db.bookingStudents(ctx, classes[i].BookingID)
		if err != nil {
			return nil, err
		}
		info := model.BookingInfo{Students: students}
		classes[i].StudentNames = info.StudentNames()
	}
	return classes, nil
}

func (db *DB) bookingStudents(ctx context.Context, bookingID uuid.UUID) ([]model.Student, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT bs.booking_id, s.id, s.name, s.last_name
		FROM booking_students bs
		JOIN students s ON s.id = bs.student_id
		WHERE bs.booking_id = ?
		ORDER BY bs.position`,
		bookingID,
	)
	if err != nil {
		return nil, fmt.Errorf("query booking students: %w", err)
	}
	defer rows.Close()

	byBooking, err := scanStudents(rows)
	if err != nil {
		return nil, err
	}
	return byBooking[bookingID], nil
}

func scanStudents(rows *sql.Rows) (map[uuid.UUID][]model.Student, error) {
	out := make(map[uuid.UUID][]model.Student)
	for rows.Next() {
		var bookingID uuid.UUID
		var s model.Student
		var name, lastName sql.NullString
		if err := rows.Scan(&bookingID, &s.ID, &name, &lastName); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		s.Name, s.LastName = name.String, lastName.String
		out[bookingID] = append(out[bookingID], s)
	}
	return out, rows.Err()
}

func scanLesson(rows *sql.Rows) (model.Lesson, error) {
	var (
		l                                  model.Lesson
		teacherID, commissionID, packageID uuid.NullUUID
		commissionTeacher                  uuid.NullUUID
		teacherName, commissionDesc        sql.NullString
		packageDesc                        sql.NullString
		pricePerHour, pricePerStudent      sql.NullFloat64
		duration, capStudents, capKites    sql.NullInt64
		dateStart, dateEnd                 string
	)

	err := rows.Scan(
		&l.ID, &l.Status,
		&teacherID, &teacherName,
		&commissionID, &commissionTeacher, &pricePerHour, &commissionDesc,
		&l.Booking.ID, &dateStart, &dateEnd, &l.Booking.Status,
		&packageID, &duration, &pricePerStudent, &capStudents, &capKites, &packageDesc,
	)
	if err != nil {
		return model.Lesson{}, fmt.Errorf("scan lesson: %w", err)
	}

	if teacherID.Valid {
		l.Teacher = &model.Teacher{ID: teacherID.UUID, Name: teacherName.String}
	}
	if commissionID.Valid {
		l.Commission = &model.Commission{
			ID:           commissionID.UUID,
			TeacherID:    commissionTeacher.UUID,
			PricePerHour: pricePerHour.Float64,
			Description:  commissionDesc.String,
		}
	}
	if packageID.Valid {
		l.Booking.Package = &model.Package{
			ID:               packageID.UUID,
			DurationMinutes:  int(duration.Int64),
			PricePerStudent:  pricePerStudent.Float64,
			CapacityStudents: int(capStudents.Int64),
			CapacityKites:    int(capKites.Int64),
			Description:      packageDesc.String,
		}
	}
	if l.Booking.DateStart, err = timecalc.ParseDate(dateStart); err != nil {
		return model.Lesson{}, fmt.Errorf("%w: lesson %s date_start: %w", errMalformedRow, l.ID, err)
	}
	if l.Booking.DateEnd, err = timecalc.ParseDate(dateEnd); err != nil {
		return model.Lesson{}, fmt.Errorf("%w: lesson %s date_end: %w", errMalformedRow, l.ID, err)
	}

	return l, nil
}
