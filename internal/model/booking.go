package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidDateRange = errors.New("booking date_start is after date_end")

type BookingStatus string

const (
	BookingActive      BookingStatus = "active"
	BookingCompleted   BookingStatus = "completed"
	BookingUncompleted BookingStatus = "uncompleted"
	BookingCancelled   BookingStatus = "cancelled"
)

// Package is the product a booking was sold from.
type Package struct {
	ID               uuid.UUID `json:"id"`
	DurationMinutes  int       `json:"duration_minutes"`
	PricePerStudent  float64   `json:"price_per_student"`
	CapacityStudents int       `json:"capacity_students"`
	CapacityKites    int       `json:"capacity_kites"`
	Description      string    `json:"description,omitempty"`
}

// HourlyRatePerStudent is the implied price of one student-hour.
// A package without a positive duration has no rate and yields 0.
func (p *Package) HourlyRatePerStudent() float64 {
	if p == nil || p.DurationMinutes <= 0 {
		return 0
	}
	return p.PricePerStudent / (float64(p.DurationMinutes) / 60)
}

// Hours returns the package duration in hours.
func (p *Package) Hours() float64 {
	if p == nil || p.DurationMinutes <= 0 {
		return 0
	}
	return float64(p.DurationMinutes) / 60
}

// BookingInfo is the booking side of the lesson join: package and students,
// without the lesson list.
type BookingInfo struct {
	ID        uuid.UUID     `json:"id"`
	DateStart time.Time     `json:"date_start"`
	DateEnd   time.Time     `json:"date_end"`
	Status    BookingStatus `json:"status"`
	Package   *Package      `json:"package,omitempty"`
	Students  []Student     `json:"students"`
}

func (b BookingInfo) StudentCount() int {
	return len(b.Students)
}

// StudentNames returns display names in booking order.
func (b BookingInfo) StudentNames() []string {
	names := make([]string, 0, len(b.Students))
	for _, s := range b.Students {
		names = append(names, s.DisplayName())
	}
	return names
}

// ExpectedRevenue is the full price of the booking whether or not lessons happened.
func (b BookingInfo) ExpectedRevenue() float64 {
	if b.Package == nil {
		return 0
	}
	return float64(b.StudentCount()) * b.Package.PricePerStudent
}

func (b BookingInfo) Validate() error {
	if b.DateStart.After(b.DateEnd) {
		return ErrInvalidDateRange
	}
	return nil
}

// ContainsDate checks if the booking covers the UTC calendar date of t.
func (b BookingInfo) ContainsDate(t time.Time) bool {
	day := dateOnly(t)
	return !day.Before(dateOnly(b.DateStart)) && !day.After(dateOnly(b.DateEnd))
}

// Booking is a booking with its lessons attached.
type Booking struct {
	BookingInfo
	Lessons []Lesson `json:"lessons"`
}

// GroupBookings rebuilds the booking graph from a flat lesson list.
// Bookings keep the order in which they were first seen.
func GroupBookings(lessons []Lesson) []Booking {
	index := make(map[uuid.UUID]int)
	var bookings []Booking

	for _, lesson := range lessons {
		i, ok := index[lesson.Booking.ID]
		if !ok {
			i = len(bookings)
			index[lesson.Booking.ID] = i
			bookings = append(bookings, Booking{BookingInfo: lesson.Booking})
		}
		bookings[i].Lessons = append(bookings[i].Lessons, lesson)
	}

	return bookings
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
