package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func TestPackage_HourlyRatePerStudent(t *testing.T) {
	tests := []struct {
		name     string
		pkg      *Package
		expected float64
	}{
		{
			name:     "two hour package",
			pkg:      &Package{DurationMinutes: 120, PricePerStudent: 100},
			expected: 50,
		},
		{
			name:     "ninety minutes",
			pkg:      &Package{DurationMinutes: 90, PricePerStudent: 90},
			expected: 60,
		},
		{
			name:     "zero duration yields zero",
			pkg:      &Package{DurationMinutes: 0, PricePerStudent: 100},
			expected: 0,
		},
		{
			name:     "nil package yields zero",
			pkg:      nil,
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.pkg.HourlyRatePerStudent())
		})
	}
}

func TestBookingInfo_Helpers(t *testing.T) {
	b := BookingInfo{
		ID:        uuid.New(),
		DateStart: day(2025, 7, 10),
		DateEnd:   day(2025, 7, 12),
		Package:   &Package{DurationMinutes: 120, PricePerStudent: 100},
		Students: []Student{
			{Name: "Ana", LastName: "Lopez"},
			{},
		},
	}

	assert.Equal(t, 2, b.StudentCount())
	assert.Equal(t, []string{"Ana Lopez", UnknownStudent}, b.StudentNames())
	assert.Equal(t, 200.0, b.ExpectedRevenue())
	assert.NoError(t, b.Validate())

	assert.True(t, b.ContainsDate(time.Date(2025, 7, 10, 18, 0, 0, 0, time.UTC)))
	assert.True(t, b.ContainsDate(day(2025, 7, 12)))
	assert.False(t, b.ContainsDate(day(2025, 7, 13)))

	b.DateStart = day(2025, 7, 13)
	assert.ErrorIs(t, b.Validate(), ErrInvalidDateRange)

	b.Package = nil
	assert.Equal(t, 0.0, b.ExpectedRevenue())
}

func TestGroupBookings(t *testing.T) {
	first := BookingInfo{ID: uuid.New()}
	second := BookingInfo{ID: uuid.New()}

	lessons := []Lesson{
		{ID: uuid.New(), Booking: first},
		{ID: uuid.New(), Booking: second},
		{ID: uuid.New(), Booking: first},
	}

	bookings := GroupBookings(lessons)
	require.Len(t, bookings, 2)
	assert.Equal(t, first.ID, bookings[0].ID)
	assert.Len(t, bookings[0].Lessons, 2)
	assert.Equal(t, second.ID, bookings[1].ID)
	assert.Len(t, bookings[1].Lessons, 1)

	assert.Nil(t, GroupBookings(nil))
}

func TestLesson_Helpers(t *testing.T) {
	l := Lesson{
		Events: []Event{{DurationMinutes: 60}, {DurationMinutes: 30}},
	}
	assert.Equal(t, 90, l.EventMinutes())
	assert.False(t, l.HasTeacher())

	l.Teacher = &Teacher{ID: uuid.New(), Name: "Miguel"}
	assert.True(t, l.HasTeacher())
}

func TestEvent_Start(t *testing.T) {
	e := Event{Date: "2025-07-14", StartTime: "10:30"}
	start, err := e.Start()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 7, 14, 10, 30, 0, 0, time.UTC), start)

	e.StartTime = "10h30"
	_, err = e.Start()
	assert.Error(t, err)

	assert.True(t, EventPatch{}.IsEmpty())
	d := 90
	assert.False(t, EventPatch{DurationMinutes: &d}.IsEmpty())
}
