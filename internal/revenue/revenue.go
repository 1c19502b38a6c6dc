// Package revenue computes booking revenue and the teacher/school split of
// delivered hours. Every view derives its money figures from LessonSplit.
package revenue

import (
	"math"

	"kitehostel/internal/model"
)

// Result aggregates a set of bookings.
type Result struct {
	Revenue   float64 `json:"revenue"`    // expected full revenue of the bookings
	Teacher   float64 `json:"teacher"`    // commission earned on delivered hours
	School    float64 `json:"school"`     // delivered-hour revenue minus commission
	MoneyMade float64 `json:"money_made"` // Teacher + School
}

// Split is the money attributed to one lesson's delivered minutes.
type Split struct {
	Hours   float64 `json:"hours"`
	Teacher float64 `json:"teacher"`
	School  float64 `json:"school"`
}

// LessonSplit divides the value of delivered minutes between teacher and school.
// Without a commission or delivered minutes the lesson contributes nothing.
func LessonSplit(minutes, studentCount int, pkg *model.Package, commission *model.Commission) Split {
	if minutes <= 0 {
		return Split{}
	}

	hours := float64(minutes) / 60
	if commission == nil {
		return Split{Hours: hours}
	}

	teacher := finite(hours * commission.PricePerHour)
	delivered := finite(float64(studentCount) * pkg.HourlyRatePerStudent() * hours)

	return Split{
		Hours:   hours,
		Teacher: teacher,
		School:  delivered - teacher,
	}
}

// ForLesson splits a lesson using its own embedded booking join.
func ForLesson(l model.Lesson) Split {
	return LessonSplit(l.EventMinutes(), l.Booking.StudentCount(), l.Booking.Package, l.Commission)
}

// CalcLessonRevenue aggregates revenue, teacher earnings and school earnings.
func CalcLessonRevenue(bookings []model.Booking) Result {
	var res Result

	for _, b := range bookings {
		res.Revenue += finite(b.ExpectedRevenue())

		for _, l := range b.Lessons {
			if len(l.Events) == 0 || l.Commission == nil {
				continue
			}
			s := LessonSplit(l.EventMinutes(), b.StudentCount(), b.Package, l.Commission)
			res.Teacher += s.Teacher
			res.School += s.School
		}
	}

	res.MoneyMade = res.Teacher + res.School
	return res
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
