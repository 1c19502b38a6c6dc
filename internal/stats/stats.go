// Package stats breaks delivered lesson hours down by group size.
package stats

import (
	"math"

	"kitehostel/internal/model"
)

// Category classifies a lesson by the number of students on its booking.
type Category string

const (
	CategoryUncategorized Category = "uncategorized"
	CategoryPrivate       Category = "private"
	CategorySemiPrivate   Category = "semi_private"
	CategoryGroup         Category = "group"
)

// Result holds hour totals rounded to one decimal.
type Result struct {
	TotalHours   float64 `json:"total_hours"`
	PrivateHours float64 `json:"private_hours"`
	SemiPrivate  float64 `json:"semi_private"`
	Group        float64 `json:"group"`
}

func CategoryFor(studentCount int) Category {
	switch {
	case studentCount <= 0:
		return CategoryUncategorized
	case studentCount == 1:
		return CategoryPrivate
	case studentCount == 2:
		return CategorySemiPrivate
	default:
		return CategoryGroup
	}
}

// CalcLessonStats sums event hours per category. Sums stay unrounded until the
// result is returned.
func CalcLessonStats(lessons []model.Lesson) Result {
	var total, private, semi, group float64

	for _, l := range lessons {
		if len(l.Events) == 0 {
			continue
		}
		hours := float64(l.EventMinutes()) / 60
		total += hours

		switch CategoryFor(l.Booking.StudentCount()) {
		case CategoryPrivate:
			private += hours
		case CategorySemiPrivate:
			semi += hours
		case CategoryGroup:
			group += hours
		}
	}

	return Result{
		TotalHours:   Round1(total),
		PrivateHours: Round1(private),
		SemiPrivate:  Round1(semi),
		Group:        Round1(group),
	}
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
