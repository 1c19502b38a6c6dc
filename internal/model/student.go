package model

import (
	"strings"

	"github.com/google/uuid"
)

// UnknownStudent is shown when a student record carries no name.
const UnknownStudent = "Unknown"

type Student struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	LastName string    `json:"last_name,omitempty"`
}

func (s Student) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(s.Name) + " " + strings.TrimSpace(s.LastName))
	if name == "" {
		return UnknownStudent
	}
	return name
}
