package domain

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleStudent:
		return RoleStudent, nil
	case RoleTeacher:
		return RoleTeacher, nil
	default:
		return "", ErrInvalidRole
	}
}

// Participant — логическая личность, привязанная к одному живому соединению.
// ID уникален только внутри канала, не глобально.
type Participant struct {
	Channel  string
	ID       string
	Name     string
	Role     Role
	ConnID   string
	JoinedAt time.Time
}

// PlaceholderName используется, когда клиент не прислал display name.
func PlaceholderName(participantID string) string {
	return fmt.Sprintf("user-%s", participantID)
}
