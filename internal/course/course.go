package course

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicateCourse is returned when the owner already has a course with
	// the same name or code (case-insensitive).
	ErrDuplicateCourse = errors.New("course already exists")
	// ErrNotFound is returned when a course id does not belong to the user.
	ErrNotFound = errors.New("course not found")
)

// Course is owned by exactly one user.
type Course struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"-"`
	Name      string    `json:"course_name"`
	Code      string    `json:"course_code"`
	CreatedAt time.Time `json:"created_at"`
}

// Store defines course persistence. Implementations live in internal/store.
type Store interface {
	// CreateCourse persists a new course for its owner.
	CreateCourse(ctx context.Context, c Course) (Course, error)
	// CoursesByOwner returns the owner's courses in insertion order.
	CoursesByOwner(ctx context.Context, ownerID string) ([]Course, error)
	// DeleteCourse removes a course, returning ErrNotFound when the id does
	// not belong to that owner.
	DeleteCourse(ctx context.Context, ownerID, courseID string) error
}
