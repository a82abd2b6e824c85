package course

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Registry manages a user's enrolled courses and the ephemeral "take
// attendance for this course" selection. The selection lives in Redis under a
// short TTL; it is scoped to the next check-in, not part of course state.
type Registry struct {
	store        Store
	redis        *redis.Client
	selectionTTL time.Duration
}

// NewRegistry creates a registry. redis may be nil, in which case course
// selection is unavailable and check-ins simply carry no course.
func NewRegistry(store Store, rdb *redis.Client, selectionTTL time.Duration) *Registry {
	if selectionTTL <= 0 {
		selectionTTL = 5 * time.Minute
	}
	return &Registry{store: store, redis: rdb, selectionTTL: selectionTTL}
}

// Add enrolls the user in a new course. A course whose name or code matches
// an existing one for the same user, ignoring case, is rejected with
// ErrDuplicateCourse.
func (r *Registry) Add(ctx context.Context, userID, name, code string) (Course, error) {
	if name == "" || code == "" {
		return Course{}, errors.New("course name and code required")
	}

	existing, err := r.store.CoursesByOwner(ctx, userID)
	if err != nil {
		return Course{}, fmt.Errorf("list courses: %w", err)
	}
	for _, c := range existing {
		if strings.EqualFold(c.Name, name) || strings.EqualFold(c.Code, code) {
			return Course{}, ErrDuplicateCourse
		}
	}

	return r.store.CreateCourse(ctx, Course{
		ID:        uuid.NewString(),
		OwnerID:   userID,
		Name:      name,
		Code:      code,
		CreatedAt: time.Now().UTC(),
	})
}

// Remove deletes a course. A course id that does not belong to the user
// yields ErrNotFound. Any pending selection of that course is dropped.
func (r *Registry) Remove(ctx context.Context, userID, courseID string) error {
	if err := r.store.DeleteCourse(ctx, userID, courseID); err != nil {
		return err
	}
	if r.redis != nil {
		if selected, _ := r.redis.Get(ctx, selectionKey(userID)).Result(); selected == courseID {
			_ = r.redis.Del(ctx, selectionKey(userID)).Err()
		}
	}
	return nil
}

// List returns the user's courses in insertion order.
func (r *Registry) List(ctx context.Context, userID string) ([]Course, error) {
	return r.store.CoursesByOwner(ctx, userID)
}

// SelectForAttendance records the course the next check-in applies to. The
// selection expires on its own after the configured TTL.
func (r *Registry) SelectForAttendance(ctx context.Context, userID, courseID string) error {
	if r.redis == nil {
		return errors.New("course selection unavailable")
	}
	if _, err := r.ownedCourse(ctx, userID, courseID); err != nil {
		return err
	}
	return r.redis.Set(ctx, selectionKey(userID), courseID, r.selectionTTL).Err()
}

// SelectedCourse returns the pending selection, if any. The selection is left
// in place; it is consumed by ConsumeSelection once the check-in succeeds.
func (r *Registry) SelectedCourse(ctx context.Context, userID string) (string, bool) {
	if r.redis == nil {
		return "", false
	}
	courseID, err := r.redis.Get(ctx, selectionKey(userID)).Result()
	if err != nil || courseID == "" {
		return "", false
	}
	return courseID, true
}

// ConsumeSelection drops the pending selection after a successful check-in.
func (r *Registry) ConsumeSelection(ctx context.Context, userID string) {
	if r.redis != nil {
		_ = r.redis.Del(ctx, selectionKey(userID)).Err()
	}
}

func (r *Registry) ownedCourse(ctx context.Context, userID, courseID string) (Course, error) {
	courses, err := r.store.CoursesByOwner(ctx, userID)
	if err != nil {
		return Course{}, err
	}
	for _, c := range courses {
		if c.ID == courseID {
			return c, nil
		}
	}
	return Course{}, ErrNotFound
}

func selectionKey(userID string) string {
	return "faceattend:selected:" + userID
}
