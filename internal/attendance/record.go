package attendance

import (
	"context"
	"errors"
	"time"
)

// StatusPresent is the only status a record can carry; absence is the lack of
// a record for that day.
const StatusPresent = "present"

var (
	// ErrAlreadyMarked is returned when the user already has a record for the
	// current calendar day. Expected condition, not a fault.
	ErrAlreadyMarked = errors.New("attendance already marked for today")
	// ErrNoFaceDetected is returned when the detector saw no face.
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrAmbiguousFace is returned when the detector saw more than one face.
	ErrAmbiguousFace = errors.New("multiple faces detected")
	// ErrCheckInPending is returned when a check-in for the same user is
	// still in flight.
	ErrCheckInPending = errors.New("check-in already in progress")
	// ErrSnapshotRequired is returned when a check-in carries no snapshot
	// URL. Caught before the detector is called.
	ErrSnapshotRequired = errors.New("snapshot image url required")
	// ErrDetectionTimeout is returned when the detector did not answer within
	// the configured deadline.
	ErrDetectionTimeout = errors.New("face detection timed out")
	// ErrFaceServiceUnavailable is returned when the detector could not be
	// reached. No attendance state is changed.
	ErrFaceServiceUnavailable = errors.New("face service unavailable")
)

// Record is one attendance event. Records are append-only; the only mutation
// is the worker writing the verification score after the fact.
type Record struct {
	ID          string    `json:"id"`
	UserID      string    `json:"-"`
	CourseID    string    `json:"course_id,omitempty"`
	Day         string    `json:"day"` // YYYY-MM-DD in the configured zone
	When        time.Time `json:"when"`
	Status      string    `json:"status"`
	SnapshotURL string    `json:"-"`
	MatchScore  *float64  `json:"match_score,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store defines ledger persistence. Implementations live in internal/store.
type Store interface {
	// InsertRecord appends a record. ErrAlreadyMarked is returned when a
	// record for (user, day) already exists, so the per-day invariant holds
	// even under concurrent writers.
	InsertRecord(ctx context.Context, rec Record) (Record, error)
	// HasRecordForDay reports whether the user already checked in that day.
	HasRecordForDay(ctx context.Context, userID, day string) (bool, error)
	// RecordsByUser returns the user's records newest-first.
	RecordsByUser(ctx context.Context, userID string) ([]Record, error)
	// RecordByID fetches a single record.
	RecordByID(ctx context.Context, id string) (Record, error)
	// UpdateRecordScore writes the verification score onto a record.
	UpdateRecordScore(ctx context.Context, id string, score float64) error
}
