package attendance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Detection is what the ledger needs from the face-detection collaborator:
// how many faces were found, and the detector's confidence.
type Detection struct {
	Faces int
	Score float64
}

// Detector is the face-detection collaborator. The caller decides polling vs.
// one-shot policy; the ledger always performs a one-shot gated check.
type Detector interface {
	Detect(ctx context.Context, imageURL string) (Detection, error)
}

// Ledger gates and records attendance events. Per (user, day) it is a two
// state machine, unmarked -> marked, and the transition happens at most once.
type Ledger struct {
	store    Store
	detector Detector
	timeout  time.Duration
	dayLoc   *time.Location
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewLedger creates a ledger. dayLoc sets the calendar-day boundary used for
// duplicate suppression; timeout bounds each detector call.
func NewLedger(store Store, detector Detector, timeout time.Duration, dayLoc *time.Location) *Ledger {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if dayLoc == nil {
		dayLoc = time.UTC
	}
	return &Ledger{
		store:    store,
		detector: detector,
		timeout:  timeout,
		dayLoc:   dayLoc,
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
}

// Mark performs a gated check-in:
// the snapshot must contain exactly one face, and the user must not already
// have a record for the current calendar day. A second call while one is
// pending for the same user is rejected with ErrCheckInPending.
func (l *Ledger) Mark(ctx context.Context, userID, courseID, snapshotURL string) (Record, error) {
	if userID == "" {
		return Record{}, errors.New("user id required")
	}
	if snapshotURL == "" {
		return Record{}, ErrSnapshotRequired
	}

	l.mu.Lock()
	if _, busy := l.inflight[userID]; busy {
		l.mu.Unlock()
		return Record{}, ErrCheckInPending
	}
	l.inflight[userID] = struct{}{}
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.inflight, userID)
		l.mu.Unlock()
	}()

	detection, err := l.detect(ctx, snapshotURL)
	if err != nil {
		markRejected.WithLabelValues(rejectReason(err)).Inc()
		return Record{}, err
	}
	switch {
	case detection.Faces == 0:
		markRejected.WithLabelValues("no_face").Inc()
		return Record{}, ErrNoFaceDetected
	case detection.Faces > 1:
		markRejected.WithLabelValues("ambiguous").Inc()
		return Record{}, ErrAmbiguousFace
	}

	now := l.now().UTC()
	day := now.In(l.dayLoc).Format("2006-01-02")

	marked, err := l.store.HasRecordForDay(ctx, userID, day)
	if err != nil {
		return Record{}, err
	}
	if marked {
		markRejected.WithLabelValues("already_marked").Inc()
		return Record{}, ErrAlreadyMarked
	}

	rec, err := l.store.InsertRecord(ctx, Record{
		ID:          uuid.NewString(),
		UserID:      userID,
		CourseID:    courseID,
		Day:         day,
		When:        now,
		Status:      StatusPresent,
		SnapshotURL: snapshotURL,
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyMarked) {
			markRejected.WithLabelValues("already_marked").Inc()
		}
		return Record{}, err
	}

	markAccepted.Inc()
	return rec, nil
}

// History returns the user's records newest-first. month filters to a single
// calendar month (1..12) in the day-boundary zone; pass 0 for all records.
func (l *Ledger) History(ctx context.Context, userID string, month int) ([]Record, error) {
	records, err := l.store.RecordsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if month < 1 || month > 12 {
		return records, nil
	}
	filtered := records[:0:0]
	for _, rec := range records {
		if rec.When.In(l.dayLoc).Month() == time.Month(month) {
			filtered = append(filtered, rec)
		}
	}
	return filtered, nil
}

func (l *Ledger) detect(ctx context.Context, snapshotURL string) (Detection, error) {
	dctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	detection, err := l.detector.Detect(dctx, snapshotURL)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || dctx.Err() == context.DeadlineExceeded {
			return Detection{}, ErrDetectionTimeout
		}
		return Detection{}, errors.Join(ErrFaceServiceUnavailable, err)
	}
	return detection, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrDetectionTimeout):
		return "detection_timeout"
	case errors.Is(err, ErrFaceServiceUnavailable):
		return "face_service_unavailable"
	default:
		return "error"
	}
}
