package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/attendance"
	"faceattend/internal/course"
	"faceattend/internal/user"
)

type oneFaceDetector struct{}

func (oneFaceDetector) Detect(context.Context, string) (attendance.Detection, error) {
	return attendance.Detection{Faces: 1, Score: 0.97}, nil
}

// Walks a whole first-day flow on the localfile backend: register, log in,
// add a course, select it, check in, inspect history and stats, then hit the
// same-day duplicate guard.
func TestFirstDayFlow(t *testing.T) {
	ctx := context.Background()
	gw, err := NewLocalFile(filepath.Join(t.TempDir(), "faceattend.json"))
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	users := user.NewService(gw)
	courses := course.NewRegistry(gw, rdb, time.Minute)
	ledger := attendance.NewLedger(gw, oneFaceDetector{}, time.Second, time.UTC)

	alice, err := users.Register(ctx, "alice", "a@x.com", "pw123")
	require.NoError(t, err)

	got, err := users.Authenticate(ctx, "alice", "pw123")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	cs101, err := courses.Add(ctx, alice.ID, "Intro", "CS101")
	require.NoError(t, err)
	require.NoError(t, courses.SelectForAttendance(ctx, alice.ID, cs101.ID))

	selected, ok := courses.SelectedCourse(ctx, alice.ID)
	require.True(t, ok)

	rec, err := ledger.Mark(ctx, alice.ID, selected, "https://img.example/alice.jpg")
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusPresent, rec.Status)
	assert.Equal(t, cs101.ID, rec.CourseID)
	courses.ConsumeSelection(ctx, alice.ID)

	_, ok = courses.SelectedCourse(ctx, alice.ID)
	assert.False(t, ok, "selection is consumed by a successful check-in")

	list, err := courses.List(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	history, err := ledger.History(ctx, alice.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)

	stats := attendance.ComputeStats(history, len(list), 30)
	assert.InDelta(t, 3.3, stats.AttendanceRate, 1e-9)
	assert.Equal(t, 1, stats.CourseCount)

	_, err = ledger.Mark(ctx, alice.ID, "", "https://img.example/alice-again.jpg")
	assert.ErrorIs(t, err, attendance.ErrAlreadyMarked)

	history, err = ledger.History(ctx, alice.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
