package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/attendance"
	"faceattend/internal/course"
	"faceattend/internal/user"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db), mock
}

func TestCreateUserUniqueViolation(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectExec("INSERT INTO users").
		WithArgs("u1", "alice", "alice@example.com", "hash", sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})

	_, err := p.CreateUser(context.Background(), user.User{
		ID: "u1", Username: "alice", Email: "alice@example.com",
		PasswordHash: "hash", CreatedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, user.ErrDuplicateUser)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserByUsernameNotFound(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT id, username, email, password_hash, created_at").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "created_at"}))

	_, err := p.UserByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, user.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCourseUniqueViolation(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectExec("INSERT INTO courses").
		WithArgs("c1", "u1", "Intro", "CS101", sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})

	_, err := p.CreateCourse(context.Background(), course.Course{
		ID: "c1", OwnerID: "u1", Name: "Intro", Code: "CS101", CreatedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, course.ErrDuplicateCourse)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteCourseNotFound(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectExec("DELETE FROM courses").
		WithArgs("c1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := p.DeleteCourse(context.Background(), "u1", "c1")
	assert.ErrorIs(t, err, course.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRecordUniqueViolation(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectQuery("INSERT INTO attendance_records").
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})

	_, err := p.InsertRecord(context.Background(), attendance.Record{
		ID: "r1", UserID: "u1", Day: "2026-08-31",
		When: time.Now().UTC(), Status: attendance.StatusPresent,
	})
	assert.ErrorIs(t, err, attendance.ErrAlreadyMarked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasRecordForDay(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("u1", "2026-08-31").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	has, err := p.HasRecordForDay(context.Background(), "u1", "2026-08-31")
	require.NoError(t, err)
	assert.True(t, has)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordsByUserScansNullScore(t *testing.T) {
	p, mock := newMockPostgres(t)

	when := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "user_id", "course_id", "day", "occurred_at", "status", "snapshot_url", "match_score", "created_at"}).
		AddRow("r2", "u1", "c1", "2026-08-31", when, "present", "", 0.88, when).
		AddRow("r1", "u1", "", "2026-08-30", when.Add(-24*time.Hour), "present", "", nil, when.Add(-24*time.Hour))
	mock.ExpectQuery("SELECT id, user_id, COALESCE").
		WithArgs("u1").
		WillReturnRows(rows)

	recs, err := p.RecordsByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.NotNil(t, recs[0].MatchScore)
	assert.InDelta(t, 0.88, *recs[0].MatchScore, 1e-9)
	assert.Nil(t, recs[1].MatchScore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRecordScore(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectExec("UPDATE attendance_records SET match_score").
		WithArgs("r1", 0.91).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, p.UpdateRecordScore(context.Background(), "r1", 0.91))
	assert.NoError(t, mock.ExpectationsWereMet())
}
