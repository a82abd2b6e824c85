package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"faceattend/internal/attendance"
	"faceattend/internal/course"
	"faceattend/internal/user"
)

const pgUniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS courses (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	code       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS courses_owner_name_key ON courses (owner_id, lower(name));
CREATE UNIQUE INDEX IF NOT EXISTS courses_owner_code_key ON courses (owner_id, lower(code));

CREATE TABLE IF NOT EXISTS attendance_records (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	course_id    TEXT,
	day          TEXT NOT NULL,
	occurred_at  TIMESTAMPTZ NOT NULL,
	status       TEXT NOT NULL,
	snapshot_url TEXT NOT NULL DEFAULT '',
	match_score  DOUBLE PRECISION,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (user_id, day)
);
`

// Postgres implements Gateway on database/sql with the pgx driver.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates the Postgres gateway.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the tables when they do not exist yet.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

// Close closes the underlying connection.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// CreateUser persists a new user. The unique indexes on username and email
// back the duplicate check even when two registrations race.
func (p *Postgres) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.Username, u.Email, u.PasswordHash, u.CreatedAt)
	if isUniqueViolation(err) {
		return user.User{}, user.ErrDuplicateUser
	}
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

// UserByUsername looks a user up by exact username.
func (p *Postgres) UserByUsername(ctx context.Context, username string) (user.User, error) {
	return p.scanUser(p.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, created_at
		FROM users WHERE username = $1
	`, username))
}

// UserByID looks a user up by id.
func (p *Postgres) UserByID(ctx context.Context, id string) (user.User, error) {
	return p.scanUser(p.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, created_at
		FROM users WHERE id = $1
	`, id))
}

func (p *Postgres) scanUser(row *sql.Row) (user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

// CreateCourse persists a new course. The case-insensitive unique indexes on
// (owner, name) and (owner, code) back the duplicate check even when two
// clients of the same user add concurrently.
func (p *Postgres) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO courses (id, owner_id, name, code, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.OwnerID, c.Name, c.Code, c.CreatedAt)
	if isUniqueViolation(err) {
		return course.Course{}, course.ErrDuplicateCourse
	}
	if err != nil {
		return course.Course{}, err
	}
	return c, nil
}

// CoursesByOwner returns the owner's courses in insertion order.
func (p *Postgres) CoursesByOwner(ctx context.Context, ownerID string) ([]course.Course, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, owner_id, name, code, created_at
		FROM courses WHERE owner_id = $1
		ORDER BY created_at, id
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []course.Course
	for rows.Next() {
		var c course.Course
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Code, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// DeleteCourse removes a course owned by ownerID.
func (p *Postgres) DeleteCourse(ctx context.Context, ownerID, courseID string) error {
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM courses WHERE id = $1 AND owner_id = $2
	`, courseID, ownerID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return course.ErrNotFound
	}
	return nil
}

// InsertRecord appends an attendance record. The (user_id, day) unique index
// turns a concurrent duplicate into ErrAlreadyMarked instead of a second row.
func (p *Postgres) InsertRecord(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, user_id, course_id, day, occurred_at, status, snapshot_url, match_score)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)
		RETURNING created_at
	`, rec.ID, rec.UserID, rec.CourseID, rec.Day, rec.When, rec.Status, rec.SnapshotURL, rec.MatchScore)
	err := row.Scan(&rec.CreatedAt)
	if isUniqueViolation(err) {
		return attendance.Record{}, attendance.ErrAlreadyMarked
	}
	if err != nil {
		return attendance.Record{}, err
	}
	return rec, nil
}

// HasRecordForDay reports whether the user already checked in on day.
func (p *Postgres) HasRecordForDay(ctx context.Context, userID, day string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM attendance_records WHERE user_id = $1 AND day = $2)
	`, userID, day).Scan(&exists)
	return exists, err
}

// RecordsByUser returns the user's records newest-first.
func (p *Postgres) RecordsByUser(ctx context.Context, userID string) ([]attendance.Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, COALESCE(course_id, ''), day, occurred_at, status, snapshot_url, match_score, created_at
		FROM attendance_records WHERE user_id = $1
		ORDER BY occurred_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []attendance.Record
	for rows.Next() {
		var rec attendance.Record
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.CourseID, &rec.Day, &rec.When, &rec.Status, &rec.SnapshotURL, &rec.MatchScore, &rec.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// RecordByID fetches a single record.
func (p *Postgres) RecordByID(ctx context.Context, id string) (attendance.Record, error) {
	var rec attendance.Record
	err := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, COALESCE(course_id, ''), day, occurred_at, status, snapshot_url, match_score, created_at
		FROM attendance_records WHERE id = $1
	`, id).Scan(&rec.ID, &rec.UserID, &rec.CourseID, &rec.Day, &rec.When, &rec.Status, &rec.SnapshotURL, &rec.MatchScore, &rec.CreatedAt)
	if err != nil {
		return attendance.Record{}, err
	}
	return rec, nil
}

// UpdateRecordScore writes the verification score computed by the worker.
func (p *Postgres) UpdateRecordScore(ctx context.Context, id string, score float64) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE attendance_records SET match_score = $2 WHERE id = $1
	`, id, score)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

var _ Gateway = (*Postgres)(nil)
