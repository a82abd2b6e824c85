package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"faceattend/internal/attendance"
	"faceattend/internal/course"
	"faceattend/internal/user"
)

// LocalFile implements Gateway on one durable JSON file. Each user embeds its
// courses and attendance records, the same shape the local-storage variant of
// the app persisted. The file is read once at open and owned by this process;
// run exactly one process against a given path.
type LocalFile struct {
	path string

	mu   sync.Mutex
	data localData
}

type localData struct {
	Users []localUser `json:"users"`
}

type localUser struct {
	User    storedUser     `json:"user"`
	Courses []storedCourse `json:"courses"`
	Records []storedRecord `json:"attendance"`
}

// Stored shapes carry their own tags. The domain structs hide credential and
// internal fields from API responses with `json:"-"`, which must not leak
// into what gets written to disk.
type storedUser struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

type storedCourse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

type storedRecord struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"course_id,omitempty"`
	Day         string    `json:"day"`
	When        time.Time `json:"when"`
	Status      string    `json:"status"`
	SnapshotURL string    `json:"snapshot_url,omitempty"`
	MatchScore  *float64  `json:"match_score,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toStoredUser(u user.User) storedUser {
	return storedUser{ID: u.ID, Username: u.Username, Email: u.Email, PasswordHash: u.PasswordHash, CreatedAt: u.CreatedAt}
}

func (su storedUser) domain() user.User {
	return user.User{ID: su.ID, Username: su.Username, Email: su.Email, PasswordHash: su.PasswordHash, CreatedAt: su.CreatedAt}
}

func toStoredCourse(c course.Course) storedCourse {
	return storedCourse{ID: c.ID, Name: c.Name, Code: c.Code, CreatedAt: c.CreatedAt}
}

func (sc storedCourse) domain(ownerID string) course.Course {
	return course.Course{ID: sc.ID, OwnerID: ownerID, Name: sc.Name, Code: sc.Code, CreatedAt: sc.CreatedAt}
}

func toStoredRecord(rec attendance.Record) storedRecord {
	return storedRecord{
		ID: rec.ID, CourseID: rec.CourseID, Day: rec.Day, When: rec.When,
		Status: rec.Status, SnapshotURL: rec.SnapshotURL, MatchScore: rec.MatchScore, CreatedAt: rec.CreatedAt,
	}
}

func (sr storedRecord) domain(userID string) attendance.Record {
	return attendance.Record{
		ID: sr.ID, UserID: userID, CourseID: sr.CourseID, Day: sr.Day, When: sr.When,
		Status: sr.Status, SnapshotURL: sr.SnapshotURL, MatchScore: sr.MatchScore, CreatedAt: sr.CreatedAt,
	}
}

// NewLocalFile opens (or initializes) the store at path.
func NewLocalFile(path string) (*LocalFile, error) {
	s := &LocalFile{path: path}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read local store: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("parse local store %s: %w", path, err)
		}
	}
	return s, nil
}

// Close is a no-op; every mutation is flushed as it happens.
func (s *LocalFile) Close() error { return nil }

// save writes the whole dataset atomically. Caller holds mu.
func (s *LocalFile) save() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *LocalFile) findUser(id string) *localUser {
	for i := range s.data.Users {
		if s.data.Users[i].User.ID == id {
			return &s.data.Users[i]
		}
	}
	return nil
}

// CreateUser persists a new user with empty course and attendance sets.
func (s *LocalFile) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.Users {
		existing := s.data.Users[i].User
		if existing.Username == u.Username || existing.Email == u.Email {
			return user.User{}, user.ErrDuplicateUser
		}
	}
	s.data.Users = append(s.data.Users, localUser{User: toStoredUser(u)})
	if err := s.save(); err != nil {
		return user.User{}, err
	}
	return u, nil
}

// UserByUsername looks a user up by exact username.
func (s *LocalFile) UserByUsername(_ context.Context, username string) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.Users {
		if s.data.Users[i].User.Username == username {
			return s.data.Users[i].User.domain(), nil
		}
	}
	return user.User{}, user.ErrNotFound
}

// UserByID looks a user up by id.
func (s *LocalFile) UserByID(_ context.Context, id string) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lu := s.findUser(id); lu != nil {
		return lu.User.domain(), nil
	}
	return user.User{}, user.ErrNotFound
}

// CreateCourse appends a course under its owner.
func (s *LocalFile) CreateCourse(_ context.Context, c course.Course) (course.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lu := s.findUser(c.OwnerID)
	if lu == nil {
		return course.Course{}, user.ErrNotFound
	}
	lu.Courses = append(lu.Courses, toStoredCourse(c))
	if err := s.save(); err != nil {
		return course.Course{}, err
	}
	return c, nil
}

// CoursesByOwner returns the owner's courses in insertion order.
func (s *LocalFile) CoursesByOwner(_ context.Context, ownerID string) ([]course.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lu := s.findUser(ownerID)
	if lu == nil {
		return nil, nil
	}
	out := make([]course.Course, 0, len(lu.Courses))
	for _, sc := range lu.Courses {
		out = append(out, sc.domain(ownerID))
	}
	return out, nil
}

// DeleteCourse removes a course owned by ownerID.
func (s *LocalFile) DeleteCourse(_ context.Context, ownerID, courseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lu := s.findUser(ownerID)
	if lu == nil {
		return course.ErrNotFound
	}
	for i := range lu.Courses {
		if lu.Courses[i].ID == courseID {
			lu.Courses = append(lu.Courses[:i], lu.Courses[i+1:]...)
			return s.save()
		}
	}
	return course.ErrNotFound
}

// InsertRecord appends an attendance record, enforcing one per (user, day).
func (s *LocalFile) InsertRecord(_ context.Context, rec attendance.Record) (attendance.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lu := s.findUser(rec.UserID)
	if lu == nil {
		return attendance.Record{}, user.ErrNotFound
	}
	for i := range lu.Records {
		if lu.Records[i].Day == rec.Day {
			return attendance.Record{}, attendance.ErrAlreadyMarked
		}
	}
	rec.CreatedAt = rec.When
	lu.Records = append(lu.Records, toStoredRecord(rec))
	if err := s.save(); err != nil {
		return attendance.Record{}, err
	}
	return rec, nil
}

// HasRecordForDay reports whether the user already checked in on day.
func (s *LocalFile) HasRecordForDay(_ context.Context, userID, day string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lu := s.findUser(userID)
	if lu == nil {
		return false, nil
	}
	for i := range lu.Records {
		if lu.Records[i].Day == day {
			return true, nil
		}
	}
	return false, nil
}

// RecordsByUser returns the user's records newest-first.
func (s *LocalFile) RecordsByUser(_ context.Context, userID string) ([]attendance.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lu := s.findUser(userID)
	if lu == nil {
		return nil, nil
	}
	out := make([]attendance.Record, 0, len(lu.Records))
	for _, sr := range lu.Records {
		out = append(out, sr.domain(userID))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].When.After(out[j].When) })
	return out, nil
}

// RecordByID fetches a single record.
func (s *LocalFile) RecordByID(_ context.Context, id string) (attendance.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.Users {
		for j := range s.data.Users[i].Records {
			if s.data.Users[i].Records[j].ID == id {
				return s.data.Users[i].Records[j].domain(s.data.Users[i].User.ID), nil
			}
		}
	}
	return attendance.Record{}, fmt.Errorf("record %s not found", id)
}

// UpdateRecordScore writes the verification score onto a record.
func (s *LocalFile) UpdateRecordScore(_ context.Context, id string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.Users {
		for j := range s.data.Users[i].Records {
			if s.data.Users[i].Records[j].ID == id {
				s.data.Users[i].Records[j].MatchScore = &score
				return s.save()
			}
		}
	}
	return fmt.Errorf("record %s not found", id)
}

var _ Gateway = (*LocalFile)(nil)
