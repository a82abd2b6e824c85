// Package store provides the persistence gateway and its two interchangeable
// adapters: Postgres and a durable local JSON file. Business rules live in
// the domain packages; both adapters only enforce the storage-level
// invariants (unique users, one attendance record per user and day).
package store

import (
	"faceattend/internal/attendance"
	"faceattend/internal/course"
	"faceattend/internal/user"
)

// Gateway is the full persistence surface the application needs. The adapter
// is selected once at startup by configuration.
type Gateway interface {
	user.Store
	course.Store
	attendance.Store

	Close() error
}
