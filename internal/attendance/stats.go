package attendance

import (
	"math"
	"time"
)

// Stats are derived metrics for one user's dashboard. Never persisted;
// recomputed from the ledger and registry on every request.
type Stats struct {
	AttendanceRate float64    `json:"attendance_rate"`
	CourseCount    int        `json:"course_count"`
	LastCheckIn    *time.Time `json:"last_check_in,omitempty"`
}

// ComputeStats derives stats from the user's records and course count.
// totalExpectedDays is the rate denominator; a non-positive value yields a
// rate of 0 rather than dividing by zero.
func ComputeStats(records []Record, courseCount, totalExpectedDays int) Stats {
	stats := Stats{CourseCount: courseCount}

	if totalExpectedDays > 0 {
		rate := float64(len(records)) / float64(totalExpectedDays) * 100
		rate = math.Round(rate*10) / 10
		if rate > 100 {
			rate = 100
		}
		stats.AttendanceRate = rate
	}

	for i := range records {
		if stats.LastCheckIn == nil || records[i].When.After(*stats.LastCheckIn) {
			when := records[i].When
			stats.LastCheckIn = &when
		}
	}
	return stats
}
