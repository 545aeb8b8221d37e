// Package domain contains the quota and usage records.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Unlimited disables usage tracking for a limit.
const Unlimited int64 = -1

// QuotaType names one gated resource.
type QuotaType string

const (
	QuotaFileUploads     QuotaType = "file_uploads"
	QuotaURLFetches      QuotaType = "url_fetches"
	QuotaImportJobs      QuotaType = "import_jobs"
	QuotaEventsPerImport QuotaType = "events_per_import"
	QuotaTotalEvents     QuotaType = "total_events"
	QuotaActiveSchedules QuotaType = "active_schedules"
)

// Daily reports whether the quota resets at the UTC day boundary.
func (q QuotaType) Daily() bool {
	switch q {
	case QuotaFileUploads, QuotaURLFetches, QuotaImportJobs:
		return true
	}
	return false
}

// Limits is the effective ceiling set for one trust level.
type Limits struct {
	MaxFileUploadsPerDay int64
	MaxURLFetchesPerDay  int64
	MaxImportJobsPerDay  int64
	MaxEventsPerImport   int64
	MaxTotalEvents       int64
	MaxActiveSchedules   int64
}

// Limit returns the ceiling for one quota type.
func (l Limits) Limit(q QuotaType) int64 {
	switch q {
	case QuotaFileUploads:
		return l.MaxFileUploadsPerDay
	case QuotaURLFetches:
		return l.MaxURLFetchesPerDay
	case QuotaImportJobs:
		return l.MaxImportJobsPerDay
	case QuotaEventsPerImport:
		return l.MaxEventsPerImport
	case QuotaTotalEvents:
		return l.MaxTotalEvents
	case QuotaActiveSchedules:
		return l.MaxActiveSchedules
	}
	return 0
}

// LimitsForTrustLevel maps a trust level (0-5) to its default ceilings.
// Level 5 is fully unlimited.
func LimitsForTrustLevel(level int) Limits {
	switch {
	case level <= 0:
		return Limits{MaxFileUploadsPerDay: 1, MaxURLFetchesPerDay: 0, MaxImportJobsPerDay: 1, MaxEventsPerImport: 100, MaxTotalEvents: 500, MaxActiveSchedules: 0}
	case level == 1:
		return Limits{MaxFileUploadsPerDay: 3, MaxURLFetchesPerDay: 3, MaxImportJobsPerDay: 3, MaxEventsPerImport: 1000, MaxTotalEvents: 5000, MaxActiveSchedules: 1}
	case level == 2:
		return Limits{MaxFileUploadsPerDay: 10, MaxURLFetchesPerDay: 10, MaxImportJobsPerDay: 10, MaxEventsPerImport: 10000, MaxTotalEvents: 50000, MaxActiveSchedules: 3}
	case level == 3:
		return Limits{MaxFileUploadsPerDay: 25, MaxURLFetchesPerDay: 25, MaxImportJobsPerDay: 25, MaxEventsPerImport: 50000, MaxTotalEvents: 250000, MaxActiveSchedules: 10}
	case level == 4:
		return Limits{MaxFileUploadsPerDay: 100, MaxURLFetchesPerDay: 100, MaxImportJobsPerDay: 100, MaxEventsPerImport: 250000, MaxTotalEvents: 1000000, MaxActiveSchedules: 25}
	default:
		return Limits{MaxFileUploadsPerDay: Unlimited, MaxURLFetchesPerDay: Unlimited, MaxImportJobsPerDay: Unlimited, MaxEventsPerImport: Unlimited, MaxTotalEvents: Unlimited, MaxActiveSchedules: Unlimited}
	}
}

// UserUsage stores the live counters consumed against a user's limits.
// Daily counters are reset lazily on first access past the UTC day boundary.
type UserUsage struct {
	UserID     snowflake.ID `gorm:"primaryKey" json:"user_id"`
	TrustLevel int          `gorm:"not null;default:1" json:"trust_level"`

	FileUploadsToday int64 `gorm:"not null;default:0" json:"file_uploads_today"`
	URLFetchesToday  int64 `gorm:"not null;default:0" json:"url_fetches_today"`
	ImportJobsToday  int64 `gorm:"not null;default:0" json:"import_jobs_today"`
	TotalEvents      int64 `gorm:"not null;default:0" json:"total_events"`
	ActiveSchedules  int64 `gorm:"not null;default:0" json:"active_schedules"`

	// DailyResetAt is the start of the UTC day the daily counters belong to.
	DailyResetAt time.Time `gorm:"not null" json:"daily_reset_at"`
	CreatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (UserUsage) TableName() string { return "user_usage" }

// Current returns the live counter for one quota type. Per-import event
// volume has no persistent counter; callers pass the import's own count.
func (u *UserUsage) Current(q QuotaType) int64 {
	switch q {
	case QuotaFileUploads:
		return u.FileUploadsToday
	case QuotaURLFetches:
		return u.URLFetchesToday
	case QuotaImportJobs:
		return u.ImportJobsToday
	case QuotaTotalEvents:
		return u.TotalEvents
	case QuotaActiveSchedules:
		return u.ActiveSchedules
	}
	return 0
}

// Add applies a delta to the counter for one quota type.
func (u *UserUsage) Add(q QuotaType, delta int64) {
	switch q {
	case QuotaFileUploads:
		u.FileUploadsToday += delta
	case QuotaURLFetches:
		u.URLFetchesToday += delta
	case QuotaImportJobs:
		u.ImportJobsToday += delta
	case QuotaTotalEvents:
		u.TotalEvents += delta
	case QuotaActiveSchedules:
		u.ActiveSchedules += delta
	}
}

// ResetDaily zeroes the daily counters for the given UTC day.
func (u *UserUsage) ResetDaily(day time.Time) {
	u.FileUploadsToday = 0
	u.URLFetchesToday = 0
	u.ImportJobsToday = 0
	u.DailyResetAt = day
}
