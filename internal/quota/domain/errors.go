package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrUnknownQuota = errors.New("quota: unknown quota type")

// Decision is the result of a quota check. Limit of Unlimited means the
// quota is not tracked for this user.
type Decision struct {
	Allowed   bool
	Quota     QuotaType
	Current   int64
	Limit     int64
	Remaining int64
	ResetsAt  *time.Time
}

// QuotaExceededError is returned before any resource is consumed.
type QuotaExceededError struct {
	Decision Decision
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota %s exceeded: %d of %d used", e.Decision.Quota, e.Decision.Current, e.Decision.Limit)
}

// IsQuotaExceeded reports whether err is a quota denial.
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}
