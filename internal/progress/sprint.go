package progress

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrSprintDayUnavailable is returned when no sprint day can be
	// computed: the start date is missing, unreadable or in the future.
	ErrSprintDayUnavailable = errors.New("sprint day unavailable")

	// ErrInvalidLicence is returned for a licence without a known tier.
	ErrInvalidLicence = errors.New("invalid licence")
)

// ParseStartDate accepts an ISO date or an RFC 3339 timestamp.
func ParseStartDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: no start date", ErrSprintDayUnavailable)
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: unreadable start date %q", ErrSprintDayUnavailable, s)
}

// ComputeSprintDay returns floor(days since startDate) + 1, counting
// calendar days, so the start date itself is day 1.
func ComputeSprintDay(startDate string, today time.Time) (int, error) {
	start, err := ParseStartDate(startDate)
	if err != nil {
		return 0, err
	}
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	day := int(to.Sub(from).Hours()/24) + 1
	if day < 1 {
		return 0, fmt.Errorf("%w: start date %s is in the future", ErrSprintDayUnavailable, startDate)
	}
	return day, nil
}
