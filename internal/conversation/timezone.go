package conversation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RestaurantLocation returns the *time.Location for a restaurant timezone string.
// Falls back to UTC if the timezone is invalid or empty.
func RestaurantLocation(timezone string) *time.Location {
	if timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseDecisionTime combines a DD/MM/YYYY date and an HH:mm clock time given in
// the restaurant's local time and returns the instant in UTC. Single-digit day,
// month and hour are accepted.
func ParseDecisionTime(date, clock string, loc *time.Location) (time.Time, error) {
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return time.Time{}, fmt.Errorf("conversation: missing date or time")
	}
	dparts := strings.Split(date, "/")
	if len(dparts) != 3 {
		return time.Time{}, fmt.Errorf("conversation: date %q is not DD/MM/YYYY", date)
	}
	tparts := strings.Split(clock, ":")
	if len(tparts) < 2 || len(tparts) > 3 {
		return time.Time{}, fmt.Errorf("conversation: time %q is not HH:mm", clock)
	}

	nums := make([]int, 0, 5)
	for _, raw := range append(dparts, tparts[:2]...) {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return time.Time{}, fmt.Errorf("conversation: invalid date/time %q %q", date, clock)
		}
		nums = append(nums, n)
	}
	day, month, year, hour, minute := nums[0], nums[1], nums[2], nums[3], nums[4]
	if month < 1 || month > 12 || day < 1 || day > 31 || hour < 0 || hour > 23 || minute < 0 || minute > 59 || year < 1000 {
		return time.Time{}, fmt.Errorf("conversation: date/time out of range %q %q", date, clock)
	}
	if loc == nil {
		loc = time.UTC
	}
	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
	// time.Date normalizes 31/02 into March; reject instead.
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, fmt.Errorf("conversation: no such date %q", date)
	}
	return t.UTC(), nil
}

// FormatLocal renders an instant the way the assistant reads dates back.
func FormatLocal(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("02/01/2006 15:04")
}
