package policy

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"swapring/core/errs"
	"swapring/core/types"
)

// CheckQuietHours refuses commit/settlement-path writes that land inside the
// delegation's quiet window. The window is evaluated in the policy's
// timezone; start > end wraps midnight, start == end is always in-window.
func CheckQuietHours(qh *types.QuietHours, now time.Time) *errs.Error {
	if qh == nil {
		return nil
	}
	start, err := parseClock(qh.Start)
	if err != nil {
		return errs.ConstraintViolation("quiet_hours start: %v", err)
	}
	end, err := parseClock(qh.End)
	if err != nil {
		return errs.ConstraintViolation("quiet_hours end: %v", err)
	}
	loc := time.UTC
	if qh.TZ != "" {
		loc, err = time.LoadLocation(qh.TZ)
		if err != nil {
			return errs.ConstraintViolation("quiet_hours tz %q is unknown", qh.TZ)
		}
	}
	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()
	if inQuietWindow(minute, start, end) {
		return errs.Forbidden("operation refused during quiet hours").
			Reason("quiet_hours").
			WithDetail("window", fmt.Sprintf("%s-%s %s", qh.Start, qh.End, qh.TZ))
	}
	return nil
}

func inQuietWindow(minute, start, end int) bool {
	if start == end {
		return true
	}
	if start < end {
		return minute >= start && minute < end
	}
	// Wraps midnight.
	return minute >= start || minute < end
}

func parseClock(clock string) (int, error) {
	parts := strings.Split(clock, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("clock %q is not HH:MM", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("clock %q has an invalid hour", clock)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("clock %q has an invalid minute", clock)
	}
	return hour*60 + minute, nil
}
