package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidateCronSchedule validates a five-field cron expression with the
// same parser the scheduler runs, so anything accepted here is
// guaranteed to schedule.
//
// Standard format: "minute hour day month weekday"
//   - "*/20 * * * *" (every 20 minutes)
//   - "30 5 * * *" (every day at 5:30)
//   - "0 */6 * * 1-5" (weekdays, every 6 hours)
//
// Validation tool: https://crontab.guru/
func ValidateCronSchedule(schedule string) error {
	if schedule == "" {
		return fmt.Errorf("invalid cron schedule: cannot be empty")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", schedule, err)
	}

	return nil
}

// ValidateTimezone checks that the value is an IANA timezone name the
// runtime can actually load ("UTC", "Asia/Tokyo", "Europe/Paris").
//
// Loading depends on timezone data being present, so this can fail for
// a correctly spelled zone on an image without the tzdata package.
// Offsets like "+09:00" are not zone names and are rejected.
func ValidateTimezone(timezone string) error {
	if timezone == "" {
		return fmt.Errorf("invalid timezone: cannot be empty")
	}

	if _, err := time.LoadLocation(timezone); err != nil {
		return fmt.Errorf("invalid timezone '%s': %w", timezone, err)
	}

	return nil
}

// ValidateDuration checks that a duration falls inside an inclusive
// range. Error messages carry the value and both bounds so the
// operator can see how far off the setting is.
func ValidateDuration(d, lo, hi time.Duration) error {
	if lo > hi {
		return fmt.Errorf("invalid range: minimum %v is greater than maximum %v", lo, hi)
	}
	if d < lo {
		return fmt.Errorf("duration %v is below minimum %v", d, lo)
	}
	if d > hi {
		return fmt.Errorf("duration %v exceeds maximum %v", d, hi)
	}
	return nil
}

// ValidateIntRange checks that an integer falls inside an inclusive
// range, for settings like worker concurrency (1-32) or listen ports
// (1024-65535).
func ValidateIntRange(v, lo, hi int) error {
	if lo > hi {
		return fmt.Errorf("invalid range: minimum %d is greater than maximum %d", lo, hi)
	}
	if v < lo {
		return fmt.Errorf("value %d is below minimum %d", v, lo)
	}
	if v > hi {
		return fmt.Errorf("value %d exceeds maximum %d", v, hi)
	}
	return nil
}

// ValidatePositiveDuration checks that a duration is strictly greater
// than zero. Zero usually means "disabled" in a config file, which is
// never what a timeout or an interval wants.
func ValidatePositiveDuration(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %v", d)
	}
	return nil
}
