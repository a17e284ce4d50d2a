package queue

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule determines when a recurring task should run. String returns the
// ParseSchedule form of the schedule.
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

// intervalSchedule runs at fixed intervals
type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(from time.Time) time.Time {
	return from.Add(s.every)
}

func (s intervalSchedule) String() string {
	return "every " + s.every.String()
}

// hourlySchedule runs every hour at the given minute
type hourlySchedule struct {
	minute int
}

func (s hourlySchedule) Next(from time.Time) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), from.Hour(), s.minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.Add(time.Hour)
	}
	return next
}

func (s hourlySchedule) String() string {
	return fmt.Sprintf("hourly :%02d", s.minute)
}

// dailySchedule runs once per day at the given time
type dailySchedule struct {
	hour   int
	minute int
}

func (s dailySchedule) Next(from time.Time) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), s.hour, s.minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s dailySchedule) String() string {
	return fmt.Sprintf("daily %02d:%02d", s.hour, s.minute)
}

// weeklySchedule runs once per week on the given day and time
type weeklySchedule struct {
	weekday time.Weekday
	hour    int
	minute  int
}

func (s weeklySchedule) Next(from time.Time) time.Time {
	daysUntil := (int(s.weekday) - int(from.Weekday()) + 7) % 7
	day := from.AddDate(0, 0, daysUntil)
	next := time.Date(day.Year(), day.Month(), day.Day(), s.hour, s.minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

func (s weeklySchedule) String() string {
	return fmt.Sprintf("weekly %s %02d:%02d", strings.ToLower(s.weekday.String()[:3]), s.hour, s.minute)
}

// monthlySchedule runs once per month on the given day and time. Days past the
// end of a short month run on its last day.
type monthlySchedule struct {
	day    int
	hour   int
	minute int
}

func (s monthlySchedule) Next(from time.Time) time.Time {
	next := s.at(from.Year(), from.Month(), from.Location())
	if !next.After(from) {
		first := time.Date(from.Year(), from.Month()+1, 1, 0, 0, 0, 0, from.Location())
		next = s.at(first.Year(), first.Month(), from.Location())
	}
	return next
}

func (s monthlySchedule) at(year int, month time.Month, loc *time.Location) time.Time {
	day := min(s.day, daysInMonth(year, month))
	return time.Date(year, month, day, s.hour, s.minute, 0, 0, loc)
}

func (s monthlySchedule) String() string {
	return fmt.Sprintf("monthly %d %02d:%02d", s.day, s.hour, s.minute)
}

// EveryInterval creates a schedule that runs at fixed intervals
func EveryInterval(d time.Duration) Schedule {
	return intervalSchedule{every: d}
}

// EveryMinutes creates a schedule that runs every n minutes
func EveryMinutes(n int) Schedule {
	return intervalSchedule{every: time.Duration(n) * time.Minute}
}

// EveryHours creates a schedule that runs every n hours
func EveryHours(n int) Schedule {
	return intervalSchedule{every: time.Duration(n) * time.Hour}
}

// HourlyAt creates a schedule that runs every hour at the given minute
func HourlyAt(minute int) Schedule {
	return hourlySchedule{minute: minute}
}

// DailyAt creates a schedule that runs daily at the given time
func DailyAt(hour, minute int) Schedule {
	return dailySchedule{hour: hour, minute: minute}
}

// WeeklyOn creates a schedule that runs weekly on the given day and time
func WeeklyOn(weekday time.Weekday, hour, minute int) Schedule {
	return weeklySchedule{weekday: weekday, hour: hour, minute: minute}
}

// MonthlyOn creates a schedule that runs monthly on the given day and time
func MonthlyOn(day, hour, minute int) Schedule {
	return monthlySchedule{day: day, hour: hour, minute: minute}
}

// ParseSchedule parses the textual schedule forms:
//
//	every 5m
//	hourly :15
//	daily 02:30
//	weekly mon 03:00
//	monthly 1 04:00
func ParseSchedule(s string) (Schedule, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidSchedule)
	}

	invalid := func() error { return fmt.Errorf("%w: %q", ErrInvalidSchedule, s) }

	switch kind, args := fields[0], fields[1:]; {
	case kind == "every" && len(args) == 1:
		d, err := time.ParseDuration(args[0])
		if err != nil || d <= 0 {
			return nil, invalid()
		}
		return EveryInterval(d), nil

	case kind == "hourly" && len(args) == 1:
		minute, ok := parseBounded(strings.TrimPrefix(args[0], ":"), 0, 59)
		if !ok {
			return nil, invalid()
		}
		return HourlyAt(minute), nil

	case kind == "daily" && len(args) == 1:
		hour, minute, ok := parseClock(args[0])
		if !ok {
			return nil, invalid()
		}
		return DailyAt(hour, minute), nil

	case kind == "weekly" && len(args) == 2:
		weekday, ok := weekdays[args[0]]
		if !ok {
			return nil, invalid()
		}
		hour, minute, ok := parseClock(args[1])
		if !ok {
			return nil, invalid()
		}
		return WeeklyOn(weekday, hour, minute), nil

	case kind == "monthly" && len(args) == 2:
		day, ok := parseBounded(args[0], 1, 31)
		if !ok {
			return nil, invalid()
		}
		hour, minute, ok := parseClock(args[1])
		if !ok {
			return nil, invalid()
		}
		return MonthlyOn(day, hour, minute), nil
	}

	return nil, invalid()
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// parseClock parses HH:MM in 24-hour form.
func parseClock(s string) (hour, minute int, ok bool) {
	h, m, found := strings.Cut(s, ":")
	if !found {
		return 0, 0, false
	}
	hour, okH := parseBounded(h, 0, 23)
	minute, okM := parseBounded(m, 0, 59)
	return hour, minute, okH && okM
}

func parseBounded(s string, lo, hi int) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}

// daysInMonth returns the number of days of month in year
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
