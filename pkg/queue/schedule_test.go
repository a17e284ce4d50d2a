package queue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/taskengine/pkg/queue"
)

func TestIntervalSchedule(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	t.Run("every interval", func(t *testing.T) {
		schedule := queue.EveryInterval(30 * time.Second)
		assert.Equal(t, base.Add(30*time.Second), schedule.Next(base))
		assert.Equal(t, "every 30s", schedule.String())
	})

	t.Run("every N minutes", func(t *testing.T) {
		schedule := queue.EveryMinutes(15)
		assert.Equal(t, base.Add(15*time.Minute), schedule.Next(base))
		assert.Equal(t, "every 15m0s", schedule.String())
	})

	t.Run("every N hours", func(t *testing.T) {
		schedule := queue.EveryHours(2)
		assert.Equal(t, base.Add(2*time.Hour), schedule.Next(base))
	})
}

func TestHourlySchedule(t *testing.T) {
	t.Parallel()

	schedule := queue.HourlyAt(15)
	assert.Equal(t, "hourly :15", schedule.String())

	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{
			name: "before minute",
			from: time.Date(2025, 1, 1, 10, 5, 0, 0, time.UTC),
			want: time.Date(2025, 1, 1, 10, 15, 0, 0, time.UTC),
		},
		{
			name: "exactly at minute",
			from: time.Date(2025, 1, 1, 10, 15, 0, 0, time.UTC),
			want: time.Date(2025, 1, 1, 11, 15, 0, 0, time.UTC),
		},
		{
			name: "crosses midnight",
			from: time.Date(2025, 1, 1, 23, 30, 0, 0, time.UTC),
			want: time.Date(2025, 1, 2, 0, 15, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, schedule.Next(tt.from))
		})
	}
}

func TestDailySchedule(t *testing.T) {
	t.Parallel()

	schedule := queue.DailyAt(2, 30)
	assert.Equal(t, "daily 02:30", schedule.String())

	assert.Equal(t,
		time.Date(2025, 1, 1, 2, 30, 0, 0, time.UTC),
		schedule.Next(time.Date(2025, 1, 1, 1, 0, 0, 0, time.UTC)))
	assert.Equal(t,
		time.Date(2025, 1, 2, 2, 30, 0, 0, time.UTC),
		schedule.Next(time.Date(2025, 1, 1, 2, 30, 0, 0, time.UTC)))
	assert.Equal(t,
		time.Date(2025, 1, 1, 2, 30, 0, 0, time.UTC),
		schedule.Next(time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)))
}

func TestWeeklySchedule(t *testing.T) {
	t.Parallel()

	schedule := queue.WeeklyOn(time.Monday, 3, 0)
	assert.Equal(t, "weekly mon 03:00", schedule.String())

	// 2025-01-01 is a Wednesday
	assert.Equal(t,
		time.Date(2025, 1, 6, 3, 0, 0, 0, time.UTC),
		schedule.Next(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)))
	// Monday after the slot rolls a full week
	assert.Equal(t,
		time.Date(2025, 1, 13, 3, 0, 0, 0, time.UTC),
		schedule.Next(time.Date(2025, 1, 6, 4, 0, 0, 0, time.UTC)))
	// Monday before the slot stays on the same day
	assert.Equal(t,
		time.Date(2025, 1, 6, 3, 0, 0, 0, time.UTC),
		schedule.Next(time.Date(2025, 1, 6, 1, 0, 0, 0, time.UTC)))
}

func TestMonthlySchedule(t *testing.T) {
	t.Parallel()

	t.Run("regular day", func(t *testing.T) {
		schedule := queue.MonthlyOn(1, 4, 0)
		assert.Equal(t, "monthly 1 04:00", schedule.String())
		assert.Equal(t,
			time.Date(2025, 2, 1, 4, 0, 0, 0, time.UTC),
			schedule.Next(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("day clamps to month end", func(t *testing.T) {
		schedule := queue.MonthlyOn(31, 0, 0)
		assert.Equal(t,
			time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC),
			schedule.Next(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)))
		assert.Equal(t,
			time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
			schedule.Next(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("december rolls into next year", func(t *testing.T) {
		schedule := queue.MonthlyOn(5, 0, 0)
		assert.Equal(t,
			time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
			schedule.Next(time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC)))
	})
}

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	from := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	valid := []struct {
		in   string
		want queue.Schedule
	}{
		{"every 5m", queue.EveryInterval(5 * time.Minute)},
		{"  EVERY 1h30m ", queue.EveryInterval(90 * time.Minute)},
		{"hourly :15", queue.HourlyAt(15)},
		{"hourly 45", queue.HourlyAt(45)},
		{"daily 02:30", queue.DailyAt(2, 30)},
		{"weekly mon 03:00", queue.WeeklyOn(time.Monday, 3, 0)},
		{"weekly Sunday 23:59", queue.WeeklyOn(time.Sunday, 23, 59)},
		{"monthly 1 04:00", queue.MonthlyOn(1, 4, 0)},
	}
	for _, tt := range valid {
		t.Run(tt.in, func(t *testing.T) {
			got, err := queue.ParseSchedule(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want.String(), got.String())
			assert.Equal(t, tt.want.Next(from), got.Next(from))
		})
	}

	invalid := []string{
		"",
		"every",
		"every soon",
		"every -5m",
		"hourly :60",
		"daily 24:00",
		"daily 2",
		"weekly funday 03:00",
		"weekly mon",
		"monthly 0 04:00",
		"monthly 32 04:00",
		"yearly 1 1 00:00",
	}
	for _, in := range invalid {
		t.Run("invalid "+in, func(t *testing.T) {
			_, err := queue.ParseSchedule(in)
			assert.ErrorIs(t, err, queue.ErrInvalidSchedule)
		})
	}

	t.Run("string round trip", func(t *testing.T) {
		for _, s := range []queue.Schedule{
			queue.EveryInterval(90 * time.Second),
			queue.HourlyAt(5),
			queue.DailyAt(0, 0),
			queue.WeeklyOn(time.Friday, 18, 45),
			queue.MonthlyOn(15, 12, 0),
		} {
			parsed, err := queue.ParseSchedule(s.String())
			require.NoError(t, err, s.String())
			assert.Equal(t, s.String(), parsed.String())
		}
	})
}
