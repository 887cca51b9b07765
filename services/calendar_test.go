package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWeekdays(t *testing.T) {
	assert.Equal(t, 0, EncodeWeekdays(nil))
	assert.Equal(t, 0b0000001, EncodeWeekdays([]int{1}))
	assert.Equal(t, 0b1000000, EncodeWeekdays([]int{7}))
	assert.Equal(t, 0b0010101, EncodeWeekdays([]int{1, 3, 5}))
	// Out-of-range and duplicate values are ignored.
	assert.Equal(t, 0b0000001, EncodeWeekdays([]int{1, 1, 0, 8, -3}))
}

func TestDecodeWeekdaysRoundTrip(t *testing.T) {
	days := []int{1, 3, 5, 7}
	assert.Equal(t, days, DecodeWeekdays(EncodeWeekdays(days)))
	assert.Nil(t, DecodeWeekdays(0))
}

func TestWeekdayBit(t *testing.T) {
	// 2026-01-05 is a Monday, 2026-01-11 a Sunday.
	mon := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	sun := time.Date(2026, 1, 11, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, weekdayBit(mon))
	assert.Equal(t, 1<<6, weekdayBit(sun))
}

func TestDeadlineInstant(t *testing.T) {
	at, err := deadlineInstant("2026-01-05", "21:30", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 5, 21, 30, 0, 0, time.UTC), at)

	_, err = deadlineInstant("2026-01-05", "25:00", time.UTC)
	assert.Error(t, err)

	_, err = deadlineInstant("not-a-date", "21:30", time.UTC)
	assert.Error(t, err)
}

func TestScheduledDates(t *testing.T) {
	// Mon + Wed over one full week.
	mask := EncodeWeekdays([]int{1, 3})
	dates, err := scheduledDates(mask, "2026-01-05", "2026-01-11", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-01-05", "2026-01-07"}, dates)

	// A mask that never matches the range yields no slots.
	sunOnly := EncodeWeekdays([]int{7})
	dates, err = scheduledDates(sunOnly, "2026-01-05", "2026-01-06", time.UTC)
	require.NoError(t, err)
	assert.Empty(t, dates)
}
