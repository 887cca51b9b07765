package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckInFirstDay(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "alice", 0)
	svc := NewAttendanceService(db, time.UTC)

	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	res, err := svc.CheckInUser(user.ID, now)
	require.NoError(t, err)

	assert.False(t, res.AlreadyChecked)
	assert.Equal(t, 1, res.Streak)
	assert.Equal(t, int64(1), res.TodayReward)
	assert.Equal(t, "2026-01-05", res.Today)
	assert.Equal(t, int64(1), userBalance(t, db, user.ID))
}

func TestCheckInTwicePerDay(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "alice", 0)
	svc := NewAttendanceService(db, time.UTC)

	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	_, err := svc.CheckInUser(user.ID, now)
	require.NoError(t, err)

	res, err := svc.CheckInUser(user.ID, now.Add(4*time.Hour))
	require.NoError(t, err)
	assert.True(t, res.AlreadyChecked)
	assert.Zero(t, res.TodayReward)
	assert.Equal(t, int64(1), userBalance(t, db, user.ID))
}

func TestCheckInStreakCycle(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "alice", 0)
	svc := NewAttendanceService(db, time.UTC)

	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	// Days 1..7: base reward each day, bonus on the seventh.
	for day := 0; day < 7; day++ {
		res, err := svc.CheckInUser(user.ID, start.AddDate(0, 0, day))
		require.NoError(t, err)
		assert.Equal(t, day+1, res.Streak)
		if day == 6 {
			assert.True(t, res.IsSevenDayReward)
			assert.Equal(t, int64(6), res.TodayReward)
		} else {
			assert.False(t, res.IsSevenDayReward)
			assert.Equal(t, int64(1), res.TodayReward)
		}
	}
	// 6 x 1 + (1 + 5)
	assert.Equal(t, int64(12), userBalance(t, db, user.ID))

	// Day 8 wraps back to streak 1.
	res, err := svc.CheckInUser(user.ID, start.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak)
	assert.Equal(t, int64(1), res.TodayReward)
}

func TestCheckInGapResetsStreak(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "alice", 0)
	svc := NewAttendanceService(db, time.UTC)

	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	for day := 0; day < 3; day++ {
		_, err := svc.CheckInUser(user.ID, start.AddDate(0, 0, day))
		require.NoError(t, err)
	}

	// Skip a day; the streak starts over.
	res, err := svc.CheckInUser(user.ID, start.AddDate(0, 0, 4))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak)
}
