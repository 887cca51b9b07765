package services

import (
	"testing"
	"time"

	"habit-duel-service/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// One full week, Monday 2026-01-05 through Sunday 2026-01-11, scheduled daily.
const (
	weekStart = "2026-01-05"
	weekEnd   = "2026-01-11"
)

var afterWeek = time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC)

func everyDay() int { return EncodeWeekdays([]int{1, 2, 3, 4, 5, 6, 7}) }

func TestSettleHabitSuccessAtRatio(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "alice", 0)
	svc := NewHabitService(db, time.UTC)

	habit := seedSoloHabit(t, db, user.ID, everyDay(), weekStart, weekEnd, "21:00")

	// 5 of 7 slots done: 0.714 clears the bar.
	for day := 5; day <= 9; day++ {
		seedCert(t, db, user.ID, habit.ID, nil, time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC).Format(isoDate), models.CertStatusSuccess)
	}

	settled, changed, err := svc.SettleHabit(habit.ID, afterWeek)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.HabitStatusCompletedSuccess, settled.Status)
	assert.False(t, settled.IsActive)
	require.NotNil(t, settled.CompletedAt)
}

func TestSettleHabitFailBelowRatio(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "alice", 0)
	svc := NewHabitService(db, time.UTC)

	habit := seedSoloHabit(t, db, user.ID, everyDay(), weekStart, weekEnd, "21:00")

	// 4 of 7 is 0.571, below the bar.
	for day := 5; day <= 8; day++ {
		seedCert(t, db, user.ID, habit.ID, nil, time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC).Format(isoDate), models.CertStatusSuccess)
	}

	settled, changed, err := svc.SettleHabit(habit.ID, afterWeek)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.HabitStatusCompletedFail, settled.Status)
}

func TestSettleHabitZeroSlotsFails(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "alice", 0)
	svc := NewHabitService(db, time.UTC)

	// Sunday-only mask over a Mon-Tue period: no slot was ever reachable.
	habit := seedSoloHabit(t, db, user.ID, EncodeWeekdays([]int{7}), "2026-01-05", "2026-01-06", "21:00")

	settled, changed, err := svc.SettleHabit(habit.ID, afterWeek)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.HabitStatusCompletedFail, settled.Status)
}

func TestSettleHabitPeriodStillRunning(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "alice", 0)
	svc := NewHabitService(db, time.UTC)

	habit := seedSoloHabit(t, db, user.ID, everyDay(), weekStart, weekEnd, "21:00")

	// Mid-period, and again on the last day: both are too early.
	mid := time.Date(2026, 1, 8, 8, 0, 0, 0, time.UTC)
	_, changed, err := svc.SettleHabit(habit.ID, mid)
	require.NoError(t, err)
	assert.False(t, changed)

	lastDay := time.Date(2026, 1, 11, 23, 0, 0, 0, time.UTC)
	_, changed, err = svc.SettleHabit(habit.ID, lastDay)
	require.NoError(t, err)
	assert.False(t, changed)

	var reloaded models.UserHabit
	require.NoError(t, db.First(&reloaded, "id = ?", habit.ID).Error)
	assert.Equal(t, models.HabitStatusActive, reloaded.Status)
}

func TestSettleHabitSkipsDuelLinked(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "alice", 0)
	svc := NewHabitService(db, time.UTC)

	habit := seedSoloHabit(t, db, user.ID, everyDay(), weekStart, weekEnd, "21:00")
	duelID := uuid.NewString()
	require.NoError(t, db.Model(&models.UserHabit{}).Where("id = ?", habit.ID).Update("duel_id", duelID).Error)

	_, changed, err := svc.SettleHabit(habit.ID, afterWeek)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSettleHabitTerminalIsNoop(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "alice", 0)
	svc := NewHabitService(db, time.UTC)

	habit := seedSoloHabit(t, db, user.ID, everyDay(), weekStart, weekEnd, "21:00")

	_, changed, err := svc.SettleHabit(habit.ID, afterWeek)
	require.NoError(t, err)
	assert.True(t, changed)

	// Second invocation sees the terminal status and leaves it alone.
	_, changed, err = svc.SettleHabit(habit.ID, afterWeek.Add(24*time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSettleHabitUnknown(t *testing.T) {
	db := newTestDB(t)
	svc := NewHabitService(db, time.UTC)

	_, _, err := svc.SettleHabit(uuid.NewString(), afterWeek)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSettleUserHabits(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "alice", 0)
	svc := NewHabitService(db, time.UTC)

	expired1 := seedSoloHabit(t, db, user.ID, everyDay(), weekStart, weekEnd, "21:00")
	expired2 := seedSoloHabit(t, db, user.ID, everyDay(), weekStart, weekEnd, "22:00")
	running := seedSoloHabit(t, db, user.ID, everyDay(), weekStart, "2026-02-01", "21:00")

	settled, err := svc.SettleUserHabits(user.ID, afterWeek)
	require.NoError(t, err)
	require.Len(t, settled, 2)

	ids := map[string]bool{settled[0].ID: true, settled[1].ID: true}
	assert.True(t, ids[expired1.ID])
	assert.True(t, ids[expired2.ID])

	var reloaded models.UserHabit
	require.NoError(t, db.First(&reloaded, "id = ?", running.ID).Error)
	assert.Equal(t, models.HabitStatusActive, reloaded.Status)
}
