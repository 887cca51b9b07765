package services

import (
	"fmt"
	"testing"
	"time"

	"habit-duel-service/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.BalanceEntry{},
		&models.Habit{},
		&models.UserHabit{},
		&models.Duel{},
		&models.ExchangeRequest{},
		&models.Certification{},
		&models.MediaAsset{},
		&models.AttendanceLog{},
		&models.Notification{},
	))
	return db
}

// seedUser creates a user and funds it through the ledger so audits stay
// consistent in tests too.
func seedUser(t *testing.T, db *gorm.DB, nickname string, balance int64) *models.User {
	t.Helper()

	user := &models.User{ID: uuid.NewString(), Nickname: nickname, Name: nickname}
	require.NoError(t, db.Create(user).Error)

	if balance > 0 {
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			return applyBalanceChange(tx, user.ID, balance, models.BalanceReasonAttendance, "seed", user.ID)
		}))
		user.HbBalance = balance
	}
	return user
}

func seedSoloHabit(t *testing.T, db *gorm.DB, userID string, mask int, start, end, deadline string) *models.UserHabit {
	t.Helper()

	habit := &models.UserHabit{
		ID:            uuid.NewString(),
		UserID:        userID,
		Title:         "Morning run",
		Method:        models.MethodText,
		DeadlineLocal: deadline,
		DaysOfWeek:    mask,
		PeriodStart:   start,
		PeriodEnd:     end,
		IsActive:      true,
		Difficulty:    2,
		Status:        models.HabitStatusActive,
	}
	require.NoError(t, db.Create(habit).Error)
	return habit
}

func seedCert(t *testing.T, db *gorm.DB, userID, habitID string, duelID *string, date, status string) {
	t.Helper()

	cert := models.Certification{
		ID:          uuid.NewString(),
		UserID:      userID,
		UserHabitID: &habitID,
		DuelID:      duelID,
		Ts:          time.Now(),
		CertDate:    date,
		Method:      models.MethodText,
		Status:      status,
	}
	if status == models.CertStatusFail {
		reason := models.FailReasonDeadlineMissed
		cert.FailReason = &reason
	}
	require.NoError(t, db.Create(&cert).Error)
}

func userBalance(t *testing.T, db *gorm.DB, userID string) int64 {
	t.Helper()

	var user models.User
	require.NoError(t, db.First(&user, "id = ?", userID).Error)
	return user.HbBalance
}

// duelFixture wires two funded users into an active duel via the real
// exchange-acceptance path, so stakes are escrowed exactly as in production.
type duelFixture struct {
	svc             *DuelService
	owner           *models.User
	challenger      *models.User
	duel            *models.Duel
	ownerHabit      *models.UserHabit
	challengerHabit *models.UserHabit
}

func setupDuel(t *testing.T, db *gorm.DB, difficulty int, start, end string, now time.Time) *duelFixture {
	t.Helper()

	notifier := NewNotificationService(db)
	svc := NewDuelService(db, time.UTC, notifier)

	owner := seedUser(t, db, "owner", 10)
	challenger := seedUser(t, db, "challenger", 10)

	template := models.Habit{
		ID:          uuid.NewString(),
		OwnerUserID: owner.ID,
		Title:       "Read 20 pages",
	}
	require.NoError(t, db.Create(&template).Error)

	challengerSolo := seedSoloHabit(t, db, challenger.ID, EncodeWeekdays([]int{1, 2, 3, 4, 5, 6, 7}), start, end, "21:00")

	exchange := models.ExchangeRequest{
		ID:            uuid.NewString(),
		FromUserID:    challenger.ID,
		ToUserID:      owner.ID,
		TargetHabitID: template.ID,
		Method:        models.MethodText,
		DeadlineLocal: "21:00",
		DaysOfWeek:    EncodeWeekdays([]int{1, 2, 3, 4, 5, 6, 7}),
		StartDate:     start,
		EndDate:       end,
		Difficulty:    difficulty,
		Status:        models.ExchangeStatusPending,
	}
	require.NoError(t, db.Create(&exchange).Error)

	duel, err := svc.CreateFromExchange(owner.ID, DuelFromExchangeInput{
		ExchangeRequestID:   exchange.ID,
		OpponentUserHabitID: challengerSolo.ID,
		Method:              models.MethodText,
		DeadlineLocal:       "21:00",
		DaysOfWeek:          []int{1, 2, 3, 4, 5, 6, 7},
		StartDate:           start,
		EndDate:             end,
		Difficulty:          difficulty,
	}, now)
	require.NoError(t, err)

	var habits []models.UserHabit
	require.NoError(t, db.Where("duel_id = ?", duel.ID).Find(&habits).Error)
	require.Len(t, habits, 2)

	fx := &duelFixture{svc: svc, owner: owner, challenger: challenger, duel: duel}
	for i := range habits {
		if habits[i].UserID == owner.ID {
			fx.ownerHabit = &habits[i]
		} else {
			fx.challengerHabit = &habits[i]
		}
	}
	require.NotNil(t, fx.ownerHabit)
	require.NotNil(t, fx.challengerHabit)
	return fx
}
