package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"habit-duel-service/models"
	"habit-duel-service/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newHabitApp(t *testing.T) (*fiber.App, *gorm.DB) {
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
		&models.Habit{},
		&models.UserHabit{},
		&models.Certification{},
		&models.Duel{},
	))

	app := fiber.New()
	SetupHabitRoutes(app, services.NewHabitService(db, time.UTC))
	return app, db
}

// Every habit route, search included, reads the user id from locals, so all of
// them must sit behind the user-context middleware.
func TestHabitSearchRequiresUserContext(t *testing.T) {
	app, db := newHabitApp(t)

	owner := models.User{ID: uuid.NewString(), Nickname: "owner"}
	other := models.User{ID: uuid.NewString(), Nickname: "other"}
	require.NoError(t, db.Create(&owner).Error)
	require.NoError(t, db.Create(&other).Error)

	habit := models.UserHabit{
		ID:            uuid.NewString(),
		UserID:        other.ID,
		Title:         "Morning run",
		Method:        models.MethodText,
		DeadlineLocal: "21:00",
		DaysOfWeek:    1,
		PeriodStart:   "2026-01-05",
		PeriodEnd:     "2026-01-18",
		IsActive:      true,
		Difficulty:    1,
		Status:        models.HabitStatusActive,
	}
	require.NoError(t, db.Create(&habit).Error)

	// Without the gateway user header the middleware rejects the request.
	req := httptest.NewRequest("GET", "/habits/search?q=run", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// With it the search runs and excludes the caller's own habits.
	req = httptest.NewRequest("GET", "/habits/search?q=run", nil)
	req.Header.Set("X-User-ID", owner.ID)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var results []models.UserHabit
	require.NoError(t, json.Unmarshal(body, &results))
	require.Len(t, results, 1)
	assert.Equal(t, habit.ID, results[0].ID)

	req = httptest.NewRequest("GET", "/habits/search?q=run", nil)
	req.Header.Set("X-User-ID", other.ID)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	results = nil
	require.NoError(t, json.Unmarshal(body, &results))
	assert.Empty(t, results)
}
