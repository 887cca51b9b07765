package services

import (
	"fmt"
	"time"

	"habit-duel-service/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Minimum share of scheduled slots that must be certified for a solo habit to
// settle as a success.
const settlementSuccessRatio = 0.7

type HabitService struct {
	DB  *gorm.DB
	Loc *time.Location
}

func NewHabitService(db *gorm.DB, loc *time.Location) *HabitService {
	return &HabitService{DB: db, Loc: loc}
}

// SettleHabit finalizes one solo habit whose period has ended: the distinct
// success days are intersected with the scheduled slots and the habit settles
// completed_success at >= 70% (with at least one slot done), completed_fail
// otherwise. A habit with zero scheduled slots could never have been
// satisfied and settles as a fail.
//
// Re-invoking on a terminal habit is a no-op; duel-linked habits are left to
// duel resolution.
func (s *HabitService) SettleHabit(habitID string, now time.Time) (*models.UserHabit, bool, error) {
	now = now.In(s.Loc)
	today := now.Format(isoDate)

	var settled models.UserHabit
	changed := false

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var habit models.UserHabit
		if err := lockForUpdate(tx).First(&habit, "id = ?", habitID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("habit %s: %w", habitID, ErrNotFound)
			}
			return err
		}
		settled = habit

		if habit.Status != models.HabitStatusActive || habit.DuelID != nil {
			return nil
		}
		if habit.PeriodEnd >= today {
			// Period still running.
			return nil
		}

		slots, err := scheduledDates(habit.DaysOfWeek, habit.PeriodStart, habit.PeriodEnd, s.Loc)
		if err != nil {
			return err
		}

		status := models.HabitStatusCompletedFail
		if len(slots) > 0 {
			var successDates []string
			err := tx.Model(&models.Certification{}).
				Where("user_id = ? AND user_habit_id = ? AND status = ?",
					habit.UserID, habit.ID, models.CertStatusSuccess).
				Where("cert_date BETWEEN ? AND ?", habit.PeriodStart, habit.PeriodEnd).
				Distinct().
				Pluck("cert_date", &successDates).Error
			if err != nil {
				return err
			}

			slotSet := make(map[string]struct{}, len(slots))
			for _, d := range slots {
				slotSet[d] = struct{}{}
			}
			done := 0
			for _, d := range successDates {
				if _, ok := slotSet[d]; ok {
					done++
				}
			}

			ratio := float64(done) / float64(len(slots))
			if done > 0 && ratio >= settlementSuccessRatio {
				status = models.HabitStatusCompletedSuccess
			}
		}

		if err := tx.Model(&models.UserHabit{}).
			Where("id = ?", habit.ID).
			Updates(map[string]interface{}{
				"status":       status,
				"is_active":    false,
				"completed_at": now,
			}).Error; err != nil {
			return err
		}

		settled.Status = status
		settled.IsActive = false
		settled.CompletedAt = &now
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &settled, changed, nil
}

// SettleUserHabits settles every expired solo habit of one user.
func (s *HabitService) SettleUserHabits(userID string, now time.Time) ([]models.UserHabit, error) {
	today := localDate(now, s.Loc)

	var expired []models.UserHabit
	err := s.DB.
		Where("user_id = ? AND status = ? AND duel_id IS NULL AND period_end < ?",
			userID, models.HabitStatusActive, today).
		Find(&expired).Error
	if err != nil {
		return nil, err
	}

	var settled []models.UserHabit
	for _, h := range expired {
		out, changed, err := s.SettleHabit(h.ID, now)
		if err != nil {
			return settled, err
		}
		if changed {
			settled = append(settled, *out)
		}
	}
	return settled, nil
}

// HabitCreateInput is shared by habit creation and update.
type HabitCreateInput struct {
	SourceHabitID *string `json:"source_habit_id,omitempty"`
	Title         string  `json:"title"`
	Method        string  `json:"method"`
	DaysOfWeek    []int   `json:"days_of_week"`
	PeriodStart   string  `json:"period_start"`
	PeriodEnd     string  `json:"period_end"`
	DeadlineLocal string  `json:"deadline_local"`
	Difficulty    int     `json:"difficulty"`
}

func (s *HabitService) validateHabitInput(in *HabitCreateInput) (int, error) {
	if in.Title == "" {
		return 0, validationErr("title", "title is required")
	}
	if in.Method != models.MethodPhoto && in.Method != models.MethodText {
		return 0, validationErr("method", "method must be photo or text")
	}
	if in.Difficulty < 1 || in.Difficulty > 5 {
		return 0, validationErr("difficulty", "difficulty must be between 1 and 5")
	}
	mask := EncodeWeekdays(in.DaysOfWeek)
	if mask == 0 {
		return 0, validationErr("days_of_week", "at least one weekday is required")
	}
	start, err := parseISODate(in.PeriodStart, s.Loc)
	if err != nil {
		return 0, validationErr("period_start", "invalid start date")
	}
	end, err := parseISODate(in.PeriodEnd, s.Loc)
	if err != nil {
		return 0, validationErr("period_end", "invalid end date")
	}
	if start.After(end) {
		return 0, validationErr("period_start", "start date cannot be after end date")
	}
	if _, err := deadlineInstant(in.PeriodStart, in.DeadlineLocal, s.Loc); err != nil {
		return 0, validationErr("deadline_local", "invalid deadline time")
	}
	return mask, nil
}

// CreateHabit creates a solo habit, optionally copying another user's
// template; without a source a fresh template is created first so the habit
// becomes challengeable.
func (s *HabitService) CreateHabit(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var in HabitCreateInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	mask, err := s.validateHabitInput(&in)
	if err != nil {
		return httpError(c, err)
	}

	var habit models.UserHabit
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		sourceID := in.SourceHabitID
		if sourceID != nil {
			var src models.Habit
			if err := tx.First(&src, "id = ?", *sourceID).Error; err != nil {
				if err == gorm.ErrRecordNotFound {
					return fmt.Errorf("source habit: %w", ErrNotFound)
				}
				return err
			}
		} else {
			template := models.Habit{
				ID:          uuid.NewString(),
				OwnerUserID: userID,
				Title:       in.Title,
			}
			if err := tx.Create(&template).Error; err != nil {
				return err
			}
			sourceID = &template.ID
		}

		habit = models.UserHabit{
			ID:            uuid.NewString(),
			UserID:        userID,
			SourceHabitID: sourceID,
			Title:         in.Title,
			Method:        in.Method,
			DeadlineLocal: in.DeadlineLocal,
			DaysOfWeek:    mask,
			PeriodStart:   in.PeriodStart,
			PeriodEnd:     in.PeriodEnd,
			IsActive:      true,
			Difficulty:    in.Difficulty,
			Status:        models.HabitStatusActive,
		}
		return tx.Create(&habit).Error
	})
	if err != nil {
		return httpError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(habit)
}

// UpdateHabit edits an active habit owned by the caller. Terminal habits are
// immutable.
func (s *HabitService) UpdateHabit(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	habitID := c.Params("id")

	var in HabitCreateInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	mask, err := s.validateHabitInput(&in)
	if err != nil {
		return httpError(c, err)
	}

	var habit models.UserHabit
	if err := s.DB.Where("id = ? AND user_id = ?", habitID, userID).First(&habit).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return httpError(c, ErrNotFound)
		}
		return httpError(c, err)
	}
	if habit.Status != models.HabitStatusActive {
		return httpError(c, fmt.Errorf("habit already %s: %w", habit.Status, ErrInvalidState))
	}

	habit.Title = in.Title
	habit.Method = in.Method
	habit.DaysOfWeek = mask
	habit.PeriodStart = in.PeriodStart
	habit.PeriodEnd = in.PeriodEnd
	habit.DeadlineLocal = in.DeadlineLocal
	habit.Difficulty = in.Difficulty

	if err := s.DB.Save(&habit).Error; err != nil {
		return httpError(c, err)
	}
	return c.JSON(habit)
}

// CancelHabit cancels an active solo habit. Duel habits leave via give-up.
func (s *HabitService) CancelHabit(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	habitID := c.Params("id")

	var habit models.UserHabit
	if err := s.DB.Where("id = ? AND user_id = ?", habitID, userID).First(&habit).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return httpError(c, ErrNotFound)
		}
		return httpError(c, err)
	}
	if habit.Status != models.HabitStatusActive {
		return httpError(c, fmt.Errorf("habit already %s: %w", habit.Status, ErrInvalidState))
	}
	if habit.DuelID != nil {
		return httpError(c, fmt.Errorf("duel habit cannot be canceled directly: %w", ErrInvalidState))
	}

	now := time.Now().In(s.Loc)
	if err := s.DB.Model(&habit).Updates(map[string]interface{}{
		"status":       models.HabitStatusCanceled,
		"is_active":    false,
		"completed_at": now,
	}).Error; err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"message": "OK", "habit_id": habit.ID})
}

// SearchHabits finds other users' active solo habits by title.
func (s *HabitService) SearchHabits(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	q := c.Query("q")

	query := s.DB.Model(&models.UserHabit{}).
		Where("user_id <> ? AND is_active = ? AND duel_id IS NULL", userID, true)
	if q != "" {
		query = query.Where("title LIKE ?", "%"+q+"%")
	}

	var habits []models.UserHabit
	if err := query.Limit(50).Find(&habits).Error; err != nil {
		return httpError(c, err)
	}
	return c.JSON(habits)
}

// GetMyCompletedHabits lists the caller's finished habits, newest first.
func (s *HabitService) GetMyCompletedHabits(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var habits []models.UserHabit
	if err := s.DB.
		Where("user_id = ? AND status IN ?", userID,
			[]string{models.HabitStatusCompletedSuccess, models.HabitStatusCompletedFail}).
		Order("completed_at DESC").
		Find(&habits).Error; err != nil {
		return httpError(c, err)
	}
	return c.JSON(habits)
}

// SettleMyHabits is the explicit "settle my habits" operation.
func (s *HabitService) SettleMyHabits(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	settled, err := s.SettleUserHabits(userID, time.Now())
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"settled_count": len(settled), "settled": settled})
}

// GetHomeSummary backs the home screen: today's counters plus today's solo and
// duel habit lists.
func (s *HabitService) GetHomeSummary(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	now := time.Now().In(s.Loc)
	today := now.Format(isoDate)
	mask := weekdayBit(now)

	var todayCertCount int64
	if err := s.DB.Model(&models.Certification{}).
		Where("user_id = ? AND status = ? AND cert_date = ?", userID, models.CertStatusSuccess, today).
		Count(&todayCertCount).Error; err != nil {
		return httpError(c, err)
	}

	var duelCount int64
	if err := s.DB.Model(&models.Duel{}).
		Where("status = ? AND start_date <= ? AND end_date >= ?", models.DuelStatusActive, today, today).
		Where("owner_user_id = ? OR challenger_user_id = ?", userID, userID).
		Count(&duelCount).Error; err != nil {
		return httpError(c, err)
	}

	soloScope := s.DB.Model(&models.UserHabit{}).
		Where("user_id = ? AND is_active = ? AND duel_id IS NULL", userID, true)

	var soloCount int64
	if err := soloScope.Session(&gorm.Session{}).Count(&soloCount).Error; err != nil {
		return httpError(c, err)
	}

	var todayHabits []models.UserHabit
	if err := soloScope.Session(&gorm.Session{}).
		Where("period_start <= ? AND period_end >= ?", today, today).
		Where("(days_of_week & ?) <> 0", mask).
		Find(&todayHabits).Error; err != nil {
		return httpError(c, err)
	}

	var fightingHabits []models.UserHabit
	if err := s.DB.Model(&models.UserHabit{}).
		Joins("JOIN duels ON duels.id = user_habits.duel_id").
		Where("user_habits.user_id = ? AND user_habits.is_active = ?", userID, true).
		Where("duels.status = ? AND duels.start_date <= ? AND duels.end_date >= ?",
			models.DuelStatusActive, today, today).
		Where("(duels.days_of_week & ?) <> 0", mask).
		Find(&fightingHabits).Error; err != nil {
		return httpError(c, err)
	}

	return c.JSON(fiber.Map{
		"today_cert_count":   todayCertCount,
		"current_duel_count": duelCount,
		"solo_habit_count":   soloCount,
		"today_habits":       todayHabits,
		"fighting_habits":    fightingHabits,
	})
}
