package services

import (
	"fmt"
	"time"

	"habit-duel-service/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Attendance rewards: +1 per daily check-in, +5 extra on the 7th consecutive
// day, then the streak starts over.
const (
	attendanceBaseReward  = 1
	attendanceBonusReward = 5
	attendanceCycleLength = 7
)

type AttendanceService struct {
	DB  *gorm.DB
	Loc *time.Location
}

func NewAttendanceService(db *gorm.DB, loc *time.Location) *AttendanceService {
	return &AttendanceService{DB: db, Loc: loc}
}

// CheckInResult mirrors what the check-in screen needs.
type CheckInResult struct {
	AlreadyChecked   bool   `json:"already_checked"`
	TodayReward      int64  `json:"today_reward"`
	Streak           int    `json:"streak"`
	HbBalance        int64  `json:"hb_balance"`
	Today            string `json:"today"`
	IsSevenDayReward bool   `json:"is_seven_day_reward"`
}

// CheckInUser runs one daily check-in: at most one per local day, streak
// continues only from yesterday and wraps after the seventh day. The reward is
// credited through the ledger in the same transaction as the log row.
func (s *AttendanceService) CheckInUser(userID string, now time.Time) (*CheckInResult, error) {
	today := localDate(now, s.Loc)

	var result CheckInResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := lockForUpdate(tx).First(&user, "id = ?", userID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("user %s: %w", userID, ErrNotFound)
			}
			return err
		}

		var existing models.AttendanceLog
		err := tx.Where("user_id = ? AND attend_date = ?", userID, today).First(&existing).Error
		if err == nil {
			result = CheckInResult{
				AlreadyChecked:   true,
				Streak:           existing.Streak,
				HbBalance:        user.HbBalance,
				Today:            today,
				IsSevenDayReward: existing.Streak == attendanceCycleLength,
			}
			return nil
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}

		var last models.AttendanceLog
		newStreak := 1
		err = tx.Where("user_id = ?", userID).
			Order("attend_date DESC").
			First(&last).Error
		if err == nil {
			yesterday := localDate(now.In(s.Loc).AddDate(0, 0, -1), s.Loc)
			if last.AttendDate == yesterday && last.Streak < attendanceCycleLength {
				newStreak = last.Streak + 1
			}
		} else if err != gorm.ErrRecordNotFound {
			return err
		}

		reward := int64(attendanceBaseReward)
		if newStreak == attendanceCycleLength {
			reward += attendanceBonusReward
		}

		log := models.AttendanceLog{
			ID:         uuid.NewString(),
			UserID:     userID,
			AttendDate: today,
			Streak:     newStreak,
			Reward:     reward,
		}
		if err := tx.Create(&log).Error; err != nil {
			return err
		}
		if err := applyBalanceChange(tx, userID, reward, models.BalanceReasonAttendance, "attendance", log.ID); err != nil {
			return err
		}

		result = CheckInResult{
			TodayReward:      reward,
			Streak:           newStreak,
			HbBalance:        user.HbBalance + reward,
			Today:            today,
			IsSevenDayReward: newStreak == attendanceCycleLength,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// CheckIn is the POST /attendance/check-in handler.
func (s *AttendanceService) CheckIn(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	result, err := s.CheckInUser(userID, time.Now())
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(result)
}
