package services

import (
	"fmt"
	"time"

	"habit-duel-service/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ExchangeService manages duel challenges: a user proposes swapping habits
// with a template's owner; accepting goes through DuelService.
type ExchangeService struct {
	DB       *gorm.DB
	Loc      *time.Location
	Notifier *NotificationService
}

func NewExchangeService(db *gorm.DB, loc *time.Location, notifier *NotificationService) *ExchangeService {
	return &ExchangeService{DB: db, Loc: loc, Notifier: notifier}
}

type exchangeCreateInput struct {
	TargetHabitID string `json:"target_habit_id"`
	Method        string `json:"method"`
	Deadline      string `json:"deadline"`
	Weekdays      []int  `json:"weekdays"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	Difficulty    int    `json:"difficulty"`
}

// CreateExchangeRequest sends a pending challenge to the owner of a habit
// template. At least three weekdays are required so a duel schedule always has
// a meaningful cadence.
func (s *ExchangeService) CreateExchangeRequest(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var in exchangeCreateInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	var habit models.Habit
	if err := s.DB.First(&habit, "id = ?", in.TargetHabitID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return httpError(c, fmt.Errorf("target habit: %w", ErrNotFound))
		}
		return httpError(c, err)
	}
	if habit.OwnerUserID == userID {
		return httpError(c, validationErr("target_habit_id", "cannot challenge your own habit"))
	}

	seen := map[int]bool{}
	distinct := 0
	for _, d := range in.Weekdays {
		if d < 1 || d > 7 {
			return httpError(c, validationErr("weekdays", "weekday values must be 1 (Mon) through 7 (Sun)"))
		}
		if !seen[d] {
			seen[d] = true
			distinct++
		}
	}
	if distinct < 3 {
		return httpError(c, validationErr("weekdays", "select at least three weekdays"))
	}
	mask := EncodeWeekdays(in.Weekdays)

	start, err := parseISODate(in.StartDate, s.Loc)
	if err != nil {
		return httpError(c, validationErr("start_date", "invalid start date"))
	}
	end, err := parseISODate(in.EndDate, s.Loc)
	if err != nil {
		return httpError(c, validationErr("end_date", "invalid end date"))
	}
	if start.After(end) {
		return httpError(c, validationErr("start_date", "start date cannot be after end date"))
	}
	if in.Difficulty < 1 || in.Difficulty > 5 {
		return httpError(c, validationErr("difficulty", "difficulty must be between 1 and 5"))
	}
	if in.Method != models.MethodPhoto && in.Method != models.MethodText {
		return httpError(c, validationErr("method", "method must be photo or text"))
	}
	if _, err := deadlineInstant(in.StartDate, in.Deadline, s.Loc); err != nil {
		return httpError(c, validationErr("deadline", "invalid deadline time"))
	}

	var pending int64
	if err := s.DB.Model(&models.ExchangeRequest{}).
		Where("from_user_id = ? AND to_user_id = ? AND target_habit_id = ? AND status = ?",
			userID, habit.OwnerUserID, habit.ID, models.ExchangeStatusPending).
		Count(&pending).Error; err != nil {
		return httpError(c, err)
	}
	if pending > 0 {
		return httpError(c, fmt.Errorf("a pending request for this habit already exists: %w", ErrInvalidState))
	}

	req := models.ExchangeRequest{
		ID:            uuid.NewString(),
		FromUserID:    userID,
		ToUserID:      habit.OwnerUserID,
		TargetHabitID: habit.ID,
		Method:        in.Method,
		DeadlineLocal: in.Deadline,
		DaysOfWeek:    mask,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		Difficulty:    in.Difficulty,
		Status:        models.ExchangeStatusPending,
	}
	if err := s.DB.Create(&req).Error; err != nil {
		return httpError(c, err)
	}

	s.Notifier.Notify(habit.OwnerUserID, models.NotificationChallenge,
		habit.Title, "Someone challenged you to a duel.",
		fmt.Sprintf("/exchange-requests/%s", req.ID))

	return c.Status(fiber.StatusCreated).JSON(req)
}

// GetIncomingRequests lists pending challenges addressed to the caller.
func (s *ExchangeService) GetIncomingRequests(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var requests []models.ExchangeRequest
	if err := s.DB.
		Where("to_user_id = ? AND status = ?", userID, models.ExchangeStatusPending).
		Order("created_at DESC").
		Find(&requests).Error; err != nil {
		return httpError(c, err)
	}
	return c.JSON(requests)
}

// RejectExchangeRequest declines a pending challenge.
func (s *ExchangeService) RejectExchangeRequest(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	requestID := c.Params("id")

	var req models.ExchangeRequest
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&req, "id = ?", requestID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("exchange request %s: %w", requestID, ErrNotFound)
			}
			return err
		}
		if req.ToUserID != userID {
			return fmt.Errorf("exchange request is not addressed to you: %w", ErrForbidden)
		}
		if req.Status != models.ExchangeStatusPending {
			return fmt.Errorf("exchange request already %s: %w", req.Status, ErrInvalidState)
		}

		now := time.Now().In(s.Loc)
		req.Status = models.ExchangeStatusRejected
		req.DecidedAt = &now
		return tx.Save(&req).Error
	})
	if err != nil {
		return httpError(c, err)
	}

	s.Notifier.Notify(req.FromUserID, models.NotificationChallengeRejected,
		"Challenge declined", "Your duel challenge was declined.",
		fmt.Sprintf("/exchange-requests/%s", req.ID))

	return c.JSON(fiber.Map{"message": "OK", "request_id": req.ID})
}
