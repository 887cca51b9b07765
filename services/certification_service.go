package services

import (
	"fmt"
	"log"
	"time"

	"habit-duel-service/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CertificationService owns certification recording and the deadline sweep.
// All evaluation methods take the evaluation instant as a parameter instead of
// reading the wall clock, so deadline-boundary behavior is deterministic.
type CertificationService struct {
	DB       *gorm.DB
	Loc      *time.Location
	Notifier *NotificationService
	Duels    *DuelService
}

func NewCertificationService(db *gorm.DB, loc *time.Location, notifier *NotificationService, duels *DuelService) *CertificationService {
	return &CertificationService{DB: db, Loc: loc, Notifier: notifier, Duels: duels}
}

// habitsScheduledToday returns the user's active habits whose weekday bit and
// period cover today, in one query usable on postgres and sqlite alike.
func (s *CertificationService) habitsScheduledToday(db *gorm.DB, userID, today string, mask int) ([]models.UserHabit, error) {
	var habits []models.UserHabit
	err := db.
		Where("user_id = ? AND status = ?", userID, models.HabitStatusActive).
		Where("period_start <= ? AND period_end >= ?", today, today).
		Where("(days_of_week & ?) <> 0", mask).
		Find(&habits).Error
	return habits, err
}

func certExistsForDay(db *gorm.DB, userID, habitID, day string) (bool, error) {
	var count int64
	err := db.Model(&models.Certification{}).
		Where("user_id = ? AND user_habit_id = ? AND cert_date = ?", userID, habitID, day).
		Count(&count).Error
	return count > 0, err
}

// EvaluateOverdue fails every habit of the user that is scheduled today, has
// no certification yet, and whose deadline has passed. It is the sole source
// of automatic failure detection and is safe to run any number of times per
// day: the per-day existence check (backed by the unique index) prevents
// duplicate fail rows.
//
// A now exactly equal to the deadline instant is still on time. Duel-linked
// habits get the duel's grace minutes on top of the deadline.
func (s *CertificationService) EvaluateOverdue(userID string, now time.Time) ([]models.Certification, error) {
	now = now.In(s.Loc)
	today := now.Format(isoDate)
	mask := weekdayBit(now)

	habits, err := s.habitsScheduledToday(s.DB, userID, today, mask)
	if err != nil {
		return nil, err
	}

	var created []models.Certification
	for _, h := range habits {
		exists, err := certExistsForDay(s.DB, userID, h.ID, today)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		deadline, err := deadlineInstant(today, h.DeadlineLocal, s.Loc)
		if err != nil {
			return created, err
		}
		if h.DuelID != nil {
			var duel models.Duel
			if err := s.DB.First(&duel, "id = ?", *h.DuelID).Error; err == nil {
				deadline = deadline.Add(time.Duration(duel.GraceMinutes) * time.Minute)
			}
		}
		if !now.After(deadline) {
			continue
		}

		reason := models.FailReasonDeadlineMissed
		detail := "deadline passed"
		cert := models.Certification{
			ID:          uuid.NewString(),
			UserID:      userID,
			UserHabitID: &h.ID,
			DuelID:      h.DuelID,
			Ts:          now,
			CertDate:    today,
			Method:      h.Method,
			Status:      models.CertStatusFail,
			FailReason:  &reason,
			FailDetail:  &detail,
		}
		if err := s.DB.Create(&cert).Error; err != nil {
			// A concurrent sweep got here first; the unique index holds the
			// one-per-day invariant either way.
			log.Printf("[Sweep] fail cert for habit %s skipped: %v", h.ID, err)
			continue
		}
		created = append(created, cert)

		s.Notifier.Notify(userID, models.NotificationCertFail,
			h.Title, "Today's deadline passed without a certification.",
			fmt.Sprintf("/habits/%s", h.ID))
	}

	return created, nil
}

// EmitDeadlineReminders notifies the user 10 minutes before today's deadline
// for every scheduled habit still missing a certification. One reminder per
// habit per day, deduplicated by key.
func (s *CertificationService) EmitDeadlineReminders(userID string, now time.Time) error {
	now = now.In(s.Loc)
	today := now.Format(isoDate)
	mask := weekdayBit(now)

	habits, err := s.habitsScheduledToday(s.DB, userID, today, mask)
	if err != nil {
		return err
	}

	for _, h := range habits {
		deadline, err := deadlineInstant(today, h.DeadlineLocal, s.Loc)
		if err != nil {
			return err
		}
		windowStart := deadline.Add(-10 * time.Minute)
		if now.Before(windowStart) || !now.Before(deadline) {
			continue
		}

		exists, err := certExistsForDay(s.DB, userID, h.ID, today)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		s.Notifier.NotifyOnce(userID, models.NotificationReminder,
			h.Title,
			fmt.Sprintf("10 minutes left to certify before %s.", h.DeadlineLocal),
			fmt.Sprintf("/habits/%s", h.ID),
			fmt.Sprintf("reminder:%s:%s", h.ID, today))
	}

	return nil
}

// RecordCertificationInput is the payload for a manual success certification.
type RecordCertificationInput struct {
	UserHabitID  string  `json:"user_habit_id"`
	Method       string  `json:"method"`
	TextContent  *string `json:"text_content,omitempty"`
	PhotoAssetID *string `json:"photo_asset_id,omitempty"`
}

// RecordCertification validates and inserts one success certification for the
// caller's habit, dated today in the local zone.
func (s *CertificationService) RecordCertification(userID string, in RecordCertificationInput, now time.Time) (*models.Certification, error) {
	now = now.In(s.Loc)
	today := now.Format(isoDate)

	var habit models.UserHabit
	err := s.DB.Where("id = ? AND user_id = ?", in.UserHabitID, userID).First(&habit).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("habit %s: %w", in.UserHabitID, ErrNotFound)
		}
		return nil, err
	}

	if habit.Status != models.HabitStatusActive {
		return nil, fmt.Errorf("habit already %s: %w", habit.Status, ErrInvalidState)
	}
	if habit.Method != in.Method {
		return nil, validationErr("method", fmt.Sprintf("this habit certifies by %q only", habit.Method))
	}

	switch in.Method {
	case models.MethodText:
		if in.TextContent == nil || *in.TextContent == "" {
			return nil, validationErr("text_content", "text certification requires text_content")
		}
	case models.MethodPhoto:
		if in.PhotoAssetID == nil || *in.PhotoAssetID == "" {
			return nil, validationErr("photo_asset_id", "photo certification requires photo_asset_id")
		}
		var asset models.MediaAsset
		if err := s.DB.Where("id = ? AND user_id = ?", *in.PhotoAssetID, userID).First(&asset).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, validationErr("photo_asset_id", "photo asset not found")
			}
			return nil, err
		}
	default:
		return nil, validationErr("method", "method must be photo or text")
	}

	exists, err := certExistsForDay(s.DB, userID, habit.ID, today)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("already certified today: %w", ErrInvalidState)
	}

	cert := models.Certification{
		ID:           uuid.NewString(),
		UserID:       userID,
		UserHabitID:  &habit.ID,
		DuelID:       habit.DuelID,
		Ts:           now,
		CertDate:     today,
		Method:       in.Method,
		TextContent:  in.TextContent,
		PhotoAssetID: in.PhotoAssetID,
		Status:       models.CertStatusSuccess,
	}
	if err := s.DB.Create(&cert).Error; err != nil {
		return nil, err
	}

	return &cert, nil
}

// CreateCertification is the POST /certifications handler. For duel-linked
// habits it immediately re-runs duel resolution so conversation views observe
// fresh state.
func (s *CertificationService) CreateCertification(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var in RecordCertificationInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	now := time.Now()
	cert, err := s.RecordCertification(userID, in, now)
	if err != nil {
		return httpError(c, err)
	}

	if cert.DuelID != nil {
		if _, err := s.Duels.Resolve(*cert.DuelID, now); err != nil {
			log.Printf("[Duel] resolution after certification failed for %s: %v", *cert.DuelID, err)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(cert)
}

// GetTodayCertifiedHabits returns the habit ids the caller certified
// successfully today.
func (s *CertificationService) GetTodayCertifiedHabits(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	today := localDate(time.Now(), s.Loc)

	var ids []string
	err := s.DB.Model(&models.Certification{}).
		Where("user_id = ? AND status = ? AND cert_date = ?", userID, models.CertStatusSuccess, today).
		Where("user_habit_id IS NOT NULL").
		Distinct().
		Pluck("user_habit_id", &ids).Error
	if err != nil {
		return httpError(c, err)
	}

	return c.JSON(ids)
}
