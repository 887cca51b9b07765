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

// DuelFailLimit is the number of fail certifications a participant may
// accumulate and still stay in the duel. The fourth fail forfeits.
const DuelFailLimit = 3

// DuelService owns the duel lifecycle: creation with stake escrow, the lazy
// resolution state machine, and voluntary give-up. Resolution is re-run on
// every duel read and after every duel-scoped certification; a decided duel
// can therefore read as active until its next access, which is a latency
// window, not a correctness problem, because resolution is idempotent.
type DuelService struct {
	DB       *gorm.DB
	Loc      *time.Location
	Notifier *NotificationService
}

func NewDuelService(db *gorm.DB, loc *time.Location, notifier *NotificationService) *DuelService {
	return &DuelService{DB: db, Loc: loc, Notifier: notifier}
}

func duelCertCount(tx *gorm.DB, duelID, userID, status string) (int64, error) {
	var count int64
	err := tx.Model(&models.Certification{}).
		Where("duel_id = ? AND user_id = ? AND status = ?", duelID, userID, status).
		Count(&count).Error
	return count, err
}

// finalizeHabit moves a duel habit into a terminal status and severs the duel
// link. The duel row keeps the history; the habit side forgets it.
func finalizeHabit(tx *gorm.DB, habit *models.UserHabit, status string, now time.Time) error {
	return tx.Model(&models.UserHabit{}).
		Where("id = ?", habit.ID).
		Updates(map[string]interface{}{
			"status":       status,
			"is_active":    false,
			"completed_at": now,
			"duel_id":      nil,
		}).Error
}

// detachHabit releases a habit from its duel; it continues as a solo habit.
func detachHabit(tx *gorm.DB, habit *models.UserHabit) error {
	return tx.Model(&models.UserHabit{}).
		Where("id = ?", habit.ID).
		Update("duel_id", nil).Error
}

func finishDuel(tx *gorm.DB, d *models.Duel, result string, now time.Time) error {
	d.Status = models.DuelStatusFinished
	d.Result = &result
	d.FinishedAt = &now
	return tx.Model(&models.Duel{}).
		Where("id = ?", d.ID).
		Updates(map[string]interface{}{
			"status":                 models.DuelStatusFinished,
			"result":                 result,
			"finished_at":            now,
			"owner_success_cnt":      d.OwnerSuccessCnt,
			"challenger_success_cnt": d.ChallengerSuccessCnt,
		}).Error
}

// forfeitLoser applies the single-loser transition: the loser's habit is
// finalized as failed (with a terminal fail certification for today unless one
// exists), the survivor's habit detaches and continues solo, and the survivor
// is credited both stakes.
func (s *DuelService) forfeitLoser(tx *gorm.DB, d *models.Duel, loser, survivor *models.UserHabit, reason string, now time.Time) error {
	today := localDate(now, s.Loc)

	exists, err := certExistsForDay(tx, loser.UserID, loser.ID, today)
	if err != nil {
		return err
	}
	if !exists {
		cert := models.Certification{
			ID:          uuid.NewString(),
			UserID:      loser.UserID,
			UserHabitID: &loser.ID,
			DuelID:      &d.ID,
			Ts:          now,
			CertDate:    today,
			Method:      loser.Method,
			Status:      models.CertStatusFail,
			FailReason:  &reason,
		}
		if err := tx.Create(&cert).Error; err != nil {
			return err
		}
	}

	if err := finalizeHabit(tx, loser, models.HabitStatusCompletedFail, now); err != nil {
		return err
	}
	if err := detachHabit(tx, survivor); err != nil {
		return err
	}

	// Refund of the survivor's own stake plus transfer of the loser's.
	payout := int64(2 * d.Difficulty)
	if err := applyBalanceChange(tx, survivor.UserID, payout, models.BalanceReasonDuelPayout, "duel", d.ID); err != nil {
		return fmt.Errorf("duel %s payout: %w", d.ID, err)
	}

	result := models.DuelResultForfeitChallenger
	if loser.UserID == d.OwnerUserID {
		result = models.DuelResultForfeitOwner
	}
	return finishDuel(tx, d, result, now)
}

// Resolve runs the duel state machine once, inside a single transaction that
// re-reads the duel and re-checks that it is still active, so two concurrent
// triggers cannot both apply a transition. Priority order: double fail-limit
// forfeiture, single fail-limit forfeiture, period expiry, otherwise no-op.
//
// Stake accounting: both stakes were debited at creation, so the pot is
// 2 x difficulty. A single forfeit pays the pot to the survivor; period expiry
// pays each side its stake back plus the counterpart amount; a double forfeit
// pays nobody and the pot leaves circulation. That destruction is the designed
// penalty, not an accounting bug.
func (s *DuelService) Resolve(duelID string, now time.Time) (*models.Duel, error) {
	now = now.In(s.Loc)
	today := now.Format(isoDate)

	var out models.Duel
	var transition string

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var d models.Duel
		if err := lockForUpdate(tx).First(&d, "id = ?", duelID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("duel %s: %w", duelID, ErrNotFound)
			}
			return err
		}

		if d.Status != models.DuelStatusActive {
			// Already decided by a concurrent trigger or an earlier access.
			out = d
			return nil
		}

		var habits []models.UserHabit
		if err := tx.Where("duel_id = ?", d.ID).Find(&habits).Error; err != nil {
			return err
		}
		var ownerHabit, challengerHabit *models.UserHabit
		for i := range habits {
			switch habits[i].UserID {
			case d.OwnerUserID:
				ownerHabit = &habits[i]
			case d.ChallengerUserID:
				challengerHabit = &habits[i]
			}
		}
		if ownerHabit == nil || challengerHabit == nil {
			return fmt.Errorf("active duel %s has %d linked habits: %w", d.ID, len(habits), ErrInternalConsistency)
		}

		ownerFails, err := duelCertCount(tx, d.ID, d.OwnerUserID, models.CertStatusFail)
		if err != nil {
			return err
		}
		challengerFails, err := duelCertCount(tx, d.ID, d.ChallengerUserID, models.CertStatusFail)
		if err != nil {
			return err
		}
		ownerSuccesses, err := duelCertCount(tx, d.ID, d.OwnerUserID, models.CertStatusSuccess)
		if err != nil {
			return err
		}
		challengerSuccesses, err := duelCertCount(tx, d.ID, d.ChallengerUserID, models.CertStatusSuccess)
		if err != nil {
			return err
		}
		d.OwnerSuccessCnt = int(ownerSuccesses)
		d.ChallengerSuccessCnt = int(challengerSuccesses)

		switch {
		case ownerFails > DuelFailLimit && challengerFails > DuelFailLimit:
			// Both broke the limit: both habits fail and both stakes are
			// forfeited to nobody.
			if err := finalizeHabit(tx, ownerHabit, models.HabitStatusCompletedFail, now); err != nil {
				return err
			}
			if err := finalizeHabit(tx, challengerHabit, models.HabitStatusCompletedFail, now); err != nil {
				return err
			}
			if err := finishDuel(tx, &d, models.DuelResultDraw, now); err != nil {
				return err
			}
			transition = "double_forfeit"

		case ownerFails > DuelFailLimit:
			if err := s.forfeitLoser(tx, &d, ownerHabit, challengerHabit, models.FailReasonFailLimitExceeded, now); err != nil {
				return err
			}
			transition = "forfeit"

		case challengerFails > DuelFailLimit:
			if err := s.forfeitLoser(tx, &d, challengerHabit, ownerHabit, models.FailReasonFailLimitExceeded, now); err != nil {
				return err
			}
			transition = "forfeit"

		case today > d.EndDate:
			// Survived to the end on both sides. Duel habits use "still alive
			// at the deadline" semantics, so no 70% ratio check here.
			if err := finalizeHabit(tx, ownerHabit, models.HabitStatusCompletedSuccess, now); err != nil {
				return err
			}
			if err := finalizeHabit(tx, challengerHabit, models.HabitStatusCompletedSuccess, now); err != nil {
				return err
			}
			refund := int64(2 * d.Difficulty)
			if err := applyBalanceChange(tx, d.OwnerUserID, refund, models.BalanceReasonDuelRefund, "duel", d.ID); err != nil {
				return fmt.Errorf("duel %s owner refund: %w", d.ID, err)
			}
			if err := applyBalanceChange(tx, d.ChallengerUserID, refund, models.BalanceReasonDuelRefund, "duel", d.ID); err != nil {
				return fmt.Errorf("duel %s challenger refund: %w", d.ID, err)
			}
			if err := finishDuel(tx, &d, models.DuelResultDraw, now); err != nil {
				return err
			}
			transition = "expired_draw"

		default:
			// Still running; just keep the success counters fresh.
			if err := tx.Model(&models.Duel{}).Where("id = ?", d.ID).
				Updates(map[string]interface{}{
					"owner_success_cnt":      d.OwnerSuccessCnt,
					"challenger_success_cnt": d.ChallengerSuccessCnt,
				}).Error; err != nil {
				return err
			}
		}

		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	if transition != "" {
		s.notifyFinished(&out)
	}
	return &out, nil
}

func (s *DuelService) notifyFinished(d *models.Duel) {
	if d.Result == nil {
		return
	}
	body := "The duel ended in a draw."
	switch *d.Result {
	case models.DuelResultForfeitOwner:
		body = "The duel ended by forfeit."
	case models.DuelResultForfeitChallenger:
		body = "The duel ended by forfeit."
	}
	deeplink := fmt.Sprintf("/duels/%s", d.ID)
	s.Notifier.Notify(d.OwnerUserID, models.NotificationDuelResult, d.HabitTitle, body, deeplink)
	s.Notifier.Notify(d.ChallengerUserID, models.NotificationDuelResult, d.HabitTitle, body, deeplink)
}

// GiveUp is voluntary forfeiture by a participant. Same single-loser
// transition as a fail-limit forfeit, with the actor as the loser.
func (s *DuelService) GiveUp(duelID, actorID string, now time.Time) (*models.Duel, error) {
	now = now.In(s.Loc)

	var out models.Duel
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var d models.Duel
		if err := lockForUpdate(tx).First(&d, "id = ?", duelID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("duel %s: %w", duelID, ErrNotFound)
			}
			return err
		}

		if actorID != d.OwnerUserID && actorID != d.ChallengerUserID {
			return fmt.Errorf("not a participant of duel %s: %w", duelID, ErrForbidden)
		}
		if d.Status != models.DuelStatusActive {
			return fmt.Errorf("duel already %s: %w", d.Status, ErrInvalidState)
		}

		var habits []models.UserHabit
		if err := tx.Where("duel_id = ?", d.ID).Find(&habits).Error; err != nil {
			return err
		}
		var loser, survivor *models.UserHabit
		for i := range habits {
			if habits[i].UserID == actorID {
				loser = &habits[i]
			} else {
				survivor = &habits[i]
			}
		}
		if loser == nil || survivor == nil {
			return fmt.Errorf("active duel %s has %d linked habits: %w", d.ID, len(habits), ErrInternalConsistency)
		}

		if err := s.forfeitLoser(tx, &d, loser, survivor, models.FailReasonGiveUp, now); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyFinished(&out)
	return &out, nil
}

// DuelFromExchangeInput carries the schedule the owner confirmed when
// accepting a challenge.
type DuelFromExchangeInput struct {
	ExchangeRequestID   string `json:"exchange_request_id"`
	OpponentUserHabitID string `json:"opponent_user_habit_id"`
	Method              string `json:"method"`
	DeadlineLocal       string `json:"deadline_local"`
	DaysOfWeek          []int  `json:"days_of_week"`
	StartDate           string `json:"start_date"`
	EndDate             string `json:"end_date"`
	Difficulty          int    `json:"difficulty"`
}

// CreateFromExchange accepts a pending exchange request addressed to the
// actor and turns it into an active duel with two linked habits: each side
// takes on the other's habit. Both stakes are escrowed in the same transaction
// that persists the duel; if either side cannot cover the stake, nothing is
// created.
func (s *DuelService) CreateFromExchange(actorID string, in DuelFromExchangeInput, now time.Time) (*models.Duel, error) {
	now = now.In(s.Loc)

	if in.Method != models.MethodPhoto && in.Method != models.MethodText {
		return nil, validationErr("method", "method must be photo or text")
	}
	if in.Difficulty < 1 || in.Difficulty > 5 {
		return nil, validationErr("difficulty", "difficulty must be between 1 and 5")
	}
	mask := EncodeWeekdays(in.DaysOfWeek)
	if mask == 0 {
		return nil, validationErr("days_of_week", "at least one weekday is required")
	}
	start, err := parseISODate(in.StartDate, s.Loc)
	if err != nil {
		return nil, validationErr("start_date", "invalid start date")
	}
	end, err := parseISODate(in.EndDate, s.Loc)
	if err != nil {
		return nil, validationErr("end_date", "invalid end date")
	}
	if start.After(end) {
		return nil, validationErr("start_date", "start date cannot be after end date")
	}
	if _, err := deadlineInstant(in.StartDate, in.DeadlineLocal, s.Loc); err != nil {
		return nil, validationErr("deadline_local", "invalid deadline time")
	}

	var duel models.Duel
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		var ex models.ExchangeRequest
		if err := lockForUpdate(tx).First(&ex, "id = ?", in.ExchangeRequestID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("exchange request %s: %w", in.ExchangeRequestID, ErrNotFound)
			}
			return err
		}
		if ex.ToUserID != actorID {
			return fmt.Errorf("exchange request is not addressed to you: %w", ErrForbidden)
		}
		if ex.Status != models.ExchangeStatusPending {
			return fmt.Errorf("exchange request already %s: %w", ex.Status, ErrInvalidState)
		}

		var targetHabit models.Habit
		if err := tx.First(&targetHabit, "id = ?", ex.TargetHabitID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("target habit: %w", ErrNotFound)
			}
			return err
		}

		var opponentHabit models.UserHabit
		if err := tx.First(&opponentHabit, "id = ?", in.OpponentUserHabitID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return validationErr("opponent_user_habit_id", "opponent habit not found")
			}
			return err
		}
		if opponentHabit.UserID != ex.FromUserID {
			return validationErr("opponent_user_habit_id", "habit does not belong to the challenger")
		}

		duel = models.Duel{
			ID:               uuid.NewString(),
			OwnerUserID:      ex.ToUserID,
			ChallengerUserID: ex.FromUserID,
			HabitTitle:       fmt.Sprintf("%s vs %s", targetHabit.Title, opponentHabit.Title),
			Method:           in.Method,
			DeadlineLocal:    in.DeadlineLocal,
			DaysOfWeek:       mask,
			StartDate:        in.StartDate,
			EndDate:          in.EndDate,
			Difficulty:       in.Difficulty,
			OwnerStake:       in.Difficulty,
			ChallengerStake:  in.Difficulty,
			Status:           models.DuelStatusActive,
		}

		// Escrow before the duel exists: if either debit fails, the whole
		// creation rolls back.
		stake := int64(in.Difficulty)
		if err := applyBalanceChange(tx, ex.ToUserID, -stake, models.BalanceReasonDuelStake, "duel", duel.ID); err != nil {
			return err
		}
		if err := applyBalanceChange(tx, ex.FromUserID, -stake, models.BalanceReasonDuelStake, "duel", duel.ID); err != nil {
			return err
		}

		if err := tx.Create(&duel).Error; err != nil {
			return err
		}

		// Each participant takes over the other's habit for the duel window.
		ownerDuelHabit := models.UserHabit{
			ID:            uuid.NewString(),
			UserID:        ex.ToUserID,
			SourceHabitID: opponentHabit.SourceHabitID,
			Title:         opponentHabit.Title,
			Method:        in.Method,
			DeadlineLocal: in.DeadlineLocal,
			DaysOfWeek:    mask,
			PeriodStart:   in.StartDate,
			PeriodEnd:     in.EndDate,
			IsActive:      true,
			Difficulty:    in.Difficulty,
			Status:        models.HabitStatusActive,
			DuelID:        &duel.ID,
		}
		challengerDuelHabit := models.UserHabit{
			ID:            uuid.NewString(),
			UserID:        ex.FromUserID,
			SourceHabitID: &targetHabit.ID,
			Title:         targetHabit.Title,
			Method:        in.Method,
			DeadlineLocal: in.DeadlineLocal,
			DaysOfWeek:    mask,
			PeriodStart:   in.StartDate,
			PeriodEnd:     in.EndDate,
			IsActive:      true,
			Difficulty:    in.Difficulty,
			Status:        models.HabitStatusActive,
			DuelID:        &duel.ID,
		}
		if err := tx.Create(&ownerDuelHabit).Error; err != nil {
			return err
		}
		if err := tx.Create(&challengerDuelHabit).Error; err != nil {
			return err
		}

		return tx.Delete(&ex).Error
	})
	if err != nil {
		return nil, err
	}

	s.Notifier.Notify(duel.ChallengerUserID, models.NotificationChallengeAccepted,
		duel.HabitTitle, "Your challenge was accepted. The duel is on.",
		fmt.Sprintf("/duels/%s", duel.ID))

	return &duel, nil
}

// --- Fiber handlers ---

// ActiveDuelItem is the card shown on the duel list screen.
type ActiveDuelItem struct {
	DuelID          string  `json:"duel_id"`
	RivalID         string  `json:"rival_id"`
	RivalNickname   string  `json:"rival_nickname"`
	RivalPicture    *string `json:"rival_profile_picture,omitempty"`
	Days            int     `json:"days"`
	MyHabitTitle    string  `json:"my_habit_title"`
	RivalHabitTitle string  `json:"rival_habit_title"`
}

// GetActiveDuels lists the caller's running duels, lazily resolving each one
// first so decided duels drop off the list.
func (s *DuelService) GetActiveDuels(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	now := time.Now().In(s.Loc)
	today, _ := parseISODate(now.Format(isoDate), s.Loc)

	var duels []models.Duel
	if err := s.DB.
		Where("status = ? AND (owner_user_id = ? OR challenger_user_id = ?)",
			models.DuelStatusActive, userID, userID).
		Find(&duels).Error; err != nil {
		return httpError(c, err)
	}

	items := make([]ActiveDuelItem, 0, len(duels))
	for _, d := range duels {
		resolved, err := s.Resolve(d.ID, now)
		if err != nil {
			log.Printf("[Duel] lazy resolution failed for %s: %v", d.ID, err)
			continue
		}
		if resolved.Status != models.DuelStatusActive {
			continue
		}

		var habits []models.UserHabit
		if err := s.DB.Where("duel_id = ?", d.ID).Find(&habits).Error; err != nil || len(habits) < 2 {
			continue
		}
		var mine, rivals *models.UserHabit
		for i := range habits {
			if habits[i].UserID == userID {
				mine = &habits[i]
			} else {
				rivals = &habits[i]
			}
		}
		if mine == nil || rivals == nil {
			continue
		}

		var rival models.User
		if err := s.DB.First(&rival, "id = ?", rivals.UserID).Error; err != nil {
			continue
		}

		days := 1
		if start, err := parseISODate(d.StartDate, s.Loc); err == nil {
			days = int(today.Sub(start).Hours()/24) + 1
			if days < 1 {
				days = 1
			}
		}

		items = append(items, ActiveDuelItem{
			DuelID:          d.ID,
			RivalID:         rival.ID,
			RivalNickname:   rival.Nickname,
			RivalPicture:    rival.ProfilePicture,
			Days:            days,
			MyHabitTitle:    mine.Title,
			RivalHabitTitle: rivals.Title,
		})
	}

	return c.JSON(items)
}

// GetDuelConversation returns the duel's ordered certification history plus a
// remaining-fail summary per side, resolving lazily first.
func (s *DuelService) GetDuelConversation(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	duelID := c.Params("id")

	duel, err := s.Resolve(duelID, time.Now())
	if err != nil {
		return httpError(c, err)
	}
	if userID != duel.OwnerUserID && userID != duel.ChallengerUserID {
		return httpError(c, ErrForbidden)
	}

	var certs []models.Certification
	if err := s.DB.Where("duel_id = ?", duelID).
		Order("ts ASC").
		Find(&certs).Error; err != nil {
		return httpError(c, err)
	}

	ownerFails, err := duelCertCount(s.DB, duelID, duel.OwnerUserID, models.CertStatusFail)
	if err != nil {
		return httpError(c, err)
	}
	challengerFails, err := duelCertCount(s.DB, duelID, duel.ChallengerUserID, models.CertStatusFail)
	if err != nil {
		return httpError(c, err)
	}

	remaining := func(fails int64) int64 {
		if fails >= DuelFailLimit {
			return 0
		}
		return DuelFailLimit - fails
	}

	return c.JSON(fiber.Map{
		"duel":           duel,
		"certifications": certs,
		"fail_summary": fiber.Map{
			"fail_limit":                 DuelFailLimit,
			"owner_fails":                ownerFails,
			"challenger_fails":           challengerFails,
			"owner_remaining_fails":      remaining(ownerFails),
			"challenger_remaining_fails": remaining(challengerFails),
		},
	})
}

// GiveUpDuel is the POST /duels/:id/give-up handler.
func (s *DuelService) GiveUpDuel(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	duelID := c.Params("id")

	duel, err := s.GiveUp(duelID, userID, time.Now())
	if err != nil {
		return httpError(c, err)
	}

	return c.JSON(fiber.Map{"message": "OK", "duel_id": duel.ID, "result": duel.Result})
}

// CreateDuelFromExchange is the POST /duels/from-exchange handler.
func (s *DuelService) CreateDuelFromExchange(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var in DuelFromExchangeInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	duel, err := s.CreateFromExchange(userID, in, time.Now())
	if err != nil {
		return httpError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"duel_id": duel.ID})
}
