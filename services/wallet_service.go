package services

import (
	"fmt"

	"habit-duel-service/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WalletService struct {
	DB *gorm.DB
}

func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{DB: db}
}

// applyBalanceChange moves coins for one user inside the caller's transaction:
// read-modify-write on the locked user row plus a ledger append. A debit that
// would go negative fails with ErrInsufficientFunds and rolls the transaction
// back with it.
//
// Every hb_balance mutation in this service goes through here — shop and
// wallet top-ups live in other services and never touch duel escrow.
func applyBalanceChange(tx *gorm.DB, userID string, delta int64, reason, refType, refID string) error {
	var user models.User
	if err := lockForUpdate(tx).First(&user, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		return err
	}

	next := user.HbBalance + delta
	if next < 0 {
		if delta >= 0 {
			// A credit can never push a non-negative balance below zero.
			return fmt.Errorf("balance %d + credit %d went negative: %w", user.HbBalance, delta, ErrInternalConsistency)
		}
		return fmt.Errorf("balance %d cannot cover %d: %w", user.HbBalance, -delta, ErrInsufficientFunds)
	}

	if err := tx.Model(&models.User{}).Where("id = ?", userID).
		Update("hb_balance", next).Error; err != nil {
		return err
	}

	entry := models.BalanceEntry{
		ID:      uuid.NewString(),
		UserID:  userID,
		Delta:   delta,
		Reason:  reason,
		RefType: refType,
		RefID:   refID,
	}
	return tx.Create(&entry).Error
}

// ReplayBalance re-derives a user's balance by summing ledger deltas.
// Used by tests and the integrity endpoint to audit the materialized value.
func (s *WalletService) ReplayBalance(userID string) (int64, error) {
	var sum *int64
	err := s.DB.Model(&models.BalanceEntry{}).
		Where("user_id = ?", userID).
		Select("SUM(delta)").
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

// GetWallet returns the caller's current balance.
func (s *WalletService) GetWallet(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return httpError(c, ErrNotFound)
		}
		return httpError(c, err)
	}

	return c.JSON(fiber.Map{"hb_balance": user.HbBalance})
}

// GetLedger returns the caller's balance history, newest first.
func (s *WalletService) GetLedger(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var entries []models.BalanceEntry
	if err := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(100).
		Find(&entries).Error; err != nil {
		return httpError(c, err)
	}

	return c.JSON(entries)
}

// AuditWallet compares the materialized balance against a ledger replay.
func (s *WalletService) AuditWallet(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return httpError(c, ErrNotFound)
		}
		return httpError(c, err)
	}

	replayed, err := s.ReplayBalance(userID)
	if err != nil {
		return httpError(c, err)
	}

	return c.JSON(fiber.Map{
		"hb_balance": user.HbBalance,
		"replayed":   replayed,
		"consistent": replayed == user.HbBalance,
	})
}
