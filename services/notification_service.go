package services

import (
	"log"

	"habit-duel-service/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationService struct {
	DB *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{DB: db}
}

// Notify inserts a notification row, fire-and-forget: failures are logged and
// never propagate to the event that produced them. The push worker picks the
// row up for delivery.
func (s *NotificationService) Notify(userID, ntype, title, body, deeplink string) {
	n := models.Notification{
		ID:       uuid.NewString(),
		UserID:   userID,
		Type:     ntype,
		Title:    title,
		Body:     body,
		Deeplink: deeplink,
	}
	if err := s.DB.Create(&n).Error; err != nil {
		log.Printf("[Notify] failed to store %s notification for %s: %v", ntype, userID, err)
	}
}

// NotifyOnce is Notify with a dedup key; a second call with the same key is a
// silent no-op (unique index on dedup_key).
func (s *NotificationService) NotifyOnce(userID, ntype, title, body, deeplink, dedupKey string) {
	var existing int64
	if err := s.DB.Model(&models.Notification{}).
		Where("dedup_key = ?", dedupKey).
		Count(&existing).Error; err != nil {
		log.Printf("[Notify] dedup check failed for %s: %v", dedupKey, err)
		return
	}
	if existing > 0 {
		return
	}

	n := models.Notification{
		ID:       uuid.NewString(),
		UserID:   userID,
		Type:     ntype,
		Title:    title,
		Body:     body,
		Deeplink: deeplink,
		DedupKey: &dedupKey,
	}
	if err := s.DB.Create(&n).Error; err != nil {
		// Lost the race against another sweep; the unique index did its job.
		log.Printf("[Notify] skipped duplicate %s: %v", dedupKey, err)
	}
}

// GetNotifications lists the caller's notifications, newest first.
func (s *NotificationService) GetNotifications(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var items []models.Notification
	if err := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(100).
		Find(&items).Error; err != nil {
		return httpError(c, err)
	}
	return c.JSON(items)
}

// GetUnreadCount returns how many notifications the caller has not read yet.
func (s *NotificationService) GetUnreadCount(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var count int64
	if err := s.DB.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error; err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"unread_count": count})
}

// MarkRead marks one notification as read (idempotent).
func (s *NotificationService) MarkRead(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	id := c.Params("id")

	result := s.DB.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if result.Error != nil {
		return httpError(c, result.Error)
	}
	if result.RowsAffected == 0 {
		return httpError(c, ErrNotFound)
	}
	return c.JSON(fiber.Map{"message": "OK"})
}

// MarkAllRead marks every unread notification of the caller as read.
func (s *NotificationService) MarkAllRead(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	result := s.DB.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if result.Error != nil {
		return httpError(c, result.Error)
	}
	return c.JSON(fiber.Map{"message": "OK", "marked_count": result.RowsAffected})
}
