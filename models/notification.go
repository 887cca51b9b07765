package models

import "time"

// Notification types.
const (
	NotificationChallenge         = "challenge"
	NotificationChallengeAccepted = "challenge_accepted"
	NotificationChallengeRejected = "challenge_rejected"
	NotificationCertSuccess       = "cert_success"
	NotificationCertFail          = "cert_fail"
	NotificationDuelResult        = "duel_result"
	NotificationReminder          = "reminder"
	NotificationSystem            = "system"
)

// Notification is an in-app notification row. The push worker delivers
// undelivered rows to the push gateway; delivery is best effort and never
// blocks the event that produced the row.
//
// DedupKey guards naturally-repeating notifications (deadline reminders fire
// from a minute sweep) against duplicates.
type Notification struct {
	ID       string  `gorm:"primaryKey;type:uuid" json:"id"`
	UserID   string  `gorm:"type:uuid;not null;index" json:"user_id"`
	Type     string  `gorm:"size:24;not null" json:"type"`
	Title    string  `gorm:"size:100;not null" json:"title"`
	Body     string  `gorm:"size:255" json:"body"`
	Deeplink string  `gorm:"size:255" json:"deeplink,omitempty"`
	DedupKey *string `gorm:"size:128;uniqueIndex" json:"-"`

	IsRead      bool       `gorm:"not null;default:false" json:"is_read"`
	DeliveredAt *time.Time `gorm:"index" json:"delivered_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
