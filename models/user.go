package models

import (
	"time"

	"gorm.io/gorm"
)

// User mirrors profile data owned by the external profile service.
// The ID is the external user id forwarded by the gateway; identity and
// authentication live elsewhere. The only field this service owns outright is
// HbBalance, which is mutated exclusively through the balance ledger (see
// BalanceEntry) so that every coin movement stays auditable.
type User struct {
	ID             string     `gorm:"primaryKey;type:uuid" json:"id"`
	Nickname       string     `gorm:"size:30;index" json:"nickname"`
	Name           string     `gorm:"size:50" json:"name"`
	Bio            *string    `gorm:"size:255" json:"bio,omitempty"`
	ProfilePicture *string    `gorm:"size:255" json:"profile_picture,omitempty"`
	Timezone       string     `gorm:"size:50;not null;default:'Asia/Seoul'" json:"timezone"`
	HbBalance      int64      `gorm:"not null;default:0" json:"hb_balance"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`

	Timestamps
}

// BalanceEntry is the append-only coin ledger. One row per balance change,
// written in the same transaction as the hb_balance update it explains, so the
// materialized balance can always be re-derived by replaying deltas.
type BalanceEntry struct {
	ID      string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID  string `gorm:"type:uuid;not null;index" json:"user_id"`
	Delta   int64  `gorm:"not null" json:"delta"`
	Reason  string `gorm:"size:32;not null" json:"reason"`
	RefType string `gorm:"size:32" json:"ref_type,omitempty"`
	RefID   string `gorm:"size:64" json:"ref_id,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// Ledger reasons.
const (
	BalanceReasonAttendance = "attendance"
	BalanceReasonDuelStake  = "duel_stake"
	BalanceReasonDuelPayout = "duel_payout"
	BalanceReasonDuelRefund = "duel_refund"
)

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
