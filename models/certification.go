package models

import "time"

// Certification outcomes.
const (
	CertStatusSuccess = "success"
	CertStatusFail    = "fail"
)

// Closed set of failure reasons. FailDetail can carry free text on top.
const (
	FailReasonDeadlineMissed    = "deadline_missed"
	FailReasonFailLimitExceeded = "fail_limit_exceeded"
	FailReasonGiveUp            = "give_up"
)

// Certification is an immutable record of one user's attempt (or automatic
// failure) for one habit on one calendar day. Rows are only ever inserted.
//
// CertDate is the local calendar day the certification counts toward; the
// unique index enforces at most one certification per habit per day even if
// two sweeps race.
type Certification struct {
	ID          string  `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string  `gorm:"type:uuid;not null;index;uniqueIndex:uq_cert_user_habit_day" json:"user_id"`
	UserHabitID *string `gorm:"type:uuid;uniqueIndex:uq_cert_user_habit_day" json:"user_habit_id,omitempty"`
	DuelID      *string `gorm:"type:uuid;index" json:"duel_id,omitempty"`

	Ts       time.Time `gorm:"not null" json:"ts"`
	CertDate string    `gorm:"size:10;not null;uniqueIndex:uq_cert_user_habit_day" json:"cert_date"`

	Method       string  `gorm:"size:8;not null" json:"method"`
	TextContent  *string `gorm:"type:text" json:"text_content,omitempty"`
	PhotoAssetID *string `gorm:"type:uuid" json:"photo_asset_id,omitempty"`

	Status     string  `gorm:"size:8;not null" json:"status"`
	FailReason *string `gorm:"size:32" json:"fail_reason,omitempty"`
	FailDetail *string `gorm:"size:100" json:"fail_detail,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// MediaAsset is an uploaded photo proof referenced by photo certifications.
type MediaAsset struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string    `gorm:"type:uuid;not null;index" json:"user_id"`
	StorageKey  string    `gorm:"size:255;not null" json:"storage_key"`
	URL         string    `gorm:"size:255;not null" json:"url"`
	ContentType string    `gorm:"size:64" json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}
