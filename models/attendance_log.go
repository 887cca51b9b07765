package models

import "time"

// AttendanceLog records one daily check-in per user. The streak cycles 1..7;
// day 7 pays the weekly bonus and the next check-in starts over at 1.
type AttendanceLog struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID     string `gorm:"type:uuid;not null;uniqueIndex:uq_attendance_user_date" json:"user_id"`
	AttendDate string `gorm:"size:10;not null;uniqueIndex:uq_attendance_user_date" json:"attend_date"`
	Streak     int    `gorm:"not null" json:"streak"`
	Reward     int64  `gorm:"not null;default:0" json:"reward"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
