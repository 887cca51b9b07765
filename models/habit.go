package models

import "time"

// Certification methods shared by habits, duels and certifications.
const (
	MethodPhoto = "photo"
	MethodText  = "text"
)

// UserHabit lifecycle. Terminal statuses are one-way: a completed or canceled
// habit is never resurrected.
const (
	HabitStatusActive           = "active"
	HabitStatusCompletedSuccess = "completed_success"
	HabitStatusCompletedFail    = "completed_fail"
	HabitStatusCanceled         = "canceled"
)

// Habit is a shareable habit template. Other users copy it into their own
// UserHabit, and exchange requests target it when proposing a duel.
type Habit struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	OwnerUserID string    `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	Title       string    `gorm:"size:50;not null" json:"title"`
	Description *string   `gorm:"size:255" json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// UserHabit is one user's commitment to a recurring habit over a period.
//
// DaysOfWeek is a bitmask with bit 0 = Monday .. bit 6 = Sunday. Calendar
// dates (PeriodStart, PeriodEnd) are ISO YYYY-MM-DD strings and DeadlineLocal
// is HH:MM in the service's local zone, so range comparisons stay plain string
// comparisons in SQL.
//
// While DuelID is set the habit belongs to a duel; its terminal status is then
// decided by duel resolution, not by period settlement.
type UserHabit struct {
	ID            string  `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string  `gorm:"type:uuid;not null;index" json:"user_id"`
	SourceHabitID *string `gorm:"type:uuid" json:"source_habit_id,omitempty"`
	Title         string  `gorm:"size:50;not null" json:"title"`
	Method        string  `gorm:"size:8;not null" json:"method"`
	DeadlineLocal string  `gorm:"size:5;not null" json:"deadline_local"`
	DaysOfWeek    int     `gorm:"not null" json:"days_of_week"`
	PeriodStart   string  `gorm:"size:10;not null" json:"period_start"`
	PeriodEnd     string  `gorm:"size:10;not null" json:"period_end"`
	IsActive      bool    `gorm:"not null;default:true" json:"is_active"`
	Difficulty    int     `gorm:"not null;default:1" json:"difficulty"`
	Status        string  `gorm:"size:20;not null;default:'active'" json:"status"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DuelID      *string    `gorm:"type:uuid;index" json:"duel_id,omitempty"`

	Timestamps
}
