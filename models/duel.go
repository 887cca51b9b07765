package models

import "time"

// Duel lifecycle. This service creates duels straight into active (accepting
// the exchange request IS the handshake); pending and canceled are part of the
// shared client enum and may appear in data written by other services.
const (
	DuelStatusPending  = "pending"
	DuelStatusActive   = "active"
	DuelStatusFinished = "finished"
	DuelStatusCanceled = "canceled"
)

// Duel results, set exactly once when status becomes finished. Resolution
// currently produces only draw and forfeit outcomes; owner_win/challenger_win
// complete the client enum for score-decided finishes.
const (
	DuelResultOwnerWin          = "owner_win"
	DuelResultChallengerWin     = "challenger_win"
	DuelResultDraw              = "draw"
	DuelResultForfeitOwner      = "forfeit_owner"
	DuelResultForfeitChallenger = "forfeit_challenger"
)

// Duel pairs two users' habit commitments over a shared schedule with one
// outcome. Both sides escrow Difficulty coins at creation; resolution
// redistributes (or, on a double forfeit, destroys) the pot.
//
// While active, exactly two UserHabits reference the duel, one per
// participant, with matching method/deadline/weekdays/period. On finish the
// habit-side links are cleared; the duel row keeps the history.
type Duel struct {
	ID               string `gorm:"primaryKey;type:uuid" json:"id"`
	OwnerUserID      string `gorm:"type:uuid;not null;index:idx_duels_pair" json:"owner_user_id"`
	ChallengerUserID string `gorm:"type:uuid;not null;index:idx_duels_pair" json:"challenger_user_id"`
	HabitTitle       string `gorm:"size:120;not null" json:"habit_title"`
	Method           string `gorm:"size:8;not null" json:"method"`
	DeadlineLocal    string `gorm:"size:5;not null" json:"deadline_local"`
	DaysOfWeek       int    `gorm:"not null" json:"days_of_week"`
	StartDate        string `gorm:"size:10;not null" json:"start_date"`
	EndDate          string `gorm:"size:10;not null" json:"end_date"`

	Difficulty      int `gorm:"not null;default:1" json:"difficulty"`
	OwnerStake      int `gorm:"not null" json:"owner_stake"`
	ChallengerStake int `gorm:"not null" json:"challenger_stake"`

	Status string  `gorm:"size:10;not null;default:'pending';index:idx_duels_pair" json:"status"`
	Result *string `gorm:"size:20" json:"result,omitempty"`

	OwnerSuccessCnt      int `gorm:"not null;default:0" json:"owner_success_cnt"`
	ChallengerSuccessCnt int `gorm:"not null;default:0" json:"challenger_success_cnt"`

	// Extra minutes past the daily deadline before the overdue sweep fails a
	// duel-linked habit. Solo habits get no grace.
	GraceMinutes int `gorm:"not null;default:5" json:"grace_minutes"`

	FinishedAt *time.Time `json:"finished_at,omitempty"`

	Timestamps
}

// ExchangeRequest is the duel handshake: one user proposes swapping habits
// with the owner of a habit template. Accepting it creates the duel and both
// linked habits in one shot.
const (
	ExchangeStatusPending  = "pending"
	ExchangeStatusRejected = "rejected"
)

type ExchangeRequest struct {
	ID            string `gorm:"primaryKey;type:uuid" json:"id"`
	FromUserID    string `gorm:"type:uuid;not null;index" json:"from_user_id"`
	ToUserID      string `gorm:"type:uuid;not null;index" json:"to_user_id"`
	TargetHabitID string `gorm:"type:uuid;not null" json:"target_habit_id"`

	Method        string `gorm:"size:8;not null" json:"method"`
	DeadlineLocal string `gorm:"size:5;not null" json:"deadline_local"`
	DaysOfWeek    int    `gorm:"not null" json:"days_of_week"`
	StartDate     string `gorm:"size:10;not null" json:"start_date"`
	EndDate       string `gorm:"size:10;not null" json:"end_date"`
	Difficulty    int    `gorm:"not null;default:1" json:"difficulty"`

	Status    string     `gorm:"size:10;not null;default:'pending'" json:"status"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
	CreatedAt time.Time  `json:"created_at" gorm:"autoCreateTime"`
}
