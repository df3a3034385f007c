package models

import "time"

// PaperAccess marks that a paper was opened during a subscription period.
// The unique index over (subscription_id, period_start_date, paper_id)
// deduplicates repeat opens: only the first access in a period consumes
// quota, and a fresh period starts a fresh dedup scope.
type PaperAccess struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	SubscriptionID  uint      `gorm:"not null;index:ux_paper_accesses_period_paper,unique,priority:1" json:"subscription_id"`
	UserID          uint      `gorm:"not null;index" json:"user_id"`
	PeriodStartDate time.Time `gorm:"type:timestamp;not null;index:ux_paper_accesses_period_paper,unique,priority:2" json:"period_start_date"`
	PaperID         string    `gorm:"type:varchar(100);not null;index:ux_paper_accesses_period_paper,unique,priority:3" json:"paper_id"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}
