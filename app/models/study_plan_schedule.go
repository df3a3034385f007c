package models

import "time"

// StudyPlanSchedule records a created study plan. The row counts toward the
// tier's max_study_plans for the lifetime of the account: deactivating a plan
// does not refund the quota, and rows are never deleted.
type StudyPlanSchedule struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	SubjectID uint      `gorm:"not null;index" json:"subject_id"`
	GradeID   uint      `gorm:"not null" json:"grade_id"`
	Title     string    `gorm:"type:varchar(200);not null" json:"title" validate:"required,max=200"`
	IsActive  bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
