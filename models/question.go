package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	QuestionStatusPending   = "pending"
	QuestionStatusActive    = "active"
	QuestionStatusCompleted = "completed"
)

type Question struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	// The partial unique index is the hard backstop for the one-active-
	// question-per-session invariant: even two transactions that cannot
	// see each other's uncommitted rows cannot both commit an active one.
	SessionID    uint           `json:"session_id" gorm:"not null;uniqueIndex:idx_questions_session_key;index:idx_questions_one_active,unique,where:status = 'active' AND deleted_at IS NULL"`
	QuestionKey  string         `json:"question_key" gorm:"not null;uniqueIndex:idx_questions_session_key"`
	DisplayOrder int            `json:"display_order" gorm:"not null;index"`
	QuestionData datatypes.JSON `json:"question_data" gorm:"not null"`
	Status       string         `json:"status" gorm:"not null;default:'pending'"` // pending, active, completed
	EnabledAt    *time.Time     `json:"enabled_at"`
	DisabledAt   *time.Time     `json:"disabled_at"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Session Session `json:"session,omitempty"`
}

// Data decodes the stored question_data payload into its tagged form.
func (q *Question) Data() (*QuestionData, error) {
	return ParseQuestionData(q.QuestionData)
}
