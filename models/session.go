package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	SessionStatusInitial = "initial"
	SessionStatusActive  = "active"
	SessionStatusPaused  = "paused"
	SessionStatusEnded   = "ended" // terminal
)

type Session struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	Name        string         `json:"name" gorm:"not null"`
	Description string         `json:"description"`
	JoinCode    string         `json:"join_code" gorm:"uniqueIndex;not null"`
	Status      string         `json:"status" gorm:"not null;default:'initial'"` // initial, active, paused, ended
	CreatedBy   uint           `json:"created_by" gorm:"not null"`
	StartedAt   *time.Time     `json:"started_at"`
	EndedAt     *time.Time     `json:"ended_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Presenter Presenter  `json:"presenter,omitempty" gorm:"foreignKey:CreatedBy"`
	Questions []Question `json:"questions,omitempty" gorm:"foreignKey:SessionID"`
}
