package models

import (
	"time"
)

// Response rows are immutable once created; the composite unique index backs
// the one-response-per-participant-per-question guarantee at the store layer.
type Response struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	SessionID     uint      `json:"session_id" gorm:"not null;index"`
	ParticipantID string    `json:"participant_id" gorm:"not null;uniqueIndex:idx_responses_participant_question"`
	QuestionKey   string    `json:"question_key" gorm:"not null;uniqueIndex:idx_responses_participant_question"`
	ResponseData  string    `json:"response_data" gorm:"not null"`
	CreatedAt     time.Time `json:"created_at"`
}
