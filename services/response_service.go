package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"unicode/utf8"

	"livepoll/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ResponseService struct {
	db        *gorm.DB
	bus       Bus
	questions *QuestionService
}

func NewResponseService(db *gorm.DB, bus Bus, questions *QuestionService) *ResponseService {
	return &ResponseService{db: db, bus: bus, questions: questions}
}

type SubmitResponseRequest struct {
	ParticipantID string `json:"participant_id" binding:"required"`
	QuestionKey   string `json:"question_key" binding:"required"`
	Value         string `json:"value" binding:"required"`
}

// Submit validates and persists one participant answer. The duplicate
// pre-check is inherently racy under client retries, so the store-level
// unique index on (participant_id, question_key) is the real guarantee;
// a constraint violation at insert time maps to ErrAlreadySubmitted too.
func (s *ResponseService) Submit(sessionID uint, req *SubmitResponseRequest) (*models.Response, error) {
	active, err := s.questions.ActiveQuestion(sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: session %d has no active question", ErrStaleQuestion, sessionID)
		}
		return nil, err
	}
	if active.QuestionKey != req.QuestionKey {
		return nil, fmt.Errorf("%w: question %s has been superseded by %s",
			ErrStaleQuestion, req.QuestionKey, active.QuestionKey)
	}

	data, err := active.Data()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := validateResponseValue(data, req.Value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var existing models.Response
	err = s.db.Where("participant_id = ? AND question_key = ?", req.ParticipantID, req.QuestionKey).
		First(&existing).Error
	if err == nil {
		return nil, fmt.Errorf("%w: participant %s already answered question %s",
			ErrAlreadySubmitted, req.ParticipantID, req.QuestionKey)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	response := models.Response{
		SessionID:     sessionID,
		ParticipantID: req.ParticipantID,
		QuestionKey:   req.QuestionKey,
		ResponseData:  req.Value,
	}
	if err := s.db.Create(&response).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: participant %s already answered question %s",
				ErrAlreadySubmitted, req.ParticipantID, req.QuestionKey)
		}
		return nil, err
	}

	s.publishResponse(&response)
	return &response, nil
}

// HasSubmitted lets a reconnecting participant re-derive its submission
// state from the store instead of assuming a blank slate.
func (s *ResponseService) HasSubmitted(participantID, questionKey string) (bool, error) {
	var count int64
	err := s.db.Model(&models.Response{}).
		Where("participant_id = ? AND question_key = ?", participantID, questionKey).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListResponses returns the full current response set for a question in
// insertion order, which is what the aggregator treats as first-seen order.
func (s *ResponseService) ListResponses(sessionID uint, questionKey string) ([]models.Response, error) {
	var responses []models.Response
	err := s.db.Where("session_id = ? AND question_key = ?", sessionID, questionKey).
		Order("id ASC").
		Find(&responses).Error
	return responses, err
}

// AggregateQuestion recomputes chart buckets for one question from scratch.
func (s *ResponseService) AggregateQuestion(sessionID uint, questionKey string) (*Aggregation, error) {
	question, err := s.questions.GetQuestion(sessionID, questionKey)
	if err != nil {
		return nil, err
	}
	data, err := question.Data()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	responses, err := s.ListResponses(sessionID, questionKey)
	if err != nil {
		return nil, err
	}
	return Aggregate(data, responses), nil
}

func validateResponseValue(data *models.QuestionData, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return errors.New("value must not be empty")
	}

	switch data.Type {
	case models.QuestionTypeBoolean:
		if _, err := strconv.ParseBool(trimmed); err != nil {
			return fmt.Errorf("%q is not a boolean answer", value)
		}
	case models.QuestionTypeRating:
		rating, err := strconv.Atoi(trimmed)
		if err != nil {
			return fmt.Errorf("%q is not a rating", value)
		}
		min, max := data.Rating.Bounds()
		if rating < min || rating > max {
			return fmt.Errorf("rating %d is outside %d..%d", rating, min, max)
		}
	case models.QuestionTypeMultipleChoice:
		for _, opt := range data.MultipleChoice.Options {
			if trimmed == opt {
				return nil
			}
		}
		return fmt.Errorf("%q is not one of the configured options", value)
	case models.QuestionTypeText:
		if data.Text.MaxLength > 0 && utf8.RuneCountInString(trimmed) > data.Text.MaxLength {
			return fmt.Errorf("answer exceeds %d characters", data.Text.MaxLength)
		}
	default:
		return fmt.Errorf("unknown question type %q", data.Type)
	}
	return nil
}

func (s *ResponseService) publishResponse(response *models.Response) {
	if s.bus == nil {
		return
	}
	err := s.bus.Publish(context.Background(), Event{
		Type:      EventResponseInserted,
		SessionID: response.SessionID,
		Payload: gin.H{
			"response_id":  response.ID,
			"question_key": response.QuestionKey,
		},
	})
	if err != nil {
		log.Printf("Failed to publish response insert for session %d: %v", response.SessionID, err)
	}
}
