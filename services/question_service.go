package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"livepoll/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type QuestionService struct {
	db  *gorm.DB
	bus Bus
}

func NewQuestionService(db *gorm.DB, bus Bus) *QuestionService {
	return &QuestionService{db: db, bus: bus}
}

func (s *QuestionService) ListQuestions(sessionID uint) ([]models.Question, error) {
	var questions []models.Question
	err := s.db.Where("session_id = ?", sessionID).
		Order("display_order ASC").
		Find(&questions).Error
	return questions, err
}

func (s *QuestionService) GetQuestion(sessionID uint, questionKey string) (*models.Question, error) {
	var question models.Question
	err := s.db.Where("session_id = ? AND question_key = ?", sessionID, questionKey).
		First(&question).Error
	if err != nil {
		return nil, fmt.Errorf("%w: question %s in session %d", ErrNotFound, questionKey, sessionID)
	}
	return &question, nil
}

// ActiveQuestion returns the session's currently active question, or
// ErrNotFound when no question is accepting responses.
func (s *QuestionService) ActiveQuestion(sessionID uint) (*models.Question, error) {
	var question models.Question
	err := s.db.Where("session_id = ? AND status = ?", sessionID, models.QuestionStatusActive).
		First(&question).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no active question in session %d", ErrNotFound, sessionID)
		}
		return nil, err
	}
	return &question, nil
}

// Activate moves a pending question to active, auto-completing whichever
// question held the slot. The final update is guarded by a NOT EXISTS check
// on other active rows, so of two racing activations exactly one wins and
// the loser gets ErrConflict instead of a second active question.
func (s *QuestionService) Activate(sessionID uint, questionKey string) (*models.Question, error) {
	var session models.Session
	if err := s.db.First(&session, sessionID).Error; err != nil {
		return nil, fmt.Errorf("%w: session %d", ErrNotFound, sessionID)
	}
	if session.Status != models.SessionStatusActive {
		return nil, fmt.Errorf("%w: session is %s, questions can only be activated while it is active",
			ErrInvalidTransition, session.Status)
	}

	question, err := s.GetQuestion(sessionID, questionKey)
	if err != nil {
		return nil, err
	}
	if question.Status != models.QuestionStatusPending {
		return nil, fmt.Errorf("%w: question %s is %s, only pending questions can be activated",
			ErrInvalidTransition, questionKey, question.Status)
	}

	now := time.Now()
	var superseded []models.Question
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var active []models.Question
		if err := tx.Where("session_id = ? AND status = ?", sessionID, models.QuestionStatusActive).
			Find(&active).Error; err != nil {
			return err
		}
		for i := range active {
			result := tx.Model(&models.Question{}).
				Where("id = ? AND status = ?", active[i].ID, models.QuestionStatusActive).
				Updates(map[string]interface{}{
					"status":      models.QuestionStatusCompleted,
					"disabled_at": &now,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected > 0 {
				active[i].Status = models.QuestionStatusCompleted
				active[i].DisabledAt = &now
				superseded = append(superseded, active[i])
			}
		}

		// The NOT EXISTS guard catches races the transaction can see;
		// the partial unique index on (session_id) WHERE status='active'
		// catches the write skew it cannot (two activations starting
		// from a session with no active question commit disjoint rows).
		result := tx.Model(&models.Question{}).
			Where("id = ? AND status = ?", question.ID, models.QuestionStatusPending).
			Where("NOT EXISTS (SELECT 1 FROM questions q WHERE q.session_id = ? AND q.status = ? AND q.id <> ? AND q.deleted_at IS NULL)",
				sessionID, models.QuestionStatusActive, question.ID).
			Updates(map[string]interface{}{
				"status":      models.QuestionStatusActive,
				"enabled_at":  &now,
				"disabled_at": nil,
			})
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: another question was activated concurrently", ErrConflict)
			}
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: another question was activated concurrently", ErrConflict)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	question.Status = models.QuestionStatusActive
	question.EnabledAt = &now
	question.DisabledAt = nil

	for i := range superseded {
		s.publishQuestion(&superseded[i])
	}
	s.publishQuestion(question)
	return question, nil
}

// Complete moves an active question to completed.
func (s *QuestionService) Complete(sessionID uint, questionKey string) (*models.Question, error) {
	question, err := s.GetQuestion(sessionID, questionKey)
	if err != nil {
		return nil, err
	}
	if question.Status != models.QuestionStatusActive {
		return nil, fmt.Errorf("%w: question %s is %s, only active questions can be completed",
			ErrInvalidTransition, questionKey, question.Status)
	}

	now := time.Now()
	result := s.db.Model(&models.Question{}).
		Where("id = ? AND status = ?", question.ID, models.QuestionStatusActive).
		Updates(map[string]interface{}{
			"status":      models.QuestionStatusCompleted,
			"disabled_at": &now,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: question %s changed concurrently", ErrConflict, questionKey)
	}

	question.Status = models.QuestionStatusCompleted
	question.DisabledAt = &now
	s.publishQuestion(question)
	return question, nil
}

// ResetAll returns every active or completed question to pending with its
// lifecycle timestamps cleared. Only allowed while the session is active.
func (s *QuestionService) ResetAll(sessionID uint) ([]models.Question, error) {
	var session models.Session
	if err := s.db.First(&session, sessionID).Error; err != nil {
		return nil, fmt.Errorf("%w: session %d", ErrNotFound, sessionID)
	}
	if session.Status != models.SessionStatusActive {
		return nil, fmt.Errorf("%w: session is %s, questions can only be reset while it is active",
			ErrInvalidTransition, session.Status)
	}

	var affected []models.Question
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ? AND status IN ?", sessionID,
			[]string{models.QuestionStatusActive, models.QuestionStatusCompleted}).
			Order("display_order ASC").
			Find(&affected).Error; err != nil {
			return err
		}
		if len(affected) == 0 {
			return nil
		}
		return tx.Model(&models.Question{}).
			Where("session_id = ? AND status IN ?", sessionID,
				[]string{models.QuestionStatusActive, models.QuestionStatusCompleted}).
			Updates(map[string]interface{}{
				"status":      models.QuestionStatusPending,
				"enabled_at":  nil,
				"disabled_at": nil,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	for i := range affected {
		affected[i].Status = models.QuestionStatusPending
		affected[i].EnabledAt = nil
		affected[i].DisabledAt = nil
		s.publishQuestion(&affected[i])
	}
	return affected, nil
}

// Reorder moves a question to newOrder, shifting the questions in between by
// one so display_order stays a dense unique sequence. Every question whose
// order changed is announced on the bus so presenter views re-sort live.
func (s *QuestionService) Reorder(sessionID uint, questionKey string, newOrder int) error {
	var moved []models.Question
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var question models.Question
		if err := tx.Where("session_id = ? AND question_key = ?", sessionID, questionKey).
			First(&question).Error; err != nil {
			return fmt.Errorf("%w: question %s in session %d", ErrNotFound, questionKey, sessionID)
		}

		var count int64
		if err := tx.Model(&models.Question{}).
			Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
			return err
		}
		if newOrder < 1 || newOrder > int(count) {
			return fmt.Errorf("%w: display order %d out of range 1..%d", ErrValidation, newOrder, count)
		}

		oldOrder := question.DisplayOrder
		if newOrder == oldOrder {
			return nil
		}

		if newOrder > oldOrder {
			err := tx.Model(&models.Question{}).
				Where("session_id = ? AND display_order > ? AND display_order <= ?",
					sessionID, oldOrder, newOrder).
				Update("display_order", gorm.Expr("display_order - 1")).Error
			if err != nil {
				return err
			}
		} else {
			err := tx.Model(&models.Question{}).
				Where("session_id = ? AND display_order >= ? AND display_order < ?",
					sessionID, newOrder, oldOrder).
				Update("display_order", gorm.Expr("display_order + 1")).Error
			if err != nil {
				return err
			}
		}

		if err := tx.Model(&models.Question{}).
			Where("id = ?", question.ID).
			Update("display_order", newOrder).Error; err != nil {
			return err
		}

		lo, hi := oldOrder, newOrder
		if lo > hi {
			lo, hi = hi, lo
		}
		return tx.Where("session_id = ? AND display_order BETWEEN ? AND ?", sessionID, lo, hi).
			Order("display_order ASC").
			Find(&moved).Error
	})
	if err != nil {
		return err
	}

	for i := range moved {
		s.publishQuestion(&moved[i])
	}
	return nil
}

// EnableNext activates the lowest-ordered pending question. A session with
// nothing left to activate returns ErrNoPendingQuestions, which callers treat
// as an outcome rather than a failure.
func (s *QuestionService) EnableNext(sessionID uint) (*models.Question, error) {
	var next models.Question
	err := s.db.Where("session_id = ? AND status = ?", sessionID, models.QuestionStatusPending).
		Order("display_order ASC").
		First(&next).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoPendingQuestions
		}
		return nil, err
	}
	return s.Activate(sessionID, next.QuestionKey)
}

func (s *QuestionService) publishQuestion(question *models.Question) {
	if s.bus == nil {
		return
	}
	err := s.bus.Publish(context.Background(), Event{
		Type:      EventQuestionChanged,
		SessionID: question.SessionID,
		Payload: gin.H{
			"question_key":  question.QuestionKey,
			"status":        question.Status,
			"display_order": question.DisplayOrder,
			"enabled_at":    question.EnabledAt,
			"disabled_at":   question.DisabledAt,
		},
	})
	if err != nil {
		log.Printf("Failed to publish question change for session %d: %v", question.SessionID, err)
	}
}
