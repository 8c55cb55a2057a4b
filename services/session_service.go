package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"livepoll/models"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SessionService struct {
	db  *gorm.DB
	bus Bus
}

func NewSessionService(db *gorm.DB, bus Bus) *SessionService {
	return &SessionService{db: db, bus: bus}
}

type CreateQuestionInput struct {
	QuestionKey string              `json:"question_key" binding:"required"`
	Data        models.QuestionData `json:"data" binding:"required"`
}

type CreateSessionRequest struct {
	Name        string                `json:"name" binding:"required"`
	Description string                `json:"description"`
	Questions   []CreateQuestionInput `json:"questions"`
}

func (s *SessionService) CreateSession(presenterID uint, req *CreateSessionRequest) (*models.Session, error) {
	seen := make(map[string]bool, len(req.Questions))
	for _, q := range req.Questions {
		if err := q.Data.Validate(); err != nil {
			return nil, fmt.Errorf("%w: question %q: %v", ErrValidation, q.QuestionKey, err)
		}
		if seen[q.QuestionKey] {
			return nil, fmt.Errorf("%w: duplicate question key %q", ErrValidation, q.QuestionKey)
		}
		seen[q.QuestionKey] = true
	}

	// The join-code column carries a unique index; on a collision we retry
	// with a fresh code rather than surfacing the constraint error.
	for attempt := 0; attempt < maxJoinCodeAttempts; attempt++ {
		code, err := generateJoinCode()
		if err != nil {
			return nil, err
		}
		session := models.Session{
			Name:        req.Name,
			Description: req.Description,
			JoinCode:    code,
			Status:      models.SessionStatusInitial,
			CreatedBy:   presenterID,
		}

		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&session).Error; err != nil {
				return err
			}
			for i, q := range req.Questions {
				data, err := json.Marshal(q.Data)
				if err != nil {
					return fmt.Errorf("failed to marshal question data: %v", err)
				}
				question := models.Question{
					SessionID:    session.ID,
					QuestionKey:  q.QuestionKey,
					DisplayOrder: i + 1,
					QuestionData: datatypes.JSON(data),
					Status:       models.QuestionStatusPending,
				}
				if err := tx.Create(&question).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err == nil {
			return &session, nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			log.Printf("Join code %s collided, retrying", session.JoinCode)
			continue
		}
		return nil, err
	}
	return nil, errors.New("could not allocate a unique join code")
}

// ResolveSession locates a session by its join code, case-insensitively.
func (s *SessionService) ResolveSession(joinCode string) (*models.Session, error) {
	code := strings.ToLower(strings.TrimSpace(joinCode))
	var session models.Session
	if err := s.db.Where("LOWER(join_code) = ?", code).First(&session).Error; err != nil {
		return nil, fmt.Errorf("%w: join code %s", ErrNotFound, code)
	}
	return &session, nil
}

func (s *SessionService) GetSession(sessionID uint) (*models.Session, error) {
	var session models.Session
	err := s.db.
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("display_order ASC")
		}).
		First(&session, sessionID).Error
	if err != nil {
		return nil, fmt.Errorf("%w: session %d", ErrNotFound, sessionID)
	}
	return &session, nil
}

func (s *SessionService) ListSessions(presenterID uint) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.Where("created_by = ?", presenterID).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}

func (s *SessionService) Activate(sessionID uint) (*models.Session, error) {
	return s.transition(sessionID, models.SessionStatusActive)
}

func (s *SessionService) Pause(sessionID uint) (*models.Session, error) {
	return s.transition(sessionID, models.SessionStatusPaused)
}

func (s *SessionService) Resume(sessionID uint) (*models.Session, error) {
	return s.transition(sessionID, models.SessionStatusActive)
}

func (s *SessionService) End(sessionID uint) (*models.Session, error) {
	return s.transition(sessionID, models.SessionStatusEnded)
}

// sessionTransitionAllowed is the whole session state machine: activate from
// initial or paused, pause only from active, end from anything not yet ended.
func sessionTransitionAllowed(from, to string) bool {
	switch to {
	case models.SessionStatusActive:
		return from == models.SessionStatusInitial || from == models.SessionStatusPaused
	case models.SessionStatusPaused:
		return from == models.SessionStatusActive
	case models.SessionStatusEnded:
		return from != models.SessionStatusEnded
	}
	return false
}

func (s *SessionService) transition(sessionID uint, target string) (*models.Session, error) {
	var session models.Session
	if err := s.db.First(&session, sessionID).Error; err != nil {
		return nil, fmt.Errorf("%w: session %d", ErrNotFound, sessionID)
	}

	if !sessionTransitionAllowed(session.Status, target) {
		return nil, fmt.Errorf("%w: session cannot move from %s to %s",
			ErrInvalidTransition, session.Status, target)
	}

	now := time.Now()
	updates := map[string]interface{}{"status": target}
	switch target {
	case models.SessionStatusActive:
		if session.StartedAt == nil {
			updates["started_at"] = &now
		}
	case models.SessionStatusEnded:
		updates["ended_at"] = &now
	}

	// Guard on the observed status so two racing commands cannot both win.
	result := s.db.Model(&models.Session{}).
		Where("id = ? AND status = ?", sessionID, session.Status).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: session status changed concurrently", ErrConflict)
	}

	if err := s.db.First(&session, sessionID).Error; err != nil {
		return nil, err
	}
	s.publishStatus(&session)
	return &session, nil
}

func (s *SessionService) publishStatus(session *models.Session) {
	if s.bus == nil {
		return
	}
	err := s.bus.Publish(context.Background(), Event{
		Type:      EventSessionStatusChanged,
		SessionID: session.ID,
		Payload: gin.H{
			"status":   session.Status,
			"ended_at": session.EndedAt,
		},
	})
	if err != nil {
		log.Printf("Failed to publish status change for session %d: %v", session.ID, err)
	}
}
