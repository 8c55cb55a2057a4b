package services

import (
	"testing"

	"livepoll/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// One connection keeps every query on the same in-memory database and
	// serializes writes, so concurrent test goroutines never see sqlite's
	// "database is locked".
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Presenter{},
		&models.Session{},
		&models.Question{},
		&models.Response{},
	))
	return db
}

func boolData() models.QuestionData {
	return models.QuestionData{
		Type:    models.QuestionTypeBoolean,
		Boolean: &models.BooleanConfig{Prompt: "Ship it?"},
	}
}

func ratingData() models.QuestionData {
	return models.QuestionData{
		Type:   models.QuestionTypeRating,
		Rating: &models.RatingConfig{Prompt: "Rate the talk"},
	}
}

func choiceData(options ...string) models.QuestionData {
	return models.QuestionData{
		Type:           models.QuestionTypeMultipleChoice,
		MultipleChoice: &models.MultipleChoiceConfig{Prompt: "Pick one", Options: options},
	}
}

func textData() models.QuestionData {
	return models.QuestionData{
		Type: models.QuestionTypeText,
		Text: &models.TextConfig{Prompt: "Any feedback?"},
	}
}

// newTestSession creates a session with the given questions and returns it
// together with the services wired to a shared in-memory bus.
func newTestSession(t *testing.T, db *gorm.DB, questions ...CreateQuestionInput) (*models.Session, *SessionService, *QuestionService, *ResponseService) {
	t.Helper()

	bus := NewMemoryBus()
	sessions := NewSessionService(db, bus)
	questionSvc := NewQuestionService(db, bus)
	responses := NewResponseService(db, bus, questionSvc)

	session, err := sessions.CreateSession(1, &CreateSessionRequest{
		Name:      "All hands",
		Questions: questions,
	})
	require.NoError(t, err)
	return session, sessions, questionSvc, responses
}
