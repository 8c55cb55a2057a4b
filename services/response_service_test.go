package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"livepoll/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pollSession(t *testing.T) (*models.Session, *SessionService, *QuestionService, *ResponseService) {
	db := newTestDB(t)
	session, sessions, questionSvc, responses := newTestSession(t, db,
		CreateQuestionInput{QuestionKey: "q1", Data: boolData()},
		CreateQuestionInput{QuestionKey: "q2", Data: ratingData()},
		CreateQuestionInput{QuestionKey: "q3", Data: choiceData("red", "green", "blue")},
	)
	_, err := sessions.Activate(session.ID)
	require.NoError(t, err)
	return session, sessions, questionSvc, responses
}

func TestSubmitAndAggregateBooleanScenario(t *testing.T) {
	session, _, questionSvc, responses := pollSession(t)
	_, err := questionSvc.Activate(session.ID, "q1")
	require.NoError(t, err)

	_, err = responses.Submit(session.ID, &SubmitResponseRequest{
		ParticipantID: "alice", QuestionKey: "q1", Value: "true",
	})
	require.NoError(t, err)
	_, err = responses.Submit(session.ID, &SubmitResponseRequest{
		ParticipantID: "bob", QuestionKey: "q1", Value: "false",
	})
	require.NoError(t, err)

	agg, err := responses.AggregateQuestion(session.ID, "q1")
	require.NoError(t, err)
	assert.Equal(t, 2, agg.Total)
	assert.Equal(t, CountBucket{Label: "true", Count: 1, Percent: 50}, agg.Buckets[0])
	assert.Equal(t, CountBucket{Label: "false", Count: 1, Percent: 50}, agg.Buckets[1])
}

func TestSubmitRejectsStaleQuestion(t *testing.T) {
	session, _, questionSvc, responses := pollSession(t)

	// no active question at all
	_, err := responses.Submit(session.ID, &SubmitResponseRequest{
		ParticipantID: "alice", QuestionKey: "q1", Value: "true",
	})
	assert.ErrorIs(t, err, ErrStaleQuestion)

	// question advanced between render and submit
	_, err = questionSvc.Activate(session.ID, "q1")
	require.NoError(t, err)
	_, err = questionSvc.Activate(session.ID, "q2")
	require.NoError(t, err)

	_, err = responses.Submit(session.ID, &SubmitResponseRequest{
		ParticipantID: "alice", QuestionKey: "q1", Value: "true",
	})
	assert.ErrorIs(t, err, ErrStaleQuestion)
}

func TestSubmitValidatesValueByType(t *testing.T) {
	session, _, questionSvc, responses := pollSession(t)

	_, err := questionSvc.Activate(session.ID, "q2")
	require.NoError(t, err)

	for _, bad := range []string{"0", "6", "nope", "  "} {
		_, err = responses.Submit(session.ID, &SubmitResponseRequest{
			ParticipantID: "alice", QuestionKey: "q2", Value: bad,
		})
		assert.ErrorIs(t, err, ErrValidation, "value %q", bad)
	}
	_, err = responses.Submit(session.ID, &SubmitResponseRequest{
		ParticipantID: "alice", QuestionKey: "q2", Value: "4",
	})
	require.NoError(t, err)

	_, err = questionSvc.Activate(session.ID, "q3")
	require.NoError(t, err)
	_, err = responses.Submit(session.ID, &SubmitResponseRequest{
		ParticipantID: "alice", QuestionKey: "q3", Value: "purple",
	})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = responses.Submit(session.ID, &SubmitResponseRequest{
		ParticipantID: "alice", QuestionKey: "q3", Value: "green",
	})
	require.NoError(t, err)
}

func TestSubmitDuplicateRejected(t *testing.T) {
	session, _, questionSvc, responses := pollSession(t)
	_, err := questionSvc.Activate(session.ID, "q1")
	require.NoError(t, err)

	_, err = responses.Submit(session.ID, &SubmitResponseRequest{
		ParticipantID: "alice", QuestionKey: "q1", Value: "true",
	})
	require.NoError(t, err)

	_, err = responses.Submit(session.ID, &SubmitResponseRequest{
		ParticipantID: "alice", QuestionKey: "q1", Value: "false",
	})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)

	// the original row is untouched
	rows, err := responses.ListResponses(session.ID, "q1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "true", rows[0].ResponseData)
}

func TestConcurrentDuplicateSubmitsCreateOneRow(t *testing.T) {
	session, _, questionSvc, responses := pollSession(t)
	_, err := questionSvc.Activate(session.ID, "q1")
	require.NoError(t, err)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = responses.Submit(session.ID, &SubmitResponseRequest{
				ParticipantID: "alice", QuestionKey: "q1", Value: "true",
			})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.True(t, errors.Is(err, ErrAlreadySubmitted), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, successes, "exactly one duplicate submit may win")

	rows, err := responses.ListResponses(session.ID, "q1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestHasSubmittedSurvivesReconnect(t *testing.T) {
	session, _, questionSvc, responses := pollSession(t)
	_, err := questionSvc.Activate(session.ID, "q1")
	require.NoError(t, err)

	submitted, err := responses.HasSubmitted("alice", "q1")
	require.NoError(t, err)
	assert.False(t, submitted)

	_, err = responses.Submit(session.ID, &SubmitResponseRequest{
		ParticipantID: "alice", QuestionKey: "q1", Value: "true",
	})
	require.NoError(t, err)

	// a reconnecting client re-derives its state from the store
	submitted, err = responses.HasSubmitted("alice", "q1")
	require.NoError(t, err)
	assert.True(t, submitted)

	// resync did not create a second row
	rows, err := responses.ListResponses(session.ID, "q1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSubmitPublishesResponseInserted(t *testing.T) {
	db := newTestDB(t)
	bus := NewMemoryBus()
	sessions := NewSessionService(db, bus)
	questionSvc := NewQuestionService(db, bus)
	responses := NewResponseService(db, bus, questionSvc)

	session, err := sessions.CreateSession(1, &CreateSessionRequest{
		Name:      "Demo",
		Questions: []CreateQuestionInput{{QuestionKey: "q1", Data: boolData()}},
	})
	require.NoError(t, err)
	_, err = sessions.Activate(session.ID)
	require.NoError(t, err)
	_, err = questionSvc.Activate(session.ID, "q1")
	require.NoError(t, err)

	sub, err := bus.Subscribe(context.Background(), session.ID)
	require.NoError(t, err)
	defer sub.Close()

	_, err = responses.Submit(session.ID, &SubmitResponseRequest{
		ParticipantID: "alice", QuestionKey: "q1", Value: "true",
	})
	require.NoError(t, err)

	var sawInsert bool
	for len(sub.Events()) > 0 {
		if event := <-sub.Events(); event.Type == EventResponseInserted {
			sawInsert = true
		}
	}
	assert.True(t, sawInsert)
}

func TestManyParticipantsAggregate(t *testing.T) {
	session, _, questionSvc, responses := pollSession(t)
	_, err := questionSvc.Activate(session.ID, "q2")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		value := fmt.Sprintf("%d", i%5+1)
		_, err := responses.Submit(session.ID, &SubmitResponseRequest{
			ParticipantID: fmt.Sprintf("participant-%d", i),
			QuestionKey:   "q2",
			Value:         value,
		})
		require.NoError(t, err)
	}

	agg, err := responses.AggregateQuestion(session.ID, "q2")
	require.NoError(t, err)
	assert.Equal(t, 10, agg.Total)
	for _, bucket := range agg.Buckets {
		assert.Equal(t, 2, bucket.Count)
		assert.InDelta(t, 20, bucket.Percent, 0.001)
	}
}
