package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuestionDataRejectsUnknownType(t *testing.T) {
	_, err := ParseQuestionData([]byte(`{"type":"word_cloud"}`))
	assert.Error(t, err)

	_, err = ParseQuestionData([]byte(`{}`))
	assert.Error(t, err)

	_, err = ParseQuestionData([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseQuestionDataVariants(t *testing.T) {
	data, err := ParseQuestionData([]byte(`{"type":"boolean","boolean":{"prompt":"Ready?"}}`))
	require.NoError(t, err)
	assert.Equal(t, QuestionTypeBoolean, data.Type)

	data, err = ParseQuestionData([]byte(`{"type":"rating","rating":{"prompt":"Rate it","min":1,"max":10}}`))
	require.NoError(t, err)
	min, max := data.Rating.Bounds()
	assert.Equal(t, 1, min)
	assert.Equal(t, 10, max)

	_, err = ParseQuestionData([]byte(`{"type":"rating","rating":{"prompt":"Bad","min":5,"max":2}}`))
	assert.Error(t, err)
}

func TestRatingBoundsDefault(t *testing.T) {
	config := RatingConfig{}
	min, max := config.Bounds()
	assert.Equal(t, DefaultRatingMin, min)
	assert.Equal(t, DefaultRatingMax, max)
}

func TestValidateMultipleChoice(t *testing.T) {
	data := QuestionData{
		Type:           QuestionTypeMultipleChoice,
		MultipleChoice: &MultipleChoiceConfig{Prompt: "Pick", Options: []string{"a", "b"}},
	}
	assert.NoError(t, data.Validate())

	data.MultipleChoice.Options = []string{"a"}
	assert.Error(t, data.Validate(), "needs at least two options")

	data.MultipleChoice.Options = []string{"a", "a"}
	assert.Error(t, data.Validate(), "duplicate options rejected")

	data.MultipleChoice.Options = []string{"a", ""}
	assert.Error(t, data.Validate(), "empty option rejected")

	data.MultipleChoice = nil
	assert.Error(t, data.Validate(), "config must match the tag")
}
