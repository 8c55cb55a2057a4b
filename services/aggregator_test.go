package services

import (
	"fmt"
	"math/rand"
	"testing"

	"livepoll/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func responsesOf(values ...string) []models.Response {
	responses := make([]models.Response, len(values))
	for i, v := range values {
		responses[i] = models.Response{
			ID:            uint(i + 1),
			SessionID:     1,
			ParticipantID: fmt.Sprintf("p%d", i+1),
			QuestionKey:   "q1",
			ResponseData:  v,
		}
	}
	return responses
}

func TestAggregateBooleanSplit(t *testing.T) {
	data := boolData()
	agg := Aggregate(&data, responsesOf("true", "false"))

	require.Len(t, agg.Buckets, 2)
	assert.Equal(t, 2, agg.Total)
	assert.Equal(t, CountBucket{Label: "true", Count: 1, Percent: 50}, agg.Buckets[0])
	assert.Equal(t, CountBucket{Label: "false", Count: 1, Percent: 50}, agg.Buckets[1])
}

func TestAggregateBooleanIgnoresGarbage(t *testing.T) {
	data := boolData()
	agg := Aggregate(&data, responsesOf("true", "banana", "true"))

	assert.Equal(t, 2, agg.Total)
	assert.Equal(t, 2, agg.Buckets[0].Count)
	assert.Equal(t, float64(100), agg.Buckets[0].Percent)
}

func TestAggregateRatingDropsOutOfRange(t *testing.T) {
	data := ratingData()
	agg := Aggregate(&data, responsesOf("1", "5", "5", "9", "0", "-3"))

	require.Len(t, agg.Buckets, 5)
	assert.Equal(t, 3, agg.Total)
	assert.Equal(t, 1, agg.Buckets[0].Count) // "1"
	assert.Equal(t, 2, agg.Buckets[4].Count) // "5"
	assert.InDelta(t, 66.66, agg.Buckets[4].Percent, 0.01)
}

func TestAggregateRatingEmpty(t *testing.T) {
	data := ratingData()
	agg := Aggregate(&data, nil)

	assert.Equal(t, 0, agg.Total)
	for _, bucket := range agg.Buckets {
		assert.Zero(t, bucket.Count)
		assert.Zero(t, bucket.Percent)
	}
}

func TestAggregateMultipleChoiceKeepsOptionOrder(t *testing.T) {
	data := choiceData("go", "rust", "zig")
	agg := Aggregate(&data, responsesOf("rust", "go", "go", "cobol"))

	require.Len(t, agg.Buckets, 3)
	assert.Equal(t, 3, agg.Total)
	assert.Equal(t, "go", agg.Buckets[0].Label)
	assert.Equal(t, 2, agg.Buckets[0].Count)
	assert.Equal(t, 1, agg.Buckets[1].Count)
	assert.Equal(t, 0, agg.Buckets[2].Count)
}

func TestAggregateTextTokenization(t *testing.T) {
	data := textData()
	agg := Aggregate(&data, responsesOf(
		"Great talk, great pacing!",
		"The demos were great. So good.",
	))

	require.NotEmpty(t, agg.Words)
	assert.Equal(t, WordCount{Word: "great", Count: 3}, agg.Words[0])
	for _, w := range agg.Words {
		assert.GreaterOrEqual(t, len([]rune(w.Word)), 3, "short tokens must be dropped")
		assert.NotContains(t, w.Word, ",")
	}
}

func TestAggregateTextTiesBrokenByFirstSeen(t *testing.T) {
	data := textData()
	agg := Aggregate(&data, responsesOf("zebra apple", "zebra apple"))

	require.Len(t, agg.Words, 2)
	assert.Equal(t, "zebra", agg.Words[0].Word)
	assert.Equal(t, "apple", agg.Words[1].Word)
}

func TestAggregateTextTopLimit(t *testing.T) {
	var values []string
	for i := 0; i < 40; i++ {
		values = append(values, fmt.Sprintf("word%02d", i))
	}
	data := textData()
	agg := Aggregate(&data, responsesOf(values...))

	assert.Len(t, agg.Words, topWordLimit)
}

func TestAggregateDeterministicUnderReplayAndShuffle(t *testing.T) {
	data := textData()
	responses := responsesOf(
		"strong opening weak ending",
		"strong demos",
		"weak audio strong slides",
	)
	// Simulate at-least-once delivery: duplicate some rows.
	replayed := append([]models.Response{}, responses...)
	replayed = append(replayed, responses[0], responses[2])

	want := Aggregate(&data, responses)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]models.Response{}, replayed...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		assert.Equal(t, want, Aggregate(&data, shuffled))
	}
}

func TestAggregateDedupesByRowID(t *testing.T) {
	data := boolData()
	rows := responsesOf("true", "false")
	rows = append(rows, rows[0], rows[0])

	agg := Aggregate(&data, rows)
	assert.Equal(t, 2, agg.Total)
	assert.Equal(t, 1, agg.Buckets[0].Count)
}
