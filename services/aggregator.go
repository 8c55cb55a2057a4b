package services

import (
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"livepoll/models"
)

const topWordLimit = 30

const minWordLength = 3

type CountBucket struct {
	Label   string  `json:"label"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

type Aggregation struct {
	QuestionType string        `json:"question_type"`
	Total        int           `json:"total"`
	Buckets      []CountBucket `json:"buckets,omitempty"`
	Words        []WordCount   `json:"words,omitempty"`
}

// Aggregate is a pure function of the question config and the full current
// response set. It recomputes from scratch on every call; there is no
// incremental accumulator to go wrong under out-of-order or replayed
// delivery. Identical response sets always yield identical output: rows are
// sorted by id and de-duplicated before counting, so the order they were
// observed in cannot leak into the result.
func Aggregate(data *models.QuestionData, responses []models.Response) *Aggregation {
	rows := dedupeResponses(responses)

	switch data.Type {
	case models.QuestionTypeBoolean:
		return aggregateBoolean(rows)
	case models.QuestionTypeRating:
		return aggregateRating(data.Rating, rows)
	case models.QuestionTypeMultipleChoice:
		return aggregateMultipleChoice(data.MultipleChoice, rows)
	case models.QuestionTypeText:
		return aggregateText(rows)
	}
	return &Aggregation{QuestionType: data.Type}
}

// dedupeResponses drops replayed rows by identity and fixes a canonical
// order, making the result independent of how the rows arrived.
func dedupeResponses(responses []models.Response) []models.Response {
	sorted := make([]models.Response, len(responses))
	copy(sorted, responses)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	rows := sorted[:0]
	seen := make(map[uint]bool, len(sorted))
	for _, r := range sorted {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		rows = append(rows, r)
	}
	return rows
}

func aggregateBoolean(rows []models.Response) *Aggregation {
	trueCount, falseCount := 0, 0
	for _, r := range rows {
		value, err := strconv.ParseBool(strings.TrimSpace(r.ResponseData))
		if err != nil {
			continue
		}
		if value {
			trueCount++
		} else {
			falseCount++
		}
	}

	total := trueCount + falseCount
	return &Aggregation{
		QuestionType: models.QuestionTypeBoolean,
		Total:        total,
		Buckets: []CountBucket{
			{Label: "true", Count: trueCount, Percent: percentage(trueCount, total)},
			{Label: "false", Count: falseCount, Percent: percentage(falseCount, total)},
		},
	}
}

func aggregateRating(config *models.RatingConfig, rows []models.Response) *Aggregation {
	min, max := config.Bounds()
	counts := make(map[int]int)
	total := 0
	for _, r := range rows {
		rating, err := strconv.Atoi(strings.TrimSpace(r.ResponseData))
		if err != nil || rating < min || rating > max {
			continue // out-of-range values are dropped, not errors
		}
		counts[rating]++
		total++
	}

	buckets := make([]CountBucket, 0, max-min+1)
	for v := min; v <= max; v++ {
		buckets = append(buckets, CountBucket{
			Label:   strconv.Itoa(v),
			Count:   counts[v],
			Percent: percentage(counts[v], total),
		})
	}
	return &Aggregation{
		QuestionType: models.QuestionTypeRating,
		Total:        total,
		Buckets:      buckets,
	}
}

func aggregateMultipleChoice(config *models.MultipleChoiceConfig, rows []models.Response) *Aggregation {
	counts := make(map[string]int, len(config.Options))
	valid := make(map[string]bool, len(config.Options))
	for _, opt := range config.Options {
		valid[opt] = true
	}

	total := 0
	for _, r := range rows {
		value := strings.TrimSpace(r.ResponseData)
		if !valid[value] {
			continue
		}
		counts[value]++
		total++
	}

	buckets := make([]CountBucket, 0, len(config.Options))
	for _, opt := range config.Options {
		buckets = append(buckets, CountBucket{
			Label:   opt,
			Count:   counts[opt],
			Percent: percentage(counts[opt], total),
		})
	}
	return &Aggregation{
		QuestionType: models.QuestionTypeMultipleChoice,
		Total:        total,
		Buckets:      buckets,
	}
}

func aggregateText(rows []models.Response) *Aggregation {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)

	for _, r := range rows {
		for _, word := range tokenize(r.ResponseData) {
			if _, ok := counts[word]; !ok {
				firstSeen[word] = len(firstSeen)
			}
			counts[word]++
		}
	}

	words := make([]WordCount, 0, len(counts))
	for word, count := range counts {
		words = append(words, WordCount{Word: word, Count: count})
	}
	sort.Slice(words, func(i, j int) bool {
		if words[i].Count != words[j].Count {
			return words[i].Count > words[j].Count
		}
		return firstSeen[words[i].Word] < firstSeen[words[j].Word]
	})
	if len(words) > topWordLimit {
		words = words[:topWordLimit]
	}

	return &Aggregation{
		QuestionType: models.QuestionTypeText,
		Total:        len(rows),
		Words:        words,
	}
}

// tokenize lower-cases, strips punctuation, splits on whitespace and drops
// tokens too short to be interesting.
func tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return r
		default:
			return ' '
		}
	}, text)

	var tokens []string
	for _, tok := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(tok) < minWordLength {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

func percentage(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) * 100 / float64(total)
}
