package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	QuestionTypeBoolean        = "boolean"
	QuestionTypeRating         = "rating"
	QuestionTypeMultipleChoice = "multiple_choice"
	QuestionTypeText           = "text"
)

// Default rating bounds when the authoring side leaves them unset.
const (
	DefaultRatingMin = 1
	DefaultRatingMax = 5
)

// QuestionData is the type-tagged payload supplied by the authoring subsystem.
// Exactly one config field matching Type must be present; unknown or malformed
// payloads are rejected at creation rather than failing to render later.
type QuestionData struct {
	Type           string                `json:"type"`
	Boolean        *BooleanConfig        `json:"boolean,omitempty"`
	Rating         *RatingConfig         `json:"rating,omitempty"`
	MultipleChoice *MultipleChoiceConfig `json:"multiple_choice,omitempty"`
	Text           *TextConfig           `json:"text,omitempty"`
}

type BooleanConfig struct {
	Prompt     string `json:"prompt"`
	TrueLabel  string `json:"true_label,omitempty"`
	FalseLabel string `json:"false_label,omitempty"`
}

type RatingConfig struct {
	Prompt string `json:"prompt"`
	Min    int    `json:"min,omitempty"`
	Max    int    `json:"max,omitempty"`
}

type MultipleChoiceConfig struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

type TextConfig struct {
	Prompt    string `json:"prompt"`
	MaxLength int    `json:"max_length,omitempty"`
}

// Bounds returns the configured rating scale, falling back to the 1..5 default.
func (c *RatingConfig) Bounds() (int, int) {
	min, max := c.Min, c.Max
	if min == 0 && max == 0 {
		return DefaultRatingMin, DefaultRatingMax
	}
	return min, max
}

func ParseQuestionData(raw []byte) (*QuestionData, error) {
	var data QuestionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("malformed question data: %v", err)
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	return &data, nil
}

func (d *QuestionData) Validate() error {
	switch d.Type {
	case QuestionTypeBoolean:
		if d.Boolean == nil {
			return errors.New("boolean question missing config")
		}
	case QuestionTypeRating:
		if d.Rating == nil {
			return errors.New("rating question missing config")
		}
		min, max := d.Rating.Bounds()
		if min >= max {
			return fmt.Errorf("rating bounds %d..%d are not a valid scale", min, max)
		}
	case QuestionTypeMultipleChoice:
		if d.MultipleChoice == nil || len(d.MultipleChoice.Options) < 2 {
			return errors.New("multiple choice question needs at least two options")
		}
		seen := make(map[string]bool, len(d.MultipleChoice.Options))
		for _, opt := range d.MultipleChoice.Options {
			if opt == "" {
				return errors.New("multiple choice option must not be empty")
			}
			if seen[opt] {
				return fmt.Errorf("duplicate multiple choice option %q", opt)
			}
			seen[opt] = true
		}
	case QuestionTypeText:
		if d.Text == nil {
			return errors.New("text question missing config")
		}
		if d.Text.MaxLength < 0 {
			return errors.New("text max_length must not be negative")
		}
	case "":
		return errors.New("question type missing")
	default:
		return fmt.Errorf("unknown question type %q", d.Type)
	}
	return nil
}
