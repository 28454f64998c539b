package survey

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"agrosurvey/internal/schema"
)

// control turns one edit payload into the next stored value for a question.
type control interface {
	apply(q schema.Question, current any, raw json.RawMessage) (any, error)
}

type choiceControl struct{}

type multiChoiceControl struct{}

type scaleControl struct {
	min, max int
}

type textControl struct{}

func defaultControls() map[schema.QuestionType]control {
	return map[schema.QuestionType]control{
		schema.TypeSelect:      choiceControl{},
		schema.TypeRadio:       choiceControl{},
		schema.TypeMultiselect: multiChoiceControl{},
		schema.TypeScale:       scaleControl{min: 1, max: 5},
		schema.TypeText:        textControl{},
		schema.TypeTextarea:    textControl{},
	}
}

// Engine applies edits to a session's answers, one control per question type.
type Engine struct {
	survey   *schema.Survey
	controls map[schema.QuestionType]control
}

// NewEngine fails when the survey uses a question type that has no control.
func NewEngine(s *schema.Survey) (*Engine, error) {
	controls := defaultControls()
	for _, q := range s.Questions() {
		if _, ok := controls[q.Type]; !ok {
			return nil, fmt.Errorf("%w: no control for question %q of type %q", schema.ErrInvalidSchema, q.ID, q.Type)
		}
	}
	return &Engine{survey: s, controls: controls}, nil
}

func (e *Engine) Survey() *schema.Survey {
	return e.survey
}

// Apply decodes raw according to the question's type and writes the result
// into the session's answers.
func (e *Engine) Apply(s *Session, questionID string, raw json.RawMessage) error {
	q, ok := e.survey.Question(strings.TrimSpace(questionID))
	if !ok {
		return fmt.Errorf("%w: %s", schema.ErrUnknownQuestion, questionID)
	}
	c := e.controls[q.Type]
	return s.update(func(answers map[string]any) error {
		next, err := c.apply(q, answers[q.ID], raw)
		if err != nil {
			return err
		}
		answers[q.ID] = next
		return nil
	})
}

// Option membership is not checked; the aggregator labels unknown values
// with the value itself.
func (choiceControl) apply(q schema.Question, _ any, raw json.RawMessage) (any, error) {
	return decodeString(q, raw)
}

func (multiChoiceControl) apply(q schema.Question, current any, raw json.RawMessage) (any, error) {
	value, err := decodeString(q, raw)
	if err != nil {
		return nil, err
	}
	if value == "" {
		return nil, validationErr("empty option value", q.ID)
	}
	return toggle(stringList(current), value), nil
}

func (c scaleControl) apply(q schema.Question, _ any, raw json.RawMessage) (any, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, validationErr("expected a number", q.ID)
	}
	if n != math.Trunc(n) || n < float64(c.min) || n > float64(c.max) {
		return nil, validationErr(fmt.Sprintf("expected an integer between %d and %d", c.min, c.max), q.ID)
	}
	return int(n), nil
}

func (textControl) apply(q schema.Question, _ any, raw json.RawMessage) (any, error) {
	return decodeString(q, raw)
}

func decodeString(q schema.Question, raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", validationErr("missing value", q.ID)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", validationErr("expected a string", q.ID)
	}
	return s, nil
}

// toggle removes value when present and appends it otherwise. The input
// slice is never modified.
func toggle(list []string, value string) []string {
	out := make([]string, 0, len(list)+1)
	found := false
	for _, v := range list {
		if v == value {
			found = true
			continue
		}
		out = append(out, v)
	}
	if !found {
		out = append(out, value)
	}
	return out
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
