package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSchema   = errors.New("invalid survey schema")
	ErrUnknownQuestion = errors.New("unknown question")
)

type QuestionType string

const (
	TypeText        QuestionType = "text"
	TypeSelect      QuestionType = "select"
	TypeTextarea    QuestionType = "textarea"
	TypeMultiselect QuestionType = "multiselect"
	TypeRadio       QuestionType = "radio"
	TypeScale       QuestionType = "scale"
)

// QuestionTypes lists every type a survey definition may use.
var QuestionTypes = []QuestionType{
	TypeText,
	TypeSelect,
	TypeTextarea,
	TypeMultiselect,
	TypeRadio,
	TypeScale,
}

// HasOptions reports whether questions of this type carry an option list.
func (t QuestionType) HasOptions() bool {
	switch t {
	case TypeSelect, TypeRadio, TypeMultiselect:
		return true
	default:
		return false
	}
}

type Option struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

type Question struct {
	ID          string       `json:"id" yaml:"id"`
	Type        QuestionType `json:"type" yaml:"type"`
	Label       string       `json:"label" yaml:"label"`
	Placeholder string       `json:"placeholder,omitempty" yaml:"placeholder"`
	Options     []Option     `json:"options,omitempty" yaml:"options"`
	Required    bool         `json:"required" yaml:"required"`
}

// OptionLabel returns the display label for value, or value itself when the
// question has no such option.
func (q Question) OptionLabel(value string) string {
	for _, o := range q.Options {
		if o.Value == value {
			return o.Label
		}
	}
	return value
}

type Section struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// Survey is an immutable survey definition. Build it with NewSurvey (or one of
// the loaders) so the question index is populated.
type Survey struct {
	Version  string    `json:"version" yaml:"version"`
	Sections []Section `json:"sections" yaml:"sections"`

	index map[string]Question
}

func NewSurvey(version string, sections []Section) (*Survey, error) {
	s := &Survey{Version: strings.TrimSpace(version), Sections: sections}
	if err := s.build(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Survey) build() error {
	if len(s.Sections) == 0 {
		return fmt.Errorf("%w: no sections", ErrInvalidSchema)
	}
	s.index = make(map[string]Question)
	sectionIDs := make(map[string]struct{}, len(s.Sections))
	for _, sec := range s.Sections {
		if strings.TrimSpace(sec.ID) == "" {
			return fmt.Errorf("%w: section without id", ErrInvalidSchema)
		}
		if _, dup := sectionIDs[sec.ID]; dup {
			return fmt.Errorf("%w: duplicate section %q", ErrInvalidSchema, sec.ID)
		}
		sectionIDs[sec.ID] = struct{}{}

		for _, q := range sec.Questions {
			if err := validateQuestion(q); err != nil {
				return fmt.Errorf("%w: section %q: %v", ErrInvalidSchema, sec.ID, err)
			}
			if _, dup := s.index[q.ID]; dup {
				return fmt.Errorf("%w: duplicate question %q", ErrInvalidSchema, q.ID)
			}
			s.index[q.ID] = q
		}
	}
	return nil
}

func validateQuestion(q Question) error {
	if strings.TrimSpace(q.ID) == "" {
		return errors.New("question without id")
	}
	known := false
	for _, t := range QuestionTypes {
		if q.Type == t {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("question %q: unsupported type %q", q.ID, q.Type)
	}
	if q.Type.HasOptions() {
		if len(q.Options) == 0 {
			return fmt.Errorf("question %q: %s requires options", q.ID, q.Type)
		}
		seen := make(map[string]struct{}, len(q.Options))
		for _, o := range q.Options {
			if strings.TrimSpace(o.Value) == "" {
				return fmt.Errorf("question %q: option without value", q.ID)
			}
			if _, dup := seen[o.Value]; dup {
				return fmt.Errorf("question %q: duplicate option %q", q.ID, o.Value)
			}
			seen[o.Value] = struct{}{}
		}
	}
	return nil
}

// Question looks up a question by id.
func (s *Survey) Question(id string) (Question, bool) {
	q, ok := s.index[id]
	return q, ok
}

// Questions returns every question in section order.
func (s *Survey) Questions() []Question {
	out := make([]Question, 0, len(s.index))
	for _, sec := range s.Sections {
		out = append(out, sec.Questions...)
	}
	return out
}

// Required returns the ids of required questions in section order.
func (s *Survey) Required() []string {
	var ids []string
	for _, sec := range s.Sections {
		for _, q := range sec.Questions {
			if q.Required {
				ids = append(ids, q.ID)
			}
		}
	}
	return ids
}
