package schema

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed survey.yaml
var defaultSurveyYAML []byte

//go:embed locations.yaml
var defaultLocationsYAML []byte

// DefaultSurvey returns the built-in survey definition.
func DefaultSurvey() *Survey {
	s, err := LoadSurvey(bytes.NewReader(defaultSurveyYAML))
	if err != nil {
		panic(fmt.Sprintf("embedded survey definition: %v", err))
	}
	return s
}

// DefaultTaxonomy returns the built-in Ávila comarca/municipio taxonomy.
func DefaultTaxonomy() *Taxonomy {
	t, err := LoadTaxonomy(bytes.NewReader(defaultLocationsYAML))
	if err != nil {
		panic(fmt.Sprintf("embedded taxonomy: %v", err))
	}
	return t
}

func LoadSurvey(r io.Reader) (*Survey, error) {
	var raw Survey
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode survey: %w", err)
	}
	return NewSurvey(raw.Version, raw.Sections)
}

func LoadSurveyFile(path string) (*Survey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open survey file: %w", err)
	}
	defer f.Close()
	return LoadSurvey(f)
}

func LoadTaxonomy(r io.Reader) (*Taxonomy, error) {
	var t Taxonomy
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("decode taxonomy: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}
