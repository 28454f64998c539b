package analytics

import (
	"context"
	"fmt"
	"time"

	"agrosurvey/internal/schema"
	"agrosurvey/internal/store"

	"go.uber.org/zap"
)

const (
	publicRecentRows  = 5
	defaultAdminLimit = 50
	maxAdminLimit     = 500
)

type responseReader interface {
	QueryAll(ctx context.Context, collection string) ([]store.Record, error)
}

type Service struct {
	reader responseReader
	agg    *Aggregator
	survey *schema.Survey
	tax    *schema.Taxonomy
	logger *zap.Logger
}

// LabeledValue pairs a stored id with its display label.
type LabeledValue struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type ResponseRow struct {
	ID                string       `json:"id"`
	SubmittedAt       time.Time    `json:"submitted_at"`
	Comarca           LabeledValue `json:"comarca"`
	Municipio         LabeledValue `json:"municipio"`
	AgeBand           LabeledValue `json:"age_band"`
	DigitalCompetence LabeledValue `json:"digital_competence"`
	Sector            LabeledValue `json:"sector"`
	FarmSize          LabeledValue `json:"farm_size"`
	UsesAI            bool         `json:"uses_ai"`
	SurveyVersion     string       `json:"survey_version"`
}

type DashboardView struct {
	Stats  DerivedStats  `json:"stats"`
	Recent []ResponseRow `json:"recent"`
}

type ResponseList struct {
	Filters          Filters       `json:"filters"`
	Total            int           `json:"total"`
	UniqueMunicipios int           `json:"unique_municipios"`
	Rows             []ResponseRow `json:"rows"`
}

func NewService(reader responseReader, sv *schema.Survey, tax *schema.Taxonomy, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		reader: reader,
		agg:    NewAggregator(sv, tax),
		survey: sv,
		tax:    tax,
		logger: logger,
	}
}

// load reads the full response set. Every call hits the store; a failed read
// is returned as is and no earlier result is substituted.
func (s *Service) load(ctx context.Context) ([]store.Record, error) {
	records, err := s.reader.QueryAll(ctx, store.CollectionResponses)
	if err != nil {
		s.logger.Error("load responses failed", zap.Error(err))
		return nil, fmt.Errorf("load responses: %w", err)
	}
	return records, nil
}

func (s *Service) Dashboard(ctx context.Context, f Filters) (*DashboardView, error) {
	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	stats := s.agg.Aggregate(records, f)
	recent := s.rows(Filter(records, f), publicRecentRows)
	for i := range recent {
		recent[i].ID = ""
		recent[i].Municipio = LabeledValue{}
	}
	return &DashboardView{Stats: stats, Recent: recent}, nil
}

// Responses lists filtered responses newest first for the admin table.
func (s *Service) Responses(ctx context.Context, f Filters, limit int) (*ResponseList, error) {
	if limit <= 0 {
		limit = defaultAdminLimit
	}
	if limit > maxAdminLimit {
		limit = maxAdminLimit
	}
	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	filtered := Filter(records, f)
	return &ResponseList{
		Filters:          f,
		Total:            len(filtered),
		UniqueMunicipios: uniqueMunicipios(filtered),
		Rows:             s.rows(filtered, limit),
	}, nil
}

func (s *Service) rows(records []store.Record, limit int) []ResponseRow {
	if len(records) > limit {
		records = records[:limit]
	}
	out := make([]ResponseRow, 0, len(records))
	for _, r := range records {
		sector := CanonicalSector(r.Answers)
		out = append(out, ResponseRow{
			ID:                r.ID,
			SubmittedAt:       r.Timestamp,
			Comarca:           LabeledValue{Value: r.Location.Comarca, Label: s.tax.FindComarca(r.Location.Comarca)},
			Municipio:         LabeledValue{Value: r.Location.Municipio, Label: s.tax.FindMunicipio(r.Location.Comarca, r.Location.Municipio)},
			AgeBand:           s.label("edad_rango", asString(r.Answers["edad_rango"])),
			DigitalCompetence: s.label(questionCompetence, asString(r.Answers[questionCompetence])),
			Sector:            s.label(questionSector, sector),
			FarmSize:          s.label("superficie", asString(r.Answers["superficie"])),
			UsesAI:            usesAI(r.Answers),
			SurveyVersion:     r.SurveyVersion,
		})
	}
	return out
}

func (s *Service) label(questionID, value string) LabeledValue {
	if value == "" {
		return LabeledValue{}
	}
	q, ok := s.survey.Question(questionID)
	if !ok {
		return LabeledValue{Value: value, Label: value}
	}
	return LabeledValue{Value: value, Label: q.OptionLabel(value)}
}
