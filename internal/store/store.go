package store

import (
	"context"
	"errors"
	"time"

	"agrosurvey/internal/schema"
)

// CollectionResponses holds submitted survey responses.
const CollectionResponses = "responses"

var (
	ErrWrite = errors.New("store write failed")
	ErrRead  = errors.New("store read failed")
)

// Record is one persisted document. ID and Timestamp are assigned by the
// store on Create; any values set by the caller are ignored.
type Record struct {
	ID            string          `json:"id"`
	Location      schema.Location `json:"location"`
	Answers       map[string]any  `json:"answers"`
	SurveyVersion string          `json:"surveyVersion"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Store is the document store contract: append-only writes and a full read of
// a collection, newest first.
type Store interface {
	Create(ctx context.Context, collection string, rec Record) (Record, error)
	QueryAll(ctx context.Context, collection string) ([]Record, error)
}

// payload is the JSON body stored per document.
type payload struct {
	Location      schema.Location `json:"location"`
	Answers       map[string]any  `json:"answers"`
	SurveyVersion string          `json:"surveyVersion"`
}

func copyAnswers(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if list, ok := v.([]string); ok {
			v = append([]string(nil), list...)
		}
		out[k] = v
	}
	return out
}
