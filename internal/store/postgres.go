package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PostgresStore persists documents as JSONB rows in survey_documents.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, collection string, rec Record) (Record, error) {
	if strings.TrimSpace(collection) == "" {
		return Record{}, fmt.Errorf("%w: empty collection", ErrWrite)
	}
	body, err := json.Marshal(payload{
		Location:      rec.Location,
		Answers:       rec.Answers,
		SurveyVersion: rec.SurveyVersion,
	})
	if err != nil {
		return Record{}, fmt.Errorf("%w: encode payload: %w", ErrWrite, err)
	}

	rec.ID = uuid.NewString()
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO survey_documents (id, collection, payload, created_at)
		VALUES ($1, $2, $3::jsonb, now())
		RETURNING created_at
	`, rec.ID, collection, string(body)).Scan(&rec.Timestamp)
	if err != nil {
		return Record{}, fmt.Errorf("%w: insert document: %w", ErrWrite, err)
	}
	rec.Timestamp = rec.Timestamp.UTC()
	rec.Answers = copyAnswers(rec.Answers)
	return rec, nil
}

// QueryAll returns every document of a collection, newest first. Rows whose
// payload does not decode are returned with empty answers so aggregation can
// count them instead of failing the whole read.
func (s *PostgresStore) QueryAll(ctx context.Context, collection string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payload, created_at
		FROM survey_documents
		WHERE collection = $1
		ORDER BY created_at DESC, id
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("%w: query documents: %w", ErrRead, err)
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		var (
			rec Record
			raw []byte
		)
		if err := rows.Scan(&rec.ID, &raw, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: scan document: %w", ErrRead, err)
		}
		var p payload
		if err := json.Unmarshal(raw, &p); err == nil {
			rec.Location = p.Location
			rec.Answers = p.Answers
			rec.SurveyVersion = p.SurveyVersion
		}
		if rec.Answers == nil {
			rec.Answers = map[string]any{}
		}
		rec.Timestamp = rec.Timestamp.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate documents: %w", ErrRead, err)
	}
	return out, nil
}
