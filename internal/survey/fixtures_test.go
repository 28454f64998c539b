package survey

import (
	"context"
	"sync"
	"testing"
	"time"

	"agrosurvey/internal/schema"
	"agrosurvey/internal/store"
)

func testSurvey(t *testing.T) *schema.Survey {
	t.Helper()
	sv, err := schema.NewSurvey("test_v1", []schema.Section{
		{
			ID:    "perfil",
			Title: "Perfil",
			Questions: []schema.Question{
				{ID: "nombre", Type: schema.TypeText, Label: "Nombre"},
				{ID: "edad", Type: schema.TypeSelect, Label: "Edad", Required: true, Options: []schema.Option{
					{Value: "joven", Label: "Joven"},
					{Value: "mayor", Label: "Mayor"},
				}},
				{ID: "usa_ia", Type: schema.TypeRadio, Label: "¿Usa IA?", Options: []schema.Option{
					{Value: "si", Label: "Sí"},
					{Value: "no", Label: "No"},
				}},
			},
		},
		{
			ID:    "ia",
			Title: "IA",
			Questions: []schema.Question{
				{ID: "tecnologias", Type: schema.TypeMultiselect, Label: "Tecnologías", Options: []schema.Option{
					{Value: "drones", Label: "Drones"},
					{Value: "gps", Label: "GPS"},
					{Value: "no_uso", Label: "No uso"},
				}},
				{ID: "satisfaccion", Type: schema.TypeScale, Label: "Satisfacción"},
				{ID: "comentarios", Type: schema.TypeTextarea, Label: "Comentarios"},
			},
		},
	})
	if err != nil {
		t.Fatalf("build survey: %v", err)
	}
	return sv
}

// fakeWriter counts Create calls. When block is set, Create signals started
// and waits for block to close before returning.
type fakeWriter struct {
	mu      sync.Mutex
	calls   int
	records []store.Record
	err     error
	started chan struct{}
	block   chan struct{}
}

func (w *fakeWriter) Create(ctx context.Context, collection string, rec store.Record) (store.Record, error) {
	w.mu.Lock()
	w.calls++
	w.mu.Unlock()

	if w.started != nil {
		w.started <- struct{}{}
	}
	if w.block != nil {
		<-w.block
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return store.Record{}, w.err
	}
	rec.ID = "resp-" + collection
	rec.Timestamp = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	w.records = append(w.records, rec)
	return rec, nil
}

func (w *fakeWriter) Calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

func (w *fakeWriter) setErr(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
}

func newTestSession(t *testing.T, w responseWriter) (*Session, *Engine) {
	t.Helper()
	sv := testSurvey(t)
	engine, err := NewEngine(sv)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return newSession("sess-1", sv, schema.DefaultTaxonomy(), w, "test_v1", time.Now()), engine
}

// fillValid sets a complete location and every required answer.
func fillValid(t *testing.T, s *Session, e *Engine) {
	t.Helper()
	if err := s.SetLocation(schema.Location{Comarca: "tietar", Municipio: "candeleda"}); err != nil {
		t.Fatalf("set location: %v", err)
	}
	if err := e.Apply(s, "edad", []byte(`"joven"`)); err != nil {
		t.Fatalf("answer edad: %v", err)
	}
}
