package app

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"agrosurvey/internal/analytics"
	"agrosurvey/internal/auth"
	"agrosurvey/internal/schema"
	"agrosurvey/internal/store"
	"agrosurvey/internal/survey"
)

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestRouter(t *testing.T, cfg Config) (http.Handler, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	sv := schema.DefaultSurvey()
	tax := schema.DefaultTaxonomy()

	surveySvc, err := survey.NewService(survey.ServiceConfig{
		Survey:        sv,
		Taxonomy:      tax,
		Writer:        mem,
		SurveyVersion: "v1_MVP",
	})
	if err != nil {
		t.Fatalf("survey service: %v", err)
	}

	router := NewRouter(cfg, Dependencies{
		Survey:    surveySvc,
		Analytics: analytics.NewService(mem, sv, tax, nil),
		Auth:      auth.NewService(nil, auth.ServiceConfig{}),
	})
	return router, mem
}

func do(t *testing.T, h http.Handler, method, target, body string) (int, envelope) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode: %v (body=%s)", method, target, err, w.Body.String())
		}
	}
	return w.Code, env
}

func TestRouterPublicRoutes(t *testing.T) {
	router, _ := newTestRouter(t, Config{AuthRateLimitPerMin: 60, SubmitRateLimitPerMin: 60})

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
	}{
		{name: "healthz", method: http.MethodGet, target: "/healthz", wantStatus: http.StatusOK},
		{name: "metrics", method: http.MethodGet, target: "/metrics", wantStatus: http.StatusOK},
		{name: "survey", method: http.MethodGet, target: "/api/v1/survey", wantStatus: http.StatusOK},
		{name: "locations", method: http.MethodGet, target: "/api/v1/locations", wantStatus: http.StatusOK},
		{name: "municipios", method: http.MethodGet, target: "/api/v1/locations/gredos/municipios", wantStatus: http.StatusOK},
		{name: "dashboard", method: http.MethodGet, target: "/api/v1/dashboard", wantStatus: http.StatusOK},
		{name: "unknown_session", method: http.MethodGet, target: "/api/v1/sessions/missing", wantStatus: http.StatusNotFound},
		{name: "auth_me_unauthorized", method: http.MethodGet, target: "/api/v1/auth/me", wantStatus: http.StatusUnauthorized},
		{name: "admin_responses_unauthorized", method: http.MethodGet, target: "/api/v1/admin/responses", wantStatus: http.StatusUnauthorized},
		{name: "login_invalid_body", method: http.MethodPost, target: "/api/v1/auth/login", body: "{", wantStatus: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if code, _ := do(t, router, tc.method, tc.target, tc.body); code != tc.wantStatus {
				t.Fatalf("%s %s: got status %d, want %d", tc.method, tc.target, code, tc.wantStatus)
			}
		})
	}
}

func TestRouterSurveyFlow(t *testing.T) {
	router, mem := newTestRouter(t, Config{AuthRateLimitPerMin: 60, SubmitRateLimitPerMin: 60})

	code, env := do(t, router, http.MethodPost, "/api/v1/sessions", "")
	if code != http.StatusCreated {
		t.Fatalf("start: got %d", code)
	}
	var snap survey.Snapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil || snap.ID == "" {
		t.Fatalf("start snapshot: %v %+v", err, snap)
	}
	base := "/api/v1/sessions/" + snap.ID

	code, env = do(t, router, http.MethodPost, base+"/submit", "")
	if code != http.StatusUnprocessableEntity || env.Error == nil || env.Error.Code != "validation_failed" {
		t.Fatalf("empty submit: got %d %+v", code, env.Error)
	}

	if code, _ := do(t, router, http.MethodPut, base+"/location", `{"comarca":"tietar","municipio":"candeleda"}`); code != http.StatusOK {
		t.Fatalf("location: got %d", code)
	}

	answers := map[string]string{
		"edad_rango":            `"35_54"`,
		"formacion":             `"fp_agraria"`,
		"tipo_explotacion":      `"mixta"`,
		"superficie":            `"10_50"`,
		"orientacion_principal": `"Castaño y caprino"`,
		"tipo_internet":         `"4g_5g"`,
		"frecuencia_uso":        `"diario"`,
		"competencia_digital":   `"alto"`,
		"conocimiento_ia":       `"medio"`,
		"ia_mejora_prod":        `"si"`,
		"tecnologias_ia":        `"riego_ia"`,
		"adoptaria_con_ayudas":  `"depende"`,
		"evolucion_prod":        `"aumentado"`,
		"causas_cambio_prod":    `"Riego por goteo"`,
		"impacto_ia_potencial":  `"positivo"`,
	}
	for qid, raw := range answers {
		if code, env := do(t, router, http.MethodPut, base+"/answers/"+qid, `{"value":`+raw+`}`); code != http.StatusOK {
			t.Fatalf("answer %s: got %d %+v", qid, code, env.Error)
		}
	}
	if code, _ := do(t, router, http.MethodPut, base+"/answers/no_such_question", `{"value":"x"}`); code != http.StatusNotFound {
		t.Fatalf("unknown question: got %d", code)
	}

	if code, env := do(t, router, http.MethodPost, base+"/submit", ""); code != http.StatusCreated {
		t.Fatalf("submit: got %d %+v", code, env.Error)
	}
	if code, _ := do(t, router, http.MethodPost, base+"/submit", ""); code != http.StatusConflict {
		t.Fatalf("second submit: got %d, want 409", code)
	}
	if code, _ := do(t, router, http.MethodPut, base+"/answers/edad_rango", `{"value":"menor_35"}`); code != http.StatusConflict {
		t.Fatalf("edit after submit: got %d, want 409", code)
	}
	if n := mem.Len(store.CollectionResponses); n != 1 {
		t.Fatalf("expected exactly one stored response, got %d", n)
	}

	code, env = do(t, router, http.MethodGet, "/api/v1/dashboard?comarca=tietar", "")
	if code != http.StatusOK {
		t.Fatalf("dashboard: got %d", code)
	}
	var view analytics.DashboardView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if view.Stats.Total != 1 || view.Stats.PercentUsingAI != 100 || view.Stats.UniqueMunicipios != 1 {
		t.Fatalf("unexpected stats: %+v", view.Stats)
	}
}

func TestRouterSubmitRateLimited(t *testing.T) {
	router, _ := newTestRouter(t, Config{AuthRateLimitPerMin: 60, SubmitRateLimitPerMin: 2})

	for i := 0; i < 2; i++ {
		if code, _ := do(t, router, http.MethodPost, "/api/v1/sessions", ""); code != http.StatusCreated {
			t.Fatalf("start %d: got %d", i, code)
		}
	}
	code, env := do(t, router, http.MethodPost, "/api/v1/sessions", "")
	if code != http.StatusTooManyRequests || env.Error == nil {
		t.Fatalf("expected 429, got %d", code)
	}
}

func TestRouterCSRFEnforced(t *testing.T) {
	router, _ := newTestRouter(t, Config{AuthRateLimitPerMin: 60, SubmitRateLimitPerMin: 60, CSRFEnforced: true})

	if code, _ := do(t, router, http.MethodPost, "/api/v1/sessions", ""); code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf token, got %d", code)
	}
	if code, _ := do(t, router, http.MethodGet, "/api/v1/survey", ""); code != http.StatusOK {
		t.Fatalf("reads must pass without csrf token, got %d", code)
	}
}
