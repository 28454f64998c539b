package analytics

import (
	"math"
	"sort"
	"strings"

	"agrosurvey/internal/schema"
	"agrosurvey/internal/store"
)

const (
	questionTechnologies = "tecnologias_ia"
	questionImprovements = "mejoras_ia"
	questionBarriers     = "barreras_ia"
	questionCompetence   = "competencia_digital"
	questionProductivity = "evolucion_prod"
	questionDigitalTools = "herramientas_digitales"
	questionInternet     = "tipo_internet"
	questionSector       = "tipo_explotacion"
	legacySectorKey      = "sector"

	noAIValue         = "no_uso"
	noImprovement     = "ninguna"
	chartTopN         = 5
	usesAIValue       = "usa_ia"
	doesNotUseAIValue = "no_usa_ia"
)

var competenceScores = map[string]float64{
	"muy_bajo": 1,
	"bajo":     2,
	"medio":    3,
	"alto":     4,
	"muy_alto": 5,
}

var legacySectors = map[string]string{
	"agricultura": "agricola",
	"ganaderia":   "ganadera",
	"mixto":       "mixta",
}

type Filters struct {
	Comarca string `json:"comarca,omitempty"`
	Sector  string `json:"sector,omitempty"`
}

type Bucket struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

type Charts struct {
	Technologies []Bucket `json:"technologies"`
	Improvements []Bucket `json:"improvements"`
	Barriers     []Bucket `json:"barriers"`
	Productivity []Bucket `json:"productivity"`
	DigitalTools []Bucket `json:"digital_tools"`
	Internet     []Bucket `json:"internet"`
	AIUsage      []Bucket `json:"ai_usage"`
	Comarcas     []Bucket `json:"comarcas"`
}

type DerivedStats struct {
	Filters              Filters             `json:"filters"`
	Total                int                 `json:"total"`
	UniqueMunicipios     int                 `json:"unique_municipios"`
	PercentUsingAI       int                 `json:"percent_using_ai"`
	AvgDigitalCompetence float64             `json:"avg_digital_competence"`
	Distributions        map[string][]Bucket `json:"distributions"`
	Charts               Charts              `json:"charts"`
	// Malformed counts, per question id, answers whose shape did not match
	// the question type. Those answers are treated as absent.
	Malformed map[string]int `json:"malformed"`
}

// Aggregator derives dashboard statistics from stored responses. It holds
// only immutable lookups, so one value can serve concurrent requests.
type Aggregator struct {
	survey   *schema.Survey
	taxonomy *schema.Taxonomy
}

func NewAggregator(sv *schema.Survey, tax *schema.Taxonomy) *Aggregator {
	return &Aggregator{survey: sv, taxonomy: tax}
}

// CanonicalSector returns the farm type of a response. Older documents only
// carry a "sector" answer with the legacy vocabulary, which is mapped onto
// the tipo_explotacion values.
func CanonicalSector(answers map[string]any) string {
	if v, ok := answers[questionSector].(string); ok && strings.TrimSpace(v) != "" {
		return normalizeSector(v)
	}
	if v, ok := answers[legacySectorKey].(string); ok {
		return normalizeSector(v)
	}
	return ""
}

func normalizeSector(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if mapped, ok := legacySectors[v]; ok {
		return mapped
	}
	return v
}

// Filter keeps responses matching every non-empty filter, preserving order.
func Filter(records []store.Record, f Filters) []store.Record {
	comarca := strings.TrimSpace(f.Comarca)
	sector := normalizeSector(f.Sector)
	out := make([]store.Record, 0, len(records))
	for _, r := range records {
		if comarca != "" && r.Location.Comarca != comarca {
			continue
		}
		if sector != "" && CanonicalSector(r.Answers) != sector {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Aggregate computes KPIs, per-question distributions and chart series for
// the responses matching f. It never fails: answers with an unexpected shape
// are skipped and tallied in Malformed.
func (a *Aggregator) Aggregate(records []store.Record, f Filters) DerivedStats {
	filtered := Filter(records, f)
	stats := DerivedStats{
		Filters:       f,
		Total:         len(filtered),
		Distributions: make(map[string][]Bucket),
		Malformed:     make(map[string]int),
	}

	stats.UniqueMunicipios = uniqueMunicipios(filtered)
	stats.PercentUsingAI = percentUsingAI(filtered)
	stats.AvgDigitalCompetence = avgCompetence(filtered)

	for _, q := range a.survey.Questions() {
		if !q.Type.HasOptions() {
			continue
		}
		stats.Distributions[q.ID] = distribution(filtered, q, stats.Malformed)
	}

	stats.Charts = Charts{
		Technologies: topN(without(stats.Distributions[questionTechnologies], noAIValue), chartTopN),
		Improvements: topN(without(stats.Distributions[questionImprovements], noImprovement), chartTopN),
		Barriers:     topN(stats.Distributions[questionBarriers], chartTopN),
		Productivity: nonNil(stats.Distributions[questionProductivity]),
		DigitalTools: topN(stats.Distributions[questionDigitalTools], chartTopN),
		Internet:     nonNil(stats.Distributions[questionInternet]),
		AIUsage:      aiUsage(filtered),
		Comarcas:     a.comarcaCounts(filtered),
	}
	return stats
}

func uniqueMunicipios(records []store.Record) int {
	seen := make(map[string]struct{})
	for _, r := range records {
		if m := strings.TrimSpace(r.Location.Municipio); m != "" {
			seen[m] = struct{}{}
		}
	}
	return len(seen)
}

// usesAI reports whether the technologies answer is a non-empty list other
// than exactly ["no_uso"]. Malformed answers count as not using AI; the
// distribution pass tallies them.
func usesAI(answers map[string]any) bool {
	list, ok := asStringList(answers[questionTechnologies])
	if !ok || len(list) == 0 {
		return false
	}
	return !(len(list) == 1 && list[0] == noAIValue)
}

func percentUsingAI(records []store.Record) int {
	if len(records) == 0 {
		return 0
	}
	users := 0
	for _, r := range records {
		if usesAI(r.Answers) {
			users++
		}
	}
	return int(math.Round(100 * float64(users) / float64(len(records))))
}

func avgCompetence(records []store.Record) float64 {
	var sum float64
	n := 0
	for _, r := range records {
		score, ok := competenceScores[asString(r.Answers[questionCompetence])]
		if !ok {
			continue
		}
		sum += score
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Round(sum/float64(n)*10) / 10
}

// distribution counts option values for one question. Buckets are ordered by
// count descending; equal counts keep the order values were first seen.
func distribution(records []store.Record, q schema.Question, malformed map[string]int) []Bucket {
	counts := make(map[string]int)
	order := make([]string, 0)
	add := func(v string) {
		if v == "" {
			return
		}
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}

	for _, r := range records {
		v, present := r.Answers[q.ID]
		if !present || v == nil {
			continue
		}
		if q.Type == schema.TypeMultiselect {
			list, ok := asStringList(v)
			if !ok {
				malformed[q.ID]++
				continue
			}
			for _, item := range dedupe(list) {
				add(item)
			}
			continue
		}
		s, ok := v.(string)
		if !ok {
			malformed[q.ID]++
			continue
		}
		add(s)
	}

	out := make([]Bucket, 0, len(order))
	for _, v := range order {
		out = append(out, Bucket{Value: v, Label: q.OptionLabel(v), Count: counts[v]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func aiUsage(records []store.Record) []Bucket {
	yes := 0
	for _, r := range records {
		if usesAI(r.Answers) {
			yes++
		}
	}
	return []Bucket{
		{Value: usesAIValue, Label: "Usa IA", Count: yes},
		{Value: doesNotUseAIValue, Label: "No usa IA", Count: len(records) - yes},
	}
}

func (a *Aggregator) comarcaCounts(records []store.Record) []Bucket {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, r := range records {
		c := strings.TrimSpace(r.Location.Comarca)
		if c == "" {
			continue
		}
		if _, seen := counts[c]; !seen {
			order = append(order, c)
		}
		counts[c]++
	}
	out := make([]Bucket, 0, len(order))
	for _, c := range order {
		out = append(out, Bucket{Value: c, Label: a.taxonomy.FindComarca(c), Count: counts[c]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func without(buckets []Bucket, value string) []Bucket {
	out := make([]Bucket, 0, len(buckets))
	for _, b := range buckets {
		if b.Value != value {
			out = append(out, b)
		}
	}
	return out
}

func topN(buckets []Bucket, n int) []Bucket {
	if len(buckets) > n {
		buckets = buckets[:n]
	}
	return nonNil(buckets)
}

func nonNil(buckets []Bucket) []Bucket {
	if buckets == nil {
		return []Bucket{}
	}
	return buckets
}

// asStringList accepts []string, the []any produced by JSON decoding and a
// bare string, which older clients wrote for single picks.
func asStringList(v any) ([]string, bool) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return []string{}, true
		}
		return []string{t}, true
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func dedupe(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, v := range list {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
