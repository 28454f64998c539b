// Package seed fills the response collection with plausible demo documents.
package seed

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"

	"agrosurvey/internal/schema"
	"agrosurvey/internal/store"

	"golang.org/x/sync/errgroup"
)

const Version = "v1_MVP_SEED"

const (
	aiUsageRate         = 0.8
	trainingBarrierRate = 0.9
)

var (
	sectors      = []string{"agricola", "ganadera", "mixta"}
	legacySector = map[string]string{"agricola": "agricultura", "ganadera": "ganaderia", "mixta": "mixto"}
	ages         = []string{"menor_35", "35_54", "55_64", "mayor_65"}
	education    = []string{"primaria", "secundaria", "fp_agraria", "universitaria"}
	farmSizes    = []string{"menor_10", "10_50", "50_100", "mayor_100"}
	internet     = []string{"fibra", "4g_5g", "adsl", "no_limitada"}
	tools        = []string{"apps_cuaderno", "gps", "drones"}
	frequency    = []string{"diario", "semanal", "ocasional"}
	competence   = []string{"medio", "alto", "muy_alto"}
	aiTechs      = []string{"riego_ia", "prediccion_cosecha", "plagas_imagen", "opt_alimentacion", "meteo_avanzada", "analisis_suelos", "chatbots"}
	aiKnowledge  = []string{"basico", "medio", "alto"}
	improvements = []string{"tiempo", "produccion", "planificacion"}
	barriers     = []string{"falta_internet", "coste", "formacion", "tiempo", "desconfianza", "falta_jovenes", "utilidad", "incompatible"}
	evolution    = []string{"aumentado", "mantiene"}
)

// Generator builds seed records. It is not safe for concurrent use.
type Generator struct {
	rng      *rand.Rand
	comarcas []schema.Comarca
}

// NewGenerator fails when no comarca in tax lists a municipio.
func NewGenerator(tax *schema.Taxonomy, rng *rand.Rand) (*Generator, error) {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	var comarcas []schema.Comarca
	for _, c := range tax.Comarcas {
		if len(c.Municipios) > 0 {
			comarcas = append(comarcas, c)
		}
	}
	if len(comarcas) == 0 {
		return nil, errors.New("taxonomy has no municipios to seed")
	}
	return &Generator{rng: rng, comarcas: comarcas}, nil
}

// Record returns one respondent. About 80% use some AI technology and about
// 90% name lack of training as a barrier.
func (g *Generator) Record() store.Record {
	comarca := pick(g.rng, g.comarcas)
	municipio := pick(g.rng, comarca.Municipios)
	sector := pick(g.rng, sectors)
	usesAI := g.rng.Float64() < aiUsageRate

	orientation := "Cereal"
	if sector == "ganadera" {
		orientation = "Vacuno"
	}

	answers := map[string]any{
		"edad_rango":             pick(g.rng, ages),
		"formacion":              pick(g.rng, education),
		"tipo_explotacion":       sector,
		"sector":                 legacySector[sector],
		"superficie":             pick(g.rng, farmSizes),
		"orientacion_principal":  orientation,
		"tipo_internet":          pick(g.rng, internet),
		"herramientas_digitales": subset(g.rng, tools, 1, 3),
		"frecuencia_uso":         pick(g.rng, frequency),
		"competencia_digital":    pick(g.rng, competence),
		"barreras_ia":            g.barriers(),
		"adoptaria_con_ayudas":   "si",
		"evolucion_prod":         pick(g.rng, evolution),
		"causas_cambio_prod":     "Datos de demostración",
		"impacto_ia_potencial":   "muy_positivo",
	}
	if usesAI {
		answers["tecnologias_ia"] = subset(g.rng, aiTechs, 1, 3)
		answers["conocimiento_ia"] = pick(g.rng, aiKnowledge)
		answers["ia_mejora_prod"] = "si"
		answers["mejoras_ia"] = subset(g.rng, improvements, 1, 2)
	} else {
		answers["tecnologias_ia"] = []string{"no_uso"}
		answers["conocimiento_ia"] = "nulo"
		answers["ia_mejora_prod"] = "no"
		answers["mejoras_ia"] = []string{"ninguna"}
	}

	return store.Record{
		Location:      schema.Location{Comarca: comarca.ID, Municipio: municipio.ID},
		Answers:       answers,
		SurveyVersion: Version,
	}
}

func (g *Generator) barriers() []string {
	others := subset(g.rng, barriers, 0, 2)
	if g.rng.Float64() >= trainingBarrierRate {
		return others
	}
	out := []string{"formacion"}
	for _, b := range others {
		if b != "formacion" {
			out = append(out, b)
		}
	}
	return out
}

// Run writes count generated records through w with at most parallel writes
// in flight. It returns the number stored; the first write error cancels the
// remaining writes.
func Run(ctx context.Context, w store.Store, g *Generator, count, parallel int) (int, error) {
	if count <= 0 {
		return 0, errors.New("count must be positive")
	}
	if parallel <= 0 {
		parallel = 8
	}

	// Records are generated up front since the generator is single threaded.
	records := make([]store.Record, count)
	for i := range records {
		records[i] = g.Record()
	}

	var stored atomic.Int64
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(parallel)
	for i := range records {
		rec := records[i]
		eg.Go(func() error {
			if _, err := w.Create(egCtx, store.CollectionResponses, rec); err != nil {
				return fmt.Errorf("seed record: %w", err)
			}
			stored.Add(1)
			return nil
		})
	}
	err := eg.Wait()
	return int(stored.Load()), err
}

func pick[T any](rng *rand.Rand, items []T) T {
	return items[rng.IntN(len(items))]
}

// subset returns between lo and hi distinct items in random order.
func subset(rng *rand.Rand, items []string, lo, hi int) []string {
	shuffled := append([]string(nil), items...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	n := lo + rng.IntN(hi-lo+1)
	if n > len(shuffled) {
		n = len(shuffled)
	}
	return shuffled[:n]
}
