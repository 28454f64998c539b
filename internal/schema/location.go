package schema

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidTaxonomy = errors.New("invalid location taxonomy")

type Municipio struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type Comarca struct {
	ID         string      `json:"id" yaml:"id"`
	Name       string      `json:"name" yaml:"name"`
	Municipios []Municipio `json:"municipios" yaml:"municipios"`
}

// Location is the respondent's comarca/municipio pair.
type Location struct {
	Comarca   string `json:"comarca"`
	Municipio string `json:"municipio"`
}

// Complete reports whether both levels are set.
func (l Location) Complete() bool {
	return strings.TrimSpace(l.Comarca) != "" && strings.TrimSpace(l.Municipio) != ""
}

// Empty reports whether neither level is set.
func (l Location) Empty() bool {
	return strings.TrimSpace(l.Comarca) == "" && strings.TrimSpace(l.Municipio) == ""
}

type Taxonomy struct {
	Comarcas []Comarca `json:"comarcas" yaml:"comarcas"`
}

func (t *Taxonomy) validate() error {
	if len(t.Comarcas) == 0 {
		return fmt.Errorf("%w: no comarcas", ErrInvalidTaxonomy)
	}
	comarcas := make(map[string]struct{}, len(t.Comarcas))
	for _, c := range t.Comarcas {
		if strings.TrimSpace(c.ID) == "" {
			return fmt.Errorf("%w: comarca without id", ErrInvalidTaxonomy)
		}
		if _, dup := comarcas[c.ID]; dup {
			return fmt.Errorf("%w: duplicate comarca %q", ErrInvalidTaxonomy, c.ID)
		}
		comarcas[c.ID] = struct{}{}

		municipios := make(map[string]struct{}, len(c.Municipios))
		for _, m := range c.Municipios {
			if strings.TrimSpace(m.ID) == "" {
				return fmt.Errorf("%w: comarca %q has a municipio without id", ErrInvalidTaxonomy, c.ID)
			}
			if _, dup := municipios[m.ID]; dup {
				return fmt.Errorf("%w: comarca %q lists municipio %q twice", ErrInvalidTaxonomy, c.ID, m.ID)
			}
			municipios[m.ID] = struct{}{}
		}
	}
	return nil
}

func (t *Taxonomy) comarca(id string) (*Comarca, bool) {
	for i := range t.Comarcas {
		if t.Comarcas[i].ID == id {
			return &t.Comarcas[i], true
		}
	}
	return nil, false
}

// FindComarca returns the display name of a comarca, or the id itself when
// the taxonomy does not know it.
func (t *Taxonomy) FindComarca(id string) string {
	if c, ok := t.comarca(id); ok {
		return c.Name
	}
	return id
}

// FindMunicipio returns the display name of a municipio within its comarca,
// or the municipio id when the pair is unknown.
func (t *Taxonomy) FindMunicipio(comarcaID, municipioID string) string {
	c, ok := t.comarca(comarcaID)
	if !ok {
		return municipioID
	}
	for _, m := range c.Municipios {
		if m.ID == municipioID {
			return m.Name
		}
	}
	return municipioID
}

// Municipios lists the municipios of a comarca; unknown comarcas have none.
func (t *Taxonomy) Municipios(comarcaID string) []Municipio {
	c, ok := t.comarca(comarcaID)
	if !ok {
		return []Municipio{}
	}
	return c.Municipios
}

// Contains reports whether loc is a valid selection: both levels empty, a
// known comarca alone, or a municipio that belongs to its comarca.
func (t *Taxonomy) Contains(loc Location) bool {
	if loc.Empty() {
		return true
	}
	c, ok := t.comarca(loc.Comarca)
	if !ok {
		return false
	}
	if loc.Municipio == "" {
		return true
	}
	for _, m := range c.Municipios {
		if m.ID == loc.Municipio {
			return true
		}
	}
	return false
}

// ValidLocation reports whether loc is complete and exists in the taxonomy.
func (t *Taxonomy) ValidLocation(loc Location) bool {
	return loc.Complete() && t.Contains(loc)
}
