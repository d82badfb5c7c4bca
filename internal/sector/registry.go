// Package sector loads the sector catalog (§3) from a YAML file and serves
// it to the search pipeline through the narrow pipeline.SectorProvider
// interface. A sector is a configuration record, not a database row: it
// ships with the deployment and changes through a config update, the same
// way the teacher's waterfall package treats its field-confidence
// thresholds.
package sector

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/procsearch/internal/model"
)

// definition is the YAML shape of one sector entry. model.Sector stores
// keyword/exclusion sets as map[string]struct{} for O(1) lookup during
// filtering; definition keeps them as plain slices since that's what a
// human editing the catalog writes.
type definition struct {
	ID                      string                       `yaml:"id"`
	Name                    string                       `yaml:"name"`
	Keywords                []string                     `yaml:"keywords"`
	Exclusions              []string                     `yaml:"exclusions"`
	ContextRequiredKeywords map[string][]string          `yaml:"context_required_keywords"`
	CoOccurrenceRules       []coOccurrenceRuleDefinition `yaml:"co_occurrence_rules"`
	MaxContractValue        float64                      `yaml:"max_contract_value"`
	IdealValueRange         *valueRangeDefinition        `yaml:"ideal_value_range"`
	Synonyms                map[string][]string          `yaml:"synonyms"`
}

type coOccurrenceRuleDefinition struct {
	Trigger          string   `yaml:"trigger"`
	NegativeContexts []string `yaml:"negative_contexts"`
	PositiveSignals  []string `yaml:"positive_signals"`
}

type valueRangeDefinition struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type catalogFile struct {
	Sectors []definition `yaml:"sectors"`
}

// Registry is an in-memory, read-only sector catalog. It satisfies
// pipeline.SectorProvider.
type Registry struct {
	sectors map[string]model.Sector
}

// LoadFile reads and validates the sector catalog at path.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sector: read catalog %s", path)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrap(err, "sector: parse catalog")
	}

	reg := &Registry{sectors: make(map[string]model.Sector, len(file.Sectors))}
	for _, def := range file.Sectors {
		s, err := def.toModel()
		if err != nil {
			return nil, eris.Wrapf(err, "sector: invalid entry %q", def.ID)
		}
		reg.sectors[s.ID] = s
	}
	return reg, nil
}

// NewStatic builds a Registry directly from already-decoded sectors,
// primarily for tests and for composing a catalog from more than one
// source file.
func NewStatic(sectors ...model.Sector) *Registry {
	reg := &Registry{sectors: make(map[string]model.Sector, len(sectors))}
	for _, s := range sectors {
		reg.sectors[s.ID] = s
	}
	return reg
}

// GetSector implements pipeline.SectorProvider.
func (r *Registry) GetSector(_ context.Context, setorID string) (model.Sector, error) {
	key := strings.ToLower(strings.TrimSpace(setorID))
	s, ok := r.sectors[key]
	if !ok {
		return model.Sector{}, eris.Errorf("sector: unknown setor_id %q", setorID)
	}
	return s, nil
}

// IDs returns every configured sector id, for admin/listing endpoints.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.sectors))
	for id := range r.sectors {
		ids = append(ids, id)
	}
	return ids
}

func (d definition) toModel() (model.Sector, error) {
	id := strings.ToLower(strings.TrimSpace(d.ID))
	if id == "" {
		return model.Sector{}, fmt.Errorf("id is required")
	}
	if len(d.Keywords) == 0 {
		return model.Sector{}, fmt.Errorf("keywords must not be empty")
	}

	s := model.Sector{
		ID:                      id,
		Name:                    d.Name,
		Keywords:                toSet(d.Keywords),
		Exclusions:              toSet(d.Exclusions),
		ContextRequiredKeywords: make(map[string]map[string]struct{}, len(d.ContextRequiredKeywords)),
		MaxContractValue:        d.MaxContractValue,
		Synonyms:                d.Synonyms,
	}

	for kw, confirming := range d.ContextRequiredKeywords {
		s.ContextRequiredKeywords[kw] = toSet(confirming)
	}

	for _, rule := range d.CoOccurrenceRules {
		if rule.Trigger == "" {
			return model.Sector{}, fmt.Errorf("co_occurrence_rules entry missing trigger")
		}
		s.CoOccurrenceRules = append(s.CoOccurrenceRules, model.CoOccurrenceRule{
			Trigger:          rule.Trigger,
			NegativeContexts: rule.NegativeContexts,
			PositiveSignals:  rule.PositiveSignals,
		})
	}

	if d.IdealValueRange != nil {
		s.IdealValueRange = model.ValueRange{Min: d.IdealValueRange.Min, Max: d.IdealValueRange.Max}
	}

	return s, nil
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}
	return set
}
