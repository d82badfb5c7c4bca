// Package model holds the canonical types shared across the search pipeline:
// the unified procurement record, source descriptors, cache rows, search
// lifecycle state, and sector configuration. Everything past a source
// adapter's Normalize method works exclusively with these typed structs —
// raw upstream payloads never escape the adapter package.
package model

import (
	"time"
)

// Esfera is the government sphere that published a procurement notice.
type Esfera string

const (
	EsferaFederal   Esfera = "F"
	EsferaEstadual  Esfera = "E"
	EsferaMunicipal Esfera = "M"
)

// Item is a single line item within a procurement notice.
type Item struct {
	Numero      int     `json:"numero"`
	Descricao   string  `json:"descricao"`
	Quantidade  float64 `json:"quantidade"`
	Unidade     string  `json:"unidade"`
	ValorUnit   float64 `json:"valor_unitario"`
	NCM         string  `json:"ncm,omitempty"`
}

// UnifiedProcurement is the canonical record yielded by every source
// adapter's Normalize method. dedup_key is stable for the same real-world
// notice across sources: it is a hash over the buyer's CNPJ, the
// procurement code, and the publication date, so it must not depend on
// anything that can legitimately differ between sources (e.g. the portal's
// own internal id).
type UnifiedProcurement struct {
	SourceID   string `json:"source_id"`
	SourceName string `json:"source_name"`
	// SourcePriority mirrors the owning adapter's SourceMetadata.Priority at
	// fetch time. It travels with the record (rather than requiring a
	// second lookup against the adapter) because dedupe operates on a
	// flattened slice of records from every source, after adapters are out
	// of scope.
	SourcePriority int    `json:"source_priority"`
	DedupKey       string `json:"dedup_key"`

	Objeto          string    `json:"objeto"`
	Orgao           string    `json:"orgao"`
	UF              string    `json:"uf"`
	Municipio       string    `json:"municipio"`
	Esfera          Esfera    `json:"esfera"`
	ModalidadeCode  string    `json:"modalidade_code"`
	ModalidadeName  string    `json:"modalidade_name"`
	ValorEstimado   float64   `json:"valor_estimado"`
	ValorHomologado *float64  `json:"valor_homologado,omitempty"`
	DataPublicacao  time.Time `json:"data_publicacao"`
	DataAbertura    time.Time `json:"data_abertura"`
	DataEncerramento time.Time `json:"data_encerramento"`
	SituacaoCode    string    `json:"situacao_code"`
	SituacaoText    string    `json:"situacao_text"`
	LinkPortal      string    `json:"link_portal"`

	Items []Item `json:"items,omitempty"`

	// RawData is the opaque source payload, retained for debugging and for
	// Stage F item-detail refinement that needs to go back to the source.
	// Nothing outside the owning adapter inspects its shape.
	RawData map[string]any `json:"raw_data,omitempty"`
}

// Capability describes an optional feature a source adapter supports.
type Capability string

const (
	CapUFFilter       Capability = "UF_FILTER"
	CapModalityFilter Capability = "MODALITY_FILTER"
	CapDateRange      Capability = "DATE_RANGE"
	CapPagination     Capability = "PAGINATION"
	CapItemDetail     Capability = "ITEM_DETAIL"
)

// SourceMetadata is the static descriptor every adapter reports via
// Metadata(). Priority is used as the dedup tiebreak: lower wins.
type SourceMetadata struct {
	Name             string
	Code             string
	BaseURL          string
	Priority         int
	RateLimitPerMin  int
	DefaultTimeoutMs int
	Capabilities     map[Capability]struct{}
}

// HasCapability reports whether the source advertises cap.
func (m SourceMetadata) HasCapability(cap Capability) bool {
	_, ok := m.Capabilities[cap]
	return ok
}

// SourceStatus is the runtime health state of a source, as returned by
// HealthCheck.
type SourceStatus string

const (
	SourceAvailable   SourceStatus = "AVAILABLE"
	SourceDegraded    SourceStatus = "DEGRADED"
	SourceUnavailable SourceStatus = "UNAVAILABLE"
)
