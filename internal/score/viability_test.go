package score

import (
	"testing"
	"time"

	"github.com/sells-group/procsearch/internal/config"
	"github.com/sells-group/procsearch/internal/model"
)

func TestViability_InsideIdealRangeNearbyUFAndLongRunwayScoresAlta(t *testing.T) {
	now := time.Now()
	rec := model.UnifiedProcurement{
		ModalidadeCode:   "6",
		ValorEstimado:    500000,
		DataEncerramento: now.Add(30 * 24 * time.Hour),
		UF:               "SP",
	}
	sector := model.Sector{IdealValueRange: model.ValueRange{Min: 100000, Max: 1000000}}
	req := model.SearchRequest{UFs: []string{"SP"}}
	weights := config.ScoreConfig{ModalidadeWeight: 30, TimelineWeight: 25, ValueFitWeight: 25, GeographyWeight: 20}

	composite, bandName := Viability(rec, req, sector, weights, now)
	if bandName != "Alta" {
		t.Fatalf("expected Alta band, got %v (composite=%v)", bandName, composite)
	}
}

func TestViability_ExpiredDeadlineAndWrongRegionScoresBaixa(t *testing.T) {
	now := time.Now()
	rec := model.UnifiedProcurement{
		ModalidadeCode:   "1",
		ValorEstimado:    50,
		DataEncerramento: now.Add(-48 * time.Hour),
		UF:               "AM",
	}
	sector := model.Sector{IdealValueRange: model.ValueRange{Min: 100000, Max: 1000000}}
	req := model.SearchRequest{UFs: []string{"SP"}}
	weights := config.ScoreConfig{ModalidadeWeight: 30, TimelineWeight: 25, ValueFitWeight: 25, GeographyWeight: 20}

	_, bandName := Viability(rec, req, sector, weights, now)
	if bandName != "Baixa" {
		t.Fatalf("expected Baixa band, got %v", bandName)
	}
}

func TestGeographyFactor_SameMacroRegionScoresPartial(t *testing.T) {
	if got := geographyFactor("RJ", []string{"SP"}); got != 50 {
		t.Fatalf("expected same-region partial credit of 50, got %v", got)
	}
	if got := geographyFactor("SP", []string{"SP"}); got != 100 {
		t.Fatalf("expected exact match of 100, got %v", got)
	}
	if got := geographyFactor("AM", []string{"SP"}); got != 0 {
		t.Fatalf("expected cross-region mismatch of 0, got %v", got)
	}
	if got := geographyFactor("AM", nil); got != 100 {
		t.Fatalf("expected unconstrained UF filter to score 100, got %v", got)
	}
}

func TestValueFitFactor(t *testing.T) {
	ideal := model.ValueRange{Min: 100000, Max: 500000}
	if got := valueFitFactor(300000, ideal); got != 100 {
		t.Fatalf("expected 100 inside ideal range, got %v", got)
	}
	if got := valueFitFactor(50000, ideal); got <= 0 || got >= 100 {
		t.Fatalf("expected partial credit below range, got %v", got)
	}
	if got := valueFitFactor(50000000, ideal); got != 0 {
		t.Fatalf("expected 0 far above range, got %v", got)
	}
}
