package score

import (
	"math"
	"time"

	"github.com/sells-group/procsearch/internal/config"
	"github.com/sells-group/procsearch/internal/model"
)

// modalidadeAccessibility maps PNCP modality codes to how accessible that
// procurement method typically is for a new vendor (0-100). Unlisted codes
// get a neutral mid-range score.
var modalidadeAccessibility = map[string]float64{
	"1":  40,  // Leilão — competitive, narrow fit
	"2":  70,  // Diálogo Competitivo
	"4":  85,  // Concorrência
	"6":  90,  // Pregão — most common, broadly accessible
	"8":  60,  // Dispensa
	"9":  55,  // Inexigibilidade
	"12": 75,  // Credenciamento
	"13": 65,  // Leilão (variant)
}

const defaultModalidadeScore = 60

// macroRegion groups Brazilian states into the five official macro-regions,
// used by the geography factor's "same region" fallback.
var macroRegion = map[string]string{
	"AC": "norte", "AP": "norte", "AM": "norte", "PA": "norte", "RO": "norte", "RR": "norte", "TO": "norte",
	"AL": "nordeste", "BA": "nordeste", "CE": "nordeste", "MA": "nordeste", "PB": "nordeste", "PE": "nordeste", "PI": "nordeste", "RN": "nordeste", "SE": "nordeste",
	"DF": "centro-oeste", "GO": "centro-oeste", "MT": "centro-oeste", "MS": "centro-oeste",
	"ES": "sudeste", "MG": "sudeste", "RJ": "sudeste", "SP": "sudeste",
	"PR": "sul", "RS": "sul", "SC": "sul",
}

// Viability computes the 0-100 weighted composite and its band.
func Viability(rec model.UnifiedProcurement, req model.SearchRequest, sector model.Sector, weights config.ScoreConfig, now time.Time) (float64, string) {
	modalidade := modalidadeFactor(rec.ModalidadeCode)
	timeline := timelineFactor(rec.DataEncerramento, now)
	valueFit := valueFitFactor(rec.ValorEstimado, sector.IdealValueRange)
	geo := geographyFactor(rec.UF, req.UFs)

	w := weights
	sum := w.ModalidadeWeight + w.TimelineWeight + w.ValueFitWeight + w.GeographyWeight
	if sum <= 0 {
		w = config.ScoreConfig{ModalidadeWeight: 30, TimelineWeight: 25, ValueFitWeight: 25, GeographyWeight: 20}
		sum = 100
	}

	composite := (modalidade*w.ModalidadeWeight + timeline*w.TimelineWeight +
		valueFit*w.ValueFitWeight + geo*w.GeographyWeight) / sum

	return math.Round(composite*100) / 100, band(composite)
}

func modalidadeFactor(code string) float64 {
	if s, ok := modalidadeAccessibility[code]; ok {
		return s
	}
	return defaultModalidadeScore
}

// timelineFactor buckets days-until-deadline into tiers: plenty of runway
// scores high, an expired deadline scores zero, and one less than two days
// away (including the same day) scores 20.
func timelineFactor(deadline time.Time, now time.Time) float64 {
	if deadline.IsZero() {
		return 50
	}
	days := deadline.Sub(now).Hours() / 24
	switch {
	case days < 0:
		return 0
	case days < 2:
		return 20
	case days < 5:
		return 50
	case days < 15:
		return 80
	default:
		return 100
	}
}

// valueFitFactor scores how close a bid's value is to the sector's ideal
// range: inside the range scores 100, decaying with relative distance
// outside it.
func valueFitFactor(value float64, ideal model.ValueRange) float64 {
	if ideal.Min <= 0 && ideal.Max <= 0 {
		return 60 // no ideal range configured — neutral score
	}
	if value >= ideal.Min && (ideal.Max <= 0 || value <= ideal.Max) {
		return 100
	}

	var distance, reference float64
	if value < ideal.Min {
		distance = ideal.Min - value
		reference = ideal.Min
	} else {
		distance = value - ideal.Max
		reference = ideal.Max
	}
	if reference <= 0 {
		return 0
	}
	ratio := distance / reference
	return math.Max(0, 100*(1-ratio))
}

// geographyFactor scores 100 for an exact UF match against the requested
// UFs, 50 for same macro-region, 0 otherwise. An empty UF filter (any
// region accepted) scores 100.
func geographyFactor(uf string, requestedUFs []string) float64 {
	if len(requestedUFs) == 0 {
		return 100
	}
	for _, r := range requestedUFs {
		if r == uf {
			return 100
		}
	}
	region := macroRegion[uf]
	if region == "" {
		return 0
	}
	for _, r := range requestedUFs {
		if macroRegion[r] == region {
			return 50
		}
	}
	return 0
}

func band(composite float64) string {
	switch {
	case composite > 70:
		return "Alta"
	case composite >= 40:
		return "Média"
	default:
		return "Baixa"
	}
}
