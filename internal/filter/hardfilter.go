package filter

import (
	"time"

	"github.com/sells-group/procsearch/internal/model"
)

// stageA applies the hard filters: UF, status, modality, and value bounds.
// Returns a non-empty reason when the bid is rejected outright.
func stageA(rec model.UnifiedProcurement, req model.SearchRequest, sector model.Sector, now time.Time) (RejectReason, bool) {
	if len(req.UFs) > 0 && !containsFold(req.UFs, rec.UF) {
		return ReasonUF, false
	}

	if req.ModoBusca == model.ModoBuscaAbertas && !isOpen(rec, now) {
		return ReasonStatus, false
	}

	if len(req.Modalidades) > 0 && !containsFold(req.Modalidades, rec.ModalidadeCode) &&
		!containsFold(req.Modalidades, rec.ModalidadeName) {
		return ReasonModalidade, false
	}

	if req.ValorMin != nil && rec.ValorEstimado < *req.ValorMin {
		return ReasonValor, false
	}
	if req.ValorMax != nil && rec.ValorEstimado > *req.ValorMax {
		return ReasonValor, false
	}
	if sector.MaxContractValue > 0 && rec.ValorEstimado > sector.MaxContractValue {
		return ReasonValor, false
	}

	return "", true
}

// isOpen reports whether a bid is still accepting proposals as of now —
// used by the "abertas" search mode's status hard filter.
func isOpen(rec model.UnifiedProcurement, now time.Time) bool {
	if rec.DataEncerramento.IsZero() {
		return true
	}
	return rec.DataEncerramento.After(now)
}

func containsFold(list []string, value string) bool {
	if value == "" {
		return false
	}
	for _, v := range list {
		if equalFold(v, value) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	return NormalizeText(a) == NormalizeText(b)
}
