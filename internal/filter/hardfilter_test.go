package filter

import (
	"testing"
	"time"

	"github.com/sells-group/procsearch/internal/model"
)

func TestStageA_UFMismatchRejects(t *testing.T) {
	rec := model.UnifiedProcurement{UF: "SP"}
	req := model.SearchRequest{UFs: []string{"RJ", "MG"}}
	reason, ok := stageA(rec, req, model.Sector{}, time.Now())
	if ok || reason != ReasonUF {
		t.Fatalf("got (%v, %v), want (ReasonUF, false)", reason, ok)
	}
}

func TestStageA_ValueAboveMaxRejects(t *testing.T) {
	rec := model.UnifiedProcurement{ValorEstimado: 500000}
	sector := model.Sector{MaxContractValue: 100000}
	_, ok := stageA(rec, model.SearchRequest{}, sector, time.Now())
	if ok {
		t.Fatal("expected rejection above sector max contract value")
	}
}

func TestStageA_AbertasModeRejectsClosedBid(t *testing.T) {
	past := time.Now().Add(-24 * time.Hour)
	rec := model.UnifiedProcurement{DataEncerramento: past}
	req := model.SearchRequest{ModoBusca: model.ModoBuscaAbertas}
	reason, ok := stageA(rec, req, model.Sector{}, time.Now())
	if ok || reason != ReasonStatus {
		t.Fatalf("got (%v, %v), want (ReasonStatus, false)", reason, ok)
	}
}

func TestStageA_PassesWhenNoFiltersApply(t *testing.T) {
	rec := model.UnifiedProcurement{UF: "SP", ValorEstimado: 1000}
	_, ok := stageA(rec, model.SearchRequest{}, model.Sector{}, time.Now())
	if !ok {
		t.Fatal("expected pass with no hard filters configured")
	}
}
