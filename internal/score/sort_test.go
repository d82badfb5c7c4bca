package score

import (
	"testing"

	"github.com/sells-group/procsearch/internal/model"
)

func TestSortLicitacoes_OrdersByTierThenRelevanceThenValue(t *testing.T) {
	views := []model.LicitacaoView{
		{PNCPID: "low-but-big", Confidence: model.ConfidenceLow, RelevanceScore: 0.9, Valor: 999999},
		{PNCPID: "high-small", Confidence: model.ConfidenceHigh, RelevanceScore: 0.4, Valor: 10},
		{PNCPID: "high-big", Confidence: model.ConfidenceHigh, RelevanceScore: 0.4, Valor: 500},
		{PNCPID: "medium", Confidence: model.ConfidenceMedium, RelevanceScore: 1.0, Valor: 1},
	}
	SortLicitacoes(views)

	want := []string{"high-big", "high-small", "medium", "low-but-big"}
	for i, id := range want {
		if views[i].PNCPID != id {
			t.Fatalf("position %d: got %s, want %s (order=%v)", i, views[i].PNCPID, id, views)
		}
	}
}
