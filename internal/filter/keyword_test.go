package filter

import (
	"testing"

	"github.com/sells-group/procsearch/internal/model"
)

func TestStageB_ExclusionHitRejects(t *testing.T) {
	sector := model.Sector{
		Keywords:   map[string]struct{}{"software": {}},
		Exclusions: map[string]struct{}{"merenda escolar": {}},
	}
	normalized := NormalizeText("aquisicao de software para merenda escolar")
	m := stageB(normalized, sector)
	if !m.Excluded {
		t.Fatal("expected exclusion hit")
	}
}

func TestStageB_GenericKeywordRequiresContext(t *testing.T) {
	sector := model.Sector{
		Keywords: map[string]struct{}{"sistema": {}},
		ContextRequiredKeywords: map[string]map[string]struct{}{
			"sistema": {"gestao": {}, "informacao": {}},
		},
	}

	noContext := stageB(NormalizeText("manutencao de sistema eletrico predial"), sector)
	if len(noContext.MatchedTerms) != 0 {
		t.Fatalf("expected no match without confirming context, got %v", noContext.MatchedTerms)
	}

	withContext := stageB(NormalizeText("aquisicao de sistema de gestao financeira"), sector)
	if len(withContext.MatchedTerms) != 1 {
		t.Fatalf("expected one confirmed match, got %v", withContext.MatchedTerms)
	}
}

func TestStageC_CoOccurrenceRejectsWithoutPositiveSignal(t *testing.T) {
	rules := []model.CoOccurrenceRule{
		{Trigger: "limpeza", NegativeContexts: []string{"predial"}, PositiveSignals: []string{"dados"}},
	}
	if !stageC(NormalizeText("servico de limpeza predial"), rules) {
		t.Fatal("expected co-occurrence rejection")
	}
	if stageC(NormalizeText("limpeza de dados predial"), rules) {
		t.Fatal("positive signal should rescue the bid")
	}
	if stageC(NormalizeText("limpeza urbana"), rules) {
		t.Fatal("no negative context present, should not reject")
	}
}

func TestStageD_Classification(t *testing.T) {
	cases := []struct {
		density float64
		want    densityVerdict
	}{
		{0.10, densityAccept},
		{0.005, densityReject},
		{0.03, densityGray},
	}
	for _, c := range cases {
		if got := stageD(c.density, 0.01, 0.05); got != c.want {
			t.Errorf("stageD(%v) = %v, want %v", c.density, got, c.want)
		}
	}
}
