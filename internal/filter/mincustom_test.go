package filter

import "testing"

func TestMinMatchFloor(t *testing.T) {
	cases := map[int]int{1: 1, 2: 1, 3: 1, 4: 2, 6: 2, 9: 3, 30: 3}
	for n, want := range cases {
		if got := minMatchFloor(n); got != want {
			t.Errorf("minMatchFloor(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestStageH_NoTermsAlwaysPasses(t *testing.T) {
	if _, ok := stageH("qualquer objeto", nil); !ok {
		t.Fatal("expected pass when no custom terms supplied")
	}
}

func TestStageH_RequiresFloorOfTerms(t *testing.T) {
	normalized := NormalizeText("aquisicao de notebooks e monitores")
	terms := []string{"notebooks", "monitores", "impressoras", "scanners"}
	// floor = min(ceil(4/3), 3) = 2; two of four terms match.
	matched, ok := stageH(normalized, terms)
	if !ok {
		t.Fatalf("expected pass with 2 matches meeting floor of 2, matched=%v", matched)
	}
}

func TestStageH_ExactPhraseOverridesFloor(t *testing.T) {
	normalized := NormalizeText("contratacao de servico de manutencao predial")
	terms := []string{"servico de manutencao predial", "impressoras", "scanners", "cabos"}
	matched, ok := stageH(normalized, terms)
	if !ok {
		t.Fatalf("expected exact multi-word phrase to override the floor, matched=%v", matched)
	}
}

func TestStageH_BelowFloorRejects(t *testing.T) {
	normalized := NormalizeText("aquisicao de notebooks")
	terms := []string{"notebooks", "monitores", "impressoras", "scanners"}
	if _, ok := stageH(normalized, terms); ok {
		t.Fatal("expected rejection with only 1 of 4 single-word terms matched")
	}
}
