package score

import (
	"sort"

	"github.com/sells-group/procsearch/internal/model"
)

// SortLicitacoes orders results by confidence tier first, then relevance
// score descending, then value descending (§4.6).
func SortLicitacoes(views []model.LicitacaoView) {
	sort.SliceStable(views, func(i, j int) bool {
		ri, rj := confidenceRank(views[i].Confidence), confidenceRank(views[j].Confidence)
		if ri != rj {
			return ri < rj
		}
		if views[i].RelevanceScore != views[j].RelevanceScore {
			return views[i].RelevanceScore > views[j].RelevanceScore
		}
		return views[i].Valor > views[j].Valor
	})
}
