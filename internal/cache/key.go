package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/sells-group/procsearch/internal/model"
)

// canonicalParams is the subset of a SearchRequest that derives
// params_hash. Date range is intentionally excluded so a stale entry can
// serve under a date mismatch (§4.4 — explicit recall-under-degradation
// choice).
type canonicalParams struct {
	SetorID     string   `json:"setor_id"`
	UFs         []string `json:"ufs"`
	Status      string   `json:"status"`
	Modalidades []string `json:"modalidades,omitempty"`
	ModoBusca   string   `json:"modo_busca"`
}

// ParamsHash derives the cache key from a search request per §4.4:
// SHA256(canonical_json({setor_id, sorted(ufs), status,
// sorted(modalidades?), modo_busca})). crypto/sha256 is used directly
// (no pack library wraps deterministic hashing of an arbitrary struct);
// json.Marshal on a struct with fixed field order gives the canonical
// encoding without needing a dedicated canonical-JSON library.
func ParamsHash(req model.SearchRequest) string {
	ufs := append([]string(nil), req.UFs...)
	sort.Strings(ufs)
	modalidades := append([]string(nil), req.Modalidades...)
	sort.Strings(modalidades)

	cp := canonicalParams{
		SetorID: req.SetorID,
		UFs:     ufs,
		// SearchRequest carries no standalone "status" field (§4.10's POST
		// /search body omits it); the only status signal the request body
		// carries is the situação implied by modo_busca ("abertas" narrows
		// to open bids). Folded in here so the hash still matches §4.4's
		// literal field list without inventing a field the wire contract
		// does not have.
		Status:      statusFromModoBusca(req.ModoBusca),
		Modalidades: modalidades,
		ModoBusca:   string(req.ModoBusca),
	}
	b, _ := json.Marshal(cp)

	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func statusFromModoBusca(modo model.ModoBusca) string {
	if modo == model.ModoBuscaAbertas {
		return "aberta"
	}
	return ""
}
