package model

import "time"

// ModoBusca selects a canned date-window override.
type ModoBusca string

const (
	ModoBuscaAbertas  ModoBusca = "abertas" // override window to last 15 days
	ModoBuscaCustom   ModoBusca = "custom"
)

// SearchRequest is the canonical POST /search body (§6).
type SearchRequest struct {
	SetorID      string    `json:"setor_id"`
	UFs          []string  `json:"ufs"`
	DataInicial  string    `json:"data_inicial"`
	DataFinal    string    `json:"data_final"`
	ModoBusca    ModoBusca `json:"modo_busca"`
	Ordenacao    string    `json:"ordenacao,omitempty"`
	ValorMin     *float64  `json:"valor_min,omitempty"`
	ValorMax     *float64  `json:"valor_max,omitempty"`
	CustomTerms  []string  `json:"custom_terms,omitempty"`
	SearchID     string    `json:"search_id,omitempty"`
	Modalidades  []string  `json:"modalidades,omitempty"`

	// UserID and IsAdmin are populated by the HTTP boundary from
	// already-verified auth context; never read from the request body.
	UserID  string `json:"-"`
	IsAdmin bool   `json:"-"`
}

// ResponseState classifies how a search was ultimately served.
type ResponseState string

const (
	ResponseLive          ResponseState = "live"
	ResponseCached        ResponseState = "cached"
	ResponseDegraded      ResponseState = "degraded"
	ResponseEmptyFailure  ResponseState = "empty_failure"
)

// Confidence is the classification-source tier used for sort order.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// LicitacaoView is one result row in the canonical response envelope.
type LicitacaoView struct {
	PNCPID           string     `json:"pncp_id"`
	Objeto           string     `json:"objeto"`
	Orgao            string     `json:"orgao"`
	UF               string     `json:"uf"`
	Valor            float64    `json:"valor"`
	Link             string     `json:"link"`
	DataPublicacao   time.Time  `json:"data_publicacao"`
	DataAbertura     time.Time  `json:"data_abertura"`
	DataEncerramento time.Time  `json:"data_encerramento"`
	DiasRestantes    int        `json:"dias_restantes"`
	Urgencia         string     `json:"urgencia"`
	RelevanceScore   float64    `json:"relevance_score"`
	MatchedTerms     []string   `json:"matched_terms"`
	Confidence       Confidence `json:"confidence,omitempty"`
	Viability        float64    `json:"-"`
	ViabilityBand    string     `json:"-"`
}

// FilterStats is the rejection-reason histogram (§4.5 / §6).
type FilterStats struct {
	RejeitadasUF        int            `json:"rejeitadas_uf"`
	RejeitadasValor     int            `json:"rejeitadas_valor"`
	RejeitadasKeyword   int            `json:"rejeitadas_keyword"`
	RejeitadasMinMatch  int            `json:"rejeitadas_min_match"`
	RejeitadasPrazo     int            `json:"rejeitadas_prazo"`
	RejeitadasOutros    int            `json:"rejeitadas_outros"`
	Extra               map[string]int `json:"-"`
}

// Resumo is the executive-summary block of the response envelope.
type Resumo struct {
	ResumoExecutivo   string   `json:"resumo_executivo"`
	TotalOportunidades int     `json:"total_oportunidades"`
	ValorTotal        float64  `json:"valor_total"`
	Destaques         []string `json:"destaques"`
	AlertaUrgencia    string   `json:"alerta_urgencia,omitempty"`
}

// SearchResponse is the canonical envelope returned by POST /search (§6).
type SearchResponse struct {
	Resumo             Resumo          `json:"resumo"`
	Licitacoes         []LicitacaoView `json:"licitacoes"`
	ExcelAvailable     bool            `json:"excel_available"`
	DownloadURL        *string         `json:"download_url"`
	QuotaUsed          int             `json:"quota_used"`
	QuotaRemaining     int             `json:"quota_remaining"`
	TotalRaw           int             `json:"total_raw"`
	TotalFiltrado      int             `json:"total_filtrado"`
	FilterStats        FilterStats     `json:"filter_stats"`
	ResponseState      ResponseState   `json:"response_state"`
	Cached             bool            `json:"cached"`
	CachedAt           *time.Time      `json:"cached_at,omitempty"`
	CacheStatus        *CacheStatus    `json:"cache_status,omitempty"`
	IsPartial          bool            `json:"is_partial"`
	FailedUFs          []string        `json:"failed_ufs"`
	SucceededUFs       []string        `json:"succeeded_ufs"`
	DegradationGuidance string         `json:"degradation_guidance,omitempty"`
	SearchID           string          `json:"search_id,omitempty"`
}
