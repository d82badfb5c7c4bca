// Package pncp implements the Adapter contract against the Portal Nacional
// de Contratações Públicas: a paginated JSON REST API. It is the richest
// of the two shipped adapters — it supports server-side UF/modality
// filters, date-range queries, and per-notice item detail.
package pncp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/procsearch/internal/adapter"
	"github.com/sells-group/procsearch/internal/model"
	"github.com/sells-group/procsearch/internal/resilience"
)

const (
	sourceName  = "PNCP"
	sourceCode  = "pncp"
	baseURL     = "https://pncp.gov.br/api/consulta"
	pageCeiling = 50
	pageFloor   = 10
)

// Config configures one PNCP adapter instance.
type Config struct {
	BaseURL string
	HTTP    adapter.HTTPClientOptions
}

// Adapter implements adapter.Adapter for the PNCP portal.
type Adapter struct {
	cfg    Config
	client *adapter.HTTPClient
	negot  *adapter.FormatNegotiator
	pager  *adapter.PageSizeStepper
}

// New constructs a PNCP adapter. Breaker/Limiter/Timeout in cfg.HTTP may
// be nil, in which case the corresponding resilience primitive is
// skipped — callers wire a resilience.DistributedBreaker and
// resilience.RateLimiter per deployment, not per test.
func New(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = baseURL
	}
	if cfg.HTTP.Retry.MaxAttempts == 0 {
		cfg.HTTP.Retry = resilience.DefaultRetryConfig()
	}
	return &Adapter{
		cfg:    cfg,
		client: adapter.NewHTTPClient(sourceCode, cfg.HTTP),
		negot:  adapter.NewFormatNegotiator(24 * time.Hour),
		pager:  adapter.NewPageSizeStepper(pageCeiling, pageFloor),
	}
}

// Metadata implements adapter.Adapter.
func (a *Adapter) Metadata() model.SourceMetadata {
	return model.SourceMetadata{
		Name:             sourceName,
		Code:             sourceCode,
		BaseURL:          a.cfg.BaseURL,
		Priority:         1,
		RateLimitPerMin:  120,
		DefaultTimeoutMs: 10_000,
		Capabilities: map[model.Capability]struct{}{
			model.CapUFFilter:       {},
			model.CapModalityFilter: {},
			model.CapDateRange:      {},
			model.CapPagination:     {},
			model.CapItemDetail:     {},
		},
	}
}

// HealthCheck implements adapter.Adapter.
func (a *Adapter) HealthCheck(ctx context.Context) (model.SourceStatus, error) {
	return a.client.HealthCheck(ctx, a.cfg.BaseURL+"/v1/orgaos")
}

// Fetch implements adapter.Adapter, paginating internally and stepping
// the page size down on rejection (§4.1).
func (a *Adapter) Fetch(ctx context.Context, params adapter.FetchParams) (<-chan adapter.ProcurementOrErr, error) {
	out := make(chan adapter.ProcurementOrErr, 32)

	go func() {
		defer close(out)

		format := a.negot.Preferred(sourceCode, adapter.DateFormatISO)
		page := 1
		truncated := false
		const maxPages = 200

		for {
			if page > maxPages {
				truncated = true
				break
			}

			url := a.buildURL(params, format, page)
			body, err := a.client.GetJSON(ctx, url)
			if err != nil {
				if isFormatRejection(err) && format != adapter.DateFormatBRSlash {
					format = adapter.DateFormatBRSlash
					zap.L().Info("pncp: retrying with alternate date format", zap.Int("page", page))
					continue
				}
				if isPageTooLarge(err) {
					newSize := a.pager.StepDown()
					zap.L().Warn("pncp: stepping page size down", zap.Int("new_size", newSize))
					continue
				}
				select {
				case out <- adapter.ProcurementOrErr{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			a.negot.Accept(sourceCode, format)

			records, hasMore := extractPage(body)
			for _, raw := range records {
				rec, nErr := a.Normalize(raw)
				select {
				case out <- adapter.ProcurementOrErr{Record: rec, Err: nErr}:
				case <-ctx.Done():
					return
				}
			}
			if !hasMore {
				break
			}
			page++
		}

		if truncated {
			select {
			case out <- adapter.ProcurementOrErr{WasTruncated: true}:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}

func (a *Adapter) buildURL(params adapter.FetchParams, format adapter.DateFormat, page int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s/v1/contratacoes/publicacao?dataInicial=%s&dataFinal=%s&pagina=%d&tamanhoPagina=%d",
		a.cfg.BaseURL,
		params.DataInicial.Format(string(format)),
		params.DataFinal.Format(string(format)),
		page,
		a.pager.Current(),
	)
	if len(params.UFs) > 0 {
		fmt.Fprintf(&b, "&uf=%s", strings.Join(params.UFs, ","))
	}
	if len(params.Modalities) > 0 {
		fmt.Fprintf(&b, "&codigoModalidade=%s", strings.Join(params.Modalities, ","))
	}
	return b.String()
}

func isFormatRejection(err error) bool {
	apiErr, ok := err.(*adapter.APIError)
	return ok && apiErr.Status == 422
}

func isPageTooLarge(err error) bool {
	apiErr, ok := err.(*adapter.APIError)
	return ok && apiErr.Status == 400 && strings.Contains(apiErr.Body, "tamanhoPagina")
}

func extractPage(body map[string]any) (records []map[string]any, hasMore bool) {
	rawList, _ := body["data"].([]any)
	for _, item := range rawList {
		if m, ok := item.(map[string]any); ok {
			records = append(records, m)
		}
	}
	totalPaginas, _ := body["totalPaginas"].(float64)
	paginaAtual, _ := body["paginaAtual"].(float64)
	return records, paginaAtual < totalPaginas
}

// Normalize implements adapter.Adapter.
func (a *Adapter) Normalize(raw map[string]any) (model.UnifiedProcurement, error) {
	orgao, _ := raw["orgaoEntidade"].(map[string]any)
	orgaoNome, _ := orgao["razaoSocial"].(string)
	cnpj, _ := orgao["cnpj"].(string)

	numeroControle, _ := raw["numeroControlePNCP"].(string)
	objeto, _ := raw["objetoCompra"].(string)
	uf, _ := raw["unidadeOrgao"].(map[string]any)
	ufSigla, _ := uf["ufSigla"].(string)
	municipio, _ := uf["municipioNome"].(string)

	modalidade, _ := raw["modalidadeNome"].(string)
	modalidadeID := fmt.Sprint(raw["modalidadeId"])

	valorEstimado, _ := raw["valorTotalEstimado"].(float64)

	dataPub := parseDate(raw["dataPublicacaoPncp"])
	dataAbert := parseDate(raw["dataAberturaProposta"])
	dataEnc := parseDate(raw["dataEncerramentoProposta"])

	situacaoCode, _ := raw["situacaoCompraId"].(string)
	situacaoText, _ := raw["situacaoCompraNome"].(string)

	if numeroControle == "" {
		return model.UnifiedProcurement{}, &adapter.ParseError{Source: sourceCode, Field: "numeroControlePNCP", Value: ""}
	}

	rec := model.UnifiedProcurement{
		SourceID:         numeroControle,
		SourceName:       sourceName,
		DedupKey:         adapter.DedupKey(cnpj, numeroControle, dataPub.Format(string(adapter.DateFormatISO))),
		Objeto:           objeto,
		Orgao:            orgaoNome,
		UF:               ufSigla,
		Municipio:        municipio,
		Esfera:           inferEsfera(orgao),
		ModalidadeCode:   modalidadeID,
		ModalidadeName:   modalidade,
		ValorEstimado:    valorEstimado,
		DataPublicacao:   dataPub,
		DataAbertura:     dataAbert,
		DataEncerramento: dataEnc,
		SituacaoCode:     situacaoCode,
		SituacaoText:     situacaoText,
		LinkPortal:       fmt.Sprintf("https://pncp.gov.br/app/editais/%s", numeroControle),
		RawData:          raw,
	}

	if v, ok := raw["valorTotalHomologado"].(float64); ok {
		rec.ValorHomologado = &v
	}

	return rec, nil
}

func inferEsfera(orgao map[string]any) model.Esfera {
	poderID, _ := orgao["esferaId"].(string)
	switch strings.ToUpper(poderID) {
	case "E":
		return model.EsferaEstadual
	case "M":
		return model.EsferaMunicipal
	default:
		return model.EsferaFederal
	}
}

func parseDate(v any) time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Close implements adapter.Adapter.
func (a *Adapter) Close() error { return nil }
