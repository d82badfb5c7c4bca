// Package comprasnet implements the Adapter contract against the legacy
// Comprasnet portal: DD/MM/YYYY dates, no server-side modality filter, and
// a lower page-size ceiling than PNCP.
package comprasnet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/procsearch/internal/adapter"
	"github.com/sells-group/procsearch/internal/model"
	"github.com/sells-group/procsearch/internal/resilience"
)

const (
	sourceName  = "ComprasNet"
	sourceCode  = "comprasnet"
	baseURL     = "https://comprasnet.gov.br/ConsultaLicitacoes/ConsLicitacao_Relacao.asp"
	pageCeiling = 20
	pageFloor   = 5
)

// Config configures one Comprasnet adapter instance.
type Config struct {
	BaseURL string
	HTTP    adapter.HTTPClientOptions
}

// Adapter implements adapter.Adapter for the Comprasnet portal.
type Adapter struct {
	cfg    Config
	client *adapter.HTTPClient
	pager  *adapter.PageSizeStepper
}

// New constructs a Comprasnet adapter.
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
		pager:  adapter.NewPageSizeStepper(pageCeiling, pageFloor),
	}
}

// Metadata implements adapter.Adapter. Comprasnet has no modality filter
// and no per-item detail endpoint — its capability set is deliberately
// narrower than PNCP's.
func (a *Adapter) Metadata() model.SourceMetadata {
	return model.SourceMetadata{
		Name:             sourceName,
		Code:             sourceCode,
		BaseURL:          a.cfg.BaseURL,
		Priority:         2,
		RateLimitPerMin:  60,
		DefaultTimeoutMs: 15_000,
		Capabilities: map[model.Capability]struct{}{
			model.CapUFFilter:   {},
			model.CapPagination: {},
		},
	}
}

// HealthCheck implements adapter.Adapter.
func (a *Adapter) HealthCheck(ctx context.Context) (model.SourceStatus, error) {
	return a.client.HealthCheck(ctx, a.cfg.BaseURL)
}

// Fetch implements adapter.Adapter. Modality filtering, when requested,
// is applied client-side after normalize since the portal has no
// server-side support for it (§4.1).
func (a *Adapter) Fetch(ctx context.Context, params adapter.FetchParams) (<-chan adapter.ProcurementOrErr, error) {
	out := make(chan adapter.ProcurementOrErr, 32)

	go func() {
		defer close(out)

		page := 1
		truncated := false
		const maxPages = 100

		for {
			if page > maxPages {
				truncated = true
				break
			}

			url := a.buildURL(params, page)
			body, err := a.client.GetJSON(ctx, url)
			if err != nil {
				if isPageTooLarge(err) {
					a.pager.StepDown()
					continue
				}
				select {
				case out <- adapter.ProcurementOrErr{Err: err}:
				case <-ctx.Done():
				}
				return
			}

			records, hasMore := extractPage(body)
			for _, raw := range records {
				rec, nErr := a.Normalize(raw)
				if nErr == nil && len(params.Modalities) > 0 && !matchesModality(rec, params.Modalities) {
					continue
				}
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

func (a *Adapter) buildURL(params adapter.FetchParams, page int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s?dt_ini=%s&dt_fim=%s&pagina=%d&qtd=%d",
		a.cfg.BaseURL,
		params.DataInicial.Format(string(adapter.DateFormatBRSlash)),
		params.DataFinal.Format(string(adapter.DateFormatBRSlash)),
		page,
		a.pager.Current(),
	)
	if len(params.UFs) > 0 {
		fmt.Fprintf(&b, "&uf=%s", strings.Join(params.UFs, ","))
	}
	return b.String()
}

func matchesModality(rec model.UnifiedProcurement, modalities []string) bool {
	for _, m := range modalities {
		if strings.EqualFold(rec.ModalidadeCode, m) {
			return true
		}
	}
	return false
}

func isPageTooLarge(err error) bool {
	apiErr, ok := err.(*adapter.APIError)
	return ok && apiErr.Status == 400
}

func extractPage(body map[string]any) (records []map[string]any, hasMore bool) {
	rawList, _ := body["licitacoes"].([]any)
	for _, item := range rawList {
		if m, ok := item.(map[string]any); ok {
			records = append(records, m)
		}
	}
	more, _ := body["tem_mais"].(bool)
	return records, more
}

// Normalize implements adapter.Adapter.
func (a *Adapter) Normalize(raw map[string]any) (model.UnifiedProcurement, error) {
	numero, _ := raw["numero_licitacao"].(string)
	cnpj, _ := raw["cnpj_orgao"].(string)
	orgao, _ := raw["nome_orgao"].(string)
	objeto, _ := raw["objeto"].(string)
	uf, _ := raw["uf"].(string)
	municipio, _ := raw["municipio"].(string)
	modalidade, _ := raw["modalidade"].(string)

	valorEstimado := parseBRLFloat(raw["valor_estimado"])

	dataPub := parseBRDate(raw["data_publicacao"])
	dataAbert := parseBRDate(raw["data_abertura"])
	dataEnc := parseBRDate(raw["data_encerramento"])

	situacao, _ := raw["situacao"].(string)

	if numero == "" {
		return model.UnifiedProcurement{}, &adapter.ParseError{Source: sourceCode, Field: "numero_licitacao", Value: ""}
	}

	return model.UnifiedProcurement{
		SourceID:         numero,
		SourceName:       sourceName,
		DedupKey:         adapter.DedupKey(cnpj, numero, dataPub.Format(string(adapter.DateFormatISO))),
		Objeto:           objeto,
		Orgao:            orgao,
		UF:               uf,
		Municipio:        municipio,
		Esfera:           model.EsferaFederal,
		ModalidadeCode:   modalidade,
		ModalidadeName:   modalidade,
		ValorEstimado:    valorEstimado,
		DataPublicacao:   dataPub,
		DataAbertura:     dataAbert,
		DataEncerramento: dataEnc,
		SituacaoCode:     situacao,
		SituacaoText:     situacao,
		LinkPortal:       fmt.Sprintf("%s?numero=%s", a.cfg.BaseURL, numero),
		RawData:          raw,
	}, nil
}

func parseBRDate(v any) time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(string(adapter.DateFormatBRSlash), s); err == nil {
		return t
	}
	return time.Time{}
}

func parseBRLFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		var f float64
		fmt.Sscanf(strings.ReplaceAll(strings.ReplaceAll(x, ".", ""), ",", "."), "%f", &f)
		return f
	default:
		return 0
	}
}

// Close implements adapter.Adapter.
func (a *Adapter) Close() error { return nil }
