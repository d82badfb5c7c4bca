package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/procsearch/internal/model"
	"github.com/sells-group/procsearch/pkg/anthropic"
)

const summarySystemPrompt = `You are writing a short executive summary of government procurement opportunities for a sales team. Given a sector name, a list of matched opportunities (object, organ, UF, value, deadline), and filter statistics, produce a concise Portuguese summary: highlight the most promising opportunities, mention the total count and total estimated value, and flag anything with an urgent deadline. Plain text, no markdown headers, at most 5 sentences.`

// SummaryPayload is the Payload a JobSummary Job carries.
type SummaryPayload struct {
	SectorName string                `json:"sector_name"`
	Accepted   []model.LicitacaoView `json:"accepted"`
	Stats      model.FilterStats     `json:"stats"`
}

// AnthropicSummaryGenerator implements pipeline.SummaryGenerator by asking
// an Anthropic model for a narrative executive summary, mirroring
// AnthropicArbiter's single-call, cached-system-prompt shape.
type AnthropicSummaryGenerator struct {
	Client anthropic.Client
	Model  string
}

// GenerateSummary satisfies pipeline.SummaryGenerator.
func (g *AnthropicSummaryGenerator) GenerateSummary(ctx context.Context, sectorName string, accepted []model.LicitacaoView, stats model.FilterStats) (model.Resumo, error) {
	resp, err := g.Client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.Model,
		MaxTokens: 512,
		System:    anthropic.BuildCachedSystemBlocks(summarySystemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: buildSummaryPrompt(sectorName, accepted, stats)},
		},
	})
	if err != nil {
		return model.Resumo{}, eris.Wrap(err, "jobqueue: generate summary")
	}
	if len(resp.Content) == 0 {
		return model.Resumo{}, eris.New("jobqueue: summary model returned no content")
	}

	return buildResumo(resp.Content[0].Text, accepted), nil
}

func buildSummaryPrompt(sectorName string, accepted []model.LicitacaoView, stats model.FilterStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sector: %s\n", sectorName)
	fmt.Fprintf(&b, "Total matched: %d (raw rejected by stage: %v)\n", len(accepted), stats.Extra)
	for i, v := range accepted {
		if i >= 20 {
			fmt.Fprintf(&b, "... and %d more\n", len(accepted)-20)
			break
		}
		fmt.Fprintf(&b, "- %s | %s/%s | R$ %s | prazo %s | urgencia %s\n",
			v.Objeto, v.Orgao, v.UF, strconv.FormatFloat(v.Valor, 'f', 2, 64), v.DataEncerramento.Format("2006-01-02"), v.Urgencia)
	}
	return b.String()
}

func buildResumo(narrative string, accepted []model.LicitacaoView) model.Resumo {
	var total float64
	destaques := make([]string, 0, 3)
	urgentCount := 0
	for i, v := range accepted {
		total += v.Valor
		if i < 3 {
			destaques = append(destaques, v.Objeto)
		}
		if v.Urgencia == "urgente" {
			urgentCount++
		}
	}
	var alerta string
	if urgentCount > 0 {
		alerta = fmt.Sprintf("%d oportunidade(s) com prazo urgente (<= 2 dias)", urgentCount)
	}
	return model.Resumo{
		ResumoExecutivo:    strings.TrimSpace(narrative),
		TotalOportunidades: len(accepted),
		ValorTotal:         total,
		Destaques:          destaques,
		AlertaUrgencia:     alerta,
	}
}

// resumoJSON marshals a model.Resumo for storage in a SummaryResult.
func resumoJSON(r model.Resumo) json.RawMessage {
	body, err := json.Marshal(r)
	if err != nil {
		return json.RawMessage("{}")
	}
	return body
}
