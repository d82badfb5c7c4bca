package jobqueue

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/procsearch/internal/model"
)

// Coordinator adapts Dispatcher + ResultStore to pipeline.JobCoordinator's
// plain-model-types signature, so internal/pipeline never has to import
// jobqueue's own payload/result wire shapes.
type Coordinator struct {
	Dispatcher *Dispatcher
	Results    *ResultStore
}

// DispatchSummary implements pipeline.JobCoordinator.
func (c *Coordinator) DispatchSummary(ctx context.Context, searchID, sectorName string, accepted []model.LicitacaoView, stats model.FilterStats) {
	c.Dispatcher.DispatchSummary(ctx, searchID, SummaryPayload{SectorName: sectorName, Accepted: accepted, Stats: stats})
}

// DispatchReport implements pipeline.JobCoordinator.
func (c *Coordinator) DispatchReport(ctx context.Context, searchID string, licitacoes []model.LicitacaoView) {
	c.Dispatcher.DispatchReport(ctx, searchID, ReportPayload{Licitacoes: licitacoes})
}

// GetSummary implements pipeline.JobCoordinator.
func (c *Coordinator) GetSummary(ctx context.Context, searchID string) (model.Resumo, bool, error) {
	result, ok, err := c.Results.GetSummary(ctx, searchID)
	if err != nil {
		return model.Resumo{}, false, err
	}
	if !ok || result.Err != "" {
		return model.Resumo{}, false, nil
	}
	var resumo model.Resumo
	if err := json.Unmarshal(result.Resumo, &resumo); err != nil {
		return model.Resumo{}, false, eris.Wrap(err, "coordinator: unmarshal summary result")
	}
	return resumo, true, nil
}

// GetReport implements pipeline.JobCoordinator.
func (c *Coordinator) GetReport(ctx context.Context, searchID string) (string, bool, error) {
	result, ok, err := c.Results.GetReport(ctx, searchID)
	if err != nil {
		return "", false, err
	}
	if !ok || result.Err != "" || result.DownloadURL == "" {
		return "", false, nil
	}
	return result.DownloadURL, true, nil
}
