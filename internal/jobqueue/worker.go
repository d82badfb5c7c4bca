package jobqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sells-group/procsearch/internal/model"
	"github.com/sells-group/procsearch/internal/searchstate"
)

// dequeueTimeout bounds each BRPOP; the worker loop simply retries on a
// timeout, so this only controls how promptly ctx cancellation is noticed.
const dequeueTimeout = 5 * time.Second

// ObjectStore is the narrow external collaborator the report job uploads
// its xlsx bytes to. Its concrete implementation (S3, GCS, ...) is outside
// this module's scope; only this interface is consumed.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte) (signedURL string, err error)
}

// Worker drains the job queue and runs both job kinds. It also implements
// InlineRunner so a Dispatcher can fall back to running the exact same
// handlers synchronously when the queue is unavailable.
type Worker struct {
	Queue     *Queue
	Results   *ResultStore
	Redis     *redis.Client // for publishing completion events; may be nil
	Summaries *AnthropicSummaryGenerator
	Reports   ReportGenerator
	Objects   ObjectStore
}

// Run drains the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := w.Queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			zap.L().Warn("jobqueue: dequeue failed, retrying", zap.Error(err))
			continue
		}
		if job == nil {
			continue // timed out with nothing queued
		}
		w.handle(ctx, *job)
	}
}

func (w *Worker) handle(ctx context.Context, job Job) {
	switch job.Type {
	case JobSummary:
		var payload SummaryPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			zap.L().Error("jobqueue: bad summary payload", zap.String("search_id", job.SearchID), zap.Error(err))
			return
		}
		w.RunSummary(ctx, job.SearchID, payload)
	case JobReport:
		var payload ReportPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			zap.L().Error("jobqueue: bad report payload", zap.String("search_id", job.SearchID), zap.Error(err))
			return
		}
		w.RunReport(ctx, job.SearchID, payload)
	default:
		zap.L().Warn("jobqueue: unknown job type", zap.String("type", string(job.Type)))
	}
}

// RunSummary satisfies InlineRunner and is also what Run calls for a
// dequeued JobSummary.
func (w *Worker) RunSummary(ctx context.Context, searchID string, payload SummaryPayload) {
	result := SummaryResult{}
	if w.Summaries == nil {
		result.Err = "summary generator not configured"
	} else {
		resumo, err := w.Summaries.GenerateSummary(ctx, payload.SectorName, payload.Accepted, payload.Stats)
		if err != nil {
			zap.L().Warn("jobqueue: summary job failed", zap.String("search_id", searchID), zap.Error(err))
			result.Err = err.Error()
		} else {
			result.Resumo = resumoJSON(resumo)
		}
	}

	if w.Results != nil {
		if err := w.Results.PutSummary(ctx, searchID, result); err != nil {
			zap.L().Warn("jobqueue: failed to persist summary result", zap.Error(err))
		}
	}
	w.publish(ctx, searchID, "llm_ready", result.Err)
}

// RunReport satisfies InlineRunner and is also what Run calls for a
// dequeued JobReport.
func (w *Worker) RunReport(ctx context.Context, searchID string, payload ReportPayload) {
	result := ReportResult{}
	xlsxBytes, err := w.Reports.GenerateReport(payload.Licitacoes)
	if err != nil {
		zap.L().Warn("jobqueue: report generation failed", zap.String("search_id", searchID), zap.Error(err))
		result.Err = err.Error()
	} else if w.Objects == nil {
		result.Err = "object store not configured"
	} else {
		url, err := w.Objects.Put(ctx, "reports/"+searchID+".xlsx", xlsxBytes)
		if err != nil {
			zap.L().Warn("jobqueue: report upload failed", zap.String("search_id", searchID), zap.Error(err))
			result.Err = err.Error()
		} else {
			result.DownloadURL = url
		}
	}

	if w.Results != nil {
		if err := w.Results.PutReport(ctx, searchID, result); err != nil {
			zap.L().Warn("jobqueue: failed to persist report result", zap.Error(err))
		}
	}
	w.publish(ctx, searchID, "excel_ready", result.Err)
}

func (w *Worker) publish(ctx context.Context, searchID, stage, errMsg string) {
	ev := model.ProgressEvent{Stage: stage, Progress: 100, Timestamp: time.Now()}
	if errMsg != "" {
		ev.Message = errMsg
	}
	if err := searchstate.PublishEvent(ctx, w.Redis, searchID, ev); err != nil {
		zap.L().Warn("jobqueue: failed to publish completion event", zap.String("search_id", searchID), zap.Error(err))
	}
}
