package jobqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/procsearch/internal/model"
)

// ReportPayload is the Payload a JobReport Job carries.
type ReportPayload struct {
	Licitacoes []model.LicitacaoView `json:"licitacoes"`
}

// InlineRunner executes both job kinds synchronously, used when the queue
// is unavailable (§4.9: "behaviour is always correct, only latency
// shifts"). A Worker satisfies this by running the same handlers it would
// otherwise run off a dequeued Job.
type InlineRunner interface {
	RunSummary(ctx context.Context, searchID string, payload SummaryPayload)
	RunReport(ctx context.Context, searchID string, payload ReportPayload)
}

// Dispatcher decides, per §4.9/§5, whether a search's background jobs are
// enqueued for a worker or executed inline on the request goroutine.
type Dispatcher struct {
	Queue  *Queue
	Inline InlineRunner
}

// DispatchSummary enqueues (or inlines) the executive-summary job.
func (d *Dispatcher) DispatchSummary(ctx context.Context, searchID string, payload SummaryPayload) {
	d.dispatch(ctx, searchID, JobSummary, payload, func() { d.Inline.RunSummary(ctx, searchID, payload) })
}

// DispatchReport enqueues (or inlines) the report-generation job.
func (d *Dispatcher) DispatchReport(ctx context.Context, searchID string, payload ReportPayload) {
	d.dispatch(ctx, searchID, JobReport, payload, func() { d.Inline.RunReport(ctx, searchID, payload) })
}

func (d *Dispatcher) dispatch(ctx context.Context, searchID string, jobType JobType, payload any, inline func()) {
	if d.Queue == nil || !d.Queue.IsAvailable(ctx) {
		zap.L().Info("jobqueue: queue unavailable, running job inline", zap.String("search_id", searchID), zap.String("job_type", string(jobType)))
		inline()
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		zap.L().Warn("jobqueue: failed to marshal job payload, falling back to inline", zap.Error(err))
		inline()
		return
	}

	job := Job{Type: jobType, SearchID: searchID, Payload: body, EnqueuedAt: time.Now()}
	if err := d.Queue.Enqueue(ctx, job); err != nil {
		zap.L().Warn("jobqueue: enqueue failed, falling back to inline", zap.Error(eris.Wrap(err, "dispatch")))
		inline()
	}
}
