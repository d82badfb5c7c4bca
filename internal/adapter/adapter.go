// Package adapter defines the uniform contract every procurement source
// integration must satisfy, plus the shared plumbing (format negotiation,
// page-size step-down) that concrete adapters build on. Nothing outside an
// adapter's own package ever sees the upstream portal's wire format: every
// adapter yields model.UnifiedProcurement and nothing else.
package adapter

import (
	"context"
	"time"

	"github.com/sells-group/procsearch/internal/model"
)

// FetchParams is the uniform query an adapter is asked to satisfy. UFs and
// Modalities are optional filters; adapters that lack server-side support
// for one apply it client-side after normalize (§4.1).
type FetchParams struct {
	DataInicial time.Time
	DataFinal   time.Time
	UFs         []string
	Modalities  []string
	Extra       map[string]string
}

// ProcurementOrErr is one element of a Fetch stream: either a normalized
// record or a terminal/non-terminal error. The adapter decides per error
// whether the stream continues (a single bad record) or ends (exhausted
// retries, auth failure).
type ProcurementOrErr struct {
	Record       model.UnifiedProcurement
	Err          error
	WasTruncated bool
}

// Adapter is the uniform contract a source integration exposes to the
// consolidation service (C3). Implementations must be safe for concurrent
// use by a single caller driving one Fetch at a time; the service never
// shares an Adapter value across goroutines except for HealthCheck probes.
type Adapter interface {
	// Metadata returns the adapter's static descriptor.
	Metadata() model.SourceMetadata

	// HealthCheck reports the source's current status. Must return within
	// 5s and must never return an error that escapes as a panic — a failed
	// probe reports SourceUnavailable, it does not raise.
	HealthCheck(ctx context.Context) (model.SourceStatus, error)

	// Fetch streams normalized records matching params. The returned
	// channel is closed when the stream ends, whether by exhaustion, by
	// ctx cancellation, or by a terminal error (delivered as the final
	// ProcurementOrErr.Err before close).
	Fetch(ctx context.Context, params FetchParams) (<-chan ProcurementOrErr, error)

	// Normalize converts one raw upstream record into the canonical shape.
	// Pure function: no I/O, no retries, always populates DedupKey.
	Normalize(raw map[string]any) (model.UnifiedProcurement, error)

	// Close releases any held HTTP connections or background goroutines.
	Close() error
}

// Validate checks that a's static metadata is well-formed enough to be
// trusted by the consolidation service. It is called once at startup per
// enabled adapter (§4.3: "non-conforming adapters cause a startup failure,
// never a runtime surprise") — it is not a substitute for Go's own
// interface satisfaction, which the compiler already enforces.
func Validate(a Adapter) error {
	md := a.Metadata()
	if md.Name == "" || md.Code == "" {
		return ErrNonConformantAdapter(md.Code)
	}
	if md.Priority < 0 {
		return ErrNonConformantAdapter(md.Code)
	}
	return nil
}
