package adapter

import (
	"sync"
	"time"
)

// DateFormat is one of the two upstream date encodings the system
// supports natively (§4.1).
type DateFormat string

const (
	DateFormatISO     DateFormat = "2006-01-02"
	DateFormatBRSlash DateFormat = "02/01/2006"
)

// formatMemo is what FormatNegotiator remembers for one source: the date
// format that was last accepted, and when that memory expires.
type formatMemo struct {
	format    DateFormat
	expiresAt time.Time
}

// FormatNegotiator remembers, per source, which date format the upstream
// accepted last time, for 24h (§4.1). It mirrors the teacher's
// AdaptiveLimiter shape — "remember what worked, degrade on rejection" —
// applied to date-format negotiation instead of request rate.
type FormatNegotiator struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time

	memos map[string]formatMemo
}

// NewFormatNegotiator creates a negotiator with the given memory TTL
// (pass 0 to use the spec default of 24h).
func NewFormatNegotiator(ttl time.Duration) *FormatNegotiator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &FormatNegotiator{
		ttl:   ttl,
		now:   time.Now,
		memos: make(map[string]formatMemo),
	}
}

// Preferred returns the format to try first for source: the last accepted
// format if its memory has not expired, otherwise the given default.
func (n *FormatNegotiator) Preferred(source string, fallback DateFormat) DateFormat {
	n.mu.Lock()
	defer n.mu.Unlock()

	m, ok := n.memos[source]
	if !ok || n.now().After(m.expiresAt) {
		return fallback
	}
	return m.format
}

// Accept records that format was accepted by source, remembered for ttl.
func (n *FormatNegotiator) Accept(source string, format DateFormat) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.memos[source] = formatMemo{format: format, expiresAt: n.now().Add(n.ttl)}
}

// PageSizeStepper tracks a per-source page-size ceiling that steps down on
// repeated rejections and never exceeds the configured maximum. Grounded
// on the same adaptive-degrade shape as FormatNegotiator and the teacher's
// AdaptiveLimiter.OnRateLimit halving.
type PageSizeStepper struct {
	mu      sync.Mutex
	current int
	floor   int
}

// NewPageSizeStepper creates a stepper starting at ceiling, never reduced
// below floor.
func NewPageSizeStepper(ceiling, floor int) *PageSizeStepper {
	if floor <= 0 {
		floor = 10
	}
	if ceiling < floor {
		ceiling = floor
	}
	return &PageSizeStepper{current: ceiling, floor: floor}
}

// Current returns the page size to use for the next request.
func (s *PageSizeStepper) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// StepDown halves the current page size (rounded down), bounded by floor.
// Called when the upstream rejects a page as too large.
func (s *PageSizeStepper) StepDown() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.current / 2
	if next < s.floor {
		next = s.floor
	}
	s.current = next
	return next
}
