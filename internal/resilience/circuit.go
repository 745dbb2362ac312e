package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when a breaker refuses a webhook send.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is the breaker state machine position. The numeric values double as
// the gauge values exported for monitoring.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker tracks delivery outcomes for one webhook receiver and trips when
// the failure ratio crosses the threshold. An open breaker lets a single
// probe send through after the cool-off and closes again only if it lands.
type Breaker struct {
	mu        sync.Mutex
	state     State
	seen      int
	failed    int
	minSends  int
	tripRatio float64
	openedAt  time.Time
	openFor   time.Duration
	endpoint  string
	log       zerolog.Logger
}

// NewBreaker constructs a breaker. Out-of-range arguments fall back to one
// observed send, a 0.5 trip ratio and a 30s cool-off.
func NewBreaker(minSends int, tripRatio float64, openFor time.Duration) *Breaker {
	if minSends <= 0 {
		minSends = 1
	}
	if tripRatio <= 0 || tripRatio > 1 {
		tripRatio = 0.5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{
		minSends:  minSends,
		tripRatio: tripRatio,
		openFor:   openFor,
		log:       zerolog.Nop(),
	}
}

// WithEndpoint names the receiver this breaker guards. The name becomes the
// metric label and appears in transition logs.
func (b *Breaker) WithEndpoint(name string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endpoint = strings.TrimSpace(name)
	b.recordStateLocked()
	return b
}

// WithLogger sets the logger used for transition events.
func (b *Breaker) WithLogger(log zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = log
	return b
}

// Allow reports whether a send may proceed. An open breaker admits exactly
// one probe once the cool-off has elapsed, moving to half-open.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Open {
		return true
	}
	if time.Since(b.openedAt) < b.openFor {
		return false
	}
	b.transitionLocked(ctx, HalfOpen)
	return true
}

// Report feeds a send outcome into the state machine.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		if success {
			b.transitionLocked(ctx, Closed)
		} else {
			b.transitionLocked(ctx, Open)
		}
		return
	}

	b.seen++
	if !success {
		b.failed++
	}
	if b.seen < b.minSends {
		return
	}
	if float64(b.failed)/float64(b.seen) >= b.tripRatio {
		b.transitionLocked(ctx, Open)
		return
	}
	if b.seen > b.minSends*2 {
		// keep the window rolling instead of growing forever
		b.seen = int(math.Ceil(float64(b.seen) * 0.5))
		b.failed = int(math.Ceil(float64(b.failed) * 0.5))
	}
}

// Backoff returns the retry delay for the attempt, doubling per attempt with
// jitter expressed as a fraction of the delay (0.2 == plus or minus 20%).
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if jitterPct <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * float64(d) * jitterPct
	return d + time.Duration(delta)
}

func (b *Breaker) transitionLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		b.recordStateLocked()
		return
	}
	b.state = next
	b.seen = 0
	b.failed = 0
	switch next {
	case Open:
		b.openedAt = time.Now()
	case Closed:
		b.openedAt = time.Time{}
	}
	b.recordStateLocked()

	label := b.endpointLabel()
	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(label, prev.String(), next.String()).Inc()
	}
	if next == Open && BreakerOpenedTotal != nil {
		BreakerOpenedTotal.WithLabelValues(label).Inc()
	}
	evt := b.log.Info().
		Str("endpoint", label).
		Str("from_state", prev.String()).
		Str("to_state", next.String())
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		evt = evt.Str("trace_id", span.TraceID().String())
	}
	evt.Msg("webhook breaker transition")
}

func (b *Breaker) recordStateLocked() {
	if BreakerState == nil {
		return
	}
	BreakerState.WithLabelValues(b.endpointLabel()).Set(float64(b.state))
}

func (b *Breaker) endpointLabel() string {
	if b.endpoint == "" {
		return "default"
	}
	return b.endpoint
}
