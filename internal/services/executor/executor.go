// Package executor runs registry mutations one at a time per key and
// refreshes the published snapshot after each one that reaches finality.
package executor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/estate/internal/domain"
	"github.com/vadiminshakov/estate/internal/metrics"
)

const (
	defaultFinalityTimeout = 2 * time.Minute
	defaultMaxReason       = 50

	outcomeSuccess  = "success"
	outcomeRejected = "rejected"
	outcomeTimeout  = "timeout"
	outcomeInFlight = "in_flight"
)

// Refresher rebuilds and publishes the snapshot of the current account.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Executor is the single entry point for mutating calls.
type Executor struct {
	mu      sync.Mutex
	pending map[domain.MutationKey]domain.MutationKind

	refresher       Refresher
	journal         *Journal
	logger          *zap.Logger
	finalityTimeout time.Duration
	maxReason       int
	reporter        func(domain.Outcome)
}

// Option configures an Executor.
type Option func(*Executor)

// WithJournal records every mutation in j.
func WithJournal(j *Journal) Option {
	return func(e *Executor) {
		e.journal = j
	}
}

// WithFinalityTimeout bounds how long Execute waits for finality.
func WithFinalityTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.finalityTimeout = d
		}
	}
}

// WithMaxReason bounds the displayed failure reason, in runes.
func WithMaxReason(n int) Option {
	return func(e *Executor) {
		e.maxReason = n
	}
}

// WithReporter receives every terminal outcome.
func WithReporter(fn func(domain.Outcome)) Option {
	return func(e *Executor) {
		e.reporter = fn
	}
}

// New creates an executor that calls refresher after each final mutation.
func New(refresher Refresher, logger *zap.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Executor{
		pending:         make(map[domain.MutationKey]domain.MutationKind),
		refresher:       refresher,
		logger:          logger,
		finalityTimeout: defaultFinalityTimeout,
		maxReason:       defaultMaxReason,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Execute submits call under key, waits for finality and, on success,
// refreshes the snapshot exactly once. A key that is already in flight is
// rejected with ErrMutationInFlight before call runs. The key is released
// before Execute returns, whatever the outcome.
func (e *Executor) Execute(ctx context.Context, key domain.MutationKey, kind domain.MutationKind, call domain.MutatingCall) domain.Outcome {
	if !e.acquire(key, kind) {
		out := domain.Outcome{
			Key:    key,
			Kind:   kind,
			Reason: domain.ErrMutationInFlight.Error(),
			Err:    errors.Wrapf(domain.ErrMutationInFlight, "%s", key),
		}
		metrics.MutationsTotal.WithLabelValues(string(kind), outcomeInFlight).Inc()
		e.logger.Info("mutation rejected, key in flight", zap.String("key", key.String()), zap.String("kind", string(kind)))
		e.report(out)
		return out
	}
	defer e.release(key)

	out := e.run(ctx, key, kind, call)
	e.report(out)
	return out
}

// Pending returns the keys with a mutation in flight.
func (e *Executor) Pending() []domain.MutationKey {
	e.mu.Lock()
	defer e.mu.Unlock()

	keys := make([]domain.MutationKey, 0, len(e.pending))
	for k := range e.pending {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// IsPending reports whether key has a mutation in flight.
func (e *Executor) IsPending(key domain.MutationKey) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.pending[key]
	return ok
}

func (e *Executor) acquire(key domain.MutationKey, kind domain.MutationKind) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, busy := e.pending[key]; busy {
		return false
	}
	e.pending[key] = kind
	metrics.MutationsInFlight.Inc()
	return true
}

func (e *Executor) release(key domain.MutationKey) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.pending, key)
	metrics.MutationsInFlight.Dec()
}

func (e *Executor) run(ctx context.Context, key domain.MutationKey, kind domain.MutationKind, call domain.MutatingCall) domain.Outcome {
	l := e.logger.With(zap.String("key", key.String()), zap.String("kind", string(kind)))
	out := domain.Outcome{Key: key, Kind: kind}
	start := time.Now()

	entry := e.prepare(l, key, kind)

	sub, err := call(ctx)
	if err != nil {
		return e.fail(l, entry, out, err)
	}
	out.TxID = sub.TxID()
	if e.journal != nil {
		if err := e.journal.MarkSubmitted(entry, out.TxID); err != nil {
			l.Warn("failed to journal submission", zap.Error(err))
		}
	}
	l.Info("mutation submitted", zap.String("tx", out.TxID))

	waitCtx, cancel := context.WithTimeout(ctx, e.finalityTimeout)
	err = sub.Wait(waitCtx)
	cancel()
	metrics.MutationLatency.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		return e.fail(l, entry, out, err)
	}

	out.Success = true
	metrics.MutationsTotal.WithLabelValues(string(kind), outcomeSuccess).Inc()
	if e.journal != nil {
		if err := e.journal.MarkDone(entry); err != nil {
			l.Warn("failed to journal outcome", zap.Error(err))
		}
	}
	l.Info("mutation final", zap.String("tx", out.TxID), zap.Duration("took", time.Since(start)))

	if e.refresher != nil {
		if err := e.refresher.Refresh(ctx); err != nil {
			out.RefreshErr = err
			l.Warn("snapshot refresh after mutation failed, previous snapshot kept", zap.Error(err))
		}
	}

	return out
}

func (e *Executor) prepare(l *zap.Logger, key domain.MutationKey, kind domain.MutationKind) *JournalEntry {
	if e.journal == nil {
		return nil
	}
	entry, err := e.journal.Prepare(key, kind)
	if err != nil {
		l.Warn("failed to journal mutation intent", zap.Error(err))
		return nil
	}
	return entry
}

// fail classifies err into a timeout or a rejection and fills the outcome.
func (e *Executor) fail(l *zap.Logger, entry *JournalEntry, out domain.Outcome, err error) domain.Outcome {
	cause := err
	var mErr *domain.MutationError
	if errors.As(err, &mErr) && mErr.Unwrap() != nil {
		cause = mErr.Unwrap()
	}

	kind := domain.ErrMutationRejected
	switch {
	case errors.Is(err, domain.ErrMutationTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		kind = domain.ErrMutationTimeout
	case errors.Is(err, domain.ErrNotConnected):
		kind = domain.ErrNotConnected
	}

	typed := domain.NewMutationError(kind, cause, e.maxReason)
	out.Err = typed
	out.Reason = typed.Reason
	if out.Reason == "" {
		out.Reason = kind.Error()
	}

	if kind == domain.ErrMutationTimeout {
		metrics.MutationsTotal.WithLabelValues(string(out.Kind), outcomeTimeout).Inc()
		l.Warn("mutation finality not observed", zap.String("tx", out.TxID), zap.Error(err))
		if e.journal != nil {
			if jErr := e.journal.MarkTimeout(entry, err.Error()); jErr != nil {
				l.Warn("failed to journal outcome", zap.Error(jErr))
			}
		}
		return out
	}

	metrics.MutationsTotal.WithLabelValues(string(out.Kind), outcomeRejected).Inc()
	l.Warn("mutation rejected", zap.String("tx", out.TxID), zap.Error(err))
	if e.journal != nil {
		if jErr := e.journal.MarkFailed(entry, cause.Error()); jErr != nil {
			l.Warn("failed to journal outcome", zap.Error(jErr))
		}
	}
	return out
}

func (e *Executor) report(out domain.Outcome) {
	if e.reporter != nil {
		e.reporter(out)
	}
}
