package executor

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/estate/internal/domain"
)

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (r *countingRefresher) Refresh(context.Context) error {
	r.calls.Add(1)
	return r.err
}

type fakeSubmission struct {
	id      string
	release chan struct{}
	err     error
}

func (s *fakeSubmission) TxID() string { return s.id }

func (s *fakeSubmission) Wait(ctx context.Context) error {
	select {
	case <-s.release:
		return s.err
	case <-ctx.Done():
		return errors.Wrap(domain.ErrMutationTimeout, ctx.Err().Error())
	}
}

func released(err error) *fakeSubmission {
	ch := make(chan struct{})
	close(ch)
	return &fakeSubmission{id: "0xabc", release: ch, err: err}
}

func submitting(sub domain.Submission, calls *atomic.Int32) domain.MutatingCall {
	return func(context.Context) (domain.Submission, error) {
		calls.Add(1)
		return sub, nil
	}
}

func TestExecutor_SuccessRefreshesOnce(t *testing.T) {
	ref := &countingRefresher{}
	var reported []domain.Outcome
	e := New(ref, nil, WithReporter(func(o domain.Outcome) { reported = append(reported, o) }))

	var calls atomic.Int32
	out := e.Execute(context.Background(), domain.AssetKey(7), domain.MutationBuyShares, submitting(released(nil), &calls))

	assert.True(t, out.Success)
	assert.NoError(t, out.Err)
	assert.Equal(t, "0xabc", out.TxID)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), ref.calls.Load())
	assert.False(t, e.IsPending(domain.AssetKey(7)))
	require.Len(t, reported, 1)
	assert.Equal(t, out.TxID, reported[0].TxID)
}

func TestExecutor_FailuresNeverRefresh(t *testing.T) {
	longReason := strings.Repeat("x", 80)

	tests := []struct {
		name       string
		call       domain.MutatingCall
		kind       error
		wantReason string
	}{
		{
			name: "submission rejected",
			call: func(context.Context) (domain.Submission, error) {
				return nil, domain.NewMutationError(domain.ErrMutationRejected, errors.New("Not the landlord"), 0)
			},
			kind:       domain.ErrMutationRejected,
			wantReason: "Not the landlord",
		},
		{
			name: "reverted at finality",
			call: func(context.Context) (domain.Submission, error) {
				return released(domain.NewMutationError(domain.ErrMutationRejected, errors.New(longReason), 0)), nil
			},
			kind:       domain.ErrMutationRejected,
			wantReason: strings.Repeat("x", 50) + "...",
		},
		{
			name: "no account",
			call: func(context.Context) (domain.Submission, error) {
				return nil, domain.ErrNotConnected
			},
			kind:       domain.ErrNotConnected,
			wantReason: domain.ErrNotConnected.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := &countingRefresher{}
			e := New(ref, nil)
			key := domain.AssetKey(1)

			out := e.Execute(context.Background(), key, domain.MutationLockFinancing, tt.call)

			assert.False(t, out.Success)
			assert.True(t, errors.Is(out.Err, tt.kind))
			assert.Equal(t, tt.wantReason, out.Reason)
			assert.Zero(t, ref.calls.Load())
			assert.False(t, e.IsPending(key))
		})
	}
}

func TestExecutor_TimeoutIsDistinct(t *testing.T) {
	ref := &countingRefresher{}
	e := New(ref, nil, WithFinalityTimeout(20*time.Millisecond))

	stuck := &fakeSubmission{id: "0xstuck", release: make(chan struct{})}
	var calls atomic.Int32
	out := e.Execute(context.Background(), domain.AssetKey(3), domain.MutationRentAsset, submitting(stuck, &calls))

	assert.False(t, out.Success)
	assert.True(t, errors.Is(out.Err, domain.ErrMutationTimeout))
	assert.False(t, errors.Is(out.Err, domain.ErrMutationRejected))
	assert.Equal(t, "0xstuck", out.TxID)
	assert.Zero(t, ref.calls.Load())
	assert.False(t, e.IsPending(domain.AssetKey(3)))
}

func TestExecutor_RejectsSameKeyInFlight(t *testing.T) {
	ref := &countingRefresher{}
	e := New(ref, nil)
	key := domain.AssetKey(7)

	blocked := &fakeSubmission{id: "0x1", release: make(chan struct{})}
	var firstCalls, secondCalls atomic.Int32

	done := make(chan domain.Outcome)
	go func() {
		done <- e.Execute(context.Background(), key, domain.MutationBuyShares, submitting(blocked, &firstCalls))
	}()

	require.Eventually(t, func() bool { return firstCalls.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []domain.MutationKey{key}, e.Pending())

	second := e.Execute(context.Background(), key, domain.MutationBuyShares, submitting(released(nil), &secondCalls))
	assert.False(t, second.Success)
	assert.True(t, errors.Is(second.Err, domain.ErrMutationInFlight))
	assert.Zero(t, secondCalls.Load(), "ledger never contacted")

	close(blocked.release)
	first := <-done
	assert.True(t, first.Success)
	assert.Equal(t, int32(1), ref.calls.Load())

	third := e.Execute(context.Background(), key, domain.MutationBuyShares, submitting(released(nil), &secondCalls))
	assert.True(t, third.Success, "key is free again")
}

func TestExecutor_DifferentKeysRunConcurrently(t *testing.T) {
	ref := &countingRefresher{}
	e := New(ref, nil)

	release := make(chan struct{})
	var calls atomic.Int32
	var wg sync.WaitGroup
	outcomes := make([]domain.Outcome, 3)

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := &fakeSubmission{id: "tx", release: release}
			outcomes[i] = e.Execute(context.Background(), domain.AssetKey(domain.AssetID(i+1)), domain.MutationListForRent, submitting(sub, &calls))
		}()
	}

	require.Eventually(t, func() bool { return len(e.Pending()) == 3 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	for _, out := range outcomes {
		assert.True(t, out.Success)
	}
	assert.Equal(t, int32(3), ref.calls.Load())
	assert.Empty(t, e.Pending())
}

func TestExecutor_RefreshFailureKeepsSuccess(t *testing.T) {
	ref := &countingRefresher{err: errors.New("enumeration failed")}
	e := New(ref, nil)

	var calls atomic.Int32
	out := e.Execute(context.Background(), domain.AccountKey(), domain.MutationWithdrawBalance, submitting(released(nil), &calls))

	assert.True(t, out.Success)
	assert.NoError(t, out.Err)
	assert.Error(t, out.RefreshErr)
	assert.Equal(t, int32(1), ref.calls.Load())
}

func TestExecutor_Journal(t *testing.T) {
	j, err := OpenJournal(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	e := New(&countingRefresher{}, nil, WithJournal(j), WithFinalityTimeout(20*time.Millisecond))
	var calls atomic.Int32

	e.Execute(context.Background(), domain.AssetKey(1), domain.MutationBuyShares, submitting(released(nil), &calls))
	e.Execute(context.Background(), domain.AssetKey(2), domain.MutationBuyShares,
		submitting(released(domain.NewMutationError(domain.ErrMutationRejected, errors.New("Fundraising ended"), 0)), &calls))
	e.Execute(context.Background(), domain.AssetKey(3), domain.MutationBuyShares,
		submitting(&fakeSubmission{id: "0xstuck", release: make(chan struct{})}, &calls))

	entries := j.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, JournalTimeout, entries[0].Status)
	assert.Equal(t, "asset:3", entries[0].Key)
	assert.Equal(t, JournalFailed, entries[1].Status)
	assert.Equal(t, "Fundraising ended", entries[1].Reason)
	assert.Equal(t, JournalDone, entries[2].Status)
	assert.Equal(t, "0xabc", entries[2].TxID)
	assert.Empty(t, j.Unresolved())
}
