package snapshots

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/estate/internal/domain"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

func summary(account common.Address, version uint64, balance string) domain.SnapshotSummary {
	return domain.SnapshotSummary{
		Timestamp:     time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Version:       version,
		Account:       account.Hex(),
		Assets:        int(version),
		Balance:       balance,
		LockedDeposit: "0",
	}
}

func TestWALStore_SummariesAfter(t *testing.T) {
	dir := t.TempDir()
	store, err := NewWALStore(dir)
	require.NoError(t, err)

	for v := uint64(1); v <= 3; v++ {
		require.NoError(t, store.Save(summary(alice, v, "0")))
	}

	all, err := store.SummariesAfter(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, uint64(1), all[0].Summary.Version)

	tail, err := store.SummariesAfter(all[1].Index)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, uint64(3), tail[0].Summary.Version)

	none, err := store.SummariesAfter(store.CurrentIndex())
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, store.Close())

	reopened, err := NewWALStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	again, err := reopened.SummariesAfter(0)
	require.NoError(t, err)
	assert.Len(t, again, 3)
}

func TestWALStore_SummariesFor(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Save(summary(alice, 1, "10")))
	require.NoError(t, store.Save(summary(bob, 1, "20")))
	require.NoError(t, store.Save(summary(alice, 2, "11")))

	mine, err := store.SummariesFor(alice, 0)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "10", mine[0].Summary.Balance)
	assert.Equal(t, "11", mine[1].Summary.Balance)
	assert.Equal(t, uint64(3), mine[1].Index, "indexes stay global")

	later, err := store.SummariesFor(bob, mine[0].Index)
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Equal(t, bob.Hex(), later[0].Summary.Account)

	nobody, err := store.SummariesFor(common.HexToAddress("0xc0"), 0)
	require.NoError(t, err)
	assert.Empty(t, nobody)
}

func TestWALStore_LatestSurvivesVersionRestart(t *testing.T) {
	dir := t.TempDir()
	store, err := NewWALStore(dir)
	require.NoError(t, err)

	_, ok, err := store.Latest(alice)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(summary(alice, 1, "5")))
	require.NoError(t, store.Save(summary(alice, 2, "6")))
	require.NoError(t, store.Close())

	// a new session starts counting versions from one again
	store, err = NewWALStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	last, ok, err := store.Latest(alice)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "6", last.Summary.Balance)

	require.NoError(t, store.Save(summary(alice, 1, "7")))
	require.NoError(t, store.Save(summary(bob, 9, "1")))

	last, ok, err = store.Latest(alice)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "7", last.Summary.Balance)
	assert.Equal(t, uint64(1), last.Summary.Version)
}

func TestWALStore_RejectsIncompleteSummaries(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	assert.Error(t, store.Save(domain.SnapshotSummary{Account: alice.Hex()}), "version is required")
	assert.Error(t, store.Save(domain.SnapshotSummary{Version: 1, Account: "alice"}), "account must be an address")
	assert.Zero(t, store.CurrentIndex())
}

func TestWALStore_NilSafe(t *testing.T) {
	var store *WALStore
	assert.Zero(t, store.CurrentIndex())
	assert.Error(t, store.Save(summary(alice, 1, "0")))
	_, err := store.SummariesAfter(0)
	assert.Error(t, err)
	_, _, err = store.Latest(alice)
	assert.Error(t, err)
}
