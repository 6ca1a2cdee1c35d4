// Package snapshots keeps the history of published snapshot summaries in a
// write-ahead log, keyed by account so one directory can serve several
// sessions and survive restarts.
package snapshots

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/estate/internal/domain"
)

const (
	defaultDir     = "./wal/snapshots"
	segmentLimit   = 1000
	maxSegments    = 100
	summaryKeyRoot = "summary_"
)

var errNotInitialized = errors.New("snapshot summary store is not initialized")

// WALStore persists the summaries of published snapshots.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore opens the summary log under dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultDir
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "snapshot_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init snapshot summary WAL")
	}

	return &WALStore{wal: wal}, nil
}

// accountPrefix is the key prefix shared by all summaries of account.
func accountPrefix(account string) string {
	return summaryKeyRoot + strings.ToLower(account) + "_"
}

// Save appends summary. Versions restart with every session, so the key
// carries the account and the version and the WAL index orders them.
func (s *WALStore) Save(summary domain.SnapshotSummary) error {
	if s == nil || s.wal == nil {
		return errNotInitialized
	}
	if summary.Version == 0 {
		return errors.New("snapshot summary version is required")
	}
	if !common.IsHexAddress(summary.Account) {
		return errors.Errorf("snapshot summary account %q is not an address", summary.Account)
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot summary")
	}
	key := fmt.Sprintf("%s%d", accountPrefix(summary.Account), summary.Version)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Write(s.wal.CurrentIndex()+1, key, payload)
}

// SummariesAfter returns every summary written after index, oldest first.
func (s *WALStore) SummariesAfter(index uint64) ([]domain.SnapshotSummaryRecord, error) {
	return s.scan(index, summaryKeyRoot)
}

// SummariesFor returns the summaries of account written after index.
// Other accounts' records are skipped by key without being decoded.
func (s *WALStore) SummariesFor(account common.Address, index uint64) ([]domain.SnapshotSummaryRecord, error) {
	return s.scan(index, accountPrefix(account.Hex()))
}

// Latest returns the most recent summary of account, if any.
func (s *WALStore) Latest(account common.Address) (domain.SnapshotSummaryRecord, bool, error) {
	if s == nil || s.wal == nil {
		return domain.SnapshotSummaryRecord{}, false, errNotInitialized
	}
	prefix := accountPrefix(account.Hex())

	s.mu.RLock()
	defer s.mu.RUnlock()

	for idx := s.wal.CurrentIndex(); idx > 0; idx-- {
		key, payload, getErr := s.wal.Get(idx)
		if getErr != nil || !strings.HasPrefix(key, prefix) {
			continue
		}
		rec, err := decode(idx, payload)
		return rec, err == nil, err
	}

	return domain.SnapshotSummaryRecord{}, false, nil
}

func (s *WALStore) scan(index uint64, prefix string) ([]domain.SnapshotSummaryRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errNotInitialized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	var records []domain.SnapshotSummaryRecord
	for idx := index + 1; idx <= current; idx++ {
		key, payload, getErr := s.wal.Get(idx)
		if getErr != nil || !strings.HasPrefix(key, prefix) {
			continue
		}
		rec, err := decode(idx, payload)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, nil
}

func decode(idx uint64, payload []byte) (domain.SnapshotSummaryRecord, error) {
	var summary domain.SnapshotSummary
	if err := json.Unmarshal(payload, &summary); err != nil {
		return domain.SnapshotSummaryRecord{}, errors.Wrapf(err, "decode snapshot summary at %d", idx)
	}
	return domain.SnapshotSummaryRecord{Index: idx, Summary: summary}, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errNotInitialized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
