package executor

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/estate/internal/domain"
)

const (
	mutationKeyPrefix = "mutation_"

	walDirPermissions   = 0o755
	walSegmentThreshold = 1000
	walMaxSegments      = 100
)

// JournalStatus is the lifecycle state of a journaled mutation.
type JournalStatus string

const (
	JournalPending   JournalStatus = "pending"
	JournalSubmitted JournalStatus = "submitted"
	JournalDone      JournalStatus = "done"
	JournalFailed    JournalStatus = "failed"
	JournalTimeout   JournalStatus = "timeout"
)

// Final reports whether the status is terminal.
func (s JournalStatus) Final() bool {
	return s == JournalDone || s == JournalFailed || s == JournalTimeout
}

// JournalEntry is the persisted record of one executed mutation.
type JournalEntry struct {
	ID         string              `json:"id"`
	Key        string              `json:"key"`
	Kind       domain.MutationKind `json:"kind"`
	Status     JournalStatus       `json:"status"`
	TxID       string              `json:"tx_id,omitempty"`
	Reason     string              `json:"reason,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at,omitempty"`
}

// Journal records every mutation from intent to outcome in a WAL so
// unresolved submissions can be inspected after a restart.
type Journal struct {
	mu      sync.Mutex
	wal     *gowal.Wal
	entries []*JournalEntry
	index   map[string]*JournalEntry
	now     func() time.Time
}

// OpenJournal opens or creates the journal under dir and replays it.
func OpenJournal(dir string, logger *zap.Logger) (*Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(dir, walDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to ensure journal directory %s", dir)
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "mutations_",
		SegmentThreshold: walSegmentThreshold,
		MaxSegments:      walMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open mutation journal")
	}

	j := &Journal{
		wal:   wal,
		index: make(map[string]*JournalEntry),
		now:   time.Now,
	}

	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, mutationKeyPrefix) {
			continue
		}

		var entry JournalEntry
		if err := json.Unmarshal(msg.Value, &entry); err != nil {
			logger.Error("failed to unmarshal journal entry", zap.Error(err), zap.String("key", msg.Key))
			continue
		}

		if existing, ok := j.index[entry.ID]; ok {
			*existing = entry
			continue
		}
		entryCopy := entry
		j.entries = append(j.entries, &entryCopy)
		j.index[entry.ID] = &entryCopy
	}

	return j, nil
}

// Prepare records the intent to execute kind under key.
func (j *Journal) Prepare(key domain.MutationKey, kind domain.MutationKind) (*JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry := &JournalEntry{
		ID:        uuid.New().String(),
		Key:       key.String(),
		Kind:      kind,
		Status:    JournalPending,
		StartedAt: j.now(),
	}

	if err := j.persist(entry); err != nil {
		return nil, err
	}

	j.entries = append(j.entries, entry)
	j.index[entry.ID] = entry
	return entry, nil
}

// MarkSubmitted records the ledger id of a submitted mutation.
func (j *Journal) MarkSubmitted(entry *JournalEntry, txID string) error {
	if entry == nil {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	entry.Status = JournalSubmitted
	entry.TxID = txID
	return j.persist(entry)
}

// MarkDone records a final mutation.
func (j *Journal) MarkDone(entry *JournalEntry) error {
	return j.finish(entry, JournalDone, "")
}

// MarkFailed records a rejected mutation with its reason.
func (j *Journal) MarkFailed(entry *JournalEntry, reason string) error {
	return j.finish(entry, JournalFailed, reason)
}

// MarkTimeout records a mutation whose finality was not observed.
func (j *Journal) MarkTimeout(entry *JournalEntry, reason string) error {
	return j.finish(entry, JournalTimeout, reason)
}

// Entries returns copies of all entries, most recent first.
func (j *Journal) Entries() []JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]JournalEntry, 0, len(j.entries))
	for i := len(j.entries) - 1; i >= 0; i-- {
		out = append(out, *j.entries[i])
	}
	return out
}

// Unresolved returns entries without a terminal status, oldest first.
// After a restart these are submissions whose outcome was never observed.
func (j *Journal) Unresolved() []JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []JournalEntry
	for _, e := range j.entries {
		if !e.Status.Final() {
			out = append(out, *e)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].StartedAt.Before(out[b].StartedAt) })
	return out
}

// Close closes the underlying WAL.
func (j *Journal) Close() error {
	return j.wal.Close()
}

func (j *Journal) finish(entry *JournalEntry, status JournalStatus, reason string) error {
	if entry == nil {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	entry.Status = status
	entry.Reason = reason
	entry.FinishedAt = j.now()
	return j.persist(entry)
}

func (j *Journal) persist(entry *JournalEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "failed to marshal journal entry")
	}
	key := fmt.Sprintf("%s%s", mutationKeyPrefix, entry.ID)
	nextIndex := j.wal.CurrentIndex() + 1
	return j.wal.Write(nextIndex, key, data)
}
