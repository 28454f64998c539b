package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps documents in process. It backs tests and the
// STORE_DRIVER=memory development mode.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]Record
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]Record), now: time.Now}
}

func (m *MemoryStore) Create(ctx context.Context, collection string, rec Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if strings.TrimSpace(collection) == "" {
		return Record{}, fmt.Errorf("%w: empty collection", ErrWrite)
	}

	rec.ID = uuid.NewString()
	rec.Answers = copyAnswers(rec.Answers)

	m.mu.Lock()
	defer m.mu.Unlock()
	rec.Timestamp = m.now().UTC()
	m.docs[collection] = append(m.docs[collection], rec)
	return rec, nil
}

func (m *MemoryStore) QueryAll(ctx context.Context, collection string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}

	m.mu.RLock()
	src := m.docs[collection]
	out := make([]Record, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		rec := src[i]
		rec.Answers = copyAnswers(rec.Answers)
		out = append(out, rec)
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// Len reports how many documents a collection holds.
func (m *MemoryStore) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs[collection])
}
