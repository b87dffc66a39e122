package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/redclawsec/redclaw/api/schemas"
)

// retrieveCap bounds how many entries one retrieval renders, keeping prompt
// growth in check on long engagements.
const retrieveCap = 40

// MemoryStore keeps discoveries in process memory. It is the default backend
// and the one tests use.
type MemoryStore struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	entries map[string]map[string]schemas.DiscoveryRecord // target -> category/key -> record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		logger:  logger.Named("knowledge.memory"),
		entries: make(map[string]map[string]schemas.DiscoveryRecord),
	}
}

func recordKey(rec schemas.DiscoveryRecord) string {
	return rec.Category + "/" + rec.Key
}

// Record stores one discovery, overwriting any previous value for its key.
func (m *MemoryStore) Record(_ context.Context, rec schemas.DiscoveryRecord) error {
	if rec.Target == "" {
		return fmt.Errorf("discovery record requires a target")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	byKey, ok := m.entries[rec.Target]
	if !ok {
		byKey = make(map[string]schemas.DiscoveryRecord)
		m.entries[rec.Target] = byKey
	}
	byKey[recordKey(rec)] = rec
	return nil
}

// RetrieveRelevant renders the target's discoveries grouped by category. The
// empty string means nothing is known.
func (m *MemoryStore) RetrieveRelevant(_ context.Context, target string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byKey, ok := m.entries[target]
	if !ok || len(byKey) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > retrieveCap {
		keys = keys[:retrieveCap]
	}

	var b strings.Builder
	for _, k := range keys {
		rec := byKey[k]
		fmt.Fprintf(&b, "- [%s] %s: %s\n", rec.Category, rec.Key, rec.Value)
	}
	return b.String(), nil
}

// Close is a no-op for the in-memory backend.
func (m *MemoryStore) Close() {}
