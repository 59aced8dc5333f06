package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	ierrors "clinical-intake/internal/errors"
	"clinical-intake/pkg"
)

// MemoryRecords is a process-local record store, used when no database is
// configured. It mirrors db.Repository.
type MemoryRecords struct {
	mu         sync.RWMutex
	records    map[string]pkg.Record
	narratives map[string][]pkg.Narrative
	nextID     int64
}

func NewMemoryRecords() *MemoryRecords {
	return &MemoryRecords{
		records:    map[string]pkg.Record{},
		narratives: map[string][]pkg.Narrative{},
	}
}

func (m *MemoryRecords) CreateRecord(_ context.Context, rec *pkg.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now().UTC()
	m.records[rec.ID] = *rec
	return nil
}

func (m *MemoryRecords) GetRecord(_ context.Context, id string) (*pkg.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ierrors.Newf(ierrors.ErrCodeRecordNotFound, "record %q not found", id)
	}
	return &rec, nil
}

func (m *MemoryRecords) ListRecords(_ context.Context, limit int) ([]pkg.Record, error) {
	m.mu.RLock()
	out := make([]pkg.Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRecords) SaveNarrative(_ context.Context, recordID string, story *pkg.Story) (*pkg.Narrative, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[recordID]; !ok {
		return nil, ierrors.Newf(ierrors.ErrCodeRecordNotFound, "record %q not found", recordID)
	}
	m.nextID++
	n := pkg.Narrative{
		ID:         m.nextID,
		RecordID:   recordID,
		Department: story.Department,
		Story:      story.Story,
		Model:      story.Model,
		CreatedAt:  time.Now().UTC(),
	}
	m.narratives[recordID] = append(m.narratives[recordID], n)
	return &n, nil
}

func (m *MemoryRecords) LatestNarrative(_ context.Context, recordID string) (*pkg.Narrative, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ns := m.narratives[recordID]
	if len(ns) == 0 {
		return nil, nil
	}
	n := ns[len(ns)-1]
	return &n, nil
}
