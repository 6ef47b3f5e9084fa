package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/draftmill/collab/ot"
)

type sectionRecord struct {
	info    SectionInfo
	history []ot.Operation
}

// MemoryStore is an in-memory implementation of SectionStore.
type MemoryStore struct {
	mu       sync.RWMutex
	sections map[string]*sectionRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sections: make(map[string]*sectionRecord)}
}

func (s *MemoryStore) Create(_ context.Context, id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sections[id]; exists {
		return fmt.Errorf("section %q already exists", id)
	}
	now := time.Now()
	s.sections[id] = &sectionRecord{
		info: SectionInfo{
			ID:        id,
			Content:   content,
			Version:   0,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*SectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sections[id]
	if !ok {
		return nil, fmt.Errorf("section %q not found", id)
	}
	info := rec.info
	return &info, nil
}

func (s *MemoryStore) List(_ context.Context) ([]SectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]SectionInfo, 0, len(s.sections))
	for _, rec := range s.sections {
		result = append(result, rec.info)
	}
	return result, nil
}

func (s *MemoryStore) UpdateContent(_ context.Context, id, content string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sections[id]
	if !ok {
		return fmt.Errorf("section %q not found", id)
	}
	rec.info.Content = content
	rec.info.Version = version
	rec.info.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) AppendOperation(_ context.Context, id string, op ot.Operation, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sections[id]
	if !ok {
		return fmt.Errorf("section %q not found", id)
	}
	rec.history = append(rec.history, op)
	rec.info.Version = version
	rec.info.UpdatedAt = time.Now()
	return nil
}

// snapshot returns a consistent copy of a section's info and full history,
// for callers that need both without racing interleaved writes.
func (s *MemoryStore) snapshot(id string) (SectionInfo, []ot.Operation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sections[id]
	if !ok {
		return SectionInfo{}, nil, false
	}
	history := make([]ot.Operation, len(rec.history))
	copy(history, rec.history)
	return rec.info, history, true
}

// adopt installs a section loaded from elsewhere, leaving an existing record
// untouched. Reports whether the section was installed.
func (s *MemoryStore) adopt(info SectionInfo, history []ot.Operation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sections[info.ID]; exists {
		return false
	}
	s.sections[info.ID] = &sectionRecord{info: info, history: history}
	return true
}

func (s *MemoryStore) GetOperations(_ context.Context, id string, fromVersion int) ([]ot.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sections[id]
	if !ok {
		return nil, fmt.Errorf("section %q not found", id)
	}
	if fromVersion < 0 || fromVersion > len(rec.history) {
		return nil, fmt.Errorf("invalid version %d", fromVersion)
	}
	ops := make([]ot.Operation, len(rec.history)-fromVersion)
	copy(ops, rec.history[fromVersion:])
	return ops, nil
}
