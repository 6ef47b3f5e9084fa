package store

import (
	"context"
	"time"

	"github.com/draftmill/collab/ot"
)

// SectionInfo holds section metadata and content.
type SectionInfo struct {
	ID        string
	Content   string
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SectionStore abstracts section persistence.
// Implementations: MemoryStore, PostgresStore, FirestoreStore, and
// CachedStore, which wraps any of them with a write-behind cache.
type SectionStore interface {
	Create(ctx context.Context, id, content string) error
	Get(ctx context.Context, id string) (*SectionInfo, error)
	List(ctx context.Context) ([]SectionInfo, error)
	UpdateContent(ctx context.Context, id, content string, version int) error
	AppendOperation(ctx context.Context, id string, op ot.Operation, version int) error
	GetOperations(ctx context.Context, id string, fromVersion int) ([]ot.Operation, error)
}
