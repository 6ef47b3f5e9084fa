package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/draftmill/collab/ot"
)

// FirestoreStore is a Firestore-backed implementation of SectionStore.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore creates a new FirestoreStore using the given Firestore client.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{
		client:     client,
		collection: "sections",
	}
}

func (s *FirestoreStore) sectionRef(id string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(id)
}

func (s *FirestoreStore) opsCollection(sectionID string) *firestore.CollectionRef {
	return s.sectionRef(sectionID).Collection("operations")
}

func zeroPad(version int) string {
	return fmt.Sprintf("%010d", version)
}

func (s *FirestoreStore) Create(ctx context.Context, id, content string) error {
	now := time.Now()
	_, err := s.sectionRef(id).Create(ctx, map[string]interface{}{
		"content":   content,
		"version":   0,
		"createdAt": now,
		"updatedAt": now,
	})
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("section %q already exists", id)
	}
	return err
}

func (s *FirestoreStore) Get(ctx context.Context, id string) (*SectionInfo, error) {
	snap, err := s.sectionRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("section %q not found", id)
	}
	if err != nil {
		return nil, err
	}
	return snapshotToSectionInfo(id, snap)
}

func snapshotToSectionInfo(id string, snap *firestore.DocumentSnapshot) (*SectionInfo, error) {
	data := snap.Data()
	content, _ := data["content"].(string)
	version, _ := data["version"].(int64)
	createdAt, _ := data["createdAt"].(time.Time)
	updatedAt, _ := data["updatedAt"].(time.Time)
	return &SectionInfo{
		ID:        id,
		Content:   content,
		Version:   int(version),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func (s *FirestoreStore) List(ctx context.Context) ([]SectionInfo, error) {
	iter := s.client.Collection(s.collection).Documents(ctx)
	defer iter.Stop()

	var result []SectionInfo
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		info, err := snapshotToSectionInfo(snap.Ref.ID, snap)
		if err != nil {
			return nil, err
		}
		result = append(result, *info)
	}
	return result, nil
}

func (s *FirestoreStore) UpdateContent(ctx context.Context, id, content string, version int) error {
	_, err := s.sectionRef(id).Update(ctx, []firestore.Update{
		{Path: "content", Value: content},
		{Path: "version", Value: version},
		{Path: "updatedAt", Value: time.Now()},
	})
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("section %q not found", id)
	}
	return err
}

func (s *FirestoreStore) AppendOperation(ctx context.Context, id string, op ot.Operation, version int) error {
	components := make([]map[string]interface{}, 0, len(op.Ops))
	for _, sc := range op.Structural() {
		m := map[string]interface{}{"type": sc.Type}
		if sc.Chars != "" {
			m["chars"] = sc.Chars
		}
		if sc.Count != 0 {
			m["count"] = sc.Count
		}
		components = append(components, m)
	}

	// Store with 0-based index: version 1 → index 0, matching MemoryStore's
	// history slice semantics where GetOperations(fromVersion) returns history[fromVersion:].
	index := version - 1
	_, err := s.opsCollection(id).Doc(zeroPad(index)).Set(ctx, map[string]interface{}{
		"ops":     components,
		"version": version,
	})
	return err
}

func (s *FirestoreStore) GetOperations(ctx context.Context, id string, fromVersion int) ([]ot.Operation, error) {
	// Verify the section exists.
	_, err := s.sectionRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("section %q not found", id)
	}
	if err != nil {
		return nil, err
	}

	iter := s.opsCollection(id).
		OrderBy(firestore.DocumentID, firestore.Asc).
		StartAt(zeroPad(fromVersion)).
		Documents(ctx)
	defer iter.Stop()

	var ops []ot.Operation
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		op, err := snapshotToOperation(snap)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func snapshotToOperation(snap *firestore.DocumentSnapshot) (ot.Operation, error) {
	data := snap.Data()
	rawOps, ok := data["ops"].([]interface{})
	if !ok {
		return ot.Operation{}, fmt.Errorf("invalid ops field in operation %s", snap.Ref.ID)
	}

	components := make([]ot.StructuralComponent, len(rawOps))
	for i, raw := range rawOps {
		m, ok := raw.(map[string]interface{})
		if !ok {
			return ot.Operation{}, fmt.Errorf("invalid component %d in operation %s", i, snap.Ref.ID)
		}
		var sc ot.StructuralComponent
		if v, ok := m["type"].(string); ok {
			sc.Type = v
		}
		if v, ok := m["chars"].(string); ok {
			sc.Chars = v
		}
		if v, ok := m["count"].(int64); ok {
			sc.Count = int(v)
		}
		components[i] = sc
	}
	op, err := ot.FromStructural(components)
	if err != nil {
		return ot.Operation{}, fmt.Errorf("operation %s: %w", snap.Ref.ID, err)
	}
	return op, nil
}
