package store

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/draftmill/collab/ot"
)

// flushState records how much of a cached section the backing store already
// has. Content writes are tracked with a generation counter: every write
// bumps contentGen, a successful flush records the generation it wrote, and
// the section's content is dirty whenever the two differ. Writes that land
// mid-flush keep it dirty for the next cycle.
type flushState struct {
	opsPersisted  int  // history prefix already in the backing store
	contentGen    int  // bumped on every content write
	flushedGen    int  // contentGen as of the last successful content flush
	missingRemote bool // section exists only in the cache so far
}

func (fs *flushState) dirty() bool {
	return fs.missingRemote || fs.contentGen > fs.flushedGen
}

// CachedStore wraps a backing SectionStore with an in-memory write-through
// cache. All reads and writes are served from the cache; a background loop
// flushes accumulated changes to the backing store every flushInterval, and
// Close performs one final flush.
type CachedStore struct {
	cache         *MemoryStore
	backing       SectionStore
	mu            sync.Mutex
	states        map[string]*flushState
	flushInterval time.Duration
	stop          chan struct{}
	done          chan struct{}
}

func NewCachedStore(backing SectionStore, flushInterval time.Duration) *CachedStore {
	cs := &CachedStore{
		cache:         NewMemoryStore(),
		backing:       backing,
		states:        make(map[string]*flushState),
		flushInterval: flushInterval,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go cs.flushLoop()
	return cs
}

func (cs *CachedStore) Create(ctx context.Context, id, content string) error {
	if err := cs.cache.Create(ctx, id, content); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.states[id] = &flushState{missingRemote: true, contentGen: 1}
	cs.mu.Unlock()
	return nil
}

func (cs *CachedStore) Get(ctx context.Context, id string) (*SectionInfo, error) {
	info, err := cs.cache.Get(ctx, id)
	if err == nil {
		return info, nil
	}
	if err := cs.loadFromBacking(ctx, id); err != nil {
		return nil, err
	}
	return cs.cache.Get(ctx, id)
}

func (cs *CachedStore) List(ctx context.Context) ([]SectionInfo, error) {
	return cs.backing.List(ctx)
}

func (cs *CachedStore) UpdateContent(ctx context.Context, id, content string, version int) error {
	if _, err := cs.Get(ctx, id); err != nil {
		return err
	}
	if err := cs.cache.UpdateContent(ctx, id, content, version); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.states[id].contentGen++
	cs.mu.Unlock()
	return nil
}

func (cs *CachedStore) AppendOperation(ctx context.Context, id string, op ot.Operation, version int) error {
	if _, err := cs.Get(ctx, id); err != nil {
		return err
	}
	// opsPersisted marks the flushed history prefix, so no bookkeeping is
	// needed here: anything past it is new by definition.
	return cs.cache.AppendOperation(ctx, id, op, version)
}

func (cs *CachedStore) GetOperations(ctx context.Context, id string, fromVersion int) ([]ot.Operation, error) {
	if _, err := cs.Get(ctx, id); err != nil {
		return nil, err
	}
	return cs.cache.GetOperations(ctx, id, fromVersion)
}

// loadFromBacking pulls a section and its history into the cache on a miss.
// Everything loaded is already persisted, so its flush state starts clean.
func (cs *CachedStore) loadFromBacking(ctx context.Context, id string) error {
	info, err := cs.backing.Get(ctx, id)
	if err != nil {
		return err
	}
	ops, err := cs.backing.GetOperations(ctx, id, 0)
	if err != nil {
		return err
	}

	if !cs.cache.adopt(*info, ops) {
		return nil
	}
	cs.mu.Lock()
	cs.states[id] = &flushState{opsPersisted: len(ops)}
	cs.mu.Unlock()
	return nil
}

func (cs *CachedStore) flushLoop() {
	ticker := time.NewTicker(cs.flushInterval)
	defer ticker.Stop()
	defer close(cs.done)

	for {
		select {
		case <-ticker.C:
			cs.flushAll()
		case <-cs.stop:
			cs.flushAll()
			return
		}
	}
}

func (cs *CachedStore) flushAll() {
	cs.mu.Lock()
	ids := make([]string, 0, len(cs.states))
	for id := range cs.states {
		ids = append(ids, id)
	}
	cs.mu.Unlock()

	for _, id := range ids {
		cs.flushSection(context.Background(), id)
	}
}

// flushSection writes one section's accumulated changes to the backing store:
// create it remotely if needed, append the unpersisted history suffix, then
// update content. Ops go before content so a crash between the two leaves a
// replayable history rather than content with missing ops.
func (cs *CachedStore) flushSection(ctx context.Context, id string) {
	cs.mu.Lock()
	st, ok := cs.states[id]
	if !ok {
		cs.mu.Unlock()
		return
	}
	snap := *st
	cs.mu.Unlock()

	info, history, ok := cs.cache.snapshot(id)
	if !ok {
		return
	}
	if !snap.dirty() && snap.opsPersisted >= len(history) {
		return
	}

	if snap.missingRemote {
		if err := cs.backing.Create(ctx, id, ""); err != nil {
			log.Printf("cached store: create section %q in backing store: %v", id, err)
			return
		}
	}

	persisted := snap.opsPersisted
	for _, op := range history[persisted:] {
		if err := cs.backing.AppendOperation(ctx, id, op, persisted+1); err != nil {
			log.Printf("cached store: flush op v%d for section %q: %v", persisted+1, id, err)
			break
		}
		persisted++
	}

	contentFlushed := false
	if snap.contentGen > snap.flushedGen {
		if err := cs.backing.UpdateContent(ctx, id, info.Content, info.Version); err != nil {
			log.Printf("cached store: flush content for section %q: %v", id, err)
		} else {
			contentFlushed = true
		}
	}

	cs.mu.Lock()
	st.opsPersisted = persisted
	st.missingRemote = false
	if contentFlushed && snap.contentGen > st.flushedGen {
		st.flushedGen = snap.contentGen
	}
	cs.mu.Unlock()
}

// Close runs a final flush and waits for the flush loop to finish.
func (cs *CachedStore) Close() {
	close(cs.stop)
	<-cs.done
}
