package server

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Broker fans section broadcasts out across server nodes, so clients of the
// same section connected to different nodes stay converged. Subscribe returns
// a payload channel and a cancel func; a nil channel means no cross-node
// traffic (single-node deployment).
//
// Claim elects the single sequencing owner for a section. Exactly one node
// may sequence a section's operations at a time; every other node mirrors the
// owner's broadcasts and rejects direct submissions, which keeps one version
// counter per section across the cluster.
type Broker interface {
	Publish(ctx context.Context, sectionID string, payload []byte) error
	Subscribe(ctx context.Context, sectionID string) (<-chan []byte, func(), error)
	Claim(ctx context.Context, sectionID, nodeID string) (bool, error)
	Release(ctx context.Context, sectionID, nodeID string) error
}

// NoopBroker is the single-node default: publishes go nowhere, the
// subscription channel never delivers, and every claim succeeds.
type NoopBroker struct{}

func (NoopBroker) Publish(ctx context.Context, sectionID string, payload []byte) error {
	return nil
}

func (NoopBroker) Subscribe(ctx context.Context, sectionID string) (<-chan []byte, func(), error) {
	return nil, func() {}, nil
}

func (NoopBroker) Claim(ctx context.Context, sectionID, nodeID string) (bool, error) {
	return true, nil
}

func (NoopBroker) Release(ctx context.Context, sectionID, nodeID string) error {
	return nil
}

// RedisBroker relays section broadcasts over a Redis pub/sub channel per
// section.
type RedisBroker struct {
	rdb *redis.Client
}

func NewRedisBroker(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{rdb: rdb}
}

func sectionChannel(sectionID string) string {
	return "section:" + sectionID
}

func sectionOwnerKey(sectionID string) string {
	return "section-owner:" + sectionID
}

func (b *RedisBroker) Publish(ctx context.Context, sectionID string, payload []byte) error {
	return b.rdb.Publish(ctx, sectionChannel(sectionID), payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, sectionID string) (<-chan []byte, func(), error) {
	pubsub := b.rdb.Subscribe(ctx, sectionChannel(sectionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, err
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			out <- []byte(msg.Payload)
		}
	}()
	return out, func() { pubsub.Close() }, nil
}

// Claim takes the section's owner key if free, or reports whether this node
// already holds it. The key has no TTL: ownership lasts until Release, so a
// node that dies without releasing must have its keys cleared out of band.
func (b *RedisBroker) Claim(ctx context.Context, sectionID, nodeID string) (bool, error) {
	ok, err := b.rdb.SetNX(ctx, sectionOwnerKey(sectionID), nodeID, 0).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	owner, err := b.rdb.Get(ctx, sectionOwnerKey(sectionID)).Result()
	if err != nil {
		return false, err
	}
	return owner == nodeID, nil
}

// Release gives the owner key back, but only if this node holds it.
func (b *RedisBroker) Release(ctx context.Context, sectionID, nodeID string) error {
	owner, err := b.rdb.Get(ctx, sectionOwnerKey(sectionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	if owner != nodeID {
		return nil
	}
	return b.rdb.Del(ctx, sectionOwnerKey(sectionID)).Err()
}
