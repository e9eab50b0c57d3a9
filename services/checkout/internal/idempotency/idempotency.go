// Package idempotency guards checkout session creation against replays.
package idempotency

import (
	"context"
	"errors"

	"github.com/accordsai/checkoutlane/pkg/webhooks"
	"github.com/accordsai/checkoutlane/services/checkout/internal/keylock"
	"github.com/accordsai/checkoutlane/services/checkout/internal/protocol"
	"github.com/accordsai/checkoutlane/services/checkout/internal/store"
)

type Store interface {
	FindByIdempotencyKey(ctx context.Context, key string) (*store.Session, error)
}

type Guard struct {
	Store Store
	locks keylock.Mutex
}

func New(st Store) *Guard { return &Guard{Store: st} }

// Do runs create at most once per idempotency key. A request repeating a
// key with the same body gets the stored session back with replayed=true;
// a different body is an idempotency conflict. Lookup and creation share
// the key lock. Without a key create always runs.
func (g *Guard) Do(ctx context.Context, key string, body []byte, create func(hash string) (*store.Session, error)) (sess *store.Session, replayed bool, err error) {
	hash := webhooks.PayloadHash(body)
	if key == "" {
		sess, err = create(hash)
		return sess, false, err
	}

	unlock := g.locks.Lock(key)
	defer unlock()

	if sess, found, err := g.check(ctx, key, hash); err != nil || found {
		return sess, found, err
	}
	sess, err = create(hash)
	if errors.Is(err, store.ErrDuplicateIdempotencyKey) {
		// another process inserted the key between our lookup and insert
		sess, found, err := g.check(ctx, key, hash)
		if err == nil && !found {
			return nil, false, store.ErrDuplicateIdempotencyKey
		}
		return sess, found, err
	}
	return sess, false, err
}

func (g *Guard) check(ctx context.Context, key, hash string) (*store.Session, bool, error) {
	prior, err := g.Store.FindByIdempotencyKey(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if prior.LastRequestHash != hash {
		return nil, false, protocol.IdempotencyConflict()
	}
	return prior, true, nil
}
