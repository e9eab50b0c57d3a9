package idempotency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/accordsai/checkoutlane/services/checkout/internal/protocol"
	"github.com/accordsai/checkoutlane/services/checkout/internal/store"
)

func createInto(st *store.Memory, key string, calls *int32) func(string) (*store.Session, error) {
	return func(hash string) (*store.Session, error) {
		n := atomic.AddInt32(calls, 1)
		s := &store.Session{ProtocolID: "acp_sess_" + string(rune('0'+n)), IdempotencyKey: key, LastRequestHash: hash}
		if err := st.Insert(context.Background(), s, nil); err != nil {
			return nil, err
		}
		return s, nil
	}
}

func TestNoKeyAlwaysCreates(t *testing.T) {
	st := store.NewMemory(nil)
	g := New(st)
	var calls int32
	for i := 0; i < 2; i++ {
		_, replayed, err := g.Do(context.Background(), "", []byte(`{}`), createInto(st, "", &calls))
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if replayed {
			t.Fatalf("expected replayed=false without key")
		}
	}
	if calls != 2 {
		t.Fatalf("expected two creations, got %d", calls)
	}
}

func TestSameKeySameBodyReplays(t *testing.T) {
	st := store.NewMemory(nil)
	g := New(st)
	var calls int32
	body := []byte(`{"items":[{"id":"mug","quantity":2}]}`)

	first, replayed, err := g.Do(context.Background(), "k1", body, createInto(st, "k1", &calls))
	if err != nil || replayed {
		t.Fatalf("first call: replayed=%v err=%v", replayed, err)
	}
	second, replayed, err := g.Do(context.Background(), "k1", body, createInto(st, "k1", &calls))
	if err != nil {
		t.Fatalf("replay err: %v", err)
	}
	if !replayed {
		t.Fatalf("expected replayed=true")
	}
	if second.ProtocolID != first.ProtocolID {
		t.Fatalf("replay returned %s, want %s", second.ProtocolID, first.ProtocolID)
	}
	if calls != 1 {
		t.Fatalf("expected one creation, got %d", calls)
	}
}

func TestSameKeyDifferentBodyConflicts(t *testing.T) {
	st := store.NewMemory(nil)
	g := New(st)
	var calls int32

	if _, _, err := g.Do(context.Background(), "k1", []byte(`{"a":1}`), createInto(st, "k1", &calls)); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, _, err := g.Do(context.Background(), "k1", []byte(`{"a":2}`), createInto(st, "k1", &calls))
	var perr *protocol.Error
	if !errors.As(err, &perr) || perr.Code != "idempotency_conflict" || perr.Status != 409 {
		t.Fatalf("expected idempotency conflict, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("conflict must not create, got %d creations", calls)
	}
}

func TestConcurrentSameKeyCreatesOnce(t *testing.T) {
	st := store.NewMemory(nil)
	g := New(st)
	var (
		calls    int32
		replays  int32
		wg       sync.WaitGroup
		firstErr error
		mu       sync.Mutex
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, replayed, err := g.Do(context.Background(), "k", []byte(`{}`), createInto(st, "k", &calls))
			mu.Lock()
			defer mu.Unlock()
			if err != nil && firstErr == nil {
				firstErr = err
			}
			if replayed {
				replays++
			}
		}()
	}
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("unexpected err: %v", firstErr)
	}
	if calls != 1 || replays != 19 {
		t.Fatalf("expected 1 creation and 19 replays, got %d and %d", calls, replays)
	}
}

type racingStore struct {
	*store.Memory
	misses int
}

func (r *racingStore) FindByIdempotencyKey(ctx context.Context, key string) (*store.Session, error) {
	if r.misses > 0 {
		r.misses--
		return nil, store.ErrNotFound
	}
	return r.Memory.FindByIdempotencyKey(ctx, key)
}

func TestLostInsertRaceReplays(t *testing.T) {
	mem := store.NewMemory(nil)
	if err := mem.Insert(context.Background(), &store.Session{ProtocolID: "acp_sess_other", IdempotencyKey: "k", LastRequestHash: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"}, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	g := New(&racingStore{Memory: mem, misses: 1})
	var calls int32
	sess, replayed, err := g.Do(context.Background(), "k", []byte(""), createInto(mem, "k", &calls))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !replayed || sess.ProtocolID != "acp_sess_other" {
		t.Fatalf("expected replay of the winning session, got %+v replayed=%v", sess, replayed)
	}
}
