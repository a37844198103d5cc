package service

import (
	"context"
	"sort"
	"sync"
)

// accountLocks is a keyed mutex. Waiting honours the caller's context, and the
// set of locks a call chain holds travels in its context so re-locking an
// account further down the chain is a no-op instead of a deadlock.
type accountLocks struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

type heldLocksKey struct{ owner *accountLocks }

func newAccountLocks() *accountLocks {
	return &accountLocks{slots: make(map[string]*lockSlot)}
}

// Lock acquires ids in sorted order, waiting at most until wait is done. The
// returned context derives from ctx.
func (l *accountLocks) Lock(ctx, wait context.Context, ids ...string) (context.Context, func(), error) {
	key := heldLocksKey{owner: l}
	held, _ := ctx.Value(key).(map[string]struct{})

	want := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := held[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		want = append(want, id)
	}
	if len(want) == 0 {
		return ctx, func() {}, nil
	}
	sort.Strings(want)

	acquired := make([]string, 0, len(want))
	for _, id := range want {
		if err := l.acquire(wait, id); err != nil {
			l.releaseAll(acquired)
			return ctx, func() {}, err
		}
		acquired = append(acquired, id)
	}

	next := make(map[string]struct{}, len(held)+len(acquired))
	for id := range held {
		next[id] = struct{}{}
	}
	for _, id := range acquired {
		next[id] = struct{}{}
	}

	var once sync.Once
	release := func() {
		once.Do(func() { l.releaseAll(acquired) })
	}
	return context.WithValue(ctx, key, next), release, nil
}

func (l *accountLocks) acquire(ctx context.Context, id string) error {
	l.mu.Lock()
	slot, ok := l.slots[id]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[id] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		l.unref(id, slot)
		l.mu.Unlock()
		return ctx.Err()
	}
}

func (l *accountLocks) releaseAll(ids []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(ids) - 1; i >= 0; i-- {
		slot := l.slots[ids[i]]
		<-slot.ch
		l.unref(ids[i], slot)
	}
}

// unref must be called with mu held.
func (l *accountLocks) unref(id string, slot *lockSlot) {
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, id)
	}
}
