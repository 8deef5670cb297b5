// Package inmem is the in-process session backend (DEV|TEST, single instance).
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/sauvini/onboarding/core/registration"
	"github.com/sauvini/onboarding/storage/session"
)

type entry struct {
	val       []byte
	expiresAt time.Time // zero: never
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

type KV struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

var _ session.KV = (*KV)(nil)

func NewKV() *KV {
	return &KV{entries: make(map[string]entry), now: time.Now}
}

func (kv *KV) Get(_ context.Context, key string) ([]byte, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	e, ok := kv.lookup(key)
	if !ok {
		return nil, session.ErrNoKey
	}
	return append([]byte(nil), e.val...), nil
}

func (kv *KV) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.set(key, val, ttl)
	return nil
}

func (kv *KV) Replace(_ context.Context, key string, val []byte, ttl time.Duration) (bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if _, ok := kv.lookup(key); !ok {
		return false, nil
	}
	kv.set(key, val, ttl)
	return true, nil
}

func (kv *KV) Del(_ context.Context, key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.entries, key)
	return nil
}

// lookup drops the key if it has expired.
func (kv *KV) lookup(key string) (entry, bool) {
	e, ok := kv.entries[key]
	if ok && e.expired(kv.now()) {
		delete(kv.entries, key)
		return entry{}, false
	}
	return e, ok
}

func (kv *KV) set(key string, val []byte, ttl time.Duration) {
	e := entry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		e.expiresAt = kv.now().Add(ttl)
	}
	kv.entries[key] = e
}

// Locker is a keyed mutex.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

var _ registration.Locker = (*Locker)(nil)

func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*keyLock)}
}

// Lock blocks until the key is free or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(key, kl)
		})
	}, nil
}

func (l *Locker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}
