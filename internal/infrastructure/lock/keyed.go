package lock

import (
	"context"
	"sync"

	"github.com/garyjia/cost-reconciler/internal/application/port"
)

// KeyedLocker is an in-process port.ItemLocker. Each key owns a one-slot
// channel; entries are dropped once no caller holds or waits on them.
type KeyedLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

var _ port.ItemLocker = (*KeyedLocker)(nil)

// NewKeyedLocker creates an empty in-process locker
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{slots: make(map[string]*slot)}
}

// Lock blocks until key is free or ctx is done
func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	s := l.acquire(key)

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(key, s)
		})
	}, nil
}

func (l *KeyedLocker) acquire(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *KeyedLocker) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// size reports the number of live keys
func (l *KeyedLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
