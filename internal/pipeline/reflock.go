package pipeline

import (
	"context"
	"sync"
)

// refLocks serializes runs per normalized reference. Entries are
// refcounted and dropped once nobody holds or waits on them.
type refLocks struct {
	mu sync.Mutex
	m  map[string]*refLock
}

type refLock struct {
	sem     chan struct{}
	waiters int
}

func newRefLocks() *refLocks {
	return &refLocks{m: make(map[string]*refLock)}
}

// acquire blocks until key is free or ctx is done.
func (l *refLocks) acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.m[key]
	if !ok {
		e = &refLock{sem: make(chan struct{}, 1)}
		l.m[key] = e
	}
	e.waiters++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.sem
				l.drop(key, e)
			})
		}, nil
	case <-ctx.Done():
		l.drop(key, e)
		return nil, ctx.Err()
	}
}

func (l *refLocks) drop(key string, e *refLock) {
	l.mu.Lock()
	e.waiters--
	if e.waiters == 0 {
		delete(l.m, key)
	}
	l.mu.Unlock()
}

func (l *refLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
