package kafkaconsumer

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// requestDedupe drops redelivered or stale jobs: a job applies only when its
// request time is newer than the last one applied for the same key.
type requestDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, int64]
}

func newRequestDedupe(size int) *requestDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, int64](size)
	return &requestDedupe{lru: c}
}

func (d *requestDedupe) fresh(key string, at int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lru.Get(key)
	return !ok || at > last
}

func (d *requestDedupe) record(key string, at int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && last >= at {
		return
	}
	d.lru.Add(key, at)
}
