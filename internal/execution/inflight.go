// Package execution guards venue side effects that must not run twice at once.
package execution

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrInFlight means an identical operation is still running.
var ErrInFlight = errors.New("identical request already in flight")

// InFlight hands out one token per key. A token is held until released or,
// if its holder never releases it, until the ttl runs out.
type InFlight struct {
	ttl    time.Duration
	now    func() time.Time
	shards []inFlightShard
}

type inFlightShard struct {
	mu sync.Mutex
	m  map[string]time.Time // key -> expiresAt
}

// NewInFlight creates a guard. ttl should cover the longest legitimate hold.
func NewInFlight(ttl time.Duration, shardCount int) *InFlight {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if shardCount <= 0 {
		shardCount = 16
	}
	shards := make([]inFlightShard, shardCount)
	for i := range shards {
		shards[i].m = make(map[string]time.Time)
	}
	return &InFlight{ttl: ttl, now: time.Now, shards: shards}
}

// Acquire takes the token for key and returns its release func, or
// ErrInFlight while another holder has it.
func (g *InFlight) Acquire(key string) (release func(), err error) {
	if g == nil || key == "" {
		return func() {}, nil
	}
	now := g.now()
	sh := g.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	// Expired holders are dropped lazily, only in the shard being touched.
	for k, exp := range sh.m {
		if !exp.After(now) {
			delete(sh.m, k)
		}
	}
	if _, held := sh.m[key]; held {
		return nil, errors.Wrapf(ErrInFlight, "%s", key)
	}
	sh.m[key] = now.Add(g.ttl)

	var once sync.Once
	return func() { once.Do(func() { g.release(key) }) }, nil
}

func (g *InFlight) release(key string) {
	sh := g.shard(key)
	sh.mu.Lock()
	delete(sh.m, key)
	sh.mu.Unlock()
}

func (g *InFlight) shard(key string) *inFlightShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &g.shards[h.Sum32()%uint32(len(g.shards))]
}
