package bucketing

import (
	"hash"
	"sync"

	"github.com/spaolacci/murmur3"
)

// BucketingManager maps client identities onto a fixed number of buckets.
// The ledger uses one bucket per shard, so the same identity always lands on
// the same lock.
type BucketingManager struct {
	buckets    int
	hasherPool sync.Pool
}

func NewBucketingManager(buckets int) *BucketingManager {
	if buckets < 1 {
		buckets = 1
	}

	bm := &BucketingManager{
		buckets: buckets,
	}

	// Create pool of hash functions to avoid allocation overhead
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return bm
}

// GetBucket returns consistent bucket for identity (0 to buckets-1)
func (bm *BucketingManager) GetBucket(identity string) int {
	if bm.buckets == 1 {
		return 0
	}
	return int(bm.getHash(identity) % uint64(bm.buckets))
}

// GetBuckets returns the number of buckets
func (bm *BucketingManager) GetBuckets() int {
	return bm.buckets
}

func (bm *BucketingManager) getHash(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
