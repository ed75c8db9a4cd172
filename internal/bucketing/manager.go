package bucketing

import (
	"hash"
	"sync"

	"github.com/spaolacci/murmur3"
)

// BucketingManager spreads accounts across a fixed number of partitions so
// no single Scylla partition grows without bound. The bucket count must not
// change once data has been written.
type BucketingManager struct {
	accountBuckets int
	hasherPool     sync.Pool
}

func NewBucketingManager(accountBuckets int) *BucketingManager {
	if accountBuckets < 1 {
		accountBuckets = 1
	}
	return &BucketingManager{
		accountBuckets: accountBuckets,
		hasherPool: sync.Pool{
			New: func() interface{} {
				return murmur3.New64()
			},
		},
	}
}

// AccountBucket returns a stable bucket in [0, AccountBuckets()).
func (bm *BucketingManager) AccountBucket(accountID string) int {
	return int(bm.hash(accountID) % uint64(bm.accountBuckets))
}

func (bm *BucketingManager) AccountBuckets() int {
	return bm.accountBuckets
}

func (bm *BucketingManager) hash(key string) uint64 {
	h := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(h)

	h.Reset()
	_, _ = h.Write([]byte(key))
	return h.Sum64()
}
