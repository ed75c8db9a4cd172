package bucketing

import (
	"fmt"
	"testing"
)

func TestAccountBucketIsStableAndInRange(t *testing.T) {
	bm := NewBucketingManager(16)
	for i := 0; i < 500; i++ {
		id := fmt.Sprintf("account-%d", i)
		b := bm.AccountBucket(id)
		if b < 0 || b >= 16 {
			t.Fatalf("AccountBucket(%q) = %d, out of range", id, b)
		}
		if again := bm.AccountBucket(id); again != b {
			t.Fatalf("AccountBucket(%q) changed: %d then %d", id, b, again)
		}
	}
}

func TestAccountBucketSpreads(t *testing.T) {
	bm := NewBucketingManager(8)
	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		seen[bm.AccountBucket(fmt.Sprintf("id-%d", i))] = true
	}
	if len(seen) != 8 {
		t.Errorf("200 ids hit %d of 8 buckets", len(seen))
	}
}

func TestNewBucketingManagerClampsCount(t *testing.T) {
	bm := NewBucketingManager(0)
	if bm.AccountBuckets() != 1 {
		t.Errorf("AccountBuckets() = %d, want 1", bm.AccountBuckets())
	}
	if b := bm.AccountBucket("x"); b != 0 {
		t.Errorf("AccountBucket = %d, want 0", b)
	}
}
