package snapshot

import (
	"fmt"
	"time"

	"github.com/louisbranch/tagwall/internal/wall"
)

// emptyFingerprint is the sentinel cache key for a wall with no items.
const emptyFingerprint = "empty"

// Fingerprint derives the cache key for a store state. It is a pure
// function of the ordered item sequence: the nanosecond maximum
// creation timestamp plus the item count, so two states can only share
// a key when they are render-equivalent (same items, since items are
// append-only and never mutated).
func Fingerprint(items []wall.Item) string {
	if len(items) == 0 {
		return emptyFingerprint
	}
	var max time.Time
	for _, item := range items {
		if item.CreatedAt.After(max) {
			max = item.CreatedAt
		}
	}
	return fmt.Sprintf("%x-%d", max.UnixNano(), len(items))
}
