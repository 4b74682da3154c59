package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"
)

// Manager derives stable partition keys for Scylla tables. Users hash into a
// fixed bucket count so wide rows stay bounded; audit rows additionally
// partition by date.
type Manager struct {
	userBuckets int
	hasherPool  sync.Pool
}

const defaultUserBuckets = 64

func NewManager(userBuckets int) *Manager {
	if userBuckets <= 0 {
		userBuckets = defaultUserBuckets
	}
	m := &Manager{userBuckets: userBuckets}
	// Pool of hash functions to avoid allocation overhead
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}
	return m
}

// UserBucket returns a consistent bucket for a user (0 to userBuckets-1).
func (m *Manager) UserBucket(userID uuid.UUID) int {
	return m.bucket(userID.String(), m.userBuckets)
}

// FingerprintBucket buckets a device fingerprint for lookup tables keyed by
// fingerprint rather than user.
func (m *Manager) FingerprintBucket(fingerprint string) int {
	return m.bucket(fingerprint, m.userBuckets)
}

// TimeBucket truncates now to a window boundary, for windowed counters.
func (m *Manager) TimeBucket(now time.Time, window time.Duration) int64 {
	w := int64(window.Seconds())
	if w <= 0 {
		w = 1
	}
	return now.Unix() / w * w
}

// DateBucket returns the UTC date partition for audit rows.
func (m *Manager) DateBucket(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

func (m *Manager) UserBuckets() int {
	return m.userBuckets
}

func (m *Manager) bucket(key string, numBuckets int) int {
	h := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(h)

	h.Reset()
	h.Write([]byte(key))
	return int(h.Sum64() % uint64(numBuckets))
}
