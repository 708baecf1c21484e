// Package bucketing computes stable partition buckets for the Scylla schema.
// Users and OTP challenges are spread across a fixed number of buckets so no
// single partition grows unbounded.
package bucketing

import (
	"hash"
	"sync"

	"github.com/spaolacci/murmur3"
)

type Manager struct {
	userBuckets  int
	phoneBuckets int
	hasherPool   sync.Pool
}

func NewManager(userBuckets, phoneBuckets int) *Manager {
	if userBuckets <= 0 {
		userBuckets = 64
	}
	if phoneBuckets <= 0 {
		phoneBuckets = 64
	}
	m := &Manager{
		userBuckets:  userBuckets,
		phoneBuckets: phoneBuckets,
	}
	// Pool the hashers to avoid per-call allocation on the hot path.
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}
	return m
}

// UserBucket returns the partition bucket for a user id (0..userBuckets-1).
func (m *Manager) UserBucket(userID string) int {
	return m.bucket(userID, m.userBuckets)
}

// PhoneBucket returns the partition bucket for a normalized phone number.
func (m *Manager) PhoneBucket(phone string) int {
	return m.bucket(phone, m.phoneBuckets)
}

func (m *Manager) bucket(key string, numBuckets int) int {
	h := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(h)

	h.Reset()
	h.Write([]byte(key))
	return int(h.Sum64() % uint64(numBuckets))
}
