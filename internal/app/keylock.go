package service

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 256

// keyLock serializes work per (user, instrument) with a fixed set of
// mutexes. Distinct keys may share a stripe; that only costs parallelism.
type keyLock struct {
	stripes [lockStripes]sync.Mutex
}

func (l *keyLock) lock(userID, instrument string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	_, _ = h.Write([]byte{0x1f})
	_, _ = h.Write([]byte(instrument))
	m := &l.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}
