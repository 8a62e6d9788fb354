package pipeline

import "sync"

// KeyedLock is a non-blocking in-process lock per key.
type KeyedLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewKeyedLock() *KeyedLock {
	return &KeyedLock{held: map[string]struct{}{}}
}

// TryLock takes key and reports whether it was free.
func (l *KeyedLock) TryLock(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return false
	}
	l.held[key] = struct{}{}
	return true
}

func (l *KeyedLock) Unlock(key string) {
	l.mu.Lock()
	delete(l.held, key)
	l.mu.Unlock()
}

func lockKey(tenantID, sourceRef string) string {
	return tenantID + "|" + sourceRef
}
