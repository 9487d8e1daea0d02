package cache

import "time"

// BytesCache is the minimal cache API the market data provider speaks: raw
// bytes under string keys with per-entry TTL. The quote stream pipeline writes
// through the same keys.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
}

// Layered reads through an in-process front before the shared store and
// backfills the front on a second-level hit. Writes go to both levels.
type Layered struct {
	front BytesCache
	back  BytesCache
}

// NewLayered builds a two-level BytesCache. back may be nil, in which case the
// front is all there is.
func NewLayered(front, back BytesCache) *Layered {
	return &Layered{front: front, back: back}
}

func (l *Layered) GetBytes(key string) ([]byte, bool, error) {
	if b, ok, err := l.front.GetBytes(key); err == nil && ok {
		return b, true, nil
	}
	if l.back == nil {
		return nil, false, nil
	}
	b, ok, err := l.back.GetBytes(key)
	if err != nil || !ok {
		return nil, ok, err
	}
	// Backfill with a short TTL so the shared store stays authoritative.
	_ = l.front.SetBytes(key, b, 10*time.Second)
	return b, true, nil
}

func (l *Layered) SetBytes(key string, value []byte, ttl time.Duration) error {
	if err := l.front.SetBytes(key, value, ttl); err != nil {
		return err
	}
	if l.back == nil {
		return nil
	}
	return l.back.SetBytes(key, value, ttl)
}
