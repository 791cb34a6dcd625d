package cache

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryClient implementa Client sobre go-cache.
type memoryClient struct {
	prefix string
	c      *gocache.Cache
	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemory crea un cliente de cache en memoria.
// Las entradas expiradas se purgan cada minuto; Get ya las ignora antes.
func NewMemory(prefix string, defaultTTL time.Duration) *memoryClient {
	return &memoryClient{
		prefix: prefix,
		c:      gocache.New(defaultTTL, time.Minute),
	}
}

func (m *memoryClient) key(k string) string {
	if m.prefix == "" {
		return k
	}
	return m.prefix + ":" + k
}

func (m *memoryClient) Get(ctx context.Context, key string) ([]byte, error) {
	// go-cache considera viva la entrada en el instante exacto de expiry;
	// acá expira en T+TTL inclusive.
	v, exp, ok := m.c.GetWithExpiration(m.key(key))
	if !ok || (!exp.IsZero() && !time.Now().Before(exp)) {
		m.misses.Add(1)
		return nil, ErrNotFound
	}
	b, _ := v.([]byte)
	m.hits.Add(1)
	return b, nil
}

func (m *memoryClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	// copia: el caller puede reutilizar el buffer
	b := make([]byte, len(value))
	copy(b, value)
	m.c.Set(m.key(key), b, ttl)
	return nil
}

func (m *memoryClient) Delete(ctx context.Context, key string) error {
	m.c.Delete(m.key(key))
	return nil
}

func (m *memoryClient) Ping(ctx context.Context) error { return nil }

func (m *memoryClient) Close() error {
	m.c.Flush()
	return nil
}

func (m *memoryClient) Stats(ctx context.Context) (Stats, error) {
	// Items ya descarta las expiradas aún no purgadas.
	stalePrefix := m.key(StalePrefix)
	var keys, stale int64
	for k := range m.c.Items() {
		if strings.HasPrefix(k, stalePrefix) {
			stale++
			continue
		}
		keys++
	}
	return Stats{
		Driver:    "memory",
		Keys:      keys,
		StaleKeys: stale,
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
	}, nil
}
