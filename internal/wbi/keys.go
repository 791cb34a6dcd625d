package wbi

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrKeysUnavailable: no hay par de claves utilizable y el refresh falló.
var ErrKeysUnavailable = errors.New("wbi: signing keys unavailable")

// KeyLen es el largo esperado de img_key y sub_key.
const KeyLen = 32

// KeyPair es el par de sub-claves publicado por el upstream.
// Se reemplaza entero en cada refresh, nunca se muta.
type KeyPair struct {
	ImgKey    string
	SubKey    string
	ExpiresAt time.Time
}

// MixinKey deriva la mixin key del par.
func (kp KeyPair) MixinKey() string { return MixinKey(kp.ImgKey, kp.SubKey) }

// KeyURLs son las dos URLs crudas que devuelve el endpoint nav.
type KeyURLs struct {
	ImgURL string
	SubURL string
}

// KeyFetcher obtiene las URLs de claves desde el upstream.
type KeyFetcher interface {
	FetchWbiKeys(ctx context.Context) (KeyURLs, error)
}

// KeyFetcherFunc adapta una función a KeyFetcher.
type KeyFetcherFunc func(ctx context.Context) (KeyURLs, error)

func (f KeyFetcherFunc) FetchWbiKeys(ctx context.Context) (KeyURLs, error) { return f(ctx) }

// RefreshObserver recibe el resultado de cada refresh (métricas/logs).
type RefreshObserver func(err error, served time.Duration)

// KeyCacheConfig configura el KeyCache.
type KeyCacheConfig struct {
	// TTL de un par recién obtenido. Default 1h.
	TTL time.Duration
	// MaxStale acota cuánto tiempo después de expirar se sigue sirviendo un
	// par viejo cuando el refresh falla. 0 = sin límite.
	MaxStale time.Duration
	// FetchTimeout acota cada fetch al upstream. Default 15s.
	FetchTimeout time.Duration
	// Now reemplaza el reloj (tests).
	Now func() time.Time
	// OnRefresh es opcional.
	OnRefresh RefreshObserver
}

// KeyCache mantiene el KeyPair vigente y lo refresca de forma lazy.
//
// Estados: Fresh (ExpiresAt en el futuro) y Stale/Absent. En Stale/Absent
// cada llamada a Keys dispara un fetch; los fetch concurrentes se colapsan
// con singleflight. Un fetch fallido nunca borra el par anterior.
type KeyCache struct {
	fetcher KeyFetcher
	cfg     KeyCacheConfig

	current atomic.Pointer[KeyPair]
	sf      singleflight.Group
}

// NewKeyCache crea un KeyCache vacío (Absent).
func NewKeyCache(fetcher KeyFetcher, cfg KeyCacheConfig) *KeyCache {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &KeyCache{fetcher: fetcher, cfg: cfg}
}

// Keys devuelve el par vigente, refrescando si está vencido o ausente.
//
// El fetch compartido corre desacoplado del ctx del caller que lo inició
// (acotado por FetchTimeout): si ese caller se va, los demás que esperan el
// mismo refresh igual reciben el resultado. Cada caller deja de esperar
// cuando su propio ctx termina.
func (c *KeyCache) Keys(ctx context.Context) (KeyPair, error) {
	if kp := c.current.Load(); kp != nil && c.cfg.Now().Before(kp.ExpiresAt) {
		return *kp, nil
	}

	ch := c.sf.DoChan("keys", func() (interface{}, error) {
		// Double-check: otro caller pudo haber refrescado recién
		if kp := c.current.Load(); kp != nil && c.cfg.Now().Before(kp.ExpiresAt) {
			return *kp, nil
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.FetchTimeout)
		defer cancel()
		return c.refresh(fctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return KeyPair{}, res.Err
		}
		return res.Val.(KeyPair), nil
	case <-ctx.Done():
		return KeyPair{}, ctx.Err()
	}
}

func (c *KeyCache) refresh(ctx context.Context) (KeyPair, error) {
	start := c.cfg.Now()
	urls, err := c.fetcher.FetchWbiKeys(ctx)
	var kp KeyPair
	if err == nil {
		kp, err = parseKeyURLs(urls)
	}
	if err == nil {
		kp.ExpiresAt = c.cfg.Now().Add(c.cfg.TTL)
		c.current.Store(&kp)
		c.observe(nil, start)
		return kp, nil
	}

	c.observe(err, start)

	prev := c.current.Load()
	if prev == nil {
		return KeyPair{}, fmt.Errorf("%w: %v", ErrKeysUnavailable, err)
	}
	if c.cfg.MaxStale > 0 && c.cfg.Now().After(prev.ExpiresAt.Add(c.cfg.MaxStale)) {
		return KeyPair{}, fmt.Errorf("%w: stale beyond %s: %v", ErrKeysUnavailable, c.cfg.MaxStale, err)
	}
	// Stale-but-available: seguimos con el par anterior y su expiry original.
	return *prev, nil
}

func (c *KeyCache) observe(err error, start time.Time) {
	if c.cfg.OnRefresh != nil {
		c.cfg.OnRefresh(err, c.cfg.Now().Sub(start))
	}
}

// Current devuelve el par almacenado sin refrescar.
func (c *KeyCache) Current() (KeyPair, bool) {
	kp := c.current.Load()
	if kp == nil {
		return KeyPair{}, false
	}
	return *kp, true
}

// Ready indica si hay un par que Keys serviría sin error ahora mismo.
func (c *KeyCache) Ready() bool {
	kp := c.current.Load()
	if kp == nil {
		return false
	}
	now := c.cfg.Now()
	if now.Before(kp.ExpiresAt) {
		return true
	}
	return c.cfg.MaxStale == 0 || !now.After(kp.ExpiresAt.Add(c.cfg.MaxStale))
}

// Invalidate marca el par actual como vencido sin descartarlo, de modo que
// la próxima llamada refresque pero pueda caer al par viejo si falla.
func (c *KeyCache) Invalidate() {
	kp := c.current.Load()
	if kp == nil {
		return
	}
	expired := *kp
	if now := c.cfg.Now(); expired.ExpiresAt.After(now) {
		expired.ExpiresAt = now
	}
	c.current.CompareAndSwap(kp, &expired)
}

func parseKeyURLs(u KeyURLs) (KeyPair, error) {
	img := KeyFromURL(u.ImgURL)
	sub := KeyFromURL(u.SubURL)
	if len(img) != KeyLen || len(sub) != KeyLen {
		return KeyPair{}, fmt.Errorf("wbi: malformed key urls (img=%q sub=%q)", u.ImgURL, u.SubURL)
	}
	return KeyPair{ImgKey: img, SubKey: sub}, nil
}

// KeyFromURL extrae el stem del archivo: último segmento del path hasta el
// primer '.'.
//
//	https://i0.hdslb.com/bfs/wbi/7cd084941338484aae1ad9425b84077c.png -> 7cd084941338484aae1ad9425b84077c
func KeyFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	base := path.Base(raw)
	if base == "." || base == "/" {
		return ""
	}
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return base
}
