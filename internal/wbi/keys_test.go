package wbi

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func keyURL(k string) string { return "https://i0.hdslb.com/bfs/wbi/" + k + ".png" }

func staticFetcher(img, sub string) KeyFetcher {
	return KeyFetcherFunc(func(ctx context.Context) (KeyURLs, error) {
		return KeyURLs{ImgURL: keyURL(img), SubURL: keyURL(sub)}, nil
	})
}

// fakeClock permite avanzar el tiempo a mano.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestKeyFromURL(t *testing.T) {
	cases := map[string]string{
		"https://i0.hdslb.com/bfs/wbi/7cd084941338484aae1ad9425b84077c.png": "7cd084941338484aae1ad9425b84077c",
		"https://x/y/abc.tar.gz":  "abc",
		"https://x/y/noext":       "noext",
		"https://x/y/k.png?v=1":   "k",
		"":                        "",
		"   ":                     "",
	}
	for in, want := range cases {
		require.Equal(t, want, KeyFromURL(in), in)
	}
}

func TestKeyCache_FetchesOnceWhileFresh(t *testing.T) {
	var calls atomic.Int32
	f := KeyFetcherFunc(func(ctx context.Context) (KeyURLs, error) {
		calls.Add(1)
		return KeyURLs{ImgURL: keyURL(testImgKey), SubURL: keyURL(testSubKey)}, nil
	})
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	kc := NewKeyCache(f, KeyCacheConfig{Now: clk.Now})

	kp, err := kc.Keys(context.Background())
	require.NoError(t, err)
	require.Equal(t, testImgKey, kp.ImgKey)
	require.Equal(t, testSubKey, kp.SubKey)
	require.Equal(t, clk.Now().Add(time.Hour), kp.ExpiresAt)

	clk.Advance(59 * time.Minute)
	_, err = kc.Keys(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, calls.Load())

	clk.Advance(time.Minute)
	_, err = kc.Keys(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load())
}

func TestKeyCache_AbsentAndFetchFails(t *testing.T) {
	boom := errors.New("nav down")
	kc := NewKeyCache(KeyFetcherFunc(func(ctx context.Context) (KeyURLs, error) {
		return KeyURLs{}, boom
	}), KeyCacheConfig{})

	_, err := kc.Keys(context.Background())
	require.ErrorIs(t, err, ErrKeysUnavailable)
	require.False(t, kc.Ready())
}

func TestKeyCache_MalformedURLsAreFailures(t *testing.T) {
	kc := NewKeyCache(KeyFetcherFunc(func(ctx context.Context) (KeyURLs, error) {
		return KeyURLs{ImgURL: keyURL("short"), SubURL: ""}, nil
	}), KeyCacheConfig{})
	_, err := kc.Keys(context.Background())
	require.ErrorIs(t, err, ErrKeysUnavailable)
}

func TestKeyCache_ServesStaleOnRefreshFailure(t *testing.T) {
	var fail atomic.Bool
	f := KeyFetcherFunc(func(ctx context.Context) (KeyURLs, error) {
		if fail.Load() {
			return KeyURLs{}, errors.New("timeout")
		}
		return KeyURLs{ImgURL: keyURL(testImgKey), SubURL: keyURL(testSubKey)}, nil
	})
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	kc := NewKeyCache(f, KeyCacheConfig{Now: clk.Now})

	first, err := kc.Keys(context.Background())
	require.NoError(t, err)

	fail.Store(true)
	clk.Advance(2 * time.Hour)

	got, err := kc.Keys(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, got, "stale pair keeps its original expiry")
	require.True(t, kc.Ready())
}

func TestKeyCache_StalenessIsBounded(t *testing.T) {
	var fail atomic.Bool
	f := KeyFetcherFunc(func(ctx context.Context) (KeyURLs, error) {
		if fail.Load() {
			return KeyURLs{}, errors.New("timeout")
		}
		return KeyURLs{ImgURL: keyURL(testImgKey), SubURL: keyURL(testSubKey)}, nil
	})
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	kc := NewKeyCache(f, KeyCacheConfig{Now: clk.Now, MaxStale: 30 * time.Minute})

	_, err := kc.Keys(context.Background())
	require.NoError(t, err)
	fail.Store(true)

	clk.Advance(time.Hour + 29*time.Minute)
	_, err = kc.Keys(context.Background())
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = kc.Keys(context.Background())
	require.ErrorIs(t, err, ErrKeysUnavailable)
	require.False(t, kc.Ready())

	// Un refresh exitoso vuelve a Fresh.
	fail.Store(false)
	_, err = kc.Keys(context.Background())
	require.NoError(t, err)
	require.True(t, kc.Ready())
}

func TestKeyCache_ConcurrentRefreshYieldsOnePair(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	f := KeyFetcherFunc(func(ctx context.Context) (KeyURLs, error) {
		calls.Add(1)
		<-release
		return KeyURLs{ImgURL: keyURL(testImgKey), SubURL: keyURL(testSubKey)}, nil
	})
	kc := NewKeyCache(f, KeyCacheConfig{})

	const n = 8
	results := make([]KeyPair, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = kc.Keys(context.Background())
		}(i)
	}

	// Dejar que todos entren al singleflight antes de liberar el fetch.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, results[0], results[i])
	}
	cur, ok := kc.Current()
	require.True(t, ok)
	require.Equal(t, results[0], cur)
}

func TestKeyCache_InvalidateForcesRefresh(t *testing.T) {
	var calls atomic.Int32
	f := KeyFetcherFunc(func(ctx context.Context) (KeyURLs, error) {
		calls.Add(1)
		return KeyURLs{ImgURL: keyURL(testImgKey), SubURL: keyURL(testSubKey)}, nil
	})
	kc := NewKeyCache(f, KeyCacheConfig{})
	kc.Invalidate() // sin par: no-op

	_, err := kc.Keys(context.Background())
	require.NoError(t, err)
	kc.Invalidate()
	_, err = kc.Keys(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load())
}

func TestKeyCache_OnRefreshObserver(t *testing.T) {
	var seen []error
	kc := NewKeyCache(staticFetcher(testImgKey, testSubKey), KeyCacheConfig{
		OnRefresh: func(err error, _ time.Duration) { seen = append(seen, err) },
	})
	_, err := kc.Keys(context.Background())
	require.NoError(t, err)
	require.Equal(t, []error{nil}, seen)
}

func TestKeyCache_CanceledCallerDoesNotFailOthers(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	var fetchCtxErr atomic.Value
	f := KeyFetcherFunc(func(ctx context.Context) (KeyURLs, error) {
		if calls.Add(1) == 1 {
			close(entered)
		}
		<-release
		if err := ctx.Err(); err != nil {
			fetchCtxErr.Store(err)
			return KeyURLs{}, err
		}
		return KeyURLs{ImgURL: keyURL(testImgKey), SubURL: keyURL(testSubKey)}, nil
	})
	kc := NewKeyCache(f, KeyCacheConfig{})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := kc.Keys(firstCtx)
		firstErr <- err
	}()
	<-entered

	type result struct {
		kp  KeyPair
		err error
	}
	second := make(chan result, 1)
	go func() {
		kp, err := kc.Keys(context.Background())
		second <- result{kp, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("canceled caller kept waiting for the shared fetch")
	}

	close(release)
	got := <-second
	require.NoError(t, got.err)
	require.Equal(t, testImgKey, got.kp.ImgKey)
	require.Equal(t, testSubKey, got.kp.SubKey)
	require.Nil(t, fetchCtxErr.Load())
	require.EqualValues(t, 1, calls.Load())
	require.True(t, kc.Ready())
}
