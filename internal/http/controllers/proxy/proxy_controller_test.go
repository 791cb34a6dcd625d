package proxy_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/biliproxy/internal/bilibili"
	"github.com/dropDatabas3/biliproxy/internal/cache"
	healthctrl "github.com/dropDatabas3/biliproxy/internal/http/controllers/health"
	proxyctrl "github.com/dropDatabas3/biliproxy/internal/http/controllers/proxy"
	"github.com/dropDatabas3/biliproxy/internal/http/router"
	healthsvc "github.com/dropDatabas3/biliproxy/internal/http/services/health"
	proxysvc "github.com/dropDatabas3/biliproxy/internal/http/services/proxy"
	"github.com/dropDatabas3/biliproxy/internal/rate"
)

const (
	imgKey = "7cd084941338484aae1ad9425b84077c"
	subKey = "4932caff0ff746eab6f01bf08b70ac45"
)

// fakeBilibili simula el upstream y cuenta llamadas por path.
type fakeBilibili struct {
	mu      sync.Mutex
	calls   map[string]int
	navDown bool
	// respuesta por path; default {"code":0,"data":{"path":...}}
	bodies map[string]string
}

func (f *fakeBilibili) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls[r.URL.Path]++
	navDown := f.navDown
	body, ok := f.bodies[r.URL.Path+"?"+r.URL.RawQuery]
	if !ok {
		body, ok = f.bodies[r.URL.Path]
	}
	f.mu.Unlock()

	if r.URL.Path == bilibili.PathNav {
		if navDown {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, `{"code":-101,"message":"账号未登录","data":{"wbi_img":{"img_url":"https://i0.hdslb.com/bfs/wbi/%s.png","sub_url":"https://i0.hdslb.com/bfs/wbi/%s.png"}}}`, imgKey, subKey)
		return
	}
	if !ok {
		body = fmt.Sprintf(`{"code":0,"message":"0","data":{"path":%q}}`, r.URL.Path)
	}
	_, _ = w.Write([]byte(body))
}

func (f *fakeBilibili) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeBilibili) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeBilibili) setNavDown(v bool) {
	f.mu.Lock()
	f.navDown = v
	f.mu.Unlock()
}

func (f *fakeBilibili) set(path, body string) {
	f.mu.Lock()
	f.bodies[path] = body
	f.mu.Unlock()
}

type env struct {
	up      *fakeBilibili
	handler http.Handler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	up := &fakeBilibili{calls: map[string]int{}, bodies: map[string]string{}}
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	client, err := bilibili.New(bilibili.Config{BaseURL: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)

	cc := cache.NewMemory("test", time.Minute)
	t.Cleanup(func() { _ = cc.Close() })

	svc := proxysvc.NewService(proxysvc.Deps{
		Upstream: client,
		Cache:    cc,
		Gate:     rate.NewGate(time.Millisecond),
		TTL:      time.Minute,
		StaleTTL: time.Hour,
	})
	h := router.New(router.Deps{
		Proxy: proxyctrl.NewProxyController(svc),
		Health: healthctrl.NewHealthController(healthsvc.NewHealthService(healthsvc.Deps{
			Cache: cc,
			Keys:  client.Keys(),
		})),
		CORSOrigins: []string{"*"},
	})
	return &env{up: up, handler: h}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  json.RawMessage `json:"errors"`
	Stale   json.RawMessage `json:"stale"`
}

func (e *env) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var out envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func batchBody(n int) string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("av%d", i+1)
	}
	b, _ := json.Marshal(map[string]any{"ids": ids})
	return string(b)
}

func TestBatch_TooLargeRejectedBeforeUpstream(t *testing.T) {
	e := newEnv(t)
	rec, out := e.do(t, http.MethodPost, "/api/video/batch", batchBody(51))

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Equal(t, -413, out.Code)
	require.Zero(t, e.up.total())
}

func TestBatch_EmptyAndInvalidJSON(t *testing.T) {
	e := newEnv(t)

	rec, out := e.do(t, http.MethodPost, "/api/video/batch", `{"ids":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, -400, out.Code)

	rec, out = e.do(t, http.MethodPost, "/api/video/batch", `{"ids":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, -400, out.Code)
	require.Zero(t, e.up.total())
}

func TestBatch_MixedResultsKeepOrder(t *testing.T) {
	e := newEnv(t)
	e.up.set(bilibili.PathVideoView+"?aid=170001", `{"code":-404,"message":"啥都木有"}`)

	rec, out := e.do(t, http.MethodPost, "/api/video/batch", `{"ids":["BV1xx411c7mD","nope","av170001","BV1GJ411x7h7"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 0, out.Code)

	var data []struct {
		ID   string          `json:"id"`
		Code int             `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &data))
	require.Len(t, data, 2)
	assert.Equal(t, "BV1xx411c7mD", data[0].ID)
	assert.Equal(t, "BV1GJ411x7h7", data[1].ID)

	var errs []struct {
		ID      string `json:"id"`
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(out.Errors, &errs))
	require.Len(t, errs, 2)
	assert.Equal(t, "nope", errs[0].ID)
	assert.Equal(t, -400, errs[0].Code)
	assert.Equal(t, "av170001", errs[1].ID)
	assert.Equal(t, -404, errs[1].Code)

	// El id inválido no llega al upstream.
	require.Equal(t, 3, e.up.count(bilibili.PathVideoView))
}

func TestBatch_AlwaysHasErrorsArray(t *testing.T) {
	e := newEnv(t)
	_, out := e.do(t, http.MethodPost, "/api/video/batch", `{"ids":["BV1xx411c7mD"]}`)
	require.JSONEq(t, `[]`, string(out.Errors))
}

func TestVideo_CacheHitAndRefresh(t *testing.T) {
	e := newEnv(t)

	rec, out := e.do(t, http.MethodGet, "/api/video?bvid=BV1xx411c7mD", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 0, out.Code)
	require.JSONEq(t, `{"path":"/x/web-interface/view"}`, string(out.Data))
	require.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	rec, _ = e.do(t, http.MethodGet, "/api/video?bvid=BV1xx411c7mD", "")
	require.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	require.Equal(t, 1, e.up.count(bilibili.PathVideoView))

	rec, _ = e.do(t, http.MethodGet, "/api/video?bvid=BV1xx411c7mD&refresh=1", "")
	require.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	require.Equal(t, 2, e.up.count(bilibili.PathVideoView))
}

func TestVideo_InvalidParams(t *testing.T) {
	e := newEnv(t)
	for _, target := range []string{"/api/video", "/api/video?bvid=BV123", "/api/video?aid=abc", "/api/video/stat?bvid=av1"} {
		rec, out := e.do(t, http.MethodGet, target, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
		require.Equal(t, -400, out.Code, target)
	}
	require.Zero(t, e.up.total())
}

func TestVideo_UpstreamCodeMirroredWithStale(t *testing.T) {
	e := newEnv(t)

	_, out := e.do(t, http.MethodGet, "/api/video?aid=170001", "")
	require.Equal(t, 0, out.Code)

	e.up.set(bilibili.PathVideoView, `{"code":-404,"message":"啥都木有"}`)
	rec, out := e.do(t, http.MethodGet, "/api/video?aid=170001&refresh=1", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, -404, out.Code)
	require.Equal(t, "啥都木有", out.Message)
	require.JSONEq(t, `{"path":"/x/web-interface/view"}`, string(out.Stale))
	require.Empty(t, out.Data)
}

func TestVideo_UpstreamDown(t *testing.T) {
	e := newEnv(t)
	e.up.set(bilibili.PathVideoStat, `not json`)

	rec, out := e.do(t, http.MethodGet, "/api/video/stat?bvid=BV1xx411c7mD", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, -502, out.Code)
	require.Empty(t, out.Stale)
}

func TestUser_Endpoints(t *testing.T) {
	e := newEnv(t)

	_, out := e.do(t, http.MethodGet, "/api/user/card?mid=208259", "")
	require.Equal(t, 0, out.Code)

	_, out = e.do(t, http.MethodGet, "/api/user/info?mid=208259", "")
	require.Equal(t, 0, out.Code)
	require.Equal(t, 1, e.up.count(bilibili.PathNav))

	_, out = e.do(t, http.MethodGet, "/api/user/videos?mid=208259&pn=2&ps=10", "")
	require.Equal(t, 0, out.Code)
	require.Equal(t, 1, e.up.count(bilibili.PathNav), "keys are reused while fresh")

	for _, target := range []string{"/api/user/info", "/api/user/info?mid=0", "/api/user/videos?mid=1&ps=51", "/api/user/card?mid=x"} {
		rec, out := e.do(t, http.MethodGet, target, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
		require.Equal(t, -400, out.Code, target)
	}
}

func TestSearch_Validation(t *testing.T) {
	e := newEnv(t)

	_, out := e.do(t, http.MethodGet, "/api/search?keyword=%E4%B8%AD%E6%96%87&page=2", "")
	require.Equal(t, 0, out.Code)

	long := url.QueryEscape(strings.Repeat("字", 101))
	for _, target := range []string{"/api/search", "/api/search?keyword=%20", "/api/search?keyword=" + long, "/api/search?keyword=go&page=51", "/api/search?keyword=go&page=0"} {
		rec, out := e.do(t, http.MethodGet, target, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
		require.Equal(t, -400, out.Code, target)
	}
	require.Equal(t, 1, e.up.count(bilibili.PathSearch))
}

func TestSigned_KeysUnavailable(t *testing.T) {
	e := newEnv(t)
	e.up.setNavDown(true)

	rec, out := e.do(t, http.MethodGet, "/api/search?keyword=go", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, -503, out.Code)
	require.Zero(t, e.up.count(bilibili.PathSearch))
}

func TestRouter_NotFoundAndMethod(t *testing.T) {
	e := newEnv(t)

	rec, out := e.do(t, http.MethodGet, "/api/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, -404, out.Code)

	rec, out = e.do(t, http.MethodPost, "/api/video", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, -405, out.Code)
}

func TestHealth(t *testing.T) {
	e := newEnv(t)

	rec, out := e.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 0, out.Code)

	var h map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	require.Equal(t, false, h["wbi_ready"])
	require.Equal(t, "memory", h["cache_driver"])
	require.Contains(t, h, "uptime_seconds")
	require.Contains(t, h, "timestamp")

	_, _ = e.do(t, http.MethodGet, "/api/user/info?mid=1", "")
	rec, _ = e.do(t, http.MethodGet, "/health", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	require.Equal(t, true, h["wbi_ready"])
	require.EqualValues(t, 1, h["cache_keys"])
	require.EqualValues(t, 1, h["cache_stale_keys"])
}

func TestBatch_ContextCanceled(t *testing.T) {
	up := &fakeBilibili{calls: map[string]int{}, bodies: map[string]string{}}
	srv := httptest.NewServer(up)
	defer srv.Close()
	client, err := bilibili.New(bilibili.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	svc := proxysvc.NewService(proxysvc.Deps{Upstream: client, Gate: rate.NewGate(time.Hour)})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := svc.VideoBatch(ctx, []string{"av1", "av2", "av3"})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	require.Len(t, res.Errors, 2)
	require.Equal(t, 1, up.count(bilibili.PathVideoView))
}
