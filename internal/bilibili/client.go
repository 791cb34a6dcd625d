// Package bilibili es el cliente de la API pública de Bilibili usado por el
// proxy: headers de navegador, decodificación del envelope {code,message,data}
// y firma WBI para los endpoints que la exigen.
package bilibili

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/biliproxy/internal/metrics"
	"github.com/dropDatabas3/biliproxy/internal/observability/logger"
	"github.com/dropDatabas3/biliproxy/internal/wbi"
)

const (
	DefaultBaseURL   = "https://api.bilibili.com"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	maxBodyBytes = 8 << 20
)

// Envelope es la forma común de las respuestas del upstream.
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	TTL     int             `json:"ttl,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config configura el Client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration // per-call; default 10s
	UserAgent string
	Cookie    string

	// KeyTTL y KeyMaxStale se pasan al wbi.KeyCache interno.
	KeyTTL      time.Duration
	KeyMaxStale time.Duration

	// HTTPClient opcional (tests). Si es nil se crea uno con Timeout.
	HTTPClient *http.Client
	// Now opcional para firmar con reloj fijo.
	Now func() time.Time
}

// Client habla con la API de Bilibili. Es seguro para uso concurrente.
type Client struct {
	base    *url.URL
	http    *http.Client
	headers http.Header

	keys   *wbi.KeyCache
	signer *wbi.Signer
}

// New crea el cliente junto con su KeyCache WBI.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("bilibili: invalid base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	h := http.Header{}
	h.Set("User-Agent", cfg.UserAgent)
	h.Set("Referer", "https://www.bilibili.com/")
	h.Set("Origin", "https://www.bilibili.com")
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	if cfg.Cookie != "" {
		h.Set("Cookie", cfg.Cookie)
	}

	c := &Client{base: base, http: hc, headers: h}

	c.keys = wbi.NewKeyCache(c, wbi.KeyCacheConfig{
		TTL:          cfg.KeyTTL,
		MaxStale:     cfg.KeyMaxStale,
		FetchTimeout: cfg.Timeout,
		OnRefresh:    metrics.ObserveKeyRefresh,
	})
	var opts []wbi.SignerOption
	if cfg.Now != nil {
		opts = append(opts, wbi.WithClock(cfg.Now))
	}
	c.signer = wbi.NewSigner(c.keys, opts...)
	return c, nil
}

// Keys expone el KeyCache (health, CLI).
func (c *Client) Keys() *wbi.KeyCache { return c.keys }

// Get hace un GET sin firmar. Un code != 0 se devuelve como *UpstreamError
// de tipo KindCode junto con el envelope.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Envelope, error) {
	env, err := c.do(ctx, path, query.Encode())
	if err != nil {
		return nil, err
	}
	return env, checkCode(path, env)
}

// GetSigned firma params con WBI y hace el GET.
// Ante -352 invalida las claves para que la próxima llamada las refresque.
func (c *Client) GetSigned(ctx context.Context, path string, params wbi.Params) (*Envelope, error) {
	signed, err := c.signer.SignWithCache(ctx, params)
	if err != nil {
		return nil, err
	}
	env, err := c.do(ctx, path, signed.Encode())
	if err != nil {
		return nil, err
	}
	if env.Code == CodeRiskControl {
		logger.From(ctx).Warn("wbi signature rejected, invalidating keys",
			logger.Component("bilibili"), logger.Upstream(path))
		c.keys.Invalidate()
	}
	return env, checkCode(path, env)
}

// FetchWbiKeys implementa wbi.KeyFetcher con /x/web-interface/nav.
// nav responde -101 sin login pero igual trae wbi_img, así que no se exige code 0.
func (c *Client) FetchWbiKeys(ctx context.Context) (wbi.KeyURLs, error) {
	const path = PathNav
	env, err := c.do(ctx, path, "")
	if err != nil {
		return wbi.KeyURLs{}, err
	}
	var nav struct {
		WbiImg struct {
			ImgURL string `json:"img_url"`
			SubURL string `json:"sub_url"`
		} `json:"wbi_img"`
	}
	if len(env.Data) == 0 || json.Unmarshal(env.Data, &nav) != nil {
		return wbi.KeyURLs{}, &UpstreamError{Kind: KindDecode, Path: path, Err: errors.New("missing wbi_img")}
	}
	if nav.WbiImg.ImgURL == "" || nav.WbiImg.SubURL == "" {
		return wbi.KeyURLs{}, &UpstreamError{Kind: KindDecode, Path: path, Err: errors.New("empty wbi_img urls")}
	}
	return wbi.KeyURLs{ImgURL: nav.WbiImg.ImgURL, SubURL: nav.WbiImg.SubURL}, nil
}

func (c *Client) do(ctx context.Context, path, rawQuery string) (*Envelope, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = rawQuery

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &UpstreamError{Kind: KindTransport, Path: path, Err: err}
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		kind := KindTransport
		if isTimeout(err) {
			kind = KindTimeout
		}
		metrics.ObserveUpstream(path, string(kind), time.Since(start))
		return nil, &UpstreamError{Kind: kind, Path: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		kind := KindTransport
		if isTimeout(err) {
			kind = KindTimeout
		}
		metrics.ObserveUpstream(path, string(kind), time.Since(start))
		return nil, &UpstreamError{Kind: kind, Path: path, HTTPStatus: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ObserveUpstream(path, string(KindStatus), time.Since(start))
		return nil, &UpstreamError{Kind: KindStatus, Path: path, HTTPStatus: resp.StatusCode}
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		metrics.ObserveUpstream(path, string(KindDecode), time.Since(start))
		return nil, &UpstreamError{Kind: KindDecode, Path: path, HTTPStatus: resp.StatusCode, Err: err}
	}

	result := "ok"
	if env.Code != CodeOK {
		result = string(KindCode)
	}
	metrics.ObserveUpstream(path, result, time.Since(start))
	return &env, nil
}

func checkCode(path string, env *Envelope) error {
	if env.Code == CodeOK {
		return nil
	}
	return &UpstreamError{Kind: KindCode, Path: path, HTTPStatus: http.StatusOK, Code: env.Code, Message: env.Message}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
