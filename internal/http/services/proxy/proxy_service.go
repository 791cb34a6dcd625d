// Package proxy contiene el service de los endpoints /api: cache de
// resultados, llamada al upstream y snapshot stale para errores.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/biliproxy/internal/bilibili"
	"github.com/dropDatabas3/biliproxy/internal/cache"
	dto "github.com/dropDatabas3/biliproxy/internal/http/dto/proxy"
	httperrors "github.com/dropDatabas3/biliproxy/internal/http/errors"
	"github.com/dropDatabas3/biliproxy/internal/metrics"
	"github.com/dropDatabas3/biliproxy/internal/observability/logger"
	"github.com/dropDatabas3/biliproxy/internal/rate"
)

const DefaultMaxBatch = 50

// Upstream es el subconjunto de bilibili.Client que usa el proxy.
type Upstream interface {
	VideoView(ctx context.Context, id bilibili.VideoID) (*bilibili.Envelope, error)
	VideoStat(ctx context.Context, id bilibili.VideoID) (*bilibili.Envelope, error)
	UserInfo(ctx context.Context, mid int64) (*bilibili.Envelope, error)
	UserCard(ctx context.Context, mid int64) (*bilibili.Envelope, error)
	UserVideos(ctx context.Context, mid int64, pn, ps int) (*bilibili.Envelope, error)
	Search(ctx context.Context, keyword string, page int) (*bilibili.Envelope, error)
}

// Options modifica una consulta individual.
type Options struct {
	// Refresh saltea la lectura del cache (la escritura se hace igual).
	Refresh bool
}

// Result es el data de una consulta exitosa.
type Result struct {
	Data   json.RawMessage
	Cached bool
}

// Service define las operaciones del proxy. Los errores son *httperrors.AppError.
type Service interface {
	Video(ctx context.Context, id bilibili.VideoID, opts Options) (Result, error)
	VideoStat(ctx context.Context, id bilibili.VideoID, opts Options) (Result, error)
	VideoBatch(ctx context.Context, ids []string) (dto.BatchResult, error)
	UserInfo(ctx context.Context, mid int64, opts Options) (Result, error)
	UserCard(ctx context.Context, mid int64, opts Options) (Result, error)
	UserVideos(ctx context.Context, mid int64, pn, ps int, opts Options) (Result, error)
	Search(ctx context.Context, keyword string, page int, opts Options) (Result, error)
}

// Deps contiene las dependencias del service.
type Deps struct {
	Upstream Upstream
	Cache    cache.Client
	Gate     *rate.Gate    // throttle entre llamadas del batch
	TTL      time.Duration // default 300s
	StaleTTL time.Duration // 0 = sin snapshot stale
	MaxBatch int           // default 50
}

type proxyService struct {
	deps Deps
}

// NewService crea el service del proxy.
func NewService(deps Deps) Service {
	if deps.TTL <= 0 {
		deps.TTL = 300 * time.Second
	}
	if deps.MaxBatch <= 0 {
		deps.MaxBatch = DefaultMaxBatch
	}
	if deps.Gate == nil {
		deps.Gate = rate.NewGate(0)
	}
	return &proxyService{deps: deps}
}

type upstreamCall func(ctx context.Context) (*bilibili.Envelope, error)

func (s *proxyService) Video(ctx context.Context, id bilibili.VideoID, opts Options) (Result, error) {
	return s.fetch(ctx, "video", id.String(), "video:"+id.CacheKey(), opts, func(ctx context.Context) (*bilibili.Envelope, error) {
		return s.deps.Upstream.VideoView(ctx, id)
	})
}

func (s *proxyService) VideoStat(ctx context.Context, id bilibili.VideoID, opts Options) (Result, error) {
	return s.fetch(ctx, "video_stat", id.String(), "video:stat:"+id.CacheKey(), opts, func(ctx context.Context) (*bilibili.Envelope, error) {
		return s.deps.Upstream.VideoStat(ctx, id)
	})
}

func (s *proxyService) UserInfo(ctx context.Context, mid int64, opts Options) (Result, error) {
	m := strconv.FormatInt(mid, 10)
	return s.fetch(ctx, "user_info", m, "user:info:"+m, opts, func(ctx context.Context) (*bilibili.Envelope, error) {
		return s.deps.Upstream.UserInfo(ctx, mid)
	})
}

func (s *proxyService) UserCard(ctx context.Context, mid int64, opts Options) (Result, error) {
	m := strconv.FormatInt(mid, 10)
	return s.fetch(ctx, "user_card", m, "user:card:"+m, opts, func(ctx context.Context) (*bilibili.Envelope, error) {
		return s.deps.Upstream.UserCard(ctx, mid)
	})
}

func (s *proxyService) UserVideos(ctx context.Context, mid int64, pn, ps int, opts Options) (Result, error) {
	m := strconv.FormatInt(mid, 10)
	key := "user:videos:" + m + ":" + strconv.Itoa(pn) + ":" + strconv.Itoa(ps)
	return s.fetch(ctx, "user_videos", m, key, opts, func(ctx context.Context) (*bilibili.Envelope, error) {
		return s.deps.Upstream.UserVideos(ctx, mid, pn, ps)
	})
}

func (s *proxyService) Search(ctx context.Context, keyword string, page int, opts Options) (Result, error) {
	key := "search:" + url.QueryEscape(keyword) + ":" + strconv.Itoa(page)
	return s.fetch(ctx, "search", keyword, key, opts, func(ctx context.Context) (*bilibili.Envelope, error) {
		return s.deps.Upstream.Search(ctx, keyword, page)
	})
}

// VideoBatch consulta los ids en orden, uno por vez, pasando por el Gate
// antes de cada llamada real al upstream. Un id fallido no corta el loop.
func (s *proxyService) VideoBatch(ctx context.Context, ids []string) (dto.BatchResult, error) {
	switch {
	case len(ids) == 0:
		return dto.BatchResult{}, httperrors.ErrBadRequest.WithDetail("ids must contain at least one identifier")
	case len(ids) > s.deps.MaxBatch:
		return dto.BatchResult{}, httperrors.ErrBatchTooLarge.WithDetail("max " + strconv.Itoa(s.deps.MaxBatch) + " ids per batch")
	}

	log := logger.From(ctx).With(logger.Layer("service"), logger.Endpoint("video_batch"))
	out := dto.BatchResult{
		Data:   make([]dto.BatchItem, 0, len(ids)),
		Errors: make([]dto.BatchError, 0),
	}

	for i, raw := range ids {
		id, err := bilibili.ParseVideoID(raw)
		if err != nil {
			appErr := httperrors.ErrInvalidParameter
			out.Errors = append(out.Errors, dto.BatchError{ID: raw, Code: appErr.Code, Message: appErr.Message})
			log.Info("batch item rejected", logger.Identifier(raw))
			continue
		}

		res, err := s.fetch(ctx, "video_batch", id.String(), "video:"+id.CacheKey(), Options{}, func(ctx context.Context) (*bilibili.Envelope, error) {
			if err := s.deps.Gate.Wait(ctx); err != nil {
				return nil, err
			}
			return s.deps.Upstream.VideoView(ctx, id)
		})
		if err != nil {
			appErr := httperrors.FromError(err)
			out.Errors = append(out.Errors, dto.BatchError{ID: raw, Code: appErr.Code, Message: appErr.Message})
			if ctx.Err() != nil || errors.Is(err, rate.ErrGateDeadline) {
				// Cliente se fue o el deadline no alcanza: el resto no se consulta.
				for _, rest := range ids[i+1:] {
					out.Errors = append(out.Errors, dto.BatchError{ID: rest, Code: appErr.Code, Message: appErr.Message})
				}
				break
			}
			continue
		}
		out.Data = append(out.Data, dto.BatchItem{ID: raw, Code: 0, Message: "ok", Data: res.Data})
	}

	log.Info("batch completed", logger.Count(len(ids)), logger.Int("failed", len(out.Errors)))
	return out, nil
}

// fetch resuelve una consulta: cache -> upstream -> escritura de cache.
// En error adjunta el último snapshot bueno si existe.
func (s *proxyService) fetch(ctx context.Context, endpoint, ident, key string, opts Options, call upstreamCall) (Result, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Endpoint(endpoint),
		logger.Identifier(ident),
	)

	if !opts.Refresh && s.deps.Cache != nil {
		b, err := s.deps.Cache.Get(ctx, key)
		switch {
		case err == nil:
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return Result{Data: b, Cached: true}, nil
		case cache.IsNotFound(err):
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		default:
			// Cache caído no bloquea el request.
			log.Warn("cache read failed", logger.CacheKey(key), logger.Err(err))
		}
	}

	env, err := call(ctx)
	if err != nil {
		appErr := httperrors.FromError(err)
		fields := []zap.Field{logger.Err(err), logger.Int("code", appErr.Code)}
		if ue, ok := bilibili.AsUpstream(err); ok && ue.Kind == bilibili.KindCode {
			fields = append(fields, logger.UpstreamCode(ue.Code))
		}
		log.Warn("upstream request failed", fields...)

		if stale := s.stale(ctx, key); stale != nil {
			metrics.CacheLookups.WithLabelValues("stale").Inc()
			appErr = appErr.WithStale(stale)
		}
		return Result{}, appErr
	}

	data := []byte(env.Data)
	if len(data) == 0 {
		data = []byte("null")
	}
	s.store(ctx, key, data)
	return Result{Data: data}, nil
}

func (s *proxyService) store(ctx context.Context, key string, data []byte) {
	if s.deps.Cache == nil {
		return
	}
	log := logger.From(ctx)
	if err := s.deps.Cache.Set(ctx, key, data, s.deps.TTL); err != nil {
		log.Warn("cache write failed", logger.CacheKey(key), logger.Err(err))
		return
	}
	if s.deps.StaleTTL > 0 {
		if err := s.deps.Cache.Set(ctx, cache.StalePrefix+key, data, s.deps.StaleTTL); err != nil {
			log.Warn("stale cache write failed", logger.CacheKey(key), logger.Err(err))
		}
	}
}

func (s *proxyService) stale(ctx context.Context, key string) []byte {
	if s.deps.Cache == nil || s.deps.StaleTTL <= 0 {
		return nil
	}
	b, err := s.deps.Cache.Get(context.WithoutCancel(ctx), cache.StalePrefix+key)
	if err != nil {
		return nil
	}
	return b
}
