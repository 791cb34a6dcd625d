// Package proxy contiene los controllers de /api.
package proxy

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	dto "github.com/dropDatabas3/biliproxy/internal/http/dto/proxy"
	httperrors "github.com/dropDatabas3/biliproxy/internal/http/errors"
	svc "github.com/dropDatabas3/biliproxy/internal/http/services/proxy"
	"github.com/dropDatabas3/biliproxy/internal/observability/logger"
)

const maxBatchBody = 64 << 10

// ProxyController maneja las rutas /api.
type ProxyController struct {
	service svc.Service
}

// NewProxyController crea el controller.
func NewProxyController(service svc.Service) *ProxyController {
	return &ProxyController{service: service}
}

// Video maneja GET /api/video?bvid=|aid=
func (c *ProxyController) Video(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, appErr := videoIDFromQuery(q)
	if appErr != nil {
		c.fail(w, r, "video", q.Get("bvid")+q.Get("aid"), appErr)
		return
	}
	res, err := c.service.Video(r.Context(), id, svc.Options{Refresh: refreshFromQuery(q)})
	c.respond(w, r, "video", id.String(), res, err)
}

// VideoStat maneja GET /api/video/stat?bvid=|aid=
func (c *ProxyController) VideoStat(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, appErr := videoIDFromQuery(q)
	if appErr != nil {
		c.fail(w, r, "video_stat", q.Get("bvid")+q.Get("aid"), appErr)
		return
	}
	res, err := c.service.VideoStat(r.Context(), id, svc.Options{Refresh: refreshFromQuery(q)})
	c.respond(w, r, "video_stat", id.String(), res, err)
}

// VideoBatch maneja POST /api/video/batch {"ids":[...]}
func (c *ProxyController) VideoBatch(w http.ResponseWriter, r *http.Request) {
	var req dto.BatchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBody))
	if err := dec.Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.fail(w, r, "video_batch", "", httperrors.ErrBatchTooLarge.WithDetail("request body too large").WithCause(err))
			return
		}
		c.fail(w, r, "video_batch", "", httperrors.ErrInvalidJSON.WithCause(err))
		return
	}

	res, err := c.service.VideoBatch(r.Context(), req.IDs)
	if err != nil {
		c.fail(w, r, "video_batch", strconv.Itoa(len(req.IDs))+" ids", err)
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, dto.BatchResponse{
		Code:    0,
		Message: "ok",
		Data:    res.Data,
		Errors:  res.Errors,
	})
}

// UserInfo maneja GET /api/user/info?mid=
func (c *ProxyController) UserInfo(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mid, appErr := midFromQuery(q)
	if appErr != nil {
		c.fail(w, r, "user_info", q.Get("mid"), appErr)
		return
	}
	res, err := c.service.UserInfo(r.Context(), mid, svc.Options{Refresh: refreshFromQuery(q)})
	c.respond(w, r, "user_info", strconv.FormatInt(mid, 10), res, err)
}

// UserCard maneja GET /api/user/card?mid=
func (c *ProxyController) UserCard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mid, appErr := midFromQuery(q)
	if appErr != nil {
		c.fail(w, r, "user_card", q.Get("mid"), appErr)
		return
	}
	res, err := c.service.UserCard(r.Context(), mid, svc.Options{Refresh: refreshFromQuery(q)})
	c.respond(w, r, "user_card", strconv.FormatInt(mid, 10), res, err)
}

// UserVideos maneja GET /api/user/videos?mid=&pn=&ps=
func (c *ProxyController) UserVideos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mid, appErr := midFromQuery(q)
	if appErr != nil {
		c.fail(w, r, "user_videos", q.Get("mid"), appErr)
		return
	}
	pn, appErr := intFromQuery(q, "pn", 1, 1, maxUserPage)
	if appErr != nil {
		c.fail(w, r, "user_videos", q.Get("mid"), appErr)
		return
	}
	ps, appErr := intFromQuery(q, "ps", defaultPageSize, 1, maxPageSize)
	if appErr != nil {
		c.fail(w, r, "user_videos", q.Get("mid"), appErr)
		return
	}
	res, err := c.service.UserVideos(r.Context(), mid, pn, ps, svc.Options{Refresh: refreshFromQuery(q)})
	c.respond(w, r, "user_videos", strconv.FormatInt(mid, 10), res, err)
}

// Search maneja GET /api/search?keyword=&page=
func (c *ProxyController) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kw, appErr := keywordFromQuery(q)
	if appErr != nil {
		c.fail(w, r, "search", q.Get("keyword"), appErr)
		return
	}
	page, appErr := intFromQuery(q, "page", 1, 1, maxPage)
	if appErr != nil {
		c.fail(w, r, "search", kw, appErr)
		return
	}
	res, err := c.service.Search(r.Context(), kw, page, svc.Options{Refresh: refreshFromQuery(q)})
	c.respond(w, r, "search", kw, res, err)
}

func (c *ProxyController) respond(w http.ResponseWriter, r *http.Request, endpoint, ident string, res svc.Result, err error) {
	if err != nil {
		c.fail(w, r, endpoint, ident, err)
		return
	}
	if res.Cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	httperrors.WriteOK(w, res.Data)
}

// fail loguea con endpoint e identificador y escribe el envelope de error.
func (c *ProxyController) fail(w http.ResponseWriter, r *http.Request, endpoint, ident string, err error) {
	appErr := httperrors.FromError(err)
	log := logger.From(r.Context()).With(
		logger.Layer("controller"),
		logger.Endpoint(endpoint),
		logger.Identifier(ident),
		logger.Int("code", appErr.Code),
	)
	if appErr.HTTPStatus >= 500 {
		log.Error("request failed", logger.Err(err))
	} else {
		log.Info("request rejected", logger.String("detail", appErr.Detail))
	}
	httperrors.WriteError(w, appErr)
}
