package proxy

import (
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dropDatabas3/biliproxy/internal/bilibili"
	httperrors "github.com/dropDatabas3/biliproxy/internal/http/errors"
)

const (
	maxKeywordRunes = 100
	maxPage         = 50
	maxPageSize     = 50
	defaultPageSize = 30
	maxUserPage     = 10000
)

// videoIDFromQuery acepta ?bvid=BV... o ?aid=123 (bvid tiene prioridad).
func videoIDFromQuery(q url.Values) (bilibili.VideoID, *httperrors.AppError) {
	if bv := strings.TrimSpace(q.Get("bvid")); bv != "" {
		id, err := bilibili.ParseVideoID(bv)
		if err != nil || id.BVID == "" {
			return bilibili.VideoID{}, httperrors.ErrInvalidParameter.WithDetail("bvid must match BV + 10 alphanumerics")
		}
		return id, nil
	}
	if aid := strings.TrimSpace(q.Get("aid")); aid != "" {
		id, err := bilibili.ParseVideoID(aid)
		if err != nil || id.AID == 0 {
			return bilibili.VideoID{}, httperrors.ErrInvalidParameter.WithDetail("aid must be a positive integer")
		}
		return id, nil
	}
	return bilibili.VideoID{}, httperrors.ErrBadRequest.WithDetail("bvid or aid is required")
}

func midFromQuery(q url.Values) (int64, *httperrors.AppError) {
	raw := q.Get("mid")
	if strings.TrimSpace(raw) == "" {
		return 0, httperrors.ErrBadRequest.WithDetail("mid is required")
	}
	mid, err := bilibili.ParseMID(raw)
	if err != nil {
		return 0, httperrors.ErrInvalidParameter.WithDetail("mid must be a positive integer")
	}
	return mid, nil
}

// intFromQuery lee un entero opcional dentro de [lo, hi].
func intFromQuery(q url.Values, name string, def, lo, hi int) (int, *httperrors.AppError) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return 0, httperrors.ErrInvalidParameter.WithDetail(name + " must be between " + strconv.Itoa(lo) + " and " + strconv.Itoa(hi))
	}
	return n, nil
}

func keywordFromQuery(q url.Values) (string, *httperrors.AppError) {
	kw := strings.TrimSpace(q.Get("keyword"))
	switch {
	case kw == "":
		return "", httperrors.ErrBadRequest.WithDetail("keyword is required")
	case !utf8.ValidString(kw):
		return "", httperrors.ErrInvalidParameter.WithDetail("keyword must be valid UTF-8")
	case utf8.RuneCountInString(kw) > maxKeywordRunes:
		return "", httperrors.ErrInvalidParameter.WithDetail("keyword must be at most 100 characters")
	}
	return kw, nil
}

func refreshFromQuery(q url.Values) bool {
	switch strings.ToLower(q.Get("refresh")) {
	case "1", "true", "yes":
		return true
	}
	return false
}
