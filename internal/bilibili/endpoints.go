package bilibili

import (
	"context"
	"net/url"
	"strconv"

	"github.com/dropDatabas3/biliproxy/internal/wbi"
)

// Paths del upstream.
const (
	PathNav        = "/x/web-interface/nav"
	PathVideoView  = "/x/web-interface/view"
	PathVideoStat  = "/x/web-interface/archive/stat"
	PathUserCard   = "/x/web-interface/card"
	PathUserInfo   = "/x/space/wbi/acc/info"
	PathUserVideos = "/x/space/wbi/arc/search"
	PathSearch     = "/x/web-interface/wbi/search/type"
)

func videoQuery(id VideoID) url.Values {
	q := url.Values{}
	for k, v := range id.params() {
		q.Set(k, v)
	}
	return q
}

// VideoView: metadata de un video (sin firma).
func (c *Client) VideoView(ctx context.Context, id VideoID) (*Envelope, error) {
	return c.Get(ctx, PathVideoView, videoQuery(id))
}

// VideoStat: contadores de un video (sin firma).
func (c *Client) VideoStat(ctx context.Context, id VideoID) (*Envelope, error) {
	return c.Get(ctx, PathVideoStat, videoQuery(id))
}

// UserCard: tarjeta pública de un usuario (sin firma).
func (c *Client) UserCard(ctx context.Context, mid int64) (*Envelope, error) {
	q := url.Values{}
	q.Set("mid", strconv.FormatInt(mid, 10))
	q.Set("photo", "true")
	return c.Get(ctx, PathUserCard, q)
}

// UserInfo: perfil del espacio de un usuario (WBI).
func (c *Client) UserInfo(ctx context.Context, mid int64) (*Envelope, error) {
	return c.GetSigned(ctx, PathUserInfo, wbi.Params{"mid": mid})
}

// UserVideos: videos subidos por un usuario, más recientes primero (WBI).
func (c *Client) UserVideos(ctx context.Context, mid int64, pn, ps int) (*Envelope, error) {
	return c.GetSigned(ctx, PathUserVideos, wbi.Params{
		"mid":   mid,
		"pn":    pn,
		"ps":    ps,
		"order": "pubdate",
	})
}

// Search: búsqueda de videos por keyword (WBI).
func (c *Client) Search(ctx context.Context, keyword string, page int) (*Envelope, error) {
	return c.GetSigned(ctx, PathSearch, wbi.Params{
		"search_type": "video",
		"keyword":     keyword,
		"page":        page,
	})
}
