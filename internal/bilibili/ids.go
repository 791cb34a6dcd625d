package bilibili

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidID indica un identificador de video/usuario mal formado.
var ErrInvalidID = errors.New("bilibili: invalid identifier")

var (
	bvRE = regexp.MustCompile(`^BV[0-9A-Za-z]{10}$`)
	avRE = regexp.MustCompile(`^(?i:av)?([0-9]{1,19})$`)
)

// VideoID identifica un video por BV o por AV (aid). Solo uno está seteado.
type VideoID struct {
	BVID string
	AID  int64
}

// String es la forma canónica (BV... o av123).
func (v VideoID) String() string {
	if v.BVID != "" {
		return v.BVID
	}
	return "av" + strconv.FormatInt(v.AID, 10)
}

// CacheKey es el sufijo estable para el cache de resultados.
func (v VideoID) CacheKey() string {
	if v.BVID != "" {
		return "bv:" + v.BVID
	}
	return "av:" + strconv.FormatInt(v.AID, 10)
}

func (v VideoID) params() map[string]string {
	if v.BVID != "" {
		return map[string]string{"bvid": v.BVID}
	}
	return map[string]string{"aid": strconv.FormatInt(v.AID, 10)}
}

// ParseVideoID acepta "BV1xx411c7mD", "av170001", "AV170001" o "170001".
func ParseVideoID(s string) (VideoID, error) {
	s = strings.TrimSpace(s)
	if bvRE.MatchString(s) {
		return VideoID{BVID: s}, nil
	}
	if m := avRE.FindStringSubmatch(s); m != nil {
		aid, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil && aid > 0 {
			return VideoID{AID: aid}, nil
		}
	}
	return VideoID{}, ErrInvalidID
}

// ParseMID valida un mid de usuario (entero positivo).
func ParseMID(s string) (int64, error) {
	mid, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || mid <= 0 {
		return 0, ErrInvalidID
	}
	return mid, nil
}
