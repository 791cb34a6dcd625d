package wbi

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// ParamWts es el timestamp (unix segundos) agregado al firmar.
	ParamWts = "wts"
	// ParamWRID es el digest resultante.
	ParamWRID = "w_rid"
)

// ErrInvalidParam indica un valor no escalar dentro de Params.
var ErrInvalidParam = errors.New("wbi: invalid parameter value")

// Params es el conjunto plano de parámetros a firmar.
// Los valores deben ser escalares: string, bool, enteros, floats o fmt.Stringer.
type Params map[string]any

// Signed es Params + wts + w_rid. Nunca comparte el map del caller.
type Signed struct {
	values map[string]string
}

// Get devuelve el valor serializado de una clave.
func (s Signed) Get(key string) string { return s.values[key] }

// Wts devuelve el timestamp usado al firmar.
func (s Signed) Wts() int64 {
	n, _ := strconv.ParseInt(s.values[ParamWts], 10, 64)
	return n
}

// WRID devuelve el digest hex.
func (s Signed) WRID() string { return s.values[ParamWRID] }

// Map devuelve una copia de los valores firmados.
func (s Signed) Map() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Encode arma el query string final: orden canónico y w_rid al final.
func (s Signed) Encode() string {
	rest := make(map[string]string, len(s.values))
	for k, v := range s.values {
		if k != ParamWRID {
			rest[k] = v
		}
	}
	q := canonicalQuery(rest)
	if w, ok := s.values[ParamWRID]; ok {
		q += "&" + ParamWRID + "=" + w
	}
	return q
}

// Signer calcula firmas WBI. El zero value no sirve: usar NewSigner.
type Signer struct {
	keys *KeyCache
	now  func() time.Time
}

// SignerOption configura un Signer.
type SignerOption func(*Signer)

// WithClock reemplaza el reloj (tests, CLI con --wts).
func WithClock(now func() time.Time) SignerOption {
	return func(s *Signer) { s.now = now }
}

// NewSigner crea un Signer. keys puede ser nil si solo se usa Sign.
func NewSigner(keys *KeyCache, opts ...SignerOption) *Signer {
	s := &Signer{keys: keys, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sign firma params con el par de claves dado.
func (s *Signer) Sign(params Params, kp KeyPair) (Signed, error) {
	values := make(map[string]string, len(params)+2)
	for k, v := range params {
		str, err := scalarString(v)
		if err != nil {
			return Signed{}, fmt.Errorf("%w: %q: %v", ErrInvalidParam, k, err)
		}
		values[k] = str
	}
	values[ParamWts] = strconv.FormatInt(s.now().Unix(), 10)

	mixin := MixinKey(kp.ImgKey, kp.SubKey)
	sum := md5.Sum([]byte(canonicalQuery(values) + mixin))
	values[ParamWRID] = hex.EncodeToString(sum[:])

	return Signed{values: values}, nil
}

// SignWithCache obtiene las claves vigentes del KeyCache y firma.
func (s *Signer) SignWithCache(ctx context.Context, params Params) (Signed, error) {
	if s.keys == nil {
		return Signed{}, ErrKeysUnavailable
	}
	kp, err := s.keys.Keys(ctx)
	if err != nil {
		return Signed{}, err
	}
	return s.Sign(params, kp)
}

// canonicalQuery ordena las claves por bytes y une k=v con '&'.
func canonicalQuery(values map[string]string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(Escape(k))
		b.WriteByte('=')
		b.WriteString(Escape(values[k]))
	}
	return b.String()
}

// Escape codifica como encodeURIComponent y además escapa !'()* en hex
// mayúscula. Solo A-Z a-z 0-9 - _ . ~ quedan literales.
func Escape(s string) string {
	const hexUpper = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexUpper[c>>4])
		b.WriteByte(hexUpper[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '_', c == '.', c == '~':
		return true
	}
	return false
}

func scalarString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int8:
		return strconv.FormatInt(int64(t), 10), nil
	case int16:
		return strconv.FormatInt(int64(t), 10), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case fmt.Stringer:
		return t.String(), nil
	case nil:
		return "", errors.New("nil value")
	default:
		return "", fmt.Errorf("unsupported type %T", v)
	}
}
