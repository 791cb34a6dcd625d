package logger

import (
	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }
func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }
func Bytes(v int) zap.Field        { return zap.Int("bytes", v) }
func ClientIP(v string) zap.Field  { return zap.String("client_ip", v) }

// =================================================================================
// CAMPOS ESTÁNDAR - DOMINIO
// =================================================================================

// Endpoint es la ruta lógica del proxy (video, user.info, search, ...).
func Endpoint(v string) zap.Field { return zap.String("endpoint", v) }

// Upstream es el path de la API de Bilibili.
func Upstream(v string) zap.Field { return zap.String("upstream", v) }

// UpstreamCode es el code embebido en la respuesta del upstream.
func UpstreamCode(v int) zap.Field { return zap.Int("upstream_code", v) }

// Identifier es el id pedido por el cliente (BV/AV/mid/keyword).
func Identifier(v string) zap.Field { return zap.String("identifier", v) }

func BVID(v string) zap.Field { return zap.String("bvid", v) }
func MID(v int64) zap.Field   { return zap.Int64("mid", v) }

// CacheKey es la key del cache de resultados.
func CacheKey(v string) zap.Field { return zap.String("cache_key", v) }

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Layer(v string) zap.Field     { return zap.String("layer", v) }
func Err(err error) zap.Field      { return zap.Error(err) }
func Count(v int) zap.Field        { return zap.Int("count", v) }

func Any(key string, v any) zap.Field   { return zap.Any(key, v) }
func String(key, v string) zap.Field    { return zap.String(key, v) }
func Int(key string, v int) zap.Field   { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
