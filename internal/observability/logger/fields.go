package logger

import (
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/rpcgate/internal/util"
)

// Field es un alias de zap.Field para no importar zap en cada paquete.
type Field = zap.Field

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

// RequestID crea un campo para el ID del request.
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field {
	return zap.String("method", v)
}

// Path crea un campo para el path del request.
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// Duration crea un campo para una duración.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// DurationMs crea un campo para la duración en milisegundos.
func DurationMs(v int64) zap.Field {
	return zap.Int64("duration_ms", v)
}

// Bytes crea un campo para los bytes de respuesta.
func Bytes(v int) zap.Field {
	return zap.Int("bytes", v)
}

// ClientIP crea un campo para la IP del cliente.
func ClientIP(v string) zap.Field {
	return zap.String("client_ip", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - GATEWAY
// =================================================================================

// RPCMethod crea un campo para el método JSON-RPC.
func RPCMethod(v string) zap.Field {
	return zap.String("rpc_method", v)
}

// APIKey crea un campo con la API key enmascarada. Nunca loguear la key completa.
func APIKey(v string) zap.Field {
	return zap.String("api_key", util.MaskKey(v))
}

// CacheStatus crea un campo para el resultado del cache (HIT, MISS, BYPASS).
func CacheStatus(v string) zap.Field {
	return zap.String("cache", v)
}

// Upstream crea un campo para la URL del nodo.
func Upstream(v string) zap.Field {
	return zap.String("upstream", v)
}

// Reason crea un campo para el motivo de un rechazo.
func Reason(v string) zap.Field {
	return zap.String("reason", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Addr crea un campo para una dirección de escucha.
func Addr(v string) zap.Field {
	return zap.String("addr", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// Count crea un campo para un conteo.
func Count(v int) zap.Field {
	return zap.Int("count", v)
}

// Any crea un campo genérico para cualquier tipo.
func Any(key string, v any) zap.Field {
	return zap.Any(key, v)
}

// String crea un campo string genérico.
func String(key, v string) zap.Field {
	return zap.String(key, v)
}

// Bool crea un campo bool genérico.
func Bool(key string, v bool) zap.Field {
	return zap.Bool(key, v)
}
