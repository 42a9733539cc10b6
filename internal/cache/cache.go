// Package cache guarda respuestas del nodo para los métodos cacheables.
//
// Soporta:
//   - Memory (in-process, TTL por entrada y capacidad con desalojo LRU)
//   - Redis (compartido entre réplicas del gateway)
//
// Qué se cachea y por cuánto tiempo lo decide Policy; este archivo solo define
// el almacenamiento.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store define las operaciones de almacenamiento de respuestas.
type Store interface {
	// Get obtiene una entrada vigente. Retorna ErrNotFound si no existe o venció.
	Get(ctx context.Context, key string) (Entry, error)

	// Set guarda body con el TTL dado.
	Set(ctx context.Context, key string, body []byte, ttl time.Duration) error

	// Delete elimina una key.
	Delete(ctx context.Context, key string) error

	// Ping verifica la conexión.
	Ping(ctx context.Context) error

	// Close libera recursos.
	Close() error

	// Stats retorna estadísticas del store.
	Stats(ctx context.Context) (Stats, error)
}

// Entry es una respuesta cacheada.
type Entry struct {
	Body      []byte
	ExpiresAt time.Time
}

// Remaining retorna el TTL restante respecto de now (nunca negativo).
func (e Entry) Remaining(now time.Time) time.Duration {
	if e.ExpiresAt.IsZero() {
		return 0
	}
	d := e.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Stats contiene estadísticas del store.
type Stats struct {
	Driver     string `json:"driver"`
	Keys       int64  `json:"keys"`
	UsedMemory string `json:"used_memory,omitempty"`
	Hits       int64  `json:"hits"`
	Misses     int64  `json:"misses"`
}

// Config configuración para crear un store.
type Config struct {
	Driver   string // "memory" | "redis"
	Capacity uint64 // solo memory; 0 = sin límite
	Prefix   string // solo redis
	Redis    *redis.Client
}

// DefaultCapacity es la capacidad del store en memoria si no se configura otra.
const DefaultCapacity = 2000

// ErrNotFound indica que la key no está en el cache.
var ErrNotFound = errors.New("cache: key not found")

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// New crea un store según la configuración.
func New(cfg Config) (Store, error) {
	switch cfg.Driver {
	case "redis":
		if cfg.Redis == nil {
			return nil, fmt.Errorf("cache: redis driver requires a client")
		}
		return NewRedis(cfg.Redis, cfg.Prefix), nil
	case "memory", "":
		return NewMemory(cfg.Capacity), nil
	default:
		return nil, fmt.Errorf("cache: unknown driver %q", cfg.Driver)
	}
}
