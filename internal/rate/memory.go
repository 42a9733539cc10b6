package rate

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryLimiter es el fixed window in-process. Cada key es un contador en
// go-cache cuya expiración es el fin de su ventana.
type MemoryLimiter struct {
	Max    int64
	Window time.Duration

	mu sync.Mutex
	c  *gocache.Cache
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	cleanup := window
	if cleanup < time.Second {
		cleanup = time.Second
	}
	return &MemoryLimiter{
		Max:    int64(max),
		Window: window,
		c:      gocache.New(window, cleanup),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	// Add falla si hay una ventana vigente para la key.
	if err := l.c.Add(key, int64(1), l.Window); err == nil {
		return result(1, l.Max, l.Window, l.Window), nil
	}

	hits, err := l.c.IncrementInt64(key, 1)
	if err != nil {
		// La ventana venció entre Add e Increment.
		l.c.Set(key, int64(1), l.Window)
		return result(1, l.Max, l.Window, l.Window), nil
	}

	ttl := l.Window
	if _, exp, ok := l.c.GetWithExpiration(key); ok && !exp.IsZero() {
		ttl = exp.Sub(now)
	}
	return result(hits, l.Max, ttl, l.Window), nil
}

// Len retorna la cantidad de ventanas activas (incluye vencidas aún no barridas).
func (l *MemoryLimiter) Len() int {
	return l.c.ItemCount()
}
