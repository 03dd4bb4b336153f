package cache

import (
	"context"
	"time"
)

// BytesCache — best-effort кэш байтовых значений. Промах или ошибка кэша
// никогда не должны ронять запрос.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
