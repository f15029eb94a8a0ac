package lines

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/props-entry-platform/internal/entry-service/entry"
)

// Cache guarda o status das prop lines no Redis.
// Espera chave "propline:{id}:status" => "OPEN" | "FROZEN" | "PULLED" | "SETTLED"
// É só um pré-check: a transação de colocação relê a linha no banco.
type Cache struct {
	Rdb *redis.Client
	TTL time.Duration // 0 = sem expiração
}

func NewCache(r *redis.Client, ttl time.Duration) *Cache { return &Cache{Rdb: r, TTL: ttl} }

func key(lineID string) string { return "propline:" + lineID + ":status" }

// Status retorna o status em cache; ok=false quando a chave não existe
func (c *Cache) Status(ctx context.Context, lineID string) (entry.LineStatus, bool, error) {
	val, err := c.Rdb.Get(ctx, key(lineID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.LineStatus(val), true, nil
}

func (c *Cache) Set(ctx context.Context, lineID string, status entry.LineStatus) error {
	return c.Rdb.Set(ctx, key(lineID), string(status), c.TTL).Err()
}

// MarkSettled é chamado depois que o valor observado da linha foi gravado
func (c *Cache) MarkSettled(ctx context.Context, lineID string) error {
	return c.Set(ctx, lineID, entry.LineSettled)
}
