package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const accessTokenKeyPrefix = "access:"

// AccessTokenCache mirrors freshly issued access tokens keyed by jti with a
// TTL equal to the token lifetime. It is a read-through optimization only;
// losing the whole cache changes nothing about token validity.
type AccessTokenCache struct {
	client *redis.Client
}

func NewAccessTokenCache(client *redis.Client) *AccessTokenCache {
	return &AccessTokenCache{client: client}
}

func (c *AccessTokenCache) CacheAccessToken(ctx context.Context, jti, token string, ttl time.Duration) error {
	return c.client.Set(ctx, accessTokenKeyPrefix+jti, token, ttl).Err()
}

func (c *AccessTokenCache) GetCachedAccessToken(ctx context.Context, jti string) (string, error) {
	token, err := c.client.Get(ctx, accessTokenKeyPrefix+jti).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return token, err
}
