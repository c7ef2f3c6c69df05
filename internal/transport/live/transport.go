package live

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
)

// ErrConnectionGone means the remote end of a live connection no longer
// exists. The lifecycle manager deactivates the endpoint on this signal;
// every other failure is treated as transient.
var ErrConnectionGone = errors.New("connection gone")

// Transport pushes a payload to one live connection.
type Transport interface {
	Send(ctx context.Context, connectionID string, payload []byte) error
}

// RedisTransport delivers over Redis pub/sub: each live connection holds a
// subscription on its own conn:<id> channel. A publish that reaches zero
// receivers means the connection is gone.
type RedisTransport struct {
	rdb *redis.Client
}

func NewRedisTransport(rdb *redis.Client) *RedisTransport {
	return &RedisTransport{rdb: rdb}
}

func (t *RedisTransport) Send(ctx context.Context, connectionID string, payload []byte) error {
	n, err := t.rdb.Publish(ctx, "conn:"+connectionID, payload).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConnectionGone
	}
	return nil
}
