package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"dm-service/internal/models"
)

// RedisClientRepo keeps the client registry in Redis. Presence data is ephemeral,
// so a key-value registry is a drop-in alternative to the Postgres table.
type RedisClientRepo struct {
	client *redis.Client
}

// NewRedisClientRepo constructs a RedisClientRepo.
func NewRedisClientRepo(client *redis.Client) *RedisClientRepo {
	return &RedisClientRepo{client: client}
}

func connectionKey(connectionID string) string {
	return fmt.Sprintf("client:%s", connectionID)
}

func nicknameKey(nickname string) string {
	return fmt.Sprintf("nickname:%s", nickname)
}

// Put registers the connection and the nickname reverse index.
func (r *RedisClientRepo) Put(ctx context.Context, client models.Client) error {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, connectionKey(client.ConnectionID), client.Nickname, 0)
	pipe.Set(ctx, nicknameKey(client.Nickname), client.ConnectionID, 0)
	_, err := pipe.Exec(ctx)
	return err
}

// Get fetches a client by connection id.
func (r *RedisClientRepo) Get(ctx context.Context, connectionID string) (models.Client, error) {
	nickname, err := r.client.Get(ctx, connectionKey(connectionID)).Result()
	if errors.Is(err, redis.Nil) {
		return models.Client{}, ErrClientNotFound
	}
	if err != nil {
		return models.Client{}, err
	}
	return models.Client{ConnectionID: connectionID, Nickname: nickname}, nil
}

// GetByNickname resolves the current holder of a nickname.
func (r *RedisClientRepo) GetByNickname(ctx context.Context, nickname string) (models.Client, error) {
	connectionID, err := r.client.Get(ctx, nicknameKey(nickname)).Result()
	if errors.Is(err, redis.Nil) {
		return models.Client{}, ErrClientNotFound
	}
	if err != nil {
		return models.Client{}, err
	}
	return models.Client{ConnectionID: connectionID, Nickname: nickname}, nil
}

// Delete removes the connection key and, when it still points at this connection,
// the nickname reverse index.
func (r *RedisClientRepo) Delete(ctx context.Context, connectionID string) error {
	nickname, err := r.client.Get(ctx, connectionKey(connectionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}

	holder, err := r.client.Get(ctx, nicknameKey(nickname)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, connectionKey(connectionID))
	if holder == connectionID {
		pipe.Del(ctx, nicknameKey(nickname))
	}
	_, err = pipe.Exec(ctx)
	return err
}

// All scans the registry. Unbounded, like the table scan it replaces.
func (r *RedisClientRepo) All(ctx context.Context) ([]models.Client, error) {
	var clients []models.Client
	iter := r.client.Scan(ctx, 0, "client:*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		nickname, err := r.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		clients = append(clients, models.Client{
			ConnectionID: key[len("client:"):],
			Nickname:     nickname,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return clients, nil
}

var _ ClientRepository = (*RedisClientRepo)(nil)
