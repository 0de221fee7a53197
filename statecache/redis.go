// Package statecache keeps the last known robot state and sync status in
// Redis so a restarted server has something to show before its first fetch.
package statecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SoberingRealityCheck/hexapod-server/robotstate"
	"github.com/redis/go-redis/v9"
)

const allRobotsKey = "hexapod:robots"

func stateKey(robot string) string {
	return fmt.Sprintf("hexapod:robot:%s:state", robot)
}

func statusKey(robot string) string {
	return fmt.Sprintf("hexapod:robot:%s:status", robot)
}

// Entry is a cached state with when and how it was accepted.
type Entry struct {
	State     robotstate.RobotState `json:"state"`
	Source    robotstate.Source     `json:"source"`
	UpdatedAt time.Time             `json:"updated_at"`
}

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Ping checks the connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) SetState(ctx context.Context, robot string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	pipe := r.client.Pipeline()
	pipe.Set(ctx, stateKey(robot), data, 0)
	pipe.SAdd(ctx, allRobotsKey, robot)
	_, err = pipe.Exec(ctx)
	return err
}

// GetState returns nil, nil when nothing is cached for robot.
func (r *RedisStore) GetState(ctx context.Context, robot string) (*Entry, error) {
	data, err := r.client.Get(ctx, stateKey(robot)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeEntry(data)
}

func decodeEntry(data []byte) (*Entry, error) {
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode cached state: %w", err)
	}
	entry.State = entry.State.Clone()
	return &entry, nil
}

func (r *RedisStore) SetStatus(ctx context.Context, robot string, status robotstate.Status) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, statusKey(robot), data, 0).Err()
}

// GetStatus returns the raw cached status JSON, or nil when absent.
func (r *RedisStore) GetStatus(ctx context.Context, robot string) (json.RawMessage, error) {
	data, err := r.client.Get(ctx, statusKey(robot)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

// Robots lists every robot name with a cached state.
func (r *RedisStore) Robots(ctx context.Context) ([]string, error) {
	return r.client.SMembers(ctx, allRobotsKey).Result()
}

// Remove drops the cached state and status for robot.
func (r *RedisStore) Remove(ctx context.Context, robot string) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, stateKey(robot), statusKey(robot))
	pipe.SRem(ctx, allRobotsKey, robot)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
