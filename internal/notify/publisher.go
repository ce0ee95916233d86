package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher is the abstracted pub/sub transport; RedisPublisher is
// the only production implementation, but tests substitute a fake.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisPublisher publishes change summaries over a Redis channel.
type RedisPublisher struct {
	rc *redis.Client
}

// NewRedisPublisher parses a redis:// URI (the change_notifier config
// key) and opens a client against it.
func NewRedisPublisher(uri string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parsing change_notifier URI: %w", err)
	}
	return &RedisPublisher{rc: redis.NewClient(opts)}, nil
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.rc.Publish(ctx, channel, payload).Err()
}

// Close releases the underlying connection pool.
func (p *RedisPublisher) Close() error {
	return p.rc.Close()
}

// message is the wire shape of one published change.
type message struct {
	Repo    string    `json:"repo"`
	Added   []string  `json:"added"`
	Removed []string  `json:"removed"`
	Updated []Updated `json:"updated"`
}

// PublishAll publishes one message per RepoChange to channel. Each
// repo is published independently; a failure on one repo is recorded
// in the returned slice but does not stop the remaining publishes —
// the caller logs these, it never aborts the run over them.
func PublishAll(ctx context.Context, pub Publisher, channel string, changes []RepoChange) []error {
	var errs []error
	for _, c := range changes {
		payload, err := json.Marshal(message{
			Repo:    c.Repo,
			Added:   c.Added,
			Removed: c.Removed,
			Updated: c.Updated,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("marshaling change for repo %s: %w", c.Repo, err))
			continue
		}
		if err := pub.Publish(ctx, channel, payload); err != nil {
			errs = append(errs, fmt.Errorf("publishing change for repo %s: %w", c.Repo, err))
		}
	}
	return errs
}
