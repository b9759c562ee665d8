package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/dats-backend/internal/domain/jobs"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
)

// RedisBus publishes job events and wake-ups over redis pub/sub so API and
// worker processes can run separately.
type RedisBus struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

// NewRedisBusFromEnv returns nil, nil when REDIS_ADDR is unset.
func NewRedisBusFromEnv(log *logger.Logger) (*RedisBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, nil
	}
	prefix := strings.TrimSpace(os.Getenv("REDIS_CHANNEL_PREFIX"))
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    os.Getenv("REDIS_PASSWORD"),
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisBus(log, rdb, prefix), nil
}

func NewRedisBus(log *logger.Logger, rdb *goredis.Client, prefix string) *RedisBus {
	if prefix == "" {
		prefix = "dats"
	}
	return &RedisBus{log: log.With("service", "RedisJobBus"), rdb: rdb, prefix: prefix}
}

func (b *RedisBus) eventsChannel() string { return b.prefix + ":jobs:events" }

func (b *RedisBus) wakeChannel(device jobs.Device) string {
	return b.prefix + ":jobs:wake:" + string(device)
}

func (b *RedisBus) Notify(ctx context.Context, ev JobEvent) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis job bus not initialized")
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.eventsChannel(), raw).Err()
}

func (b *RedisBus) Wake(ctx context.Context, device jobs.Device) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis job bus not initialized")
	}
	return b.rdb.Publish(ctx, b.wakeChannel(device), "1").Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, device jobs.Device) (<-chan struct{}, error) {
	sub, err := b.subscribe(ctx, b.wakeChannel(device))
	if err != nil {
		return nil, err
	}
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}

// StartForwarder delivers published job events to onEvent until ctx ends.
func (b *RedisBus) StartForwarder(ctx context.Context, onEvent func(JobEvent)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}
	sub, err := b.subscribe(ctx, b.eventsChannel())
	if err != nil {
		return err
	}
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var ev JobEvent
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.log.Warn("bad redis job event payload", "error", err)
					continue
				}
				onEvent(ev)
			}
		}
	}()
	return nil
}

func (b *RedisBus) subscribe(ctx context.Context, channel string) (*goredis.PubSub, error) {
	if b == nil || b.rdb == nil {
		return nil, fmt.Errorf("redis job bus not initialized")
	}
	sub := b.rdb.Subscribe(ctx, channel)
	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}
	return sub, nil
}

func (b *RedisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
