package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"exam_prep_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

type envelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// RedisBus 通过 Redis 频道在多个实例之间转发消息，本地订阅者由转发协程分发
type RedisBus struct {
	rdb     *redis.Client
	channel string
	local   *LocalBus
	cancel  context.CancelFunc
}

func NewRedisBus(rdb *redis.Client, channel string) (*RedisBus, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if channel == "" {
		channel = "exam_prep.events"
	}
	return &RedisBus{rdb: rdb, channel: channel, local: NewLocalBus()}, nil
}

// Start 订阅 Redis 频道并启动转发协程
func (b *RedisBus) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	sub := b.rdb.Subscribe(ctx, b.channel)

	// 确认订阅已建立
	recvCtx, recvCancel := context.WithTimeout(ctx, 5*time.Second)
	defer recvCancel()
	if _, err := sub.Receive(recvCtx); err != nil {
		cancel()
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}
	b.cancel = cancel

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var env envelope
				if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
					logger.Log.Warn("bad event bus payload", zap.Error(err))
					continue
				}
				b.local.dispatch(env.Topic, env.Payload)
			}
		}
	}()
	return nil
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	raw, err := json.Marshal(envelope{Topic: topic, Payload: payload})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *RedisBus) Subscribe(topic string, h Handler) func() {
	return b.local.Subscribe(topic, h)
}

func (b *RedisBus) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	return nil
}
