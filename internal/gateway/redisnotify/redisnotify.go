// Package redisnotify carries aggregate change signals between processes
// over a Redis pub/sub channel.
package redisnotify

import (
	"context"

	redis "github.com/redis/go-redis/v9"
)

const channel = "stockflow:changes"

type Notifier struct {
	client *redis.Client
	sub    *redis.PubSub
}

func New(addr string, password string, db int) *Notifier {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &Notifier{client: client}
}

func (n *Notifier) Ping(ctx context.Context) error {
	return n.client.Ping(ctx).Err()
}

func (n *Notifier) Close() error {
	if n.sub != nil {
		_ = n.sub.Close()
	}
	return n.client.Close()
}

// Publish announces that the identity's aggregate changed. The message
// carries only the identity; receivers reload through their own gateway.
func (n *Notifier) Publish(ctx context.Context, identity string) error {
	return n.client.Publish(ctx, channel, identity).Err()
}

// Listen invokes handler for every change announcement until ctx ends.
// Runs its own goroutine; call Close to tear the subscription down.
func (n *Notifier) Listen(ctx context.Context, handler func(identity string)) {
	n.sub = n.client.Subscribe(ctx, channel)
	ch := n.sub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler(msg.Payload)
			}
		}
	}()
}
