package authz

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Watcher reloads the engine whenever a message arrives on the policy
// channel, so policy writes on one instance become visible on all of them.
type Watcher struct {
	rdb     *redis.Client
	channel string
	engine  *Engine
	log     zerolog.Logger
}

func NewWatcher(rdb *redis.Client, channel string, engine *Engine, log zerolog.Logger) *Watcher {
	return &Watcher{rdb: rdb, channel: channel, engine: engine, log: log}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	sub := w.rdb.Subscribe(ctx, w.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := w.engine.Reload(); err != nil {
				w.log.Error().Err(err).Str("channel", w.channel).Msg("policy reload failed")
				continue
			}
			w.log.Info().Str("channel", w.channel).Str("payload", msg.Payload).Msg("policy reloaded")
		}
	}
}

// NotifyReload asks every subscribed instance to reload its rule set.
func (w *Watcher) NotifyReload(ctx context.Context) error {
	return w.rdb.Publish(ctx, w.channel, "reload").Err()
}
