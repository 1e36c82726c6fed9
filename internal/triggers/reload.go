package triggers

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const ReloadChannel = "cfg:reload"

// WatchReload subscribes to the hot-reload channel and reloads rulesPath
// on every notification, leaving the live rule list untouched and logging
// the error when a reload fails validation.
func (e *Evaluator) WatchReload(ctx context.Context, rdb *redis.Client, rulesPath string, log *zap.Logger) {
	sub := rdb.Subscribe(ctx, ReloadChannel)
	ch := sub.Channel()

	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				if err := e.LoadFile(rulesPath); err != nil {
					log.Error("trigger rule hot reload rejected; keeping existing rules", zap.Error(err))
					continue
				}
				log.Info("trigger rules reloaded", zap.String("path", rulesPath))
			}
		}
	}()
}

// PublishReload notifies every orchestrator instance to reload rules.
func PublishReload(ctx context.Context, rdb *redis.Client) error {
	return rdb.Publish(ctx, ReloadChannel, "reload").Err()
}
