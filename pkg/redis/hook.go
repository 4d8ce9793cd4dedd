package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/epiguard-backend/pkg/logger"
)

// slowCommandHook warns about commands and pipelines that exceed threshold.
type slowCommandHook struct {
	threshold time.Duration
	logg      *logger.Logger
}

func (h slowCommandHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h slowCommandHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.report(ctx, cmd.Name(), 1, time.Since(start))
		return err
	}
}

func (h slowCommandHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		name := "pipeline"
		if len(cmds) > 0 {
			name = cmds[0].Name()
		}
		h.report(ctx, name, len(cmds), time.Since(start))
		return err
	}
}

func (h slowCommandHook) report(ctx context.Context, name string, n int, elapsed time.Duration) {
	if elapsed < h.threshold {
		return
	}
	h.logg.Warn(h.logg.WithFields(ctx, map[string]any{
		"redis_cmd":  name,
		"redis_cmds": n,
		"elapsed_ms": elapsed.Milliseconds(),
	}), "slow redis command")
}

var _ redis.Hook = slowCommandHook{}
