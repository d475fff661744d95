package job

import (
	"context"
	log "log/slog"
	"time"

	"github.com/digitzh/FlyBook/internal/pkg/logger"
	"github.com/digitzh/FlyBook/internal/push"

	"github.com/google/uuid"
)

// PresenceSweepJob 周期清理实例反向索引中的残留成员。
// 在线租约键自带 TTL 可以自愈，但 Set 成员没有逐项过期，
// 崩溃或未走优雅下线的连接会在索引里留下尸体
type PresenceSweepJob struct {
	presence push.PresenceRegistry
}

func NewPresenceSweepJob(presence push.PresenceRegistry) *PresenceSweepJob {
	return &PresenceSweepJob{presence: presence}
}

func (s *PresenceSweepJob) Run() {
	traceID := "job-presence-sweep-" + uuid.NewString()
	ctx := context.WithValue(context.Background(), logger.TraceIDKey, traceID)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	removed, err := s.presence.Sweep(ctx)
	if err != nil {
		log.ErrorContext(ctx, "presence sweep error", "err", err)
		return
	}
	if removed > 0 {
		log.InfoContext(ctx, "presence sweep done", "removed", removed)
	}
}
