package push

import (
	"context"
	"errors"
	log "log/slog"
)

// LocalSender 本实例的直推通道，由 ConnTable 实现
type LocalSender interface {
	Send(userID uint64, payload []byte) error
}

// DeliveryRouter 单条消息对单个接收者的投递决策：
//  1. 本地有活跃连接则直接写入，写失败关闭连接后继续降级
//  2. 租约在其他实例时不做跨实例直推，统一转入离线队列，
//     由对方的下一次重连或显式同步补齐（跨实例实时扇出是已知的改进方向，
//     当前策略保证消息不丢，代价是额外延迟）
//  3. 其余情况视为离线，追加到持久离线队列
//
// 在线状态或队列的远端调用失败只会降级记录日志，绝不让已提交的发送失败
type DeliveryRouter struct {
	local    LocalSender
	presence PresenceRegistry
	queue    OfflineQueue
}

func NewDeliveryRouter(local LocalSender, presence PresenceRegistry, queue OfflineQueue) *DeliveryRouter {
	return &DeliveryRouter{local: local, presence: presence, queue: queue}
}

// Route 投递一份已落库的推送载荷
func (s *DeliveryRouter) Route(ctx context.Context, userID uint64, payload []byte) {
	err := s.local.Send(userID, payload)
	if err == nil {
		return
	}
	if !errors.Is(err, ErrNoLocalConn) {
		log.Warn("本地直推失败，降级为离线投递", "userID", userID, "err", err)
	}

	state, owner, err := s.presence.Lookup(ctx, userID)
	if err != nil {
		// 在线状态不可用时按离线处理，消息进入队列而不是被丢弃
		log.Warn("在线状态查询失败，按离线处理", "userID", userID, "err", err)
	} else if state == PresenceRemote {
		log.Debug("接收者在其他实例在线，转入离线队列", "userID", userID, "instance", owner)
	}

	if err := s.queue.Enqueue(ctx, userID, payload); err != nil {
		log.Error("离线消息入队失败", "userID", userID, "err", err)
	}
}
