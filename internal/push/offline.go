package push

import (
	"context"
	"strconv"
	"time"

	"github.com/digitzh/FlyBook/internal/pkg/consts"

	"github.com/redis/go-redis/v9"
)

// OfflineQueue 用户维度的持久离线队列 (FIFO)。
// 入队的字节与在线直推完全一致，客户端除 seq 外无法区分补投与实时消息。
type OfflineQueue interface {
	Enqueue(ctx context.Context, userID uint64, payload []byte) error
	Peek(ctx context.Context, userID uint64, limit int64) ([]string, error)
	Ack(ctx context.Context, userID uint64) error
	Len(ctx context.Context, userID uint64) (int64, error)
}

type offlineQueueImpl struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewOfflineQueue(rdb *redis.Client, ttl time.Duration) OfflineQueue {
	return &offlineQueueImpl{rdb: rdb, ttl: ttl}
}

// Enqueue 追加到队尾并重置过期时间
func (s *offlineQueueImpl) Enqueue(ctx context.Context, userID uint64, payload []byte) error {
	key := offlineKey(userID)
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Peek 只读取不删除；删除必须等写入确认后通过 Ack 逐条完成，
// 这样补投中途崩溃最多造成重复投递，不会丢消息
func (s *offlineQueueImpl) Peek(ctx context.Context, userID uint64, limit int64) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.rdb.LRange(ctx, offlineKey(userID), 0, limit-1).Result()
}

// Ack 确认队首一条已成功写出
func (s *offlineQueueImpl) Ack(ctx context.Context, userID uint64) error {
	return s.rdb.LPop(ctx, offlineKey(userID)).Err()
}

func (s *offlineQueueImpl) Len(ctx context.Context, userID uint64) (int64, error) {
	return s.rdb.LLen(ctx, offlineKey(userID)).Result()
}

func offlineKey(userID uint64) string {
	return consts.IMOfflineKey + strconv.FormatUint(userID, 10)
}
