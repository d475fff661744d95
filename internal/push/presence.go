package push

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/digitzh/FlyBook/internal/pkg/consts"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PresenceState 在线状态查询结果
type PresenceState int

const (
	PresenceOffline PresenceState = iota // 无租约
	PresenceLocal                        // 租约归本实例
	PresenceRemote                       // 租约归其他实例
)

// releaseScript 仅当租约仍归本实例时才删除，避免误删其他实例的新租约
const releaseScript = `if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end`

// PresenceRegistry 跨实例在线状态登记
// 租约带 TTL，实例崩溃后无需任何清理动作即可自愈
type PresenceRegistry interface {
	InstanceID() string
	Acquire(ctx context.Context, userID uint64) error
	Refresh(ctx context.Context, userID uint64) error
	Release(ctx context.Context, userID uint64) error
	Lookup(ctx context.Context, userID uint64) (PresenceState, string, error)
	ReleaseAll(ctx context.Context) error
	Sweep(ctx context.Context) (int, error)
}

type presenceRegistryImpl struct {
	rdb        *redis.Client
	instanceID string
	ttl        time.Duration
}

// NewInstanceID 生成实例标识: host:port:uuid8
func NewInstanceID(port int) string {
	host, err := os.Hostname()
	if err != nil {
		return uuid.NewString()
	}
	return fmt.Sprintf("%s:%d:%s", host, port, uuid.NewString()[:8])
}

func NewPresenceRegistry(rdb *redis.Client, instanceID string, ttl time.Duration) PresenceRegistry {
	return &presenceRegistryImpl{rdb: rdb, instanceID: instanceID, ttl: ttl}
}

func (s *presenceRegistryImpl) InstanceID() string { return s.instanceID }

// Acquire 写入本实例租约（后连接的一方直接覆盖，与连接表的 last-connect-wins 对齐）
func (s *presenceRegistryImpl) Acquire(ctx context.Context, userID uint64) error {
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, onlineKey(userID), s.instanceID, s.ttl)
	pipe.SAdd(ctx, instanceKey(s.instanceID), strconv.FormatUint(userID, 10))
	pipe.Expire(ctx, instanceKey(s.instanceID), 24*time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}

// Refresh 心跳续约
func (s *presenceRegistryImpl) Refresh(ctx context.Context, userID uint64) error {
	return s.rdb.Set(ctx, onlineKey(userID), s.instanceID, s.ttl).Err()
}

// Release 释放租约，仅当仍归本实例时生效，可重复调用
func (s *presenceRegistryImpl) Release(ctx context.Context, userID uint64) error {
	if err := s.rdb.Eval(ctx, releaseScript, []string{onlineKey(userID)}, s.instanceID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return s.rdb.SRem(ctx, instanceKey(s.instanceID), strconv.FormatUint(userID, 10)).Err()
}

// Lookup 查询用户租约归属
func (s *presenceRegistryImpl) Lookup(ctx context.Context, userID uint64) (PresenceState, string, error) {
	owner, err := s.rdb.Get(ctx, onlineKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return PresenceOffline, "", nil
	}
	if err != nil {
		return PresenceOffline, "", err
	}
	if owner == s.instanceID {
		return PresenceLocal, owner, nil
	}
	return PresenceRemote, owner, nil
}

// ReleaseAll 实例下线时批量清理本实例名下的全部租约
func (s *presenceRegistryImpl) ReleaseAll(ctx context.Context) error {
	members, err := s.rdb.SMembers(ctx, instanceKey(s.instanceID)).Result()
	if err != nil {
		return err
	}
	for _, m := range members {
		userID, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		if err := s.Release(ctx, userID); err != nil {
			return err
		}
	}
	return s.rdb.Del(ctx, instanceKey(s.instanceID)).Err()
}

// Sweep 清理反向索引中租约已过期或已漂移到其他实例的残留成员。
// 租约键自带 TTL 会自愈，但 Set 成员没有逐项 TTL，需要周期兜底。
func (s *presenceRegistryImpl) Sweep(ctx context.Context) (int, error) {
	members, err := s.rdb.SMembers(ctx, instanceKey(s.instanceID)).Result()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, m := range members {
		userID, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		owner, err := s.rdb.Get(ctx, onlineKey(userID)).Result()
		if errors.Is(err, redis.Nil) || (err == nil && owner != s.instanceID) {
			if err := s.rdb.SRem(ctx, instanceKey(s.instanceID), m).Err(); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

func onlineKey(userID uint64) string {
	return consts.IMOnlineKey + strconv.FormatUint(userID, 10)
}

func instanceKey(instanceID string) string {
	return consts.IMInstanceKey + instanceID
}
