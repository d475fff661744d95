package push

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestPresenceAcquireAndLookup(t *testing.T) {
	req := require.New(t)
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	a := NewPresenceRegistry(rdb, "host-a:8080:aaaa", 300*time.Second)
	b := NewPresenceRegistry(rdb, "host-b:8080:bbbb", 300*time.Second)

	state, _, err := a.Lookup(ctx, 1)
	req.NoError(err)
	req.Equal(PresenceOffline, state)

	req.NoError(a.Acquire(ctx, 1))

	state, owner, err := a.Lookup(ctx, 1)
	req.NoError(err)
	req.Equal(PresenceLocal, state)
	req.Equal("host-a:8080:aaaa", owner)

	// 其他实例视角下是远端在线
	state, owner, err = b.Lookup(ctx, 1)
	req.NoError(err)
	req.Equal(PresenceRemote, state)
	req.Equal("host-a:8080:aaaa", owner)
}

func TestPresenceLeaseExpires(t *testing.T) {
	req := require.New(t)
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	a := NewPresenceRegistry(rdb, "host-a:8080:aaaa", 300*time.Second)
	req.NoError(a.Acquire(ctx, 1))

	// 实例崩溃后没有任何清理动作，租约到期自动消失
	mr.FastForward(301 * time.Second)

	state, _, err := a.Lookup(ctx, 1)
	req.NoError(err)
	req.Equal(PresenceOffline, state)
}

func TestPresenceReleaseOnlyOwnLease(t *testing.T) {
	req := require.New(t)
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	a := NewPresenceRegistry(rdb, "host-a:8080:aaaa", 300*time.Second)
	b := NewPresenceRegistry(rdb, "host-b:8080:bbbb", 300*time.Second)

	req.NoError(a.Acquire(ctx, 1))
	// 用户迁移到实例 b，后连接的一方覆盖租约
	req.NoError(b.Acquire(ctx, 1))

	// a 迟到的释放不能误删 b 的新租约
	req.NoError(a.Release(ctx, 1))

	state, owner, err := b.Lookup(ctx, 1)
	req.NoError(err)
	req.Equal(PresenceLocal, state)
	req.Equal("host-b:8080:bbbb", owner)
}

func TestPresenceReleaseAll(t *testing.T) {
	req := require.New(t)
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	a := NewPresenceRegistry(rdb, "host-a:8080:aaaa", 300*time.Second)
	req.NoError(a.Acquire(ctx, 1))
	req.NoError(a.Acquire(ctx, 2))
	req.NoError(a.Acquire(ctx, 3))

	req.NoError(a.ReleaseAll(ctx))

	for _, userID := range []uint64{1, 2, 3} {
		state, _, err := a.Lookup(ctx, userID)
		req.NoError(err)
		req.Equal(PresenceOffline, state)
	}
}

func TestPresenceSweepRemovesStaleMembers(t *testing.T) {
	req := require.New(t)
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	a := NewPresenceRegistry(rdb, "host-a:8080:aaaa", 300*time.Second)
	b := NewPresenceRegistry(rdb, "host-b:8080:bbbb", 300*time.Second)

	req.NoError(a.Acquire(ctx, 1)) // 租约将过期
	req.NoError(a.Acquire(ctx, 2)) // 将漂移到 b
	req.NoError(a.Acquire(ctx, 3)) // 保持正常

	mr.FastForward(301 * time.Second)
	req.NoError(a.Acquire(ctx, 3))
	req.NoError(b.Acquire(ctx, 2))

	removed, err := a.Sweep(ctx)
	req.NoError(err)
	req.Equal(2, removed)

	// 正常成员不受影响
	state, _, err := a.Lookup(ctx, 3)
	req.NoError(err)
	req.Equal(PresenceLocal, state)
}
