package push

import (
	"context"
	"errors"
	log "log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	sendBufSize  = 256
	opTimeout    = 2 * time.Second
	drainTimeout = 30 * time.Second

	// CloseIdleTimeout 空闲超时的服务端主动关闭码，与正常关闭(1000)、异常断开(1006)区分
	CloseIdleTimeout = 4000

	heartbeatPing = "ping"
	heartbeatPong = "pong"
)

var (
	ErrNoLocalConn = errors.New("no local connection")

	errConnClosed     = errors.New("connection closed")
	errSendBufferFull = errors.New("send buffer full")
)

// Conn 一条活跃推送连接。所有数据帧只由 writeLoop 一个写者写出，
// 并发写者会损坏 websocket 帧流
type Conn struct {
	UserID uint64

	ws        *websocket.Conn
	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// close 发送关闭帧并断开，可重复调用
func (c *Conn) close(code int, reason string) {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(writeWait)
		// WriteControl 允许与数据帧写者并发
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *Conn) trySend(payload []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.sendCh <- payload:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		return errSendBufferFull
	}
}

// ConnTable 本实例的连接表：userID -> 活跃连接。
// 跨实例的在线状态一律走 PresenceRegistry，不依赖任何进程内可见性
type ConnTable struct {
	mu    sync.Mutex
	conns map[uint64]*Conn

	presence    PresenceRegistry
	queue       OfflineQueue
	idleTimeout time.Duration
	drainBatch  int64
}

func NewConnTable(presence PresenceRegistry, queue OfflineQueue, idleTimeout time.Duration, drainBatch int64) *ConnTable {
	return &ConnTable{
		conns:       make(map[uint64]*Conn),
		presence:    presence,
		queue:       queue,
		idleTimeout: idleTimeout,
		drainBatch:  drainBatch,
	}
}

// Attach 登记连接并启动写者。同一用户重复连接时后连接的获胜，旧连接被正常关闭。
// 随后获取在线租约并触发离线补投；租约写入失败只降级记录，不影响本地投递
func (s *ConnTable) Attach(userID uint64, ws *websocket.Conn) *Conn {
	c := &Conn{
		UserID: userID,
		ws:     ws,
		sendCh: make(chan []byte, sendBufSize),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	old := s.conns[userID]
	s.conns[userID] = c
	s.mu.Unlock()

	if old != nil {
		old.close(websocket.CloseNormalClosure, "connected elsewhere")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	if err := s.presence.Acquire(ctx, userID); err != nil {
		log.Warn("在线租约写入失败，仅保留本地投递", "userID", userID, "err", err)
	}
	cancel()

	go s.writeLoop(c)
	return c
}

// Serve 阻塞式读循环：刷新空闲期限、应答心跳并续约，直到连接断开。
// 返回前完成本连接的全部清理
func (s *ConnTable) Serve(c *Conn) {
	defer s.detach(c)

	for {
		_ = c.ws.SetReadDeadline(time.Now().Add(s.idleTimeout))
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				// 空闲超时，服务端主动关闭并带可区分的关闭码
				c.close(CloseIdleTimeout, "idle timeout")
			}
			return
		}

		// 任何帧都会重置空闲计时；心跳额外应答并续约
		if msgType == websocket.TextMessage && string(data) == heartbeatPing {
			if err := c.trySend([]byte(heartbeatPong)); err != nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
			if err := s.presence.Refresh(ctx, c.UserID); err != nil {
				log.Warn("心跳续约失败", "userID", c.UserID, "err", err)
			}
			cancel()
		}
	}
}

// Send 写入本地连接的发送通道；失败时关闭连接并返回错误，由路由降级处理
func (s *ConnTable) Send(userID uint64, payload []byte) error {
	s.mu.Lock()
	c, ok := s.conns[userID]
	s.mu.Unlock()
	if !ok {
		return ErrNoLocalConn
	}

	if err := c.trySend(payload); err != nil {
		log.Warn("本地推送失败，关闭连接", "userID", userID, "err", err)
		c.close(websocket.CloseGoingAway, "send failed")
		return err
	}
	return nil
}

// LocalCount 当前实例在线连接数
func (s *ConnTable) LocalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// CloseAll 优雅停机：正常关闭全部连接并批量释放租约
func (s *ConnTable) CloseAll(ctx context.Context) {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[uint64]*Conn)
	s.mu.Unlock()

	for _, c := range conns {
		c.close(websocket.CloseNormalClosure, "server shutdown")
	}
	if err := s.presence.ReleaseAll(ctx); err != nil {
		log.Warn("批量释放在线租约失败", "err", err)
	}
}

// writeLoop 连接唯一的数据帧写者：先补投离线队列，再消费发送通道
func (s *ConnTable) writeLoop(c *Conn) {
	s.drainOffline(c)

	for {
		select {
		case payload := <-c.sendCh:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Warn("推送写出失败", "userID", c.UserID, "err", err)
				c.close(websocket.CloseGoingAway, "write failed")
				return
			}
		case <-c.done:
			return
		}
	}
}

// drainOffline 上线补投：FIFO 最多补投 drainBatch 条，
// 每条写出成功后才从队列确认移除，第一条失败即停止，剩余原样留队
func (s *ConnTable) drainOffline(c *Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	payloads, err := s.queue.Peek(ctx, c.UserID, s.drainBatch)
	if err != nil {
		log.Warn("离线队列读取失败", "userID", c.UserID, "err", err)
		return
	}
	if len(payloads) == 0 {
		return
	}

	delivered := 0
	for _, payload := range payloads {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
			log.Warn("离线补投中断", "userID", c.UserID, "delivered", delivered, "err", err)
			c.close(websocket.CloseGoingAway, "write failed")
			return
		}
		if err := s.queue.Ack(ctx, c.UserID); err != nil {
			// 确认失败时宁可下次重复补投，也不能越过未确认的消息
			log.Warn("离线确认失败", "userID", c.UserID, "err", err)
			return
		}
		delivered++
	}
	log.Info("离线消息补投完成", "userID", c.UserID, "count", delivered)
}

// detach 移除本地登记并释放租约。
// 仅当连接仍是该用户的当前登记时才释放，避免误删新连接刚取得的租约
func (s *ConnTable) detach(c *Conn) {
	s.mu.Lock()
	current := s.conns[c.UserID] == c
	if current {
		delete(s.conns, c.UserID)
	}
	s.mu.Unlock()

	c.close(websocket.CloseNormalClosure, "")

	if current {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		if err := s.presence.Release(ctx, c.UserID); err != nil {
			log.Warn("在线租约释放失败", "userID", c.UserID, "err", err)
		}
		cancel()
	}
}
