package push

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newWsServer 启动一个把连接交给 ConnTable 托管的测试服务
func newWsServer(t *testing.T, table *ConnTable) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseUint(r.URL.Query().Get("user_id"), 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := table.Attach(userID, ws)
		table.Serve(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialWs(t *testing.T, srv *httptest.Server, userID uint64) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user_id=" + strconv.FormatUint(userID, 10)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func waitLocalCount(t *testing.T, table *ConnTable, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if table.LocalCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, want, table.LocalCount())
}

func newTestTable(t *testing.T, idleTimeout time.Duration) *ConnTable {
	t.Helper()
	_, rdb := newTestRedis(t)
	presence := NewPresenceRegistry(rdb, "test:8080:aaaa", 300*time.Second)
	queue := NewOfflineQueue(rdb, 168*time.Hour)
	return NewConnTable(presence, queue, idleTimeout, 100)
}

func TestConnTableHeartbeat(t *testing.T) {
	req := require.New(t)
	table := newTestTable(t, 60*time.Second)
	srv := newWsServer(t, table)

	ws := dialWs(t, srv, 1)
	waitLocalCount(t, table, 1)

	req.NoError(ws.WriteMessage(websocket.TextMessage, []byte("ping")))

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	req.NoError(err)
	req.Equal("pong", string(data))
}

func TestConnTableIdleTimeoutCloseCode(t *testing.T) {
	req := require.New(t)
	table := newTestTable(t, 100*time.Millisecond)
	srv := newWsServer(t, table)

	ws := dialWs(t, srv, 1)
	waitLocalCount(t, table, 1)

	// 不发送任何帧，等待服务端超时断开
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	req.True(ok, "expected close error, got %v", err)
	req.Equal(CloseIdleTimeout, closeErr.Code)

	waitLocalCount(t, table, 0)
}

func TestConnTableLastConnectWins(t *testing.T) {
	req := require.New(t)
	table := newTestTable(t, 60*time.Second)
	srv := newWsServer(t, table)

	ws1 := dialWs(t, srv, 1)
	waitLocalCount(t, table, 1)

	ws2 := dialWs(t, srv, 1)

	// 旧连接被正常关闭
	_ = ws1.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws1.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	req.True(ok, "expected close error, got %v", err)
	req.Equal(websocket.CloseNormalClosure, closeErr.Code)

	// 投递走新连接
	req.NoError(table.Send(1, []byte("hello")))

	_ = ws2.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws2.ReadMessage()
	req.NoError(err)
	req.Equal("hello", string(data))
}

func TestConnTableSendWithoutConn(t *testing.T) {
	table := newTestTable(t, 60*time.Second)
	require.ErrorIs(t, table.Send(99, []byte("hello")), ErrNoLocalConn)
}

func TestConnTableDrainOfflineOnAttach(t *testing.T) {
	req := require.New(t)
	_, rdb := newTestRedis(t)
	presence := NewPresenceRegistry(rdb, "test:8080:aaaa", 300*time.Second)
	queue := NewOfflineQueue(rdb, 168*time.Hour)
	table := NewConnTable(presence, queue, 60*time.Second, 100)
	srv := newWsServer(t, table)

	ctx := context.Background()
	req.NoError(queue.Enqueue(ctx, 1, []byte("m1")))
	req.NoError(queue.Enqueue(ctx, 1, []byte("m2")))
	req.NoError(queue.Enqueue(ctx, 1, []byte("m3")))

	ws := dialWs(t, srv, 1)

	// 上线补投按入队顺序送达
	for _, want := range []string{"m1", "m2", "m3"} {
		_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := ws.ReadMessage()
		req.NoError(err)
		req.Equal(want, string(data))
	}

	// 全部确认后队列清空
	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := queue.Len(ctx, 1)
		req.NoError(err)
		if n == 0 {
			break
		}
		req.True(time.Now().Before(deadline), "offline queue not drained, %d left", n)
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConnTableCloseAllReleasesPresence(t *testing.T) {
	req := require.New(t)
	_, rdb := newTestRedis(t)
	presence := NewPresenceRegistry(rdb, "test:8080:aaaa", 300*time.Second)
	queue := NewOfflineQueue(rdb, 168*time.Hour)
	table := NewConnTable(presence, queue, 60*time.Second, 100)
	srv := newWsServer(t, table)

	dialWs(t, srv, 1)
	dialWs(t, srv, 2)
	waitLocalCount(t, table, 2)

	table.CloseAll(context.Background())

	req.Equal(0, table.LocalCount())
	for _, userID := range []uint64{1, 2} {
		state, _, err := presence.Lookup(context.Background(), userID)
		req.NoError(err)
		req.Equal(PresenceOffline, state)
	}
}
