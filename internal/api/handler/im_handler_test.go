package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/digitzh/FlyBook/internal/api/dto"
	"github.com/digitzh/FlyBook/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

type fakeIMService struct {
	sendErr error
	sentBy  uint64
}

func (f *fakeIMService) SendMessage(_ context.Context, senderID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sentBy = senderID
	return &dto.MessageDTO{ConversationID: req.ConversationID, SenderID: senderID, Seq: 1}, nil
}

func (f *fakeIMService) SyncMessages(context.Context, uint64, uint64, uint64, int) ([]*dto.MessageDTO, error) {
	return nil, nil
}

func (f *fakeIMService) GetChatHistory(context.Context, uint64, uint64, uint64, int) ([]*dto.MessageDTO, error) {
	return nil, nil
}

func (f *fakeIMService) GetConversationList(context.Context, uint64) ([]*dto.ConversationDTO, error) {
	return nil, nil
}

func (f *fakeIMService) GetTotalUnreadCount(context.Context, uint64) (int64, error) { return 7, nil }

func (f *fakeIMService) MarkAsRead(context.Context, uint64, uint64, uint64) error { return nil }

func (f *fakeIMService) RevokeMessage(context.Context, uint64, uint64, uint64) error { return nil }

func newTestRouter(svc service.IMService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewIMHandler(svc)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", uint64(1))
	})
	r.POST("/api/im/message", h.SendMessage)
	r.GET("/api/im/unread/total", h.GetTotalUnread)
	return r
}

func doRequest(r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, *dto.Response) {
	w := httptest.NewRecorder()
	httpReq := httptest.NewRequest(method, path, strings.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, httpReq)

	var resp dto.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, &resp
}

func TestSendMessageHandler(t *testing.T) {
	req := require.New(t)
	svc := &fakeIMService{}
	r := newTestRouter(svc)

	w, resp := doRequest(r, http.MethodPost, "/api/im/message",
		`{"conversation_id":10,"msg_type":1,"content":"{\"text\":\"你好\"}"}`)

	req.Equal(http.StatusOK, w.Code)
	req.Equal(200, resp.Code)
	req.EqualValues(1, svc.sentBy)
}

func TestSendMessageHandlerParamInvalid(t *testing.T) {
	req := require.New(t)
	r := newTestRouter(&fakeIMService{})

	// 缺少必填字段走统一参数错误
	_, resp := doRequest(r, http.MethodPost, "/api/im/message", `{"msg_type":1}`)
	req.Equal(400, resp.Code)
}

func TestSendMessageHandlerBusinessError(t *testing.T) {
	req := require.New(t)
	r := newTestRouter(&fakeIMService{sendErr: service.ErrNotMember})

	w, resp := doRequest(r, http.MethodPost, "/api/im/message",
		`{"conversation_id":10,"msg_type":1,"content":"hi"}`)

	// 业务错误统一 HTTP 200 + 业务码
	req.Equal(http.StatusOK, w.Code)
	req.Equal(401, resp.Code)
	req.Equal(service.ErrNotMember.Error(), resp.Message)
}

func TestGetTotalUnreadHandler(t *testing.T) {
	req := require.New(t)
	r := newTestRouter(&fakeIMService{})

	_, resp := doRequest(r, http.MethodGet, "/api/im/unread/total", "")
	req.Equal(200, resp.Code)
}
