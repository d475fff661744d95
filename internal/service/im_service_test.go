package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/digitzh/FlyBook/internal/api/dto"
	"github.com/digitzh/FlyBook/internal/model"
	"github.com/digitzh/FlyBook/internal/pkg/consts"
	"github.com/digitzh/FlyBook/internal/pkg/kafka"
	"github.com/digitzh/FlyBook/internal/pkg/mongo"
	"github.com/digitzh/FlyBook/internal/repository"

	"github.com/stretchr/testify/require"
)

type fakeConvRepo struct {
	mu sync.Mutex

	conv      *model.Conversation
	members   map[uint64]bool
	memberIDs []uint64

	commitErr error
	seq       uint64
	summaries []string

	readSeqs []uint64

	memList []*model.ConversationMember
	unread  int64
}

func (f *fakeConvRepo) GetConversation(_ context.Context, convID uint64) (*model.Conversation, error) {
	if f.conv == nil || f.conv.ID != convID {
		return nil, repository.ErrConversationNotFound
	}
	return f.conv, nil
}

func (f *fakeConvRepo) IsMember(_ context.Context, _ uint64, userID uint64) (bool, error) {
	return f.members[userID], nil
}

func (f *fakeConvRepo) ListMemberIDs(context.Context, uint64) ([]uint64, error) {
	return f.memberIDs, nil
}

func (f *fakeConvRepo) CommitMessage(_ context.Context, msg *model.Message, summary string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return 0, f.commitErr
	}
	f.seq++
	msg.Seq = f.seq
	f.summaries = append(f.summaries, summary)
	if f.conv != nil {
		f.conv.CurrentSeq = f.seq
	}
	return f.seq, nil
}

func (f *fakeConvRepo) MarkAsRead(_ context.Context, _, _, seq uint64) error {
	f.readSeqs = append(f.readSeqs, seq)
	return nil
}

func (f *fakeConvRepo) GetUserConversationMemList(context.Context, uint64) ([]*model.ConversationMember, error) {
	return f.memList, nil
}

func (f *fakeConvRepo) GetTotalUnreadCount(context.Context, uint64) (int64, error) {
	return f.unread, nil
}

type fakeMessageRepo struct {
	messages []*model.Message
	revoked  []uint64
}

func (f *fakeMessageRepo) SyncMessages(_ context.Context, _ uint64, afterSeq uint64, limit int) ([]*model.Message, error) {
	var res []*model.Message
	for _, m := range f.messages {
		if m.Seq > afterSeq {
			res = append(res, m)
		}
	}
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (f *fakeMessageRepo) GetMessageBySeq(_ context.Context, _ uint64, seq uint64) (*model.Message, error) {
	for _, m := range f.messages {
		if m.Seq == seq {
			return m, nil
		}
	}
	return nil, errors.New("record not found")
}

func (f *fakeMessageRepo) RevokeMessage(_ context.Context, _ uint64, seq uint64, _ uint64) error {
	f.revoked = append(f.revoked, seq)
	return nil
}

type fakeArchiveRepo struct {
	history []*mongo.ArchiveMessage
}

func (f *fakeArchiveRepo) SaveMessage(context.Context, *mongo.ArchiveMessage) error { return nil }

func (f *fakeArchiveRepo) GetHistory(context.Context, uint64, uint64, int) ([]*mongo.ArchiveMessage, error) {
	return f.history, nil
}

type fakeProducer struct {
	mu     sync.Mutex
	events []*kafka.ArchiveEvent
}

func (f *fakeProducer) Publish(_ context.Context, event *kafka.ArchiveEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

type fakeRouter struct {
	mu     sync.Mutex
	routed []uint64
}

func (f *fakeRouter) Route(_ context.Context, userID uint64, _ []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routed = append(f.routed, userID)
}

func newTestService(convRepo *fakeConvRepo, msgRepo *fakeMessageRepo) (IMService, *fakeProducer, *fakeRouter) {
	producer := &fakeProducer{}
	router := &fakeRouter{}
	svc := NewIMService(convRepo, msgRepo, &fakeArchiveRepo{}, producer, router)
	return svc, producer, router
}

func textReq(convID uint64) *dto.SendMessageReq {
	return &dto.SendMessageReq{
		ConversationID: convID,
		MsgType:        consts.MsgTypeText,
		Content:        `{"text":"你好"}`,
	}
}

func TestSendMessageAllocatesFirstSeq(t *testing.T) {
	req := require.New(t)
	convRepo := &fakeConvRepo{
		conv:      &model.Conversation{ID: 10},
		members:   map[uint64]bool{1: true, 2: true, 3: true},
		memberIDs: []uint64{1, 2, 3},
	}
	svc, producer, router := newTestService(convRepo, &fakeMessageRepo{})

	msg, err := svc.SendMessage(context.Background(), 1, textReq(10))
	req.NoError(err)
	req.EqualValues(1, msg.Seq)
	req.Equal([]string{"你好"}, convRepo.summaries)

	// 发送者不参与扇出
	req.ElementsMatch([]uint64{2, 3}, router.routed)

	// 归档事件与落库消息一致
	req.Len(producer.events, 1)
	req.EqualValues(1, producer.events[0].Seq)
	req.EqualValues(10, producer.events[0].ConversationID)
}

func TestSendMessageConcurrentSeqsContiguous(t *testing.T) {
	req := require.New(t)
	convRepo := &fakeConvRepo{
		conv:    &model.Conversation{ID: 10},
		members: map[uint64]bool{1: true},
	}
	svc, _, _ := newTestService(convRepo, &fakeMessageRepo{})

	const n = 20
	seqCh := make(chan uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg, err := svc.SendMessage(context.Background(), 1, textReq(10))
			if err == nil {
				seqCh <- msg.Seq
			}
		}()
	}
	wg.Wait()
	close(seqCh)

	seen := make(map[uint64]bool)
	for seq := range seqCh {
		req.False(seen[seq], "duplicate seq %d", seq)
		seen[seq] = true
	}
	req.Len(seen, n)
	for seq := uint64(1); seq <= n; seq++ {
		req.True(seen[seq], "missing seq %d", seq)
	}
}

func TestSendMessageNotMember(t *testing.T) {
	req := require.New(t)
	convRepo := &fakeConvRepo{
		conv:    &model.Conversation{ID: 10},
		members: map[uint64]bool{},
	}
	svc, _, router := newTestService(convRepo, &fakeMessageRepo{})

	_, err := svc.SendMessage(context.Background(), 9, textReq(10))
	req.ErrorIs(err, ErrNotMember)
	req.Empty(router.routed)
}

func TestSendMessageConversationNotFound(t *testing.T) {
	req := require.New(t)
	convRepo := &fakeConvRepo{members: map[uint64]bool{}}
	svc, _, _ := newTestService(convRepo, &fakeMessageRepo{})

	_, err := svc.SendMessage(context.Background(), 1, textReq(404))
	req.ErrorIs(err, ErrConversationNotFound)
}

func TestSendMessageCommitFailureSkipsPush(t *testing.T) {
	req := require.New(t)
	convRepo := &fakeConvRepo{
		conv:      &model.Conversation{ID: 10},
		members:   map[uint64]bool{1: true, 2: true},
		memberIDs: []uint64{1, 2},
		commitErr: errors.New("deadlock"),
	}
	svc, producer, router := newTestService(convRepo, &fakeMessageRepo{})

	_, err := svc.SendMessage(context.Background(), 1, textReq(10))
	req.ErrorIs(err, ErrSendRetry)

	// 未提交的消息绝不推送、不归档
	req.Empty(router.routed)
	req.Empty(producer.events)
}

func TestSendMessageDuplicateSeqRetryable(t *testing.T) {
	req := require.New(t)
	convRepo := &fakeConvRepo{
		conv:      &model.Conversation{ID: 10},
		members:   map[uint64]bool{1: true},
		commitErr: repository.ErrDuplicateSeq,
	}
	svc, _, _ := newTestService(convRepo, &fakeMessageRepo{})

	_, err := svc.SendMessage(context.Background(), 1, textReq(10))
	req.ErrorIs(err, ErrSendRetry)
}

func TestSyncMessagesRequiresMembership(t *testing.T) {
	req := require.New(t)
	convRepo := &fakeConvRepo{members: map[uint64]bool{}}
	svc, _, _ := newTestService(convRepo, &fakeMessageRepo{})

	_, err := svc.SyncMessages(context.Background(), 9, 10, 0, 50)
	req.ErrorIs(err, UnauthorizedError)
}

func TestSyncMessagesStrictlyAfterSeq(t *testing.T) {
	req := require.New(t)
	convRepo := &fakeConvRepo{members: map[uint64]bool{1: true}}
	msgRepo := &fakeMessageRepo{messages: []*model.Message{
		{ConversationID: 10, Seq: 1},
		{ConversationID: 10, Seq: 2},
		{ConversationID: 10, Seq: 3},
	}}
	svc, _, _ := newTestService(convRepo, msgRepo)

	msgs, err := svc.SyncMessages(context.Background(), 1, 10, 2, 50)
	req.NoError(err)
	req.Len(msgs, 1)
	req.EqualValues(3, msgs[0].Seq)
}

func TestMarkAsReadClampedToCurrentSeq(t *testing.T) {
	req := require.New(t)
	convRepo := &fakeConvRepo{
		conv:    &model.Conversation{ID: 10, CurrentSeq: 5},
		members: map[uint64]bool{1: true},
	}
	svc, _, _ := newTestService(convRepo, &fakeMessageRepo{})

	req.NoError(svc.MarkAsRead(context.Background(), 1, 10, 99))
	req.Equal([]uint64{5}, convRepo.readSeqs)

	req.NoError(svc.MarkAsRead(context.Background(), 1, 10, 3))
	req.Equal([]uint64{5, 3}, convRepo.readSeqs)
}

func TestRevokeMessageSenderOnly(t *testing.T) {
	req := require.New(t)
	convRepo := &fakeConvRepo{
		conv:    &model.Conversation{ID: 10},
		members: map[uint64]bool{1: true, 2: true},
	}
	msgRepo := &fakeMessageRepo{messages: []*model.Message{
		{ConversationID: 10, Seq: 1, SenderID: 1, CreatedTime: time.Now()},
	}}
	svc, producer, _ := newTestService(convRepo, msgRepo)

	// 非发送者撤回被拒绝
	req.ErrorIs(svc.RevokeMessage(context.Background(), 2, 10, 1), UnauthorizedError)
	req.Empty(msgRepo.revoked)

	// 发送者撤回成功，归档事件带撤回标记
	req.NoError(svc.RevokeMessage(context.Background(), 1, 10, 1))
	req.Equal([]uint64{1}, msgRepo.revoked)
	req.Len(producer.events, 1)
	req.EqualValues(1, producer.events[0].IsRevoked)
}

func TestGetChatHistoryGapStub(t *testing.T) {
	req := require.New(t)
	lastTime := time.Now()
	convRepo := &fakeConvRepo{
		conv: &model.Conversation{
			ID:             10,
			CurrentSeq:     5,
			LastMsgContent: "最新一条",
			LastMsgTime:    lastTime,
		},
		members: map[uint64]bool{1: true},
	}
	producer := &fakeProducer{}
	archiveRepo := &fakeArchiveRepo{history: []*mongo.ArchiveMessage{
		{ConversationID: 10, Seq: 3},
		{ConversationID: 10, Seq: 2},
	}}
	svc := NewIMService(convRepo, &fakeMessageRepo{}, archiveRepo, producer, &fakeRouter{})

	msgs, err := svc.GetChatHistory(context.Background(), 1, 10, 0, 20)
	req.NoError(err)

	// 归档落后于 MySQL 权威序列时，第一页用摘要补一个占位
	req.Len(msgs, 3)
	req.EqualValues(5, msgs[0].Seq)
	req.Equal("最新一条", msgs[0].Content)
	req.EqualValues(3, msgs[1].Seq)
}

func TestBuildSummary(t *testing.T) {
	req := require.New(t)
	req.Equal("你好", buildSummary(consts.MsgTypeText, `{"text":"你好"}`))
	req.Equal("plain", buildSummary(consts.MsgTypeText, "plain"))
	req.Equal("[图片]", buildSummary(consts.MsgTypeImage, "{}"))
	req.Equal("[视频]", buildSummary(consts.MsgTypeVideo, "{}"))
	req.Equal("[文件]", buildSummary(consts.MsgTypeFile, "{}"))
	req.Equal("[待办任务]", buildSummary(consts.MsgTypeTodo, "{}"))
	req.Equal("[未知消息]", buildSummary(99, "{}"))
}
