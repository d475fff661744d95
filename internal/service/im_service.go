package service

import (
	"context"
	"errors"
	log "log/slog"
	"time"

	"github.com/digitzh/FlyBook/internal/api/dto"
	"github.com/digitzh/FlyBook/internal/model"
	"github.com/digitzh/FlyBook/internal/pkg/consts"
	"github.com/digitzh/FlyBook/internal/pkg/kafka"
	"github.com/digitzh/FlyBook/internal/pkg/mongo"
	"github.com/digitzh/FlyBook/internal/repository"

	"github.com/goccy/go-json"
	"github.com/jinzhu/copier"
)

// MessageRouter 推送路由，由 push.DeliveryRouter 实现
type MessageRouter interface {
	Route(ctx context.Context, userID uint64, payload []byte)
}

// IMService 即时通讯服务接口定义
type IMService interface {
	SendMessage(ctx context.Context, senderID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error)
	SyncMessages(ctx context.Context, userID uint64, convID uint64, afterSeq uint64, limit int) ([]*dto.MessageDTO, error)
	GetChatHistory(ctx context.Context, userID uint64, convID uint64, lastSeq uint64, pageSize int) ([]*dto.MessageDTO, error)
	GetConversationList(ctx context.Context, userID uint64) ([]*dto.ConversationDTO, error)
	GetTotalUnreadCount(ctx context.Context, userID uint64) (int64, error)
	MarkAsRead(ctx context.Context, userID uint64, convID uint64, seq uint64) error
	RevokeMessage(ctx context.Context, userID uint64, convID uint64, seq uint64) error
}

type imServiceImpl struct {
	convRepo    repository.ConversationRepo
	messageRepo repository.MessageRepo
	archiveRepo mongo.ArchiveRepo
	producer    kafka.ArchiveProducer
	router      MessageRouter
}

func NewIMService(
	convRepo repository.ConversationRepo,
	messageRepo repository.MessageRepo,
	archiveRepo mongo.ArchiveRepo,
	producer kafka.ArchiveProducer,
	router MessageRouter,
) IMService {
	return &imServiceImpl{
		convRepo:    convRepo,
		messageRepo: messageRepo,
		archiveRepo: archiveRepo,
		producer:    producer,
		router:      router,
	}
}

// SendMessage 发送消息。
// 定序 + 落库 + 摘要 + 未读数在一个事务里提交，提交成功后才开始推送：
// 任何接收者看到的推送一定对应一条已持久化的消息
func (s *imServiceImpl) SendMessage(ctx context.Context, senderID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error) {
	isMember, err := s.convRepo.IsMember(ctx, req.ConversationID, senderID)
	if err != nil {
		return nil, UnExpectedError
	}
	if !isMember {
		if _, err := s.convRepo.GetConversation(ctx, req.ConversationID); errors.Is(err, repository.ErrConversationNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, ErrNotMember
	}

	msg := &model.Message{
		ConversationID: req.ConversationID,
		SenderID:       senderID,
		MsgType:        req.MsgType,
		Content:        req.Content,
		Mentions:       req.Mentions,
		QuoteID:        req.QuoteID,
		CreatedTime:    time.Now(),
	}

	if _, err := s.convRepo.CommitMessage(ctx, msg, buildSummary(req.MsgType, req.Content)); err != nil {
		switch {
		case errors.Is(err, repository.ErrConversationNotFound):
			return nil, ErrConversationNotFound
		case errors.Is(err, repository.ErrDuplicateSeq):
			// 唯一索引兜住了定序缺陷，事务已回滚，调用方重试即可
			log.ErrorContext(ctx, "定序冲突，消息未提交", "convID", req.ConversationID, "err", err)
			return nil, ErrSendRetry
		default:
			log.ErrorContext(ctx, "消息提交失败", "convID", req.ConversationID, "err", err)
			return nil, ErrSendRetry
		}
	}

	s.publishArchiveEvent(ctx, msg)
	s.fanOut(ctx, msg)

	return s.toMessageDTO(msg), nil
}

// SyncMessages 增量同步：返回 seq 严格大于水位线的消息，升序
func (s *imServiceImpl) SyncMessages(ctx context.Context, userID uint64, convID uint64, afterSeq uint64, limit int) ([]*dto.MessageDTO, error) {
	isMember, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil || !isMember {
		return nil, UnauthorizedError
	}

	models, err := s.messageRepo.SyncMessages(ctx, convID, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	res := make([]*dto.MessageDTO, 0, len(models))
	for _, m := range models {
		res = append(res, s.toMessageDTO(m))
	}
	return res, nil
}

// GetChatHistory 从归档库向前翻页，包含空洞自愈
func (s *imServiceImpl) GetChatHistory(ctx context.Context, userID uint64, convID uint64, lastSeq uint64, pageSize int) ([]*dto.MessageDTO, error) {
	isMember, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil || !isMember {
		return nil, UnauthorizedError
	}

	models, err := s.archiveRepo.GetHistory(ctx, convID, lastSeq, pageSize)
	if err != nil {
		return nil, err
	}

	// 归档异步写入，第一页可能暂时缺少最新消息，用 MySQL 摘要补一个占位
	if lastSeq == 0 {
		conv, err := s.convRepo.GetConversation(ctx, convID)
		if err == nil {
			hasGap := (len(models) == 0 && conv.CurrentSeq > 0) ||
				(len(models) > 0 && models[0].Seq < conv.CurrentSeq)
			if hasGap {
				stub := &dto.MessageDTO{
					ConversationID: conv.ID,
					Content:        conv.LastMsgContent,
					Seq:            conv.CurrentSeq,
					CreatedTime:    conv.LastMsgTime,
				}
				res := []*dto.MessageDTO{stub}
				for _, m := range models {
					res = append(res, s.archiveToDTO(m))
				}
				return res, nil
			}
		}
	}

	res := make([]*dto.MessageDTO, 0, len(models))
	for _, m := range models {
		res = append(res, s.archiveToDTO(m))
	}
	return res, nil
}

// GetConversationList 获取会话列表
func (s *imServiceImpl) GetConversationList(ctx context.Context, userID uint64) ([]*dto.ConversationDTO, error) {
	members, err := s.convRepo.GetUserConversationMemList(ctx, userID)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.ConversationDTO, 0, len(members))
	for _, m := range members {
		res = append(res, &dto.ConversationDTO{
			ConversationID: m.ConversationID,
			Type:           m.Conversation.Type,
			Name:           m.Conversation.Name,
			OwnerID:        m.Conversation.OwnerID,
			LastMsgContent: m.Conversation.LastMsgContent,
			LastMsgTime:    m.Conversation.LastMsgTime,
			UnreadCount:    m.UnreadCount,
			LastAckSeq:     m.LastAckSeq,
			IsMuted:        m.IsMuted == 1,
			IsTop:          m.IsTop == 1,
		})
	}
	return res, nil
}

// GetTotalUnreadCount 全局未读数
func (s *imServiceImpl) GetTotalUnreadCount(ctx context.Context, userID uint64) (int64, error) {
	return s.convRepo.GetTotalUnreadCount(ctx, userID)
}

// MarkAsRead 标记已读，已读进度不允许越过当前序列号
func (s *imServiceImpl) MarkAsRead(ctx context.Context, userID uint64, convID uint64, seq uint64) error {
	isMember, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil || !isMember {
		return UnauthorizedError
	}

	conv, err := s.convRepo.GetConversation(ctx, convID)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return ErrConversationNotFound
		}
		return err
	}

	targetSeq := seq
	if targetSeq > conv.CurrentSeq {
		targetSeq = conv.CurrentSeq
	}

	return s.convRepo.MarkAsRead(ctx, convID, userID, targetSeq)
}

// RevokeMessage 撤回自己的消息：落库后唯一允许的变更
func (s *imServiceImpl) RevokeMessage(ctx context.Context, userID uint64, convID uint64, seq uint64) error {
	isMember, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil || !isMember {
		return UnauthorizedError
	}

	msg, err := s.messageRepo.GetMessageBySeq(ctx, convID, seq)
	if err != nil {
		return ErrMessageNotFound
	}
	if msg.SenderID != userID {
		return UnauthorizedError
	}

	if err := s.messageRepo.RevokeMessage(ctx, convID, seq, userID); err != nil {
		return err
	}

	msg.IsRevoked = 1
	s.publishArchiveEvent(ctx, msg)
	return nil
}

// publishArchiveEvent 发布归档事件，失败只记录，不影响已提交的发送
func (s *imServiceImpl) publishArchiveEvent(ctx context.Context, msg *model.Message) {
	event := &kafka.ArchiveEvent{
		ConversationID: msg.ConversationID,
		Seq:            msg.Seq,
		SenderID:       msg.SenderID,
		MsgType:        msg.MsgType,
		Content:        msg.Content,
		Mentions:       msg.Mentions,
		QuoteID:        msg.QuoteID,
		IsRevoked:      msg.IsRevoked,
		CreatedTime:    msg.CreatedTime,
	}

	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.producer.Publish(pubCtx, event); err != nil {
		log.ErrorContext(ctx, "归档事件发布失败", "convID", msg.ConversationID, "seq", msg.Seq, "err", err)
	}
}

// fanOut 向除发送者外的所有成员投递。
// 消息已提交，成员查询或单个投递失败都不回传给发送方，漏掉的由同步水位补齐
func (s *imServiceImpl) fanOut(ctx context.Context, msg *model.Message) {
	memberIDs, err := s.convRepo.ListMemberIDs(ctx, msg.ConversationID)
	if err != nil {
		log.ErrorContext(ctx, "扇出成员查询失败", "convID", msg.ConversationID, "err", err)
		return
	}

	payload, err := json.Marshal(s.toMessageDTO(msg))
	if err != nil {
		log.ErrorContext(ctx, "推送载荷序列化失败", "convID", msg.ConversationID, "err", err)
		return
	}

	for _, memberID := range memberIDs {
		if memberID == msg.SenderID {
			continue
		}
		s.router.Route(ctx, memberID, payload)
	}
}

// buildSummary 根据消息类型生成会话摘要
func buildSummary(msgType int, content string) string {
	switch msgType {
	case consts.MsgTypeText:
		var body struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(content), &body); err == nil && body.Text != "" {
			return body.Text
		}
		return content
	case consts.MsgTypeImage:
		return "[图片]"
	case consts.MsgTypeVideo:
		return "[视频]"
	case consts.MsgTypeFile:
		return "[文件]"
	case consts.MsgTypeTodo:
		return "[待办任务]"
	default:
		return "[未知消息]"
	}
}

func (s *imServiceImpl) toMessageDTO(m *model.Message) *dto.MessageDTO {
	var d dto.MessageDTO
	_ = copier.Copy(&d, m)
	return &d
}

func (s *imServiceImpl) archiveToDTO(m *mongo.ArchiveMessage) *dto.MessageDTO {
	return &dto.MessageDTO{
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		MsgType:        m.MsgType,
		Content:        m.Content,
		Mentions:       m.Mentions,
		QuoteID:        m.QuoteID,
		Seq:            m.Seq,
		IsRevoked:      m.IsRevoked,
		CreatedTime:    m.CreatedAt,
	}
}
