package repository

import (
	"context"
	"errors"
	"time"

	"github.com/digitzh/FlyBook/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationRepo interface {
	GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error)
	IsMember(ctx context.Context, convID uint64, userID uint64) (bool, error)
	ListMemberIDs(ctx context.Context, convID uint64) ([]uint64, error)

	CommitMessage(ctx context.Context, msg *model.Message, summary string) (uint64, error)

	MarkAsRead(ctx context.Context, convID, userID, seq uint64) error
	GetUserConversationMemList(ctx context.Context, userID uint64) ([]*model.ConversationMember, error)
	GetTotalUnreadCount(ctx context.Context, userID uint64) (int64, error)
}

type conversationRepoImpl struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepoImpl{db: db}
}

// GetConversation 根据会话 ID 获取会话
func (s *conversationRepoImpl) GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).First(&conv, convID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	return &conv, err
}

// IsMember 检查用户是否是会话成员
func (s *conversationRepoImpl) IsMember(ctx context.Context, convID uint64, userID uint64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Count(&count).Error
	return count > 0, err
}

// ListMemberIDs 获取会话全部成员 ID，供扇出使用
func (s *conversationRepoImpl) ListMemberIDs(ctx context.Context, convID uint64) ([]uint64, error) {
	var ids []uint64
	err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ?", convID).
		Pluck("user_id", &ids).Error
	return ids, err
}

// CommitMessage 核心定序逻辑：行锁会话 + 分配 Seq + 消息落库 + 摘要 + 未读数，同一事务提交或回滚。
// 同一会话的并发发送在行锁上排队，不同会话互不影响；
// 事务内任何一步失败都会回滚 CurrentSeq，不存在被跳过的序号。
func (s *conversationRepoImpl) CommitMessage(ctx context.Context, msg *model.Message, summary string) (uint64, error) {
	var newSeq uint64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv model.Conversation
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&conv, msg.ConversationID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrConversationNotFound
			}
			return err
		}

		newSeq = conv.CurrentSeq + 1
		msg.Seq = newSeq
		if msg.CreatedTime.IsZero() {
			msg.CreatedTime = time.Now()
		}

		if err := tx.Create(msg).Error; err != nil {
			return translateDuplicateKey(err)
		}

		err = tx.Model(&model.Conversation{}).Where("id = ?", conv.ID).
			Updates(map[string]interface{}{
				"current_seq":      newSeq,
				"last_msg_content": summary,
				"last_msg_time":    msg.CreatedTime,
			}).Error
		if err != nil {
			return err
		}

		// 除发送者外所有成员未读数 +1
		return tx.Model(&model.ConversationMember{}).
			Where("conversation_id = ? AND user_id <> ?", conv.ID, msg.SenderID).
			Update("unread_count", gorm.Expr("unread_count + 1")).Error
	})
	if err != nil {
		return 0, err
	}
	return newSeq, nil
}

// MarkAsRead 推进已读进度并清零未读数
func (s *conversationRepoImpl) MarkAsRead(ctx context.Context, convID, userID, seq uint64) error {
	return s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Updates(map[string]interface{}{
			"last_ack_seq": seq,
			"unread_count": 0,
		}).Error
}

// GetUserConversationMemList 联表查询，利用嵌套 Model 自动装配
func (s *conversationRepoImpl) GetUserConversationMemList(ctx context.Context, userID uint64) ([]*model.ConversationMember, error) {
	var members []*model.ConversationMember
	// 使用 Conversation__ 别名配合 GORM 的嵌套填充特性
	err := s.db.WithContext(ctx).Table("conversation_members m").
		Select("m.*, "+
			"c.id AS `Conversation__id`, c.type AS `Conversation__type`, "+
			"c.name AS `Conversation__name`, c.owner_id AS `Conversation__owner_id`, "+
			"c.current_seq AS `Conversation__current_seq`, "+
			"c.last_msg_content AS `Conversation__last_msg_content`, "+
			"c.last_msg_time AS `Conversation__last_msg_time`").
		Joins("JOIN conversations c ON m.conversation_id = c.id").
		Where("m.user_id = ?", userID).
		Order("m.is_top DESC, c.last_msg_time DESC").
		Find(&members).Error
	return members, err
}

// GetTotalUnreadCount 计算全局未读数
func (s *conversationRepoImpl) GetTotalUnreadCount(ctx context.Context, userID uint64) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(unread_count), 0)").
		Scan(&total).Error
	return total, err
}
