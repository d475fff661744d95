package repository

import (
	"context"
	"errors"

	"github.com/digitzh/FlyBook/internal/model"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

const (
	// SyncPageLimit 单次同步拉取上限
	SyncPageLimit = 100

	mysqlErrDuplicateEntry = 1062
)

type MessageRepo interface {
	SyncMessages(ctx context.Context, convID uint64, afterSeq uint64, limit int) ([]*model.Message, error)
	GetMessageBySeq(ctx context.Context, convID uint64, seq uint64) (*model.Message, error)
	RevokeMessage(ctx context.Context, convID uint64, seq uint64, senderID uint64) error
}

type messageRepoImpl struct {
	db *gorm.DB
}

func NewMessageRepo(db *gorm.DB) MessageRepo {
	return &messageRepoImpl{db: db}
}

// SyncMessages 增量同步：seq 严格大于水位线 afterSeq，升序返回
func (s *messageRepoImpl) SyncMessages(ctx context.Context, convID uint64, afterSeq uint64, limit int) ([]*model.Message, error) {
	if limit <= 0 || limit > SyncPageLimit {
		limit = SyncPageLimit
	}

	var messages []*model.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND seq > ?", convID, afterSeq).
		Order("seq ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// GetMessageBySeq 精确查询
func (s *messageRepoImpl) GetMessageBySeq(ctx context.Context, convID uint64, seq uint64) (*model.Message, error) {
	var msg model.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND seq = ?", convID, seq).
		First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// RevokeMessage 撤回消息：落库后唯一允许的变更
func (s *messageRepoImpl) RevokeMessage(ctx context.Context, convID uint64, seq uint64, senderID uint64) error {
	return s.db.WithContext(ctx).Model(&model.Message{}).
		Where("conversation_id = ? AND seq = ? AND sender_id = ?", convID, seq, senderID).
		Update("is_revoked", 1).Error
}

// translateDuplicateKey 将 MySQL 唯一索引冲突映射为定序冲突错误
func translateDuplicateKey(err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
		return ErrDuplicateSeq
	}
	return err
}
