package kafka

import (
	"context"
	log "log/slog"

	"github.com/digitzh/FlyBook/internal/pkg/mongo"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
)

// ArchiveHandler 消费归档事件并写入 MongoDB 归档库
type ArchiveHandler struct {
	archiveRepo mongo.ArchiveRepo
}

func NewArchiveHandler(archiveRepo mongo.ArchiveRepo) *ArchiveHandler {
	return &ArchiveHandler{archiveRepo: archiveRepo}
}

func (s *ArchiveHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info("message archive consumer setup")
	return nil
}

func (s *ArchiveHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info("message archive consumer cleanup")
	return nil
}

func (s *ArchiveHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	err := pullMessageBatch(session, claim, s.logic)
	if err != nil {
		log.Error("archive consumer process batch error", "err", err)
		return err
	}
	return nil
}

func (s *ArchiveHandler) logic(ctx context.Context, msg *sarama.ConsumerMessage) error {
	event, err := ToArchiveEvent(msg)
	if err != nil {
		// 畸形事件无法重试，记录后跳过
		log.Error("drop malformed archive event", "offset", msg.Offset, "err", err)
		return nil
	}

	return s.archiveRepo.SaveMessage(ctx, &mongo.ArchiveMessage{
		ConversationID: event.ConversationID,
		Seq:            event.Seq,
		SenderID:       event.SenderID,
		MsgType:        event.MsgType,
		Content:        event.Content,
		Mentions:       event.Mentions,
		QuoteID:        event.QuoteID,
		IsRevoked:      event.IsRevoked,
		CreatedAt:      event.CreatedTime,
	})
}

// ToArchiveEvent 将 kafka 消息解析为归档事件
func ToArchiveEvent(msg *sarama.ConsumerMessage) (*ArchiveEvent, error) {
	var event ArchiveEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
