package kafka

import (
	"context"
	log "log/slog"
	"strconv"

	"github.com/digitzh/FlyBook/internal/api/config"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
)

// ArchiveProducer 归档事件发布接口
type ArchiveProducer interface {
	Publish(ctx context.Context, event *ArchiveEvent) error
	Close() error
}

type archiveProducerImpl struct {
	producer sarama.AsyncProducer
	topic    string
}

func NewArchiveProducer(cfg *config.Config) (ArchiveProducer, error) {
	producer, err := sarama.NewAsyncProducer(cfg.Kafka.Brokers, newSaramaConfig(cfg.Kafka))
	if err != nil {
		return nil, err
	}

	s := &archiveProducerImpl{
		producer: producer,
		topic:    cfg.Kafka.ArchiveTopic,
	}

	// 异步发送的失败只能记录，归档缺口由消费端按 MySQL 权威数据补齐
	go func() {
		for err := range producer.Errors() {
			log.Error("archive event publish failed", "topic", err.Msg.Topic, "err", err.Err)
		}
	}()

	return s, nil
}

// Publish 发布归档事件，按会话 ID 作为分区键保持会话内事件有序
func (s *archiveProducerImpl) Publish(ctx context.Context, event *ArchiveEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(strconv.FormatUint(event.ConversationID, 10)),
		Value: sarama.ByteEncoder(data),
	}

	select {
	case s.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *archiveProducerImpl) Close() error {
	return s.producer.Close()
}
