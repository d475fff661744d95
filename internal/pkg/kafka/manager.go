package kafka

import (
	"context"
	log "log/slog"

	"github.com/digitzh/FlyBook/internal/api/config"
	"github.com/digitzh/FlyBook/internal/pkg/mongo"

	"github.com/IBM/sarama"
)

// ConsumerManager 管理所有 Kafka 消费者
type ConsumerManager struct {
	archiveConsumer sarama.ConsumerGroup
	archiveHandler  sarama.ConsumerGroupHandler
}

// NewConsumerManager 构造函数
func NewConsumerManager(cfg *config.Config, archiveRepo mongo.ArchiveRepo) (*ConsumerManager, error) {
	saramaCfg := newSaramaConfig(cfg.Kafka)

	archiveConsumer, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.KafkaArchiveConsumer.GroupID, saramaCfg)
	if err != nil {
		return nil, err
	}
	archiveHandler := NewArchiveHandler(archiveRepo)

	return &ConsumerManager{
		archiveConsumer: archiveConsumer,
		archiveHandler:  archiveHandler,
	}, nil
}

// Start 启动所有消费者
func (m *ConsumerManager) Start(ctx context.Context, cfg *config.Config) error {
	go func() {
		topic := cfg.KafkaArchiveConsumer.Topic
		log.Info("Archive consumer started", "topic", topic)
		for {
			if err := m.archiveConsumer.Consume(ctx, []string{topic}, m.archiveHandler); err != nil {
				log.Error("Error from consumer", "err", err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	<-ctx.Done()
	log.Info("Kafka Manager shutting down...")

	if err := m.archiveConsumer.Close(); err != nil {
		log.Error("Failed to close archive consumer", "err", err)
	}

	return nil
}
