package config

// Config 配置主体
type Config struct {
	Server               ServerConfig         `mapstructure:"server"`
	DB                   DBConfig             `mapstructure:"database"`
	Redis                RedisConfig          `mapstructure:"redis"`
	Mongo                MongoConfig          `mapstructure:"mongo"`
	Kafka                KafkaConfig          `mapstructure:"kafka"`
	KafkaArchiveConsumer KafkaArchiveConsumer `mapstructure:"kafka_archive_consumer"`
	WS                   WSConfig             `mapstructure:"ws"`
}

// ServerConfig Server配置
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig 数据库配置
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	MaxIdle     int    `mapstructure:"max_idle"`
	MaxOpen     int    `mapstructure:"max_open"`
	MaxLifetime int    `mapstructure:"max_lifetime"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// MongoConfig Mongo配置
type MongoConfig struct {
	URL      string `mapstructure:"url"`
	Database string `mapstructure:"database"`
}

type KafkaConfig struct {
	Brokers  []string       `mapstructure:"brokers"`
	Sasl     SaslConfig     `mapstructure:"sasl"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
	// ArchiveTopic 消息归档事件主题
	ArchiveTopic string `mapstructure:"archive_topic"`
}

type SaslConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type ConsumerConfig struct {
	SessionTimeout    int `mapstructure:"session_timeout"`
	HeartbeatInterval int `mapstructure:"heartbeat_interval"`
	RebalanceTimeout  int `mapstructure:"rebalance_timeout"`
	MaxProcessingTime int `mapstructure:"max_processing_time"`
}

type KafkaArchiveConsumer struct {
	GroupID string `mapstructure:"group_id"`
	Topic   string `mapstructure:"topic"`
}

// WSConfig 推送链路配置
type WSConfig struct {
	// IdleTimeoutSec 连接空闲超时（秒），超时未收到任何帧则服务端主动断开
	IdleTimeoutSec int `mapstructure:"idle_timeout_sec"`
	// PresenceTTLSec 在线租约过期时间（秒），独立于连接空闲超时
	PresenceTTLSec int `mapstructure:"presence_ttl_sec"`
	// OfflineTTLHour 离线队列保留时长（小时）
	OfflineTTLHour int `mapstructure:"offline_ttl_hour"`
	// DrainBatch 上线补投单次最大条数
	DrainBatch int64 `mapstructure:"drain_batch"`
}
