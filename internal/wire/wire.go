package wire

import (
	"time"

	"github.com/digitzh/FlyBook/internal/api"
	"github.com/digitzh/FlyBook/internal/api/config"
	"github.com/digitzh/FlyBook/internal/api/handler"
	"github.com/digitzh/FlyBook/internal/job"
	"github.com/digitzh/FlyBook/internal/pkg/cron"
	"github.com/digitzh/FlyBook/internal/pkg/kafka"
	pkgmongo "github.com/digitzh/FlyBook/internal/pkg/mongo"
	"github.com/digitzh/FlyBook/internal/pkg/redis"
	"github.com/digitzh/FlyBook/internal/push"
	"github.com/digitzh/FlyBook/internal/repository"
	"github.com/digitzh/FlyBook/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router       *gin.Engine
	DB           *gorm.DB
	ConnTable    *push.ConnTable
	Producer     kafka.ArchiveProducer
	KafkaManager *kafka.ConsumerManager
	CronMgr      *cron.Manager
}

func BuildApplication(db *gorm.DB, mongoDB *mongo.Database, cfg *config.Config) (*ApplicationContainer, error) {
	convRepo := repository.NewConversationRepo(db)
	messageRepo := repository.NewMessageRepo(db)
	archiveRepo := pkgmongo.NewArchiveRepo(mongoDB)

	rdb := redis.GetRdbClient()
	instanceID := push.NewInstanceID(cfg.Server.Port)
	presence := push.NewPresenceRegistry(rdb, instanceID, time.Duration(cfg.WS.PresenceTTLSec)*time.Second)
	offlineQueue := push.NewOfflineQueue(rdb, time.Duration(cfg.WS.OfflineTTLHour)*time.Hour)
	connTable := push.NewConnTable(presence, offlineQueue, time.Duration(cfg.WS.IdleTimeoutSec)*time.Second, cfg.WS.DrainBatch)
	router := push.NewDeliveryRouter(connTable, presence, offlineQueue)

	producer, err := kafka.NewArchiveProducer(cfg)
	if err != nil {
		return nil, err
	}

	imService := service.NewIMService(convRepo, messageRepo, archiveRepo, producer, router)

	handlers := &api.HandlersGroup{
		IMHandler: handler.NewIMHandler(imService),
		WsHandler: handler.NewWsHandler(connTable),
	}

	ginRouter := api.SetupRouter(handlers)

	kafkaMgr, err := kafka.NewConsumerManager(cfg, archiveRepo)
	if err != nil {
		return nil, err
	}

	cronMgr := cron.NewCronManager(job.NewPresenceSweepJob(presence))

	return &ApplicationContainer{
		Router:       ginRouter,
		DB:           db,
		ConnTable:    connTable,
		Producer:     producer,
		KafkaManager: kafkaMgr,
		CronMgr:      cronMgr,
	}, nil
}
