package bootstrap

import (
	"context"
	"log"
	"sync"

	"agent-chat-engine/internal/config"
	"agent-chat-engine/internal/controller"
	"agent-chat-engine/internal/pkg/logger"
	"agent-chat-engine/internal/repository/contract"
	"agent-chat-engine/internal/repository/implementation"
	"agent-chat-engine/internal/repository/memory"
	"agent-chat-engine/internal/service"
	"agent-chat-engine/internal/websocket"
	"agent-chat-engine/pkg/agent"
	"agent-chat-engine/pkg/engine"
	"agent-chat-engine/pkg/events"
	"agent-chat-engine/pkg/session"
	"agent-chat-engine/pkg/transcript"

	pktNats "agent-chat-engine/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	// Controllers
	ChatController  controller.IChatController
	AdminController controller.IAdminController

	// Background services (exposed for main.go to run)
	ConsumerService service.IConsumerService

	// WebSockets
	WebSocketHub *websocket.Hub

	// Engine internals exposed for startup orchestration
	Engine *engine.Engine
	Logger logger.ILogger
}

func NewContainer(cfg *config.Config) *Container {
	// 1. Core facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. Infrastructure
	var natsPub *pktNats.Publisher
	if cfg.App.NatsURL != "" {
		var err error
		natsPub, err = pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
			natsPub = nil
		}
	}

	var rdb *redis.Client
	if cfg.Storage.Backend == "redis" || cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb = redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
			if cfg.Storage.Backend != "redis" {
				rdb = nil
			}
		}
	}

	// 4. Session persistence, backend selected by config
	var sessionRepo contract.SessionRepository
	switch cfg.Storage.Backend {
	case "redis":
		sessionRepo = implementation.NewRedisSessionRepository(rdb, cfg.Storage.Namespace)
		log.Printf("[INFO] Using session storage: REDIS (%s)", cfg.Storage.Namespace)
	case "memory":
		sessionRepo = memory.NewSessionRepository(cfg.Storage.Namespace)
		log.Printf("[INFO] Using session storage: MEMORY")
	default:
		sessionRepo = implementation.NewFileSessionRepository(cfg.Storage.Dir, cfg.Storage.Namespace)
		log.Printf("[INFO] Using session storage: FILE (%s)", cfg.Storage.Dir)
	}

	// 5. Engine assembly
	titler := agent.NewTitler(cfg.Agent.BaseURL, cfg.Agent.TitleEndpoint)
	store := session.NewStore(sessionRepo, titler, cfg.Engine.SessionLimit, cfg.Engine.PreviewMaxLen, sysLogger)

	accCfg := transcript.DefaultConfig()
	accCfg.DedupMinChars = cfg.Engine.DedupMinChars
	accCfg.DedupProbeLen = cfg.Engine.DedupProbeLen
	acc := transcript.NewAccumulator(accCfg, sysLogger)

	streamClient := agent.NewClient(cfg.Agent.BaseURL, cfg.Agent.TurnEndpoint)
	eng := engine.New(streamClient, acc, store, pubSub, sysLogger)

	// 6. WebSocket hub relaying document updates
	wsLogger := logger.NewIsolatedLogger("logs/document.log")
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	// The latest document text is relayed to editors and echoed back on
	// the next turn request.
	var docMu sync.RWMutex
	var lastDocument string
	eng.SetDocumentSink(func(content string) {
		docMu.Lock()
		lastDocument = content
		docMu.Unlock()
		wsHub.BroadcastDocument(eng.SessionID(), content)
	})
	eng.SetDocumentProvider(func() string {
		docMu.RLock()
		defer docMu.RUnlock()
		return lastDocument
	})

	// 7. Services
	chatService := service.NewChatService(eng, store, natsPub, cfg.App.UploadDir, cfg.App.BaseURL, sysLogger)
	consumerService := service.NewTitleConsumerService(pubSub, events.TopicTurnCompleted, store, sysLogger)

	// 8. Controllers
	chatController := controller.NewChatController(chatService)
	adminController := controller.NewAdminController(sysLogger)

	return &Container{
		ChatController:  chatController,
		AdminController: adminController,
		ConsumerService: consumerService,
		WebSocketHub:    wsHub,
		Engine:          eng,
		Logger:          sysLogger,
	}
}
